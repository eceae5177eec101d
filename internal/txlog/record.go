// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package txlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Wire framing for one instruction: a 4-byte length, the flatbuffers
// payload, then a 4-byte CRC32 (Castagnoli) of the payload. Adapted
// from pkg/wal/record.go's ID+length+data+CRC32 framing; the log
// position itself stands in for wal's explicit record ID, since
// instructions are always read back in sequence.
const recordOverhead = 4 + 4 // length prefix + trailing checksum

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func serializeInstr(in Instr) []byte {
	payload := encodeInstr(in)
	buf := make([]byte, 4+len(payload)+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(payload)))
	copy(buf[4:4+len(payload)], payload)
	sum := crc32.Checksum(payload, crcTable)
	binary.LittleEndian.PutUint32(buf[4+len(payload):], sum)
	return buf
}

// deserializeInstr parses one record from the front of buf and returns
// the decoded instruction plus the number of bytes consumed.
func deserializeInstr(buf []byte) (Instr, int, error) {
	if len(buf) < 4 {
		return Instr{}, 0, fmt.Errorf("txlog: truncated record length prefix")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	total := 4 + int(n) + 4
	if len(buf) < total {
		return Instr{}, 0, fmt.Errorf("txlog: truncated record, need %d bytes, have %d", total, len(buf))
	}
	payload := buf[4 : 4+n]
	wantSum := binary.LittleEndian.Uint32(buf[4+n:])
	gotSum := crc32.Checksum(payload, crcTable)
	if wantSum != gotSum {
		return Instr{}, 0, fmt.Errorf("txlog: checksum mismatch in record at offset, want %x got %x", wantSum, gotSum)
	}
	return decodeInstr(payload), total, nil
}
