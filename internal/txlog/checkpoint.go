// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package txlog

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/golang/snappy"
)

// checkpointMagic/checkpointVersion validate a checkpoint stream,
// mirroring fsm_snapshot.go's magic-number-then-version header exactly
// (down to writing them as big-endian before switching to a
// snappy-compressed body).
const (
	checkpointMagic   uint32 = 0xC70C1E
	checkpointVersion uint32 = 1
)

// SaveCheckpoint writes a snappy-compressed dump of the log to w:
// magic, version, then the log bytes as a snappy framed stream (no
// length prefix). This is
// the wal-replacement analogue of fsm_snapshot.go's curatorSnapshoter.Save.
func SaveCheckpoint(w io.Writer, l *Log) error {
	if err := binary.Write(w, binary.BigEndian, checkpointMagic); err != nil {
		return fmt.Errorf("txlog: failed to write checkpoint magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, checkpointVersion); err != nil {
		return fmt.Errorf("txlog: failed to write checkpoint version: %w", err)
	}
	sw := snappy.NewBufferedWriter(w)
	if _, err := sw.Write(l.Bytes()); err != nil {
		return fmt.Errorf("txlog: failed to write compressed checkpoint body: %w", err)
	}
	return sw.Close()
}

// LoadCheckpoint reads back a checkpoint written by SaveCheckpoint and
// returns the raw (decompressed) log bytes, suitable for NewReader.
func LoadCheckpoint(r io.Reader) ([]byte, error) {
	var magic, version uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("txlog: failed to read checkpoint magic: %w", err)
	}
	if magic != checkpointMagic {
		return nil, fmt.Errorf("txlog: checkpoint magic mismatch, got %x want %x", magic, checkpointMagic)
	}
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("txlog: failed to read checkpoint version: %w", err)
	}
	if version != checkpointVersion {
		return nil, fmt.Errorf("txlog: unsupported checkpoint version %d", version)
	}
	sr := snappy.NewReader(r)
	return ioutil.ReadAll(sr)
}
