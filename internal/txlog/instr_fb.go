// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package txlog

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

// Field slots of the Instr flatbuffers table. flatc is not run as part
// of this module's build, so these are hand-written against the public
// low-level Builder/Table API instead of flatc-generated StartX/AddX
// helpers (contrast with durable/state/fb/builders.go, which calls
// generated helpers that aren't present in this repository's vendor
// closure).
const (
	instrVTOp          = 4 + 2*0
	instrVTTableIndex  = 4 + 2*1
	instrVTColumnIndex = 4 + 2*2
	instrVTTargetIndex = 4 + 2*3
	instrVTRow1        = 4 + 2*4
	instrVTRow2        = 4 + 2*5
	instrVTCount       = 4 + 2*6
	instrVTName        = 4 + 2*7
	instrVTBool1       = 4 + 2*8
)

// encodeInstr builds the flatbuffers payload for one instruction.
func encodeInstr(in Instr) []byte {
	b := flatbuffers.NewBuilder(64)

	var nameOff flatbuffers.UOffsetT
	if in.Name != "" {
		nameOff = b.CreateString(in.Name)
	}

	b.StartObject(9)
	b.PrependByteSlot(8, boolByte(in.Bool1), 0)
	b.PrependUOffsetTSlot(7, nameOff, 0)
	b.PrependInt64Slot(6, in.Count, 0)
	b.PrependInt64Slot(5, in.Row2, 0)
	b.PrependInt64Slot(4, in.Row1, 0)
	b.PrependInt32Slot(3, in.TargetIndex, 0)
	b.PrependInt32Slot(2, in.ColumnIndex, 0)
	b.PrependInt32Slot(1, in.TableIndex, 0)
	b.PrependByteSlot(0, byte(in.Op), 0)
	end := b.EndObject()
	b.Finish(end)
	return b.FinishedBytes()
}

// decodeInstr parses a flatbuffers Instr payload back into an Instr.
func decodeInstr(buf []byte) Instr {
	n := flatbuffers.GetUOffsetT(buf)
	t := &flatbuffers.Table{Bytes: buf, Pos: n}

	in := Instr{}
	if o := t.Offset(instrVTOp); o != 0 {
		in.Op = Opcode(t.GetByte(t.Pos + flatbuffers.UOffsetT(o)))
	}
	if o := t.Offset(instrVTTableIndex); o != 0 {
		in.TableIndex = t.GetInt32(t.Pos + flatbuffers.UOffsetT(o))
	}
	if o := t.Offset(instrVTColumnIndex); o != 0 {
		in.ColumnIndex = t.GetInt32(t.Pos + flatbuffers.UOffsetT(o))
	}
	if o := t.Offset(instrVTTargetIndex); o != 0 {
		in.TargetIndex = t.GetInt32(t.Pos + flatbuffers.UOffsetT(o))
	}
	if o := t.Offset(instrVTRow1); o != 0 {
		in.Row1 = t.GetInt64(t.Pos + flatbuffers.UOffsetT(o))
	}
	if o := t.Offset(instrVTRow2); o != 0 {
		in.Row2 = t.GetInt64(t.Pos + flatbuffers.UOffsetT(o))
	}
	if o := t.Offset(instrVTCount); o != 0 {
		in.Count = t.GetInt64(t.Pos + flatbuffers.UOffsetT(o))
	}
	if o := t.Offset(instrVTName); o != 0 {
		pos := t.Pos + flatbuffers.UOffsetT(o)
		in.Name = string(t.ByteVector(pos))
	}
	if o := t.Offset(instrVTBool1); o != 0 {
		in.Bool1 = t.GetByte(t.Pos+flatbuffers.UOffsetT(o)) != 0
	}
	return in
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
