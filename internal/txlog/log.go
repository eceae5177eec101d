// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package txlog

import (
	"bytes"
	"io"
)

// Log is an append-only sequence of instructions, the wire format the
// transact advancer (C5) replays. It is the concrete form of the
// "transaction-log parser" spec.md §1 names as an external
// collaborator — nothing in the retrieved corpus supplies one, so it is
// specified and implemented here, adapted from pkg/wal.Log's
// Append/Iterator shape.
type Log struct {
	buf bytes.Buffer
}

// NewLog returns an empty log.
func NewLog() *Log { return &Log{} }

// Append serializes and appends one instruction.
func (l *Log) Append(in Instr) {
	l.buf.Write(serializeInstr(in))
}

// Bytes returns the log's wire-format contents, suitable for handing to
// a Reader constructed elsewhere (e.g. after being shipped across a
// replication channel).
func (l *Log) Bytes() []byte { return l.buf.Bytes() }

// Reader replays a serialized log as a sequence of instructions.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps a serialized log for sequential replay.
func NewReader(data []byte) *Reader { return &Reader{data: data} }

// Next returns the next instruction, or io.EOF once the log is
// exhausted.
func (r *Reader) Next() (Instr, error) {
	if r.pos >= len(r.data) {
		return Instr{}, io.EOF
	}
	in, n, err := deserializeInstr(r.data[r.pos:])
	if err != nil {
		return Instr{}, err
	}
	r.pos += n
	return in, nil
}

// Visitor is the dispatch target for replaying a Log, mirroring
// spec.md §4.5/§6's "generic visitor dispatch over the instruction
// set". internal/group implements this interface in advance.go.
type Visitor interface {
	Visit(Instr) error
}

// Replay feeds every instruction in data to v, in order, stopping at
// the first error.
func Replay(data []byte, v Visitor) error {
	r := NewReader(data)
	for {
		in, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := v.Visit(in); err != nil {
			return err
		}
	}
}
