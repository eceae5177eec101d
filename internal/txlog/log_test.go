// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package txlog

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogAppendAndReplayRoundTrip(t *testing.T) {
	l := NewLog()
	l.Append(Instr{Op: OpInsertGroupLevelTable, TargetIndex: 0, Name: "t"})
	l.Append(Instr{Op: OpInsertColumn, TableIndex: 0, ColumnIndex: 0, Name: "x"})
	l.Append(Instr{Op: OpInsertEmptyRows, TableIndex: 0, Count: 3})
	l.Append(Instr{Op: OpSetValue, TableIndex: 0, ColumnIndex: 0, Row1: 0})

	var got []Instr
	visitor := visitorFunc(func(in Instr) error {
		got = append(got, in)
		return nil
	})
	require.NoError(t, Replay(l.Bytes(), visitor))
	require.Len(t, got, 4)
	require.Equal(t, OpInsertGroupLevelTable, got[0].Op)
	require.Equal(t, "t", got[0].Name)
	require.EqualValues(t, 3, got[2].Count)
}

func TestCheckpointSaveLoadRoundTrip(t *testing.T) {
	l := NewLog()
	l.Append(Instr{Op: OpRenameGroupLevelTable, TableIndex: 1, Name: "renamed"})
	l.Append(Instr{Op: OpEraseLinkColumn, TableIndex: 2, ColumnIndex: 3, TargetIndex: 4})

	var buf bytes.Buffer
	require.NoError(t, SaveCheckpoint(&buf, l))

	restored, err := LoadCheckpoint(&buf)
	require.NoError(t, err)
	require.Equal(t, l.Bytes(), restored)
}

func TestLoadCheckpointRejectsBadMagic(t *testing.T) {
	_, err := LoadCheckpoint(bytes.NewReader([]byte{0, 0, 0, 0, 0, 0, 0, 1}))
	require.Error(t, err)
}

func TestReplayDetectsCorruptedChecksum(t *testing.T) {
	l := NewLog()
	l.Append(Instr{Op: OpSetSearchIndex, TableIndex: 5})
	data := append([]byte(nil), l.Bytes()...)
	data[len(data)-1] ^= 0xFF // flip every bit of the trailing CRC's last byte

	err := Replay(data, visitorFunc(func(Instr) error { return nil }))
	require.Error(t, err)
}

type visitorFunc func(Instr) error

func (f visitorFunc) Visit(in Instr) error { return f(in) }
