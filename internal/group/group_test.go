// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "test.groupdb")
}

// S1 from the scenario list: new group, insert a table, add a column,
// insert rows, commit, reopen.
func TestScenarioInsertTableCommitReopen(t *testing.T) {
	path := tempPath(t)

	g := New(DefaultConfig)
	require.NoError(t, g.Open(path))

	tbl, err := g.InsertTable(0, "t", true)
	require.NoError(t, err)
	ci := tbl.InsertColumn("x", ColumnInt)
	row := tbl.InsertRow(3)
	tbl.SetInt(ci, row, 1)
	tbl.SetInt(ci, row+1, 2)
	tbl.SetInt(ci, row+2, 3)

	_, err = g.Commit()
	require.NoError(t, err)
	require.NoError(t, g.Detach())

	g2 := New(DefaultConfig)
	require.NoError(t, g2.Open(path))
	defer g2.Detach()

	require.Equal(t, 1, g2.Size())
	reopened := g2.GetTableByName("t")
	require.NotNil(t, reopened)
	require.Equal(t, 3, reopened.Size())
	require.EqualValues(t, 1, reopened.GetInt(0, 0))
	require.EqualValues(t, 2, reopened.GetInt(0, 1))
	require.EqualValues(t, 3, reopened.GetInt(0, 2))
}

// Property 1: a brand new group, immediately committed and reopened,
// has size 0, the target file format, and a minimal top array. See
// DESIGN.md Open Question #4 for how the logical-size half of this
// property is interpreted.
func TestPropertyFreshGroupCommitIsMinimal(t *testing.T) {
	path := tempPath(t)

	g := New(DefaultConfig)
	require.NoError(t, g.Open(path))
	_, err := g.Commit()
	require.NoError(t, err)
	require.NoError(t, g.Detach())

	g2 := New(DefaultConfig)
	require.NoError(t, g2.Open(path))
	defer g2.Detach()

	require.Equal(t, 0, g2.Size())
	require.Equal(t, TargetFileFormatVersion, g2.GetFileFormatVersion())
	require.Equal(t, 3, g2.top.size())
}

func TestOpenTwiceIsLogicError(t *testing.T) {
	path := tempPath(t)
	g := New(DefaultConfig)
	require.NoError(t, g.Open(path))
	defer g.Detach()

	require.Panics(t, func() { _ = g.Open(path) })
}

func TestDetachThenReattach(t *testing.T) {
	path := tempPath(t)
	g := New(DefaultConfig)
	require.NoError(t, g.Open(path))
	require.True(t, g.IsAttached())
	require.NoError(t, g.Detach())
	require.False(t, g.IsAttached())

	require.NoError(t, g.Open(path))
	require.True(t, g.IsAttached())
	require.NoError(t, g.Detach())
}

func TestOpenMemoryRoundTrip(t *testing.T) {
	g := New(DefaultConfig)
	require.NoError(t, g.OpenMemory(nil, false))

	tbl, err := g.InsertTable(0, "memtab", true)
	require.NoError(t, err)
	tbl.InsertColumn("v", ColumnBool)

	buf, err := g.WriteToMem()
	require.NoError(t, err)
	require.NoError(t, g.Detach())

	g2 := New(DefaultConfig)
	require.NoError(t, g2.OpenMemory(buf, true))
	defer g2.Detach()
	require.Equal(t, 1, g2.Size())
	require.Equal(t, "memtab", g2.GetTableName(0))
}

// Property 5 (roughly): a hand-crafted top array of an illegal size is
// rejected with an error whose text names the top array.
func TestOpenRejectsIllegalTopArraySize(t *testing.T) {
	path := tempPath(t)
	g := New(DefaultConfig)
	require.NoError(t, g.Open(path))

	bad := &topArray{words: []taggedWord{
		taggedFromRef(Null),
		taggedFromRef(Null),
		taggedFromInt(0),
		taggedFromInt(0), // size 4: not in {3,5,7,9,10}
	}}
	err := validateTop(bad, g.alloc.Baseline(), path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "top array")
	require.NoError(t, g.Detach())
}
