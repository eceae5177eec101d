// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newMemGroup(t *testing.T) *Group {
	g := New(DefaultConfig)
	require.NoError(t, g.OpenMemory(nil, false))
	t.Cleanup(func() { g.Detach() })
	return g
}

func TestInsertTableRejectsDuplicateName(t *testing.T) {
	g := newMemGroup(t)
	_, err := g.InsertTable(0, "a", true)
	require.NoError(t, err)
	_, err = g.InsertTable(1, "a", true)
	require.Error(t, err)
	require.IsType(t, &TableNameInUseError{}, err)
}

func TestInsertTableRejectsOverlongName(t *testing.T) {
	g := newMemGroup(t)
	long := make([]byte, maxTableNameLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := g.InsertTable(0, string(long), true)
	require.Error(t, err)
}

// Property 4: removing a table still targeted by another table's link
// column fails with CrossTableLinkTargetError.
func TestRemoveTableRejectsWhenLinked(t *testing.T) {
	g := newMemGroup(t)
	a, err := g.InsertTable(0, "a", true)
	require.NoError(t, err)
	b, err := g.InsertTable(1, "b", true)
	require.NoError(t, err)
	a.InsertLinkColumn("to_b", b)

	err = g.RemoveTable(1)
	require.Error(t, err)
	require.IsType(t, &CrossTableLinkTargetError{}, err)

	// Removing the source of the link (not the target) is unaffected;
	// once it's gone, the former target can be removed too.
	require.NoError(t, g.RemoveTable(0))
	require.NoError(t, g.RemoveTable(0))
	require.Equal(t, 0, g.Size())
}

func TestInsertLinkColumnCreatesReciprocalBacklink(t *testing.T) {
	g := newMemGroup(t)
	a, err := g.InsertTable(0, "a", true)
	require.NoError(t, err)
	b, err := g.InsertTable(1, "b", true)
	require.NoError(t, err)

	ci := a.InsertLinkColumn("to_b", b)
	require.Equal(t, ColumnLink, a.columns[ci].typ)
	require.Equal(t, b.ndx, a.columns[ci].linkTargetTable)

	found := false
	for _, c := range b.columns {
		if c.typ == ColumnBacklink && c.linkTargetTable == a.ndx && c.backlinkOrigin == ci {
			found = true
		}
	}
	require.True(t, found, "expected a reciprocal backlink column on b")
}

// Inserting a table in the middle renumbers every existing link column
// whose target index is at or beyond the insertion point.
func TestInsertTableRenumbersLinkTargets(t *testing.T) {
	g := newMemGroup(t)
	a, err := g.InsertTable(0, "a", true)
	require.NoError(t, err)
	b, err := g.InsertTable(1, "b", true)
	require.NoError(t, err)
	a.InsertLinkColumn("to_b", b)
	require.Equal(t, 1, a.columns[0].linkTargetTable)

	_, err = g.InsertTable(0, "new_first", true)
	require.NoError(t, err)

	require.Equal(t, 2, a.columns[0].linkTargetTable)
}

func TestRemoveTableRenumbersLinkTargets(t *testing.T) {
	g := newMemGroup(t)
	a, err := g.InsertTable(0, "a", true)
	require.NoError(t, err)
	_, err = g.InsertTable(1, "middle", true)
	require.NoError(t, err)
	c, err := g.InsertTable(2, "c", true)
	require.NoError(t, err)
	a.InsertLinkColumn("to_c", c)
	require.Equal(t, 2, a.columns[0].linkTargetTable)

	require.NoError(t, g.RemoveTable(1))
	require.Equal(t, 1, a.columns[0].linkTargetTable)
}

// TestRemoveTableRenumbersAccessorThatShiftsIntoVacatedSlot guards
// against renumbering skipping whichever surviving accessor ends up
// occupying the removed table's old index after the splice.
func TestRemoveTableRenumbersAccessorThatShiftsIntoVacatedSlot(t *testing.T) {
	g := newMemGroup(t)
	_, err := g.InsertTable(0, "a", true)
	require.NoError(t, err)
	b, err := g.InsertTable(1, "b", true)
	require.NoError(t, err)
	_, err = g.InsertTable(2, "c", true)
	require.NoError(t, err)
	d, err := g.InsertTable(3, "d", true)
	require.NoError(t, err)
	b.InsertLinkColumn("to_d", d)
	require.Equal(t, 3, b.columns[0].linkTargetTable)

	// Removing "a" (index 0) shifts "b" down into index 0; "b"'s link
	// target must still be renumbered even though it now sits at the
	// vacated index.
	require.NoError(t, g.RemoveTable(0))
	require.Equal(t, 0, b.ndx)
	require.Equal(t, 2, b.columns[0].linkTargetTable)
}

func TestRenameTableRejectsCollision(t *testing.T) {
	g := newMemGroup(t)
	_, err := g.InsertTable(0, "a", true)
	require.NoError(t, err)
	_, err = g.InsertTable(1, "b", true)
	require.NoError(t, err)

	err = g.RenameTable(1, "a", true)
	require.Error(t, err)
	require.IsType(t, &TableNameInUseError{}, err)

	require.NoError(t, g.RenameTable(1, "c", true))
	require.Equal(t, "c", g.GetTableName(1))
}

func TestGetOrAddTable(t *testing.T) {
	g := newMemGroup(t)
	t1, added := g.GetOrAddTable("a")
	require.True(t, added)
	t2, added2 := g.GetOrAddTable("a")
	require.False(t, added2)
	require.Equal(t, t1.ndx, t2.ndx)
}

func TestHasTableAndNoSuchTable(t *testing.T) {
	g := newMemGroup(t)
	_, err := g.InsertTable(0, "present", true)
	require.NoError(t, err)
	require.True(t, g.HasTable("present"))
	require.False(t, g.HasTable("absent"))

	err = g.RemoveTableByName("absent")
	require.Error(t, err)
	require.IsType(t, &NoSuchTableError{}, err)
}
