// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groupdb/groupdb/internal/txlog"
)

// writeTransactLog builds a writer group, applies instrs as the
// "other" writer would, commits, and returns the log bytes plus the
// resulting top-ref/file-size a reader can advance to.
func commitWithLog(t *testing.T, g *Group, build func(), instrs []txlog.Instr) (Ref, uint64, []byte) {
	t.Helper()
	build()
	topRef, err := g.Commit()
	require.NoError(t, err)

	log := txlog.NewLog()
	for _, in := range instrs {
		log.Append(in)
	}
	return topRef, g.alloc.Baseline(), log.Bytes()
}

// Property 10: erasing zero rows unordered must still mark the
// opposite link table so observers see the notification. Exercised
// directly against the visitor, since a full AdvanceTransact cycle
// clears the mark again once refresh_dirty_accessors consumes it.
func TestVisitEraseRowUnorderedMarksOppositeLinkTable(t *testing.T) {
	g := newMemGroup(t)
	a, err := g.InsertTable(0, "a", true)
	require.NoError(t, err)
	b, err := g.InsertTable(1, "b", true)
	require.NoError(t, err)
	a.InsertLinkColumn("to_b", b)

	st := &advanceState{g: g, selected: -1}
	require.NoError(t, st.Visit(txlog.Instr{Op: txlog.OpEraseRowUnordered, TableIndex: 0}))

	require.True(t, a.marked)
	require.True(t, b.marked, "backlink table should be marked even for a zero-row erase")
}

// TestVisitEraseGroupLevelTableRenumbersAccessorThatShiftsIntoVacatedSlot
// mirrors TestRemoveTableRenumbersAccessorThatShiftsIntoVacatedSlot but
// against the transact-advancer's own erase handler, which splices
// g.accessors independently of RemoveTable.
func TestVisitEraseGroupLevelTableRenumbersAccessorThatShiftsIntoVacatedSlot(t *testing.T) {
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

	st := &advanceState{g: g, selected: -1}
	require.NoError(t, st.Visit(txlog.Instr{Op: txlog.OpEraseGroupLevelTable, TargetIndex: 0}))

	require.Equal(t, 2, b.columns[0].linkTargetTable, "link target must be renumbered even though b shifted into the vacated slot")
	require.True(t, b.marked)
}

func TestAdvanceTransactInsertTableRenumbersAccessors(t *testing.T) {
	path := tempPath(t)
	writer := New(DefaultConfig)
	require.NoError(t, writer.Open(path))
	a, err := writer.InsertTable(0, "a", true)
	require.NoError(t, err)
	b, err := writer.InsertTable(1, "b", true)
	require.NoError(t, err)
	a.InsertLinkColumn("to_b", b)
	_, err = writer.Commit()
	require.NoError(t, err)
	require.NoError(t, writer.Detach())

	reader := New(DefaultConfig)
	require.NoError(t, reader.Open(path))
	defer reader.Detach()
	readerA := reader.GetTableByName("a")
	require.Equal(t, 1, readerA.columns[0].linkTargetTable)

	writer2 := New(DefaultConfig)
	require.NoError(t, writer2.Open(path))
	topRef, size, logData := commitWithLog(t, writer2, func() {
		_, err := writer2.InsertTable(0, "new_first", true)
		require.NoError(t, err)
	}, []txlog.Instr{
		{Op: txlog.OpInsertGroupLevelTable, TargetIndex: 0},
	})
	require.NoError(t, writer2.Detach())

	require.NoError(t, reader.AdvanceTransact(topRef, size, logData))
	require.Equal(t, 3, reader.Size())
	require.Equal(t, 2, readerA.columns[0].linkTargetTable, "link target must shift past the newly inserted table")
}
