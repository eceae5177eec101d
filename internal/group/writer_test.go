// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// Scenario S6: write(pad_for_encryption=true, version=1) on a group
// produces a streaming image whose footer's top-ref points to a
// size-7 top array and whose total byte count is a page-size multiple.
func TestWritePaddedProducesPageAlignedStreamingImage(t *testing.T) {
	g := newMemGroup(t)
	tbl, err := g.InsertTable(0, "t", true)
	require.NoError(t, err)
	tbl.InsertColumn("v", ColumnString)
	tbl.InsertRow(1)
	tbl.SetString(0, 0, "hello")

	out, err := g.Write(true, 1)
	require.NoError(t, err)

	require.Zero(t, len(out)%4096, "padded streaming output must be a multiple of the page size")

	footer := out[len(out)-16:]
	topRef := Ref(binary.LittleEndian.Uint64(footer[0:8]))
	cookie := binary.LittleEndian.Uint64(footer[8:16])
	require.Equal(t, magicCookie, cookie)

	g2 := New(DefaultConfig)
	require.NoError(t, g2.OpenMemory(out, true))
	defer g2.Detach()
	require.Equal(t, 7, g2.top.size())
	_ = topRef
}

func TestWriteToMemRequiresNonEmptyArena(t *testing.T) {
	g := newMemGroup(t)
	buf, err := g.WriteToMem()
	require.NoError(t, err)
	require.NotEmpty(t, buf)
}

// Commit's invariant: a table untouched by a second commit keeps the
// ref it got from the first commit, even though a sibling table was
// modified and rewritten.
func TestCommitOnlyRewritesDirtyTables(t *testing.T) {
	path := tempPath(t)
	g := New(DefaultConfig)
	require.NoError(t, g.Open(path))

	unchanged, err := g.InsertTable(0, "unchanged", true)
	require.NoError(t, err)
	unchanged.InsertColumn("x", ColumnInt)
	unchanged.InsertRow(1)

	changed, err := g.InsertTable(1, "changed", true)
	require.NoError(t, err)
	changed.InsertColumn("y", ColumnInt)
	changed.InsertRow(1)

	_, err = g.Commit()
	require.NoError(t, err)

	firstUnchangedRef := g.tables[0]

	changed.SetInt(0, 0, 99)
	_, err = g.Commit()
	require.NoError(t, err)

	require.Equal(t, firstUnchangedRef, g.tables[0], "untouched table must keep its ref across a commit that touches a sibling")
	require.NoError(t, g.Detach())
}
