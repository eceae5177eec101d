// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEqualComparesStructureAndData(t *testing.T) {
	g1 := newMemGroup(t)
	t1, err := g1.InsertTable(0, "t", true)
	require.NoError(t, err)
	t1.InsertColumn("x", ColumnInt)
	t1.InsertRow(1)
	t1.SetInt(0, 0, 7)

	g2 := newMemGroup(t)
	t2, err := g2.InsertTable(0, "t", true)
	require.NoError(t, err)
	t2.InsertColumn("x", ColumnInt)
	t2.InsertRow(1)
	t2.SetInt(0, 0, 7)

	require.True(t, g1.Equal(g2))

	t2.SetInt(0, 0, 8)
	require.False(t, g1.Equal(g2))
}

func TestToStringAndToDotMentionTableNames(t *testing.T) {
	g := newMemGroup(t)
	a, err := g.InsertTable(0, "people", true)
	require.NoError(t, err)
	b, err := g.InsertTable(1, "addresses", true)
	require.NoError(t, err)
	a.InsertLinkColumn("lives_at", b)

	s := g.ToString()
	require.Contains(t, s, "people")
	require.Contains(t, s, "addresses")

	dot := g.ToDot()
	require.True(t, strings.HasPrefix(dot, "digraph group"))
	require.Contains(t, dot, "lives_at")
}

func TestVerifyCatchesOutOfRangeLinkTarget(t *testing.T) {
	g := newMemGroup(t)
	a, err := g.InsertTable(0, "a", true)
	require.NoError(t, err)
	ci := a.InsertColumn("bogus_link", ColumnLink)
	a.columns[ci].linkTargetTable = 99

	err = g.Verify()
	require.Error(t, err)
	require.IsType(t, &InvalidDatabaseError{}, err)
}

func TestVerifyPassesOnWellFormedGroup(t *testing.T) {
	g := newMemGroup(t)
	a, err := g.InsertTable(0, "a", true)
	require.NoError(t, err)
	b, err := g.InsertTable(1, "b", true)
	require.NoError(t, err)
	a.InsertLinkColumn("to_b", b)
	require.NoError(t, g.Verify())
}
