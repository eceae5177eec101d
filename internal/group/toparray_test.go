// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLegalTopSizes(t *testing.T) {
	for _, n := range []int{3, 5, 7, 9, 10} {
		require.True(t, isLegalTopSize(n), "size %d should be legal", n)
	}
	for _, n := range []int{0, 1, 2, 4, 6, 8, 11} {
		require.False(t, isLegalTopSize(n), "size %d should be illegal", n)
	}
}

func TestValidateTopRejectsOversizedLogicalSize(t *testing.T) {
	top := newMinimalTop(1000)
	top.setTableNamesRef(8)
	top.setTablesRef(16)
	err := validateTop(top, 100, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds baseline")
}

func TestValidateTopRejectsInvalidChildRef(t *testing.T) {
	top := newMinimalTop(32)
	top.setTableNamesRef(Null)
	top.setTablesRef(16)
	err := validateTop(top, 64, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "table-names ref")
}

func TestValidateTopAcceptsMinimalArray(t *testing.T) {
	top := newMinimalTop(32)
	top.setTableNamesRef(8)
	top.setTablesRef(16)
	require.NoError(t, validateTop(top, 64, ""))
}

func TestGrowToHistorySize(t *testing.T) {
	top := newMinimalTop(0)
	top.setFreeLists(Null, Null)
	top.setTxnVersion(1)
	require.Equal(t, 7, top.size())

	// Widen to size 9 by hand (history type + history ref slots), the
	// form upgrade_file_format expects before growing to 10.
	top.words = append(top.words, taggedFromInt(0), taggedFromInt(0))
	require.Equal(t, 9, top.size())

	top.growToHistorySize()
	require.Equal(t, 10, top.size())

	// Idempotent once already at size 10.
	top.growToHistorySize()
	require.Equal(t, 10, top.size())
}
