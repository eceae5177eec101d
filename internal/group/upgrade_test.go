// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpgradeFileFormatGrowsSize9TopTo10(t *testing.T) {
	g := newMemGroup(t)
	g.fileFormatVersion = 6
	top := newMinimalTop(0)
	top.setFreeLists(Null, Null)
	top.setTxnVersion(1)
	top.words = append(top.words, taggedFromInt(0), taggedFromInt(0)) // -> size 9
	require.Equal(t, 9, top.size())
	g.top = top

	require.NoError(t, g.upgradeFileFormat(TargetFileFormatVersion))
	require.Equal(t, TargetFileFormatVersion, g.fileFormatVersion)
	require.Equal(t, 10, g.top.size())
}

func TestUpgradeFileFormatIsNoopWhenAlreadyCurrent(t *testing.T) {
	g := newMemGroup(t)
	g.fileFormatVersion = TargetFileFormatVersion
	require.NoError(t, g.upgradeFileFormat(TargetFileFormatVersion))
	require.Equal(t, TargetFileFormatVersion, g.fileFormatVersion)
}

func TestUpgradeFileFormatRejectsUnsupportedSourceVersion(t *testing.T) {
	g := newMemGroup(t)
	g.fileFormatVersion = 1
	err := g.upgradeFileFormat(TargetFileFormatVersion)
	require.Error(t, err)
	require.IsType(t, &InvalidDatabaseError{}, err)
}

func TestOpenWithOldFormatRequiresAllowUpgrade(t *testing.T) {
	path := tempPath(t)

	// Build a file whose committed format version is old by writing a
	// group, then forging the header's format field directly.
	g := New(DefaultConfig)
	require.NoError(t, g.Open(path))
	_, err := g.Commit()
	require.NoError(t, err)
	_, _, topRef := g.alloc.ReadHeader()
	g.alloc.WriteHeader(7, 0, topRef)
	require.NoError(t, g.Detach())

	reopened := New(DefaultConfig)
	err = reopened.Open(path)
	require.Error(t, err, "opening a stale-format file without AllowUpgrade must fail")

	cfg := DefaultConfig
	cfg.AllowUpgrade = true
	upgrading := New(cfg)
	require.NoError(t, upgrading.Open(path))
	require.Equal(t, TargetFileFormatVersion, upgrading.GetFileFormatVersion())
	require.NoError(t, upgrading.Detach())
}
