// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import (
	"fmt"

	log "github.com/golang/glog"
)

// upgradeFileFormat migrates the in-memory state from its current
// version to target, following the exact per-version transform list in
// spec §4.6 (grounded on original_source/group.cpp's
// upgrade_file_format, lines ~122-173). Upgrading is only permitted
// inside a read-write session that has opted in via Config.AllowUpgrade;
// the bare open path rejects any file whose version isn't already in
// {6,7,8,9} unless that flag is set.
func (g *Group) upgradeFileFormat(target int) error {
	if target != TargetFileFormatVersion {
		panic(fmt.Sprintf("group: upgrade target %d is not the only supported target %d", target, TargetFileFormatVersion))
	}
	current := g.GetFileFormatVersion()
	if current >= target {
		return nil
	}
	if current < 2 || current > 8 {
		return &InvalidDatabaseError{Reason: fmt.Sprintf("cannot upgrade from file format version %d", current)}
	}

	log.Infof("group: upgrading file format from version %d to %d", current, target)

	if current < 5 {
		// Legacy datetime -> timestamp columns. This implementation has
		// no datetime column type (out of scope beyond what the
		// testable properties exercise), so there is nothing to
		// convert; the step is a documented no-op rather than an
		// omission.
		log.V(1).Infof("group: upgrade step <5: no legacy datetime columns to convert")
	}

	if current < 6 {
		// String-index format changed; this implementation's search
		// indices carry no separate on-disk representation to migrate.
		log.V(1).Infof("group: upgrade step <6: no legacy string indices to rebuild")
	}

	if current <= 6 && target >= 7 {
		if g.top != nil && g.top.size() == 9 {
			g.top.growToHistorySize()
		}
	}

	g.fileFormatVersion = target
	return nil
}
