// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

// OpenMode selects how open() treats a missing file, mirroring the
// three modes named in spec §4.2.
type OpenMode int

const (
	// ModeReadOnly never creates and never writes.
	ModeReadOnly OpenMode = iota
	// ModeReadWrite creates the file if it is missing.
	ModeReadWrite
	// ModeReadWriteNoCreate writes but fails if the file is missing.
	ModeReadWriteNoCreate
)

// Config collects the small set of knobs a Group needs at open time.
// New fills an unset Replication or PageSize from DefaultConfig; Mode
// and AllowUpgrade are used as given, so a zero Config opens read-only.
type Config struct {
	Mode OpenMode

	// AllowUpgrade permits the C6 upgrade pipeline to run when an
	// opened file's format version is below the current target. The
	// bare group API (as opposed to a higher shared-group layer)
	// should normally leave this false per spec §4.6.
	AllowUpgrade bool

	// Replication receives group-level table instructions as the
	// table registry mutates. Defaults to a no-op sink.
	Replication Replication

	// PageSize governs write()'s encryption padding (spec §4.4 step 5).
	PageSize int
}

// DefaultConfig is the usual Config to pass to New, and the source of
// the Replication and PageSize that New fills in when they are unset.
var DefaultConfig = Config{
	Mode:         ModeReadWrite,
	AllowUpgrade: false,
	Replication:  NoReplication{},
	PageSize:     4096,
}

func resolveConfig(c Config) Config {
	if c.Replication == nil {
		c.Replication = DefaultConfig.Replication
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultConfig.PageSize
	}
	return c
}
