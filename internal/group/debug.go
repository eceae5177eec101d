// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import (
	"fmt"
	"strings"
)

// Equal reports whether g and o have the same number of tables with
// matching names in the same order and all corresponding tables equal,
// per spec §6's equality definition.
func (g *Group) Equal(o *Group) bool {
	if !g.attached || !o.attached {
		return g.attached == o.attached
	}
	if len(g.tableNames) != len(o.tableNames) {
		return false
	}
	for i := range g.tableNames {
		if g.tableNames[i] != o.tableNames[i] {
			return false
		}
		ta := g.getOrCreateAccessor(i)
		tb := o.getOrCreateAccessor(i)
		if !ta.equal(tb) {
			return false
		}
	}
	return true
}

// ToString dumps table names and sizes, the minimal "to_string" debug
// surface spec §6/§11 names.
func (g *Group) ToString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "group(format=%d, tables=%d)\n", g.fileFormatVersion, len(g.tableNames))
	for i, name := range g.tableNames {
		fmt.Fprintf(&b, "  [%d] %q\n", i, name)
	}
	return b.String()
}

// ToDot emits a Graphviz sketch of the tables and their link edges.
func (g *Group) ToDot() string {
	var b strings.Builder
	b.WriteString("digraph group {\n")
	for i, name := range g.tableNames {
		fmt.Fprintf(&b, "  t%d [label=%q];\n", i, name)
	}
	for i := range g.tableNames {
		acc := g.getOrCreateAccessor(i)
		for _, c := range acc.columns {
			if c.typ == ColumnLink {
				fmt.Fprintf(&b, "  t%d -> t%d [label=%q];\n", i, c.linkTargetTable, c.name)
			}
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// Verify re-checks the invariants of spec §3 that are held in memory:
// name/table-list length agreement, accessor-cache length, logical file
// size not above the allocator baseline (a logical size below the
// baseline is permitted), and that every link/backlink column targets
// an existing table. It does not re-validate the top array's child refs.
func (g *Group) Verify() error {
	if !g.attached {
		return newLogicError(DetachedAccessor)
	}
	if len(g.tableNames) != len(g.tables) {
		return &InvalidDatabaseError{Reason: fmt.Sprintf("table_names length %d != tables length %d", len(g.tableNames), len(g.tables))}
	}
	if len(g.accessors) != 0 && len(g.accessors) != len(g.tables) {
		return &InvalidDatabaseError{Reason: "table_accessors length does not match tables length"}
	}
	baseline := g.alloc.Baseline()
	if g.top != nil && g.top.logicalSize() > baseline {
		return &InvalidDatabaseError{Reason: "logical file size exceeds allocator baseline"}
	}
	for i := range g.tableNames {
		acc := g.getOrCreateAccessor(i)
		for _, c := range acc.columns {
			if c.typ == ColumnLink || c.typ == ColumnBacklink {
				if c.linkTargetTable < 0 || c.linkTargetTable >= len(g.tables) {
					return &InvalidDatabaseError{Reason: fmt.Sprintf("table %q has a link column with out-of-range target %d", acc.name, c.linkTargetTable)}
				}
			}
		}
	}
	return nil
}
