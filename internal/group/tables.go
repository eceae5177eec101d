// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import (
	"fmt"

	"github.com/groupdb/groupdb/pkg/slices"
)

// Size returns the number of tables.
func (g *Group) Size() int {
	g.requireAttached()
	return len(g.tableNames)
}

// GetTableName returns the name of the table at index i.
func (g *Group) GetTableName(i int) string {
	g.requireAttached()
	if i < 0 || i >= len(g.tableNames) {
		panic(newLogicError(TableIndexOutOfRange))
	}
	return g.tableNames[i]
}

// HasTable reports whether a table named name exists.
func (g *Group) HasTable(name string) bool {
	g.requireAttached()
	return slices.ContainsString(g.tableNames, name)
}

func (g *Group) findTableIndex(name string) int {
	for i, n := range g.tableNames {
		if n == name {
			return i
		}
	}
	return -1
}

// GetTable lazily instantiates and returns the accessor for table i.
func (g *Group) GetTable(i int) *Table {
	g.enter()
	defer g.leave()
	g.requireAttached()
	if i < 0 || i >= len(g.tables) {
		panic(newLogicError(TableIndexOutOfRange))
	}
	return g.getOrCreateAccessor(i)
}

// GetTableByName returns the accessor for name, or nil if no such
// table exists.
func (g *Group) GetTableByName(name string) *Table {
	g.enter()
	defer g.leave()
	g.requireAttached()
	i := g.findTableIndex(name)
	if i < 0 {
		return nil
	}
	return g.getOrCreateAccessor(i)
}

// getOrCreateAccessor implements the five-step incomplete-accessor
// protocol from spec §4.3: create in an incomplete state, cache it
// first (to short-circuit cycles), mark under-construction, decode its
// subtree, unmark.
func (g *Group) getOrCreateAccessor(i int) *Table {
	if len(g.accessors) <= i {
		grown := make([]*Table, len(g.tables))
		copy(grown, g.accessors)
		g.accessors = grown
	}
	if t := g.accessors[i]; t != nil {
		return t
	}

	t := newTable(g, i, g.tableNames[i]) // step 1: incomplete accessor
	g.accessors[i] = t                   // step 2: pin the cache slot
	t.underConstruction = true           // step 3

	payload, err := readNode(g.alloc, g.tables[i]) // step 4
	if err != nil {
		panic(&InvalidDatabaseError{Reason: fmt.Sprintf("cannot read table node: %s", err), Path: g.path})
	}
	decoded, err := decodeTable(g, i, payload)
	if err != nil {
		panic(&InvalidDatabaseError{Reason: fmt.Sprintf("cannot decode table: %s", err), Path: g.path})
	}
	decoded.ndx = i
	decoded.underConstruction = true
	g.accessors[i] = decoded

	decoded.underConstruction = false // step 5
	return decoded
}

// InsertTable inserts a new, empty table named name at index i,
// renumbering every other table's link columns whose opposite-table
// index crosses i, per spec §4.3's insertion algorithm.
func (g *Group) InsertTable(i int, name string, requireUnique bool) (*Table, error) {
	g.enter()
	defer g.leave()
	g.requireAttached()

	if len(name) > maxTableNameLength {
		return nil, newLogicError(TableNameTooLong)
	}
	if i > len(g.tables) {
		return nil, newLogicError(TableIndexOutOfRange)
	}
	if requireUnique && slices.ContainsString(g.tableNames, name) {
		return nil, &TableNameInUseError{Name: name}
	}

	priorN := len(g.tables)
	// Materialize every existing accessor so the renumbering below also
	// reaches link columns of tables not yet loaded from the heap.
	for idx := range g.tables {
		g.getOrCreateAccessor(idx)
	}
	t := newTable(g, i, name)
	t.incomplete = false
	t.dirty = true

	g.tableNames = insertStringAt(g.tableNames, i, name)
	g.tables = insertRefAt(g.tables, i, Null) // materialized on next commit
	if len(g.accessors) > 0 {
		g.accessors = insertAccessorAt(g.accessors, i, nil)
	}

	for idx, acc := range g.accessors {
		if acc == nil || idx == i {
			continue
		}
		acc.renumberLinkTargets(func(target int) int {
			if target >= i {
				return target + 1
			}
			return target
		})
	}

	g.accessors = ensureLen(g.accessors, len(g.tables))
	g.accessors[i] = t

	g.repl.InsertGroupLevelTable(i, priorN, name)
	return t, nil
}

// GetOrAddTable returns the existing table named name, or inserts a
// fresh one at the end when absent.
func (g *Group) GetOrAddTable(name string) (t *Table, wasAdded bool) {
	g.enter()
	existing := g.findTableIndex(name)
	g.leave()
	if existing >= 0 {
		return g.GetTable(existing), false
	}
	t, err := g.InsertTable(g.Size(), name, true)
	if err != nil {
		panic(err)
	}
	return t, true
}

// RemoveTable removes the table at index i. It fails with
// CrossTableLinkTargetError if any other table's link column still
// targets it, per spec §4.3/testable property 4.
func (g *Group) RemoveTable(i int) error {
	g.enter()
	defer g.leave()
	g.requireAttached()
	if i < 0 || i >= len(g.tables) {
		return newLogicError(TableIndexOutOfRange)
	}

	for idx, acc := range g.accessors {
		if idx == i || acc == nil {
			continue
		}
		if acc.linksTo(i) {
			return &CrossTableLinkTargetError{Name: g.tableNames[i]}
		}
	}
	// Accessors not yet materialized must also be checked by decoding.
	for idx := range g.tables {
		if idx == i || (len(g.accessors) > idx && g.accessors[idx] != nil) {
			continue
		}
		acc := g.getOrCreateAccessor(idx)
		if acc.linksTo(i) {
			return &CrossTableLinkTargetError{Name: g.tableNames[i]}
		}
	}

	priorN := len(g.tables)

	g.tableNames = append(g.tableNames[:i], g.tableNames[i+1:]...)
	g.tables = append(g.tables[:i], g.tables[i+1:]...)
	if len(g.accessors) > 0 {
		g.accessors = append(g.accessors[:i], g.accessors[i+1:]...)
	}

	for _, acc := range g.accessors {
		if acc == nil {
			continue
		}
		acc.renumberLinkTargets(func(target int) int {
			if target > i {
				return target - 1
			}
			return target
		})
		if acc.ndx > i {
			acc.ndx--
		}
	}
	for idx, acc := range g.accessors {
		if acc != nil {
			acc.ndx = idx
		}
	}

	g.repl.EraseGroupLevelTable(i, priorN)
	return nil
}

// RemoveTableByName removes the table named name.
func (g *Group) RemoveTableByName(name string) error {
	g.enter()
	i := g.findTableIndex(name)
	g.leave()
	if i < 0 {
		return &NoSuchTableError{Name: name}
	}
	return g.RemoveTable(i)
}

// RenameTable renames the table at index i to newName.
func (g *Group) RenameTable(i int, newName string, requireUnique bool) error {
	g.enter()
	defer g.leave()
	g.requireAttached()
	if i < 0 || i >= len(g.tables) {
		return newLogicError(TableIndexOutOfRange)
	}
	if len(newName) > maxTableNameLength {
		return newLogicError(TableNameTooLong)
	}
	if requireUnique {
		for idx, n := range g.tableNames {
			if idx != i && n == newName {
				return &TableNameInUseError{Name: newName}
			}
		}
	}
	g.tableNames[i] = newName
	if len(g.accessors) > i && g.accessors[i] != nil {
		g.accessors[i].name = newName
	}
	g.repl.RenameGroupLevelTable(i, newName)
	return nil
}

func insertStringAt(s []string, i int, v string) []string {
	out := make([]string, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, v)
	out = append(out, s[i:]...)
	return out
}

func insertRefAt(s []Ref, i int, v Ref) []Ref {
	out := make([]Ref, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, v)
	out = append(out, s[i:]...)
	return out
}

func insertAccessorAt(s []*Table, i int, v *Table) []*Table {
	out := make([]*Table, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, v)
	out = append(out, s[i:]...)
	return out
}

func ensureLen(s []*Table, n int) []*Table {
	if len(s) >= n {
		return s
	}
	grown := make([]*Table, n)
	copy(grown, s)
	return grown
}
