// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import "fmt"

// ColumnType is the small closed set of column kinds this implementation
// supports — enough to exercise the table registry's structural
// invariants (link renumbering, backlink reciprocity) without building
// out a full query-capable column library, which spec §1 treats as an
// external collaborator.
type ColumnType int

const (
	ColumnInt ColumnType = iota
	ColumnBool
	ColumnString
	ColumnLink
	ColumnBacklink
)

func (t ColumnType) String() string {
	switch t {
	case ColumnInt:
		return "int"
	case ColumnBool:
		return "bool"
	case ColumnString:
		return "string"
	case ColumnLink:
		return "link"
	case ColumnBacklink:
		return "backlink"
	default:
		return "unknown"
	}
}

// column is one entry of a table's spec.
type column struct {
	name string
	typ  ColumnType

	// linkTargetTable is the opposite table's index, meaningful only
	// for ColumnLink and ColumnBacklink columns.
	linkTargetTable int

	// backlinkOrigin is the column index in the opposite table whose
	// link values point back through this backlink column, meaningful
	// only for ColumnBacklink.
	backlinkOrigin int

	searchIndex bool
	primaryKey  bool
}

// linkNull marks the absence of a link for a given row.
const linkNull int64 = -1

// Table is the in-memory accessor for one table's rows and spec. It is
// lazily instantiated by the registry and is valid only while its
// owning Group remains attached.
type Table struct {
	g       *Group
	ndx     int // republished on every refresh, never baked into identity
	name    string
	columns []column

	intCol    map[int][]int64
	boolCol   map[int][]bool
	stringCol map[int][]string
	linkCol   map[int][]int64 // row index in the target table, linkNull if unset

	numRows int

	marked            bool
	underConstruction bool
	incomplete        bool

	// dirty tracks whether this accessor's subtree has changed since
	// the last commit. commit() re-serializes only dirty tables,
	// preserving the commit invariant that unchanged nodes keep their
	// ref (spec §3, §4.4).
	dirty bool
}

func newTable(g *Group, ndx int, name string) *Table {
	return &Table{
		g:         g,
		ndx:       ndx,
		name:      name,
		intCol:    map[int][]int64{},
		boolCol:   map[int][]bool{},
		stringCol: map[int][]string{},
		linkCol:   map[int][]int64{},
		incomplete: true,
	}
}

// Index returns the table's current position in the group's table list.
func (t *Table) Index() int { return t.ndx }

// Name returns the table's current name.
func (t *Table) Name() string { return t.name }

// Size returns the row count.
func (t *Table) Size() int { return t.numRows }

func (t *Table) column(i int) *column {
	if i < 0 || i >= len(t.columns) {
		panic(newLogicError(TableIndexOutOfRange))
	}
	return &t.columns[i]
}

// InsertColumn appends a column to the table's spec and extends every
// existing row with a zero value for it.
func (t *Table) InsertColumn(name string, typ ColumnType) int {
	t.dirty = true
	ci := len(t.columns)
	t.columns = append(t.columns, column{name: name, typ: typ, linkTargetTable: -1, backlinkOrigin: -1})
	switch typ {
	case ColumnInt:
		t.intCol[ci] = make([]int64, t.numRows)
	case ColumnBool:
		t.boolCol[ci] = make([]bool, t.numRows)
	case ColumnString:
		t.stringCol[ci] = make([]string, t.numRows)
	case ColumnLink, ColumnBacklink:
		col := make([]int64, t.numRows)
		for i := range col {
			col[i] = linkNull
		}
		t.linkCol[ci] = col
	}
	return ci
}

// InsertLinkColumn appends a link column pointing at targetTable and
// creates the reciprocal backlink column on the target, per spec §4.5's
// "origin accessor exists iff target accessor exists" invariant.
func (t *Table) InsertLinkColumn(name string, targetTable *Table) int {
	ci := t.InsertColumn(name, ColumnLink)
	t.columns[ci].linkTargetTable = targetTable.ndx

	backCI := targetTable.InsertColumn(fmt.Sprintf("!backlink_%s_%s", t.name, name), ColumnBacklink)
	targetTable.columns[backCI].linkTargetTable = t.ndx
	targetTable.columns[backCI].backlinkOrigin = ci
	return ci
}

// InsertRow appends n empty rows and returns the index of the first.
func (t *Table) InsertRow(n int) int {
	t.dirty = true
	first := t.numRows
	for ci, col := range t.columns {
		switch col.typ {
		case ColumnInt:
			t.intCol[ci] = append(t.intCol[ci], make([]int64, n)...)
		case ColumnBool:
			t.boolCol[ci] = append(t.boolCol[ci], make([]bool, n)...)
		case ColumnString:
			t.stringCol[ci] = append(t.stringCol[ci], make([]string, n)...)
		case ColumnLink, ColumnBacklink:
			for i := 0; i < n; i++ {
				t.linkCol[ci] = append(t.linkCol[ci], linkNull)
			}
		}
	}
	t.numRows += n
	return first
}

// EraseRowUnordered removes row i by moving the last row over it
// (realm's "unordered erase"); only ever called with 0 or 1 rows to
// erase per spec §4.5.
func (t *Table) EraseRowUnordered(i int) {
	t.dirty = true
	last := t.numRows - 1
	if i != last {
		for ci, col := range t.columns {
			switch col.typ {
			case ColumnInt:
				t.intCol[ci][i] = t.intCol[ci][last]
			case ColumnBool:
				t.boolCol[ci][i] = t.boolCol[ci][last]
			case ColumnString:
				t.stringCol[ci][i] = t.stringCol[ci][last]
			case ColumnLink, ColumnBacklink:
				t.linkCol[ci][i] = t.linkCol[ci][last]
			}
		}
	}
	for ci, col := range t.columns {
		switch col.typ {
		case ColumnInt:
			t.intCol[ci] = t.intCol[ci][:last]
		case ColumnBool:
			t.boolCol[ci] = t.boolCol[ci][:last]
		case ColumnString:
			t.stringCol[ci] = t.stringCol[ci][:last]
		case ColumnLink, ColumnBacklink:
			t.linkCol[ci] = t.linkCol[ci][:last]
		}
	}
	t.numRows--
}

func (t *Table) SetInt(col, row int, v int64)    { t.dirty = true; t.intCol[col][row] = v }
func (t *Table) GetInt(col, row int) int64        { return t.intCol[col][row] }
func (t *Table) SetBool(col, row int, v bool)    { t.dirty = true; t.boolCol[col][row] = v }
func (t *Table) GetBool(col, row int) bool        { return t.boolCol[col][row] }
func (t *Table) SetString(col, row int, v string) { t.dirty = true; t.stringCol[col][row] = v }
func (t *Table) GetString(col, row int) string    { return t.stringCol[col][row] }

// SetLink points row's link column at targetRow (or linkNull to clear).
func (t *Table) SetLink(col, row int, targetRow int64) { t.dirty = true; t.linkCol[col][row] = targetRow }
func (t *Table) GetLink(col, row int) int64             { return t.linkCol[col][row] }

// renumberLinkTargets applies mapFn to every link/backlink column's
// opposite-table-index, used by the registry when a table is inserted
// or removed at a position that shifts indices (spec §4.3/§4.5).
func (t *Table) renumberLinkTargets(mapFn func(int) int) {
	for i := range t.columns {
		if t.columns[i].typ == ColumnLink || t.columns[i].typ == ColumnBacklink {
			newTarget := mapFn(t.columns[i].linkTargetTable)
			if newTarget != t.columns[i].linkTargetTable {
				t.dirty = true
			}
			t.columns[i].linkTargetTable = newTarget
		}
	}
}

// linksTo reports whether this table has any link column (not
// backlink) whose target is targetNdx — used by the cross-table-link
// guard in remove_table.
func (t *Table) linksTo(targetNdx int) bool {
	for _, c := range t.columns {
		if c.typ == ColumnLink && c.linkTargetTable == targetNdx {
			return true
		}
	}
	return false
}

func (t *Table) equal(o *Table) bool {
	if t.name != o.name || t.numRows != o.numRows || len(t.columns) != len(o.columns) {
		return false
	}
	for i := range t.columns {
		if t.columns[i] != o.columns[i] {
			return false
		}
	}
	for ci, col := range t.columns {
		switch col.typ {
		case ColumnInt:
			for r := 0; r < t.numRows; r++ {
				if t.intCol[ci][r] != o.intCol[ci][r] {
					return false
				}
			}
		case ColumnBool:
			for r := 0; r < t.numRows; r++ {
				if t.boolCol[ci][r] != o.boolCol[ci][r] {
					return false
				}
			}
		case ColumnString:
			for r := 0; r < t.numRows; r++ {
				if t.stringCol[ci][r] != o.stringCol[ci][r] {
					return false
				}
			}
		case ColumnLink, ColumnBacklink:
			for r := 0; r < t.numRows; r++ {
				if t.linkCol[ci][r] != o.linkCol[ci][r] {
					return false
				}
			}
		}
	}
	return true
}
