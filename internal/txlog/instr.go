// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package txlog implements the transaction-log wire format consumed by
// the group layer's transact advancer (spec.md §4.5): a fixed
// instruction set, each instruction framed with a length and checksum
// (adapted from pkg/wal/record.go) and payload-encoded as a small
// hand-built flatbuffers table (adapted from
// durable/state/fb/builders.go, since the actual flatc-generated
// bindings referenced by that package are not present in this module's
// dependency closure).
package txlog

// Opcode names one of the instruction handlers the transact advancer's
// visitor must implement, per spec §4.5.
type Opcode uint8

const (
	OpInsertGroupLevelTable Opcode = iota
	OpEraseGroupLevelTable
	OpRenameGroupLevelTable
	OpSelectTable
	OpInsertEmptyRows
	OpEraseRowsOrdered
	OpEraseRowUnordered
	OpSwapRows
	OpMoveRow
	OpMergeRows
	OpInsertColumn
	OpEraseColumn
	OpInsertLinkColumn
	OpEraseLinkColumn
	OpSetSearchIndex
	OpSetPrimaryKey
	OpLinkListSelect
	OpLinkListSet
	OpLinkListInsert
	OpLinkListMove
	OpLinkListSwap
	OpLinkListErase
	OpLinkListClear
	OpLinkListNullify
	OpSetValue // covers every scalar set* instruction; a no-op for the advancer
	OpAddRowWithKey
	OpOptimize
)

// Instr is one decoded transaction-log instruction. Not every field is
// meaningful for every opcode; see the visitor in internal/group for
// which fields each opcode reads.
type Instr struct {
	Op Opcode

	TableIndex  int32
	ColumnIndex int32

	// TargetIndex is the opposite-table index for link/backlink column
	// instructions, or the destination table index for group-level
	// table instructions.
	TargetIndex int32

	Row1  int64
	Row2  int64
	Count int64

	Name string
	Bool1 bool
}
