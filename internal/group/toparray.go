// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import (
	"fmt"

	log "github.com/golang/glog"
)

// Top array slot indices, per the file-format table.
const (
	slotTableNames          = 0
	slotTables              = 1
	slotLogicalSize         = 2
	slotFreeListOffsets     = 3
	slotFreeListLengths     = 4
	slotFreeListVersions    = 5
	slotTxnVersion          = 6
	slotHistoryType         = 7
	slotHistoryRef          = 8
	slotHistorySchemaVersion = 9
)

// legalTopSizes are the only sizes a top array may ever take.
var legalTopSizes = map[int]bool{3: true, 5: true, 7: true, 9: true, 10: true}

// topArray is the small, variable-length ordered tuple of tagged words
// that roots every snapshot.
type topArray struct {
	words []taggedWord
}

func isLegalTopSize(n int) bool { return legalTopSizes[n] }

// newMinimalTop builds the smallest legal top array: table-names ref,
// tables ref, logical size. Callers patch the first two refs once the
// sibling arrays have been materialized.
func newMinimalTop(logicalSize uint64) *topArray {
	return &topArray{words: []taggedWord{
		taggedFromRef(Null),
		taggedFromRef(Null),
		taggedFromInt(int64(logicalSize)),
	}}
}

func (t *topArray) size() int { return len(t.words) }

func (t *topArray) tableNamesRef() Ref     { return t.words[slotTableNames].asRef() }
func (t *topArray) setTableNamesRef(r Ref) { t.words[slotTableNames] = taggedFromRef(r) }

func (t *topArray) tablesRef() Ref     { return t.words[slotTables].asRef() }
func (t *topArray) setTablesRef(r Ref) { t.words[slotTables] = taggedFromRef(r) }

func (t *topArray) logicalSize() uint64     { return uint64(t.words[slotLogicalSize].asInt()) }
func (t *topArray) setLogicalSize(n uint64) { t.words[slotLogicalSize] = taggedFromInt(int64(n)) }

func (t *topArray) hasFreeLists() bool { return t.size() >= 5 }

func (t *topArray) freeListOffsetsRef() Ref {
	if !t.hasFreeLists() {
		return Null
	}
	return t.words[slotFreeListOffsets].asRef()
}

func (t *topArray) freeListLengthsRef() Ref {
	if !t.hasFreeLists() {
		return Null
	}
	return t.words[slotFreeListLengths].asRef()
}

func (t *topArray) hasTxnVersion() bool { return t.size() >= 7 }

func (t *topArray) txnVersion() int64 {
	if !t.hasTxnVersion() {
		return 0
	}
	return t.words[slotTxnVersion].asInt()
}

func (t *topArray) setTxnVersion(v int64) {
	for t.size() < 7 {
		t.words = append(t.words, taggedFromInt(0))
	}
	t.words[slotTxnVersion] = taggedFromInt(v)
}

func (t *topArray) hasHistory() bool { return t.size() >= 10 }

func (t *topArray) historySchemaVersion() int64 {
	if t.size() < 10 {
		return 0
	}
	return t.words[slotHistorySchemaVersion].asInt()
}

// growToHistorySize appends a history-schema-version slot of 0 when the
// array is exactly size 9, reaching the size-10 form. No-op otherwise.
func (t *topArray) growToHistorySize() {
	if t.size() == 9 {
		t.words = append(t.words, taggedFromInt(0))
	}
}

// setFreeLists pins slots 3 and 4 to empty (null) free-list arrays. This
// implementation never populates the free list — see DESIGN.md's Open
// Question #2 — but keeps the wire shape legal for any size ≥ 5.
func (t *topArray) setFreeLists(offsetsRef, lengthsRef Ref) {
	for t.size() < 5 {
		t.words = append(t.words, taggedFromRef(Null))
	}
	t.words[slotFreeListOffsets] = taggedFromRef(offsetsRef)
	t.words[slotFreeListLengths] = taggedFromRef(lengthsRef)
}

// validateTop rejects a decoded top array unless every invariant in
// spec §4.1/§8 property 8 holds. The diagnostic string always includes
// the offending ref or size so callers can match on substrings (as
// property 8's "top array" substring check does).
func validateTop(t *topArray, baseline uint64, path string) error {
	if !isLegalTopSize(t.size()) {
		log.V(1).Infof("group: rejecting top array of illegal size %d", t.size())
		return &InvalidDatabaseError{
			Reason: fmt.Sprintf("top array has illegal size %d", t.size()),
			Path:   path,
		}
	}

	logical := t.logicalSize()
	if logical > baseline {
		log.V(1).Infof("group: rejecting top array, logical size %d exceeds baseline %d", logical, baseline)
		return &InvalidDatabaseError{
			Reason: fmt.Sprintf("logical file size %d exceeds baseline %d", logical, baseline),
			Path:   path,
		}
	}

	names := t.tableNamesRef()
	if !names.within(logical) {
		log.V(1).Infof("group: rejecting top array, table-names ref %d invalid for logical size %d", names, logical)
		return &InvalidDatabaseError{
			Reason: fmt.Sprintf("top array table-names ref %d is not a valid child ref", names),
			Path:   path,
		}
	}

	tables := t.tablesRef()
	if !tables.within(logical) {
		log.V(1).Infof("group: rejecting top array, tables ref %d invalid for logical size %d", tables, logical)
		return &InvalidDatabaseError{
			Reason: fmt.Sprintf("top array tables ref %d is not a valid child ref", tables),
			Path:   path,
		}
	}

	return nil
}
