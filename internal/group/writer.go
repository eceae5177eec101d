// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import (
	log "github.com/golang/glog"

	"github.com/groupdb/groupdb/internal/arena"
	"github.com/groupdb/groupdb/internal/metrics"
)

// magicCookie terminates every streaming (compact-written) file.
const magicCookie uint64 = 0x47524f5550444201 // "GROUPDB\x01"

// StreamingFooter is the 16-byte trailer of a compact-written file.
type StreamingFooter struct {
	TopRef      Ref
	MagicCookie uint64
}

// Commit serializes every dirty table to the tail of the file, swaps
// in a new top-ref, and returns it. Legal only on a non-shared group,
// per spec §4.4.
func (g *Group) Commit() (Ref, error) {
	g.enter()
	defer g.leave()
	g.requireAttached()
	if g.isShared {
		panic(newLogicError(WrongGroupState))
	}

	start := metrics.StartTimer()
	oldBaseline := g.alloc.Baseline()

	newTop, err := g.writeDirtyState()
	if err != nil {
		log.Errorf("group: commit failed: %s", err)
		return Null, err
	}

	newBaseline := g.alloc.Baseline()
	if err := g.alloc.UpdateReaderView(newBaseline); err != nil {
		return Null, err
	}
	g.alloc.WriteHeader(g.fileFormatVersion, arena.SelectorInPlace, uint64(newTop))
	g.updateRefs(newTop, oldBaseline)

	metrics.ObserveCommit(start, len(g.tables))
	return newTop, nil
}

// writeDirtyState walks the live tree, re-serializing only tables whose
// accessor is materialized and dirty, and always rewriting the
// sibling table-names/tables lists and the top array itself (they are
// small and their content may have changed structurally even when no
// single table did, e.g. after insert_table/remove_table).
func (g *Group) writeDirtyState() (Ref, error) {
	tableRefs := make([]Ref, len(g.tables))
	copy(tableRefs, g.tables)

	for i, acc := range g.accessors {
		if acc == nil || !acc.dirty {
			continue
		}
		ref, err := writeNode(g.alloc, encodeTable(acc))
		if err != nil {
			return Null, err
		}
		tableRefs[i] = ref
		acc.dirty = false
	}
	g.tables = tableRefs

	namesRef, err := writeNode(g.alloc, encodeStringList(g.tableNames))
	if err != nil {
		return Null, err
	}
	tablesRef, err := writeNode(g.alloc, encodeRefList(g.tables))
	if err != nil {
		return Null, err
	}

	top := newMinimalTop(0)
	top.setTableNamesRef(namesRef)
	top.setTablesRef(tablesRef)

	topRef, _, err := g.appendTopWithPatchedSize(top)
	if err != nil {
		return Null, err
	}
	g.top = top
	return topRef, nil
}

// appendTopWithPatchedSize implements the two-pass top-array write from
// spec §4.1's write path: the array is pre-widened so its final
// encoding can hold the projected file size, the size slot is patched
// once that size is known, and the array is appended last so that
// ref_of(top) == final_file_size - byte_size(top).
func (g *Group) appendTopWithPatchedSize(top *topArray) (Ref, uint64, error) {
	projected := g.alloc.Baseline() + uint64(nodeHeaderSize) + 64 // headroom for the top node itself
	top.setLogicalSize(projected)
	topRef, err := writeNode(g.alloc, encodeTopWords(top))
	if err != nil {
		return Null, 0, err
	}
	finalSize := g.alloc.Baseline()
	top.setLogicalSize(finalSize)
	if err := g.alloc.WriteAt(uint64(topRef)+nodeHeaderSize, encodeTopWords(top)); err != nil {
		return Null, 0, err
	}
	return topRef, finalSize, nil
}

func encodeTopWords(t *topArray) []byte {
	words := make([]Ref, t.size())
	for i, w := range t.words {
		words[i] = Ref(w)
	}
	return encodeRefList(words)
}

// updateRefs rebinds in-memory accessors' index-in-parent after a
// commit, relying on the commit invariant: a child whose ref is
// unchanged and lies below oldBaseline needs no accessor refresh.
func (g *Group) updateRefs(newTop Ref, oldBaseline uint64) {
	for i, acc := range g.accessors {
		if acc != nil {
			acc.ndx = i
		}
	}
	_ = newTop
	_ = oldBaseline
}

// Write produces a self-contained streaming image of the live state:
// a deep copy of every table, a fresh top array, and a trailing
// StreamingFooter, per spec §4.4.
func (g *Group) Write(padForEncryption bool, versionNumber int64) ([]byte, error) {
	g.enter()
	defer g.leave()
	g.requireAttached()
	return g.writeStreaming(padForEncryption, versionNumber)
}

func (g *Group) writeStreaming(padForEncryption bool, versionNumber int64) ([]byte, error) {
	buf := arena.AttachEmpty()
	defer buf.Detach()

	// Step 1: streaming header carrying the file-format version (0 if
	// this group has no top array yet).
	formatVersion := g.fileFormatVersion
	if g.top == nil {
		formatVersion = 0
	}
	buf.WriteHeader(formatVersion, arena.SelectorStreaming, 0)

	namesRef, err := writeNode(buf, encodeStringList(g.tableNames))
	if err != nil {
		return nil, err
	}

	tableRefs := make([]Ref, len(g.tables))
	for i := range g.tables {
		t := g.getOrCreateAccessorInto(buf, i)
		ref, err := writeNode(buf, encodeTable(t))
		if err != nil {
			return nil, err
		}
		tableRefs[i] = ref
	}
	tablesRef, err := writeNode(buf, encodeRefList(tableRefs))
	if err != nil {
		return nil, err
	}

	top := newMinimalTop(0)
	top.setTableNamesRef(namesRef)
	top.setTablesRef(tablesRef)
	if versionNumber != 0 {
		top.setFreeLists(Null, Null)
		top.setTxnVersion(versionNumber)
	}

	topRef, _, err := appendTopWithPatchedSizeOn(buf, top)
	if err != nil {
		return nil, err
	}

	if padForEncryption {
		padStreamingOutput(buf, uint64(g.cfg.PageSize))
	}

	out := buf.OwnBuffer()
	footer := make([]byte, 16)
	putRef(footer[0:8], topRef)
	putRef(footer[8:16], Ref(magicCookie))
	result := append(append([]byte(nil), out...), footer...)
	return result, nil
}

// getOrCreateAccessorInto decodes table i from g's own allocator (it
// may already be a live, dirty accessor) without mutating g's
// committed state, for use by the compact writer which targets a
// different destination arena.
func (g *Group) getOrCreateAccessorInto(_ *arena.Arena, i int) *Table {
	if len(g.accessors) > i && g.accessors[i] != nil {
		return g.accessors[i]
	}
	return g.getOrCreateAccessor(i)
}

func appendTopWithPatchedSizeOn(ar *arena.Arena, top *topArray) (Ref, uint64, error) {
	projected := ar.Baseline() + uint64(nodeHeaderSize) + 64
	top.setLogicalSize(projected)
	topRef, err := writeNode(ar, encodeTopWords(top))
	if err != nil {
		return Null, 0, err
	}
	finalSize := ar.Baseline()
	top.setLogicalSize(finalSize)
	if err := ar.WriteAt(uint64(topRef)+nodeHeaderSize, encodeTopWords(top)); err != nil {
		return Null, 0, err
	}
	return topRef, finalSize, nil
}

func padStreamingOutput(ar *arena.Arena, pageSize uint64) {
	const footerSize = 16
	size := ar.Baseline()
	rem := (size + footerSize) % pageSize
	if rem == 0 {
		return
	}
	pad := pageSize - rem
	if _, err := ar.Alloc(pad); err != nil {
		log.Errorf("group: failed to pad streaming output: %s", err)
	}
}

func putRef(b []byte, r Ref) {
	v := uint64(r)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// WriteToMem writes a streaming image into a new in-memory buffer and
// returns it. It fails with BadAllocError only when the allocator
// reports a total size of zero; the destination buffer is not pre-sized
// from that total but grows as the image is written.
func (g *Group) WriteToMem() ([]byte, error) {
	g.enter()
	defer g.leave()
	g.requireAttached()

	total := g.alloc.TotalSize()
	if total == 0 {
		return nil, &BadAllocError{Size: total}
	}
	return g.writeStreaming(false, 0)
}
