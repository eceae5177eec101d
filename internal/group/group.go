// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package group implements the group layer of an embedded,
// memory-mapped, transactional database file: the root object that
// owns a named collection of tables, attaches to (or creates) an
// on-disk image, commits mutations, advances a live accessor tree to a
// snapshot produced elsewhere, and writes compacted copies.
package group

import (
	"encoding/binary"
	"fmt"

	log "github.com/golang/glog"

	"github.com/groupdb/groupdb/internal/arena"
)

// TargetFileFormatVersion is the format version every open or upgrade
// converges on. Only non-history sessions are modeled (see group.cpp's
// get_target_file_format_version_for_session for the richer original
// rule); groupdb always targets 9.
const TargetFileFormatVersion = 9

// Group is the single-owner root object of a database snapshot. No
// method is safe to call concurrently with another call on the same
// Group, and none is re-entrant; this is enforced by inUse rather than
// a mutex, per spec §5.
type Group struct {
	alloc *arena.Arena
	repl  Replication
	cfg   Config

	top *topArray

	tableNames []string
	tables     []Ref // per-table top refs, sibling of top[1]
	accessors  []*Table

	fileFormatVersion int
	isShared          bool
	attached          bool

	path string

	inUse bool
}

func (g *Group) enter() {
	if g.inUse {
		panic(newLogicError(WrongGroupState))
	}
	g.inUse = true
}

func (g *Group) leave() { g.inUse = false }

func (g *Group) requireAttached() {
	if !g.attached {
		panic(newLogicError(DetachedAccessor))
	}
}

// New constructs an unattached Group. Open or Attach must be called
// before any other method.
func New(cfg Config) *Group {
	return &Group{cfg: resolveConfig(cfg), repl: resolveConfig(cfg).Replication}
}

// Open attaches g to path, creating it if cfg.Mode allows and it is
// missing. Opening a Group twice is a logic error, per spec §4.2.
func (g *Group) Open(path string) (err error) {
	g.enter()
	defer g.leave()
	if g.attached {
		panic(newLogicError(WrongGroupState))
	}

	create := g.cfg.Mode == ModeReadWrite
	readOnly := g.cfg.Mode == ModeReadOnly
	if g.cfg.Mode == ModeReadWriteNoCreate {
		create = false
	}

	ar, err := arena.AttachFile(path, create, readOnly)
	if err != nil {
		return err
	}
	g.alloc = ar
	g.path = path

	defer func() {
		if err != nil {
			g.alloc.Detach()
			g.alloc = nil
			g.attached = false
		}
	}()

	_, sel, topRef := ar.ReadHeader()
	if sel == arena.SelectorStreaming {
		// A compact-written image keeps its top-ref in the trailing
		// StreamingFooter rather than in the header.
		footer, ferr := ar.ReadAt(ar.Baseline()-16, 16)
		if ferr != nil || binary.LittleEndian.Uint64(footer[8:16]) != magicCookie {
			return &InvalidDatabaseError{Reason: "streaming footer is missing or has a bad magic cookie", Path: g.path}
		}
		topRef = binary.LittleEndian.Uint64(footer[0:8])
	}
	return g.attach(Ref(topRef), true)
}

// OpenMemory attaches g to an in-memory buffer, mirroring open(buffer,
// take_ownership) from spec §6. A nil or empty buf builds a brand-new,
// file-less empty group instead (the default-constructor case spec §1
// names), rather than erroring on a too-small buffer.
func (g *Group) OpenMemory(buf []byte, takeOwnership bool) (err error) {
	g.enter()
	defer g.leave()
	if g.attached {
		panic(newLogicError(WrongGroupState))
	}
	var ar *arena.Arena
	if len(buf) == 0 {
		ar = arena.AttachEmpty()
	} else {
		ar, err = arena.AttachBuffer(buf, takeOwnership)
		if err != nil {
			return err
		}
	}
	g.alloc = ar
	defer func() {
		if err != nil {
			g.alloc.Detach()
			g.alloc = nil
			g.attached = false
		}
	}()
	_, sel, topRef := ar.ReadHeader()
	if sel == arena.SelectorStreaming {
		// A compact-written image keeps its top-ref in the trailing
		// StreamingFooter rather than in the header.
		footer, ferr := ar.ReadAt(ar.Baseline()-16, 16)
		if ferr != nil || binary.LittleEndian.Uint64(footer[8:16]) != magicCookie {
			return &InvalidDatabaseError{Reason: "streaming footer is missing or has a bad magic cookie"}
		}
		topRef = binary.LittleEndian.Uint64(footer[0:8])
	}
	return g.attach(Ref(topRef), true)
}

// attach implements C2's contract exactly: construct the canonical
// empty tree when topRef is zero and creation is allowed, decode and
// validate otherwise, and leave the group fully unattached on any
// error (the "detach guard" pattern from the teacher's SlabAlloc, here
// expressed with a deferred cleanup instead of RAII).
func (g *Group) attach(topRef Ref, createWhenMissing bool) (err error) {
	if g.attached {
		panic(newLogicError(WrongGroupState))
	}

	defer func() {
		if err != nil {
			g.top = nil
			g.tableNames = nil
			g.tables = nil
			g.accessors = nil
			g.attached = false
		}
	}()

	if topRef.isNull() {
		if !createWhenMissing {
			g.attached = false
			return nil
		}
		if err = g.attachEmptyTree(); err != nil {
			return err
		}
		g.fileFormatVersion = TargetFileFormatVersion
		g.attached = true
		return nil
	}

	baseline := g.alloc.Baseline()
	top, err := g.decodeTop(topRef, baseline)
	if err != nil {
		return err
	}
	g.top = top

	names, err := readNode(g.alloc, top.tableNamesRef())
	if err != nil {
		return &InvalidDatabaseError{Reason: fmt.Sprintf("cannot read table-names node: %s", err), Path: g.path}
	}
	tableNames, err := decodeStringList(names)
	if err != nil {
		return &InvalidDatabaseError{Reason: fmt.Sprintf("cannot decode table-names: %s", err), Path: g.path}
	}

	tablesPayload, err := readNode(g.alloc, top.tablesRef())
	if err != nil {
		return &InvalidDatabaseError{Reason: fmt.Sprintf("cannot read tables node: %s", err), Path: g.path}
	}
	tableRefs, err := decodeRefList(tablesPayload)
	if err != nil {
		return &InvalidDatabaseError{Reason: fmt.Sprintf("cannot decode tables list: %s", err), Path: g.path}
	}

	if len(tableNames) != len(tableRefs) {
		return &InvalidDatabaseError{
			Reason: fmt.Sprintf("table-names length %d does not match tables length %d", len(tableNames), len(tableRefs)),
			Path:   g.path,
		}
	}

	committed := g.alloc.GetCommittedFileFormatVersion()
	fileFormat := committed
	if fileFormat == 0 {
		fileFormat = TargetFileFormatVersion
	} else if fileFormat < 6 || fileFormat > 9 {
		if !g.cfg.AllowUpgrade {
			return &InvalidDatabaseError{
				Reason: fmt.Sprintf("unsupported file format version %d", fileFormat),
				Path:   g.path,
			}
		}
	}

	g.tableNames = tableNames
	g.tables = tableRefs
	// advance_transact's replay step (internal/group/advance.go) already
	// resizes g.accessors in lockstep with structural log instructions
	// before calling attach again; preserve that slice (and the live,
	// possibly-marked Table pointers it holds) instead of discarding it,
	// so refresh_dirty_accessors has something to refresh in place.
	if g.accessors == nil || len(g.accessors) != len(tableRefs) {
		g.accessors = make([]*Table, len(tableRefs))
	}
	g.fileFormatVersion = fileFormat
	g.attached = true

	if fileFormat >= 2 && fileFormat < TargetFileFormatVersion {
		if !g.cfg.AllowUpgrade {
			g.attached = false
			return &InvalidDatabaseError{
				Reason: fmt.Sprintf("file format version %d requires an upgrade, which this open mode disallows", fileFormat),
				Path:   g.path,
			}
		}
		if err = g.upgradeFileFormat(TargetFileFormatVersion); err != nil {
			g.attached = false
			return err
		}
	}

	return nil
}

func (g *Group) decodeTop(topRef Ref, baseline uint64) (*topArray, error) {
	payload, err := readNode(g.alloc, topRef)
	if err != nil {
		return nil, &InvalidDatabaseError{Reason: fmt.Sprintf("cannot read top array node: %s", err), Path: g.path}
	}
	words, err := decodeRefList(payload)
	if err != nil {
		return nil, &InvalidDatabaseError{Reason: fmt.Sprintf("cannot decode top array: %s", err), Path: g.path}
	}
	t := &topArray{words: make([]taggedWord, len(words))}
	for i, w := range words {
		t.words[i] = taggedWord(w)
	}
	if err := validateTop(t, baseline, g.path); err != nil {
		return nil, err
	}
	return t, nil
}

// attachEmptyTree builds the canonical empty group: empty table-names,
// empty tables list, a minimal top array of size 3.
func (g *Group) attachEmptyTree() error {
	g.tableNames = nil
	g.tables = nil
	g.accessors = nil
	g.top = newMinimalTop(arena.HeaderSize)
	return nil
}

// Detach releases every live table accessor and abandons the
// allocator-owned memory in one step. Idempotent.
func (g *Group) Detach() error {
	g.enter()
	defer g.leave()
	return g.detachLocked()
}

func (g *Group) detachLocked() error {
	for _, t := range g.accessors {
		if t != nil {
			t.g = nil
		}
	}
	g.accessors = nil
	g.tableNames = nil
	g.tables = nil
	g.top = nil
	g.attached = false
	if g.alloc != nil {
		err := g.alloc.Detach()
		g.alloc = nil
		return err
	}
	return nil
}

// IsAttached reports whether the group currently has bound accessors.
func (g *Group) IsAttached() bool { return g.attached }

// GetFileFormatVersion returns the in-memory (possibly upgraded but
// uncommitted) file format version.
func (g *Group) GetFileFormatVersion() int { return g.fileFormatVersion }

// GetCommittedFileFormatVersion returns the version the allocator has
// durably committed, which may lag GetFileFormatVersion until the next
// commit.
func (g *Group) GetCommittedFileFormatVersion() int {
	if g.alloc == nil {
		return 0
	}
	return g.alloc.GetCommittedFileFormatVersion()
}

func (g *Group) logAttachmentLoss(reason string) {
	log.Errorf("group: %s; group must now be detached or destroyed", reason)
}
