// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package arena implements the allocator collaborator consumed by
// internal/group: a memory-mapped, append-only heap addressed by byte
// offset. It implements attach_file/attach_buffer/attach_empty,
// update_reader_view, and the other accessors the group's C1-C6
// components call, per spec.md §6. Free-space bookkeeping beyond a
// monotonic bump allocator is explicitly out of scope (spec.md §1); the
// three free-list arrays the top array reserves room for are always
// written empty (see DESIGN.md Open Question #2).
package arena

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/golang/glog"

	"github.com/groupdb/groupdb/pkg/retry"
)

// HeaderMagic identifies a groupdb file. HeaderSize is the fixed-size
// file header occupying bytes [0, HeaderSize) of every file, mirroring
// spec.md §6's "file header contains the file-format version and
// selector" requirement.
const (
	HeaderMagic    = "GRPDB1\x00\x00"
	HeaderSize     = 32
	growthFactor   = 2
	initialCapacity = 4096
)

// Selector distinguishes a file whose top-ref lives in the header
// ("in-place" mode, used after commit) from one whose top-ref is found
// via the trailing streaming footer ("streaming" mode, used by write).
type Selector uint32

const (
	SelectorInPlace  Selector = 0
	SelectorStreaming Selector = 1
)

// Arena is the memory-mapped, append-only file heap. It is the sole
// owner of the mapping while attached; the group holds a mutable
// borrow, per spec.md §5.
type Arena struct {
	mu sync.Mutex

	file *os.File
	path string

	data []byte // the mapped region, len(data) == capacity
	buf  []byte // backing slice when attached to an in-memory buffer instead of a file

	baseline  uint64 // physical size currently mapped/owned
	capacity  uint64 // reserved capacity before a remap is needed

	committedFormatVersion int
	globalVersion           uint64

	readOnly bool
}

// AttachEmpty creates a brand-new, file-less heap containing only the
// header, matching spec.md §4.2's "construct the minimum empty tree".
func AttachEmpty() *Arena {
	a := &Arena{
		buf:      make([]byte, HeaderSize, initialCapacity),
		baseline: HeaderSize,
		capacity: initialCapacity,
	}
	a.writeHeaderLocked(0, SelectorInPlace, 0)
	return a
}

// AttachBuffer wraps an existing in-memory image (as produced by
// write_to_mem, or supplied directly by a caller) without any file.
func AttachBuffer(buf []byte, takeOwnership bool) (*Arena, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("arena: buffer too small to hold a header (%d bytes)", len(buf))
	}
	b := buf
	if !takeOwnership {
		b = append([]byte(nil), buf...)
	}
	a := &Arena{
		buf:      b,
		baseline: uint64(len(b)),
		capacity: uint64(len(b)),
	}
	version, _, _ := a.readHeaderLocked()
	a.committedFormatVersion = version
	return a, nil
}

// AttachFile opens or creates path and mmaps it. readOnly governs
// whether Alloc/WriteAt are permitted afterward.
func AttachFile(path string, create bool, readOnly bool) (*Arena, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	a := &Arena{file: f, path: path, readOnly: readOnly}
	if info.Size() == 0 {
		if readOnly {
			f.Close()
			return nil, fmt.Errorf("arena: %s is empty and cannot be created read-only", path)
		}
		if err := f.Truncate(int64(HeaderSize)); err != nil {
			f.Close()
			return nil, err
		}
		a.capacity = HeaderSize
		if err := a.mapLocked(HeaderSize); err != nil {
			f.Close()
			return nil, err
		}
		a.writeHeaderLocked(0, SelectorInPlace, 0)
		a.baseline = HeaderSize
		return a, nil
	}

	a.capacity = uint64(info.Size())
	if err := a.mapLocked(uint64(info.Size())); err != nil {
		f.Close()
		return nil, err
	}
	a.baseline = uint64(info.Size())
	version, _, _ := a.readHeaderLocked()
	a.committedFormatVersion = version
	log.V(1).Infof("arena: attached %s, baseline=%d format=%d", path, a.baseline, version)
	return a, nil
}

func (a *Arena) writeHeaderLocked(formatVersion int, sel Selector, topRef uint64) {
	h := a.region()[:HeaderSize]
	copy(h[0:8], []byte(HeaderMagic))
	putU32(h[8:12], uint32(formatVersion))
	putU32(h[12:16], uint32(sel))
	putU64(h[16:24], topRef)
}

func (a *Arena) readHeaderLocked() (formatVersion int, sel Selector, topRef uint64) {
	h := a.region()[:HeaderSize]
	formatVersion = int(getU32(h[8:12]))
	sel = Selector(getU32(h[12:16]))
	topRef = getU64(h[16:24])
	return
}

// WriteHeader publishes the committed file-format version, selector,
// and (in in-place mode) top-ref into the file header. Commit calls
// this after the new top array has been appended.
func (a *Arena) WriteHeader(formatVersion int, sel Selector, topRef uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writeHeaderLocked(formatVersion, sel, topRef)
	a.committedFormatVersion = formatVersion
}

// ReadHeader returns the current header fields.
func (a *Arena) ReadHeader() (formatVersion int, sel Selector, topRef uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readHeaderLocked()
}

func (a *Arena) region() []byte {
	if a.data != nil {
		return a.data
	}
	return a.buf
}

// Baseline returns the allocator's current physical size.
func (a *Arena) Baseline() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.baseline
}

// TotalSize returns a safe over-estimate of the space needed to hold
// the whole heap. write_to_mem checks that it is non-zero before writing.
func (a *Arena) TotalSize() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.capacity > a.baseline {
		return a.capacity
	}
	return a.baseline
}

// GetCommittedFileFormatVersion returns the version last published via
// WriteHeader (or read from the file at attach time).
func (a *Arena) GetCommittedFileFormatVersion() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.committedFormatVersion
}

// BumpGlobalVersion increments and returns the allocator-wide version
// counter, used by advance_transact's refresh_dirty_accessors step.
func (a *Arena) BumpGlobalVersion() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.globalVersion++
	return a.globalVersion
}

// ForAllFreeEntries iterates the free list. This allocator never
// populates one, so the callback is never invoked; the method exists to
// satisfy the consumed interface named in spec.md §6.
func (a *Arena) ForAllFreeEntries(fn func(offset, size uint64)) {}

// OwnBuffer returns the whole mapped/owned region, for write_to_mem-style
// callers that need direct byte access.
func (a *Arena) OwnBuffer() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.region()[:a.baseline]
}

// Alloc bump-allocates n bytes from the end of the heap and returns the
// offset of the new region, growing the backing store if needed.
func (a *Arena) Alloc(n uint64) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.readOnly {
		return 0, fmt.Errorf("arena: cannot allocate in a read-only arena")
	}
	if err := injectedAllocFailure(); err != nil {
		return 0, err
	}
	off := a.baseline
	newBaseline := off + n
	if newBaseline > a.capacity {
		newCap := a.capacity * growthFactor
		for newCap < newBaseline {
			newCap *= growthFactor
		}
		if err := a.growLocked(newCap); err != nil {
			return 0, err
		}
	}
	a.baseline = newBaseline
	return off, nil
}

// WriteAt writes data at byte offset off, which must lie within the
// current baseline (callers allocate first).
func (a *Arena) WriteAt(off uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.readOnly {
		return fmt.Errorf("arena: cannot write to a read-only arena")
	}
	if off+uint64(len(data)) > a.baseline {
		return fmt.Errorf("arena: write at %d..%d exceeds baseline %d", off, off+uint64(len(data)), a.baseline)
	}
	copy(a.region()[off:off+uint64(len(data))], data)
	return nil
}

// ReadAt returns a copy of n bytes starting at off.
func (a *Arena) ReadAt(off uint64, n int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if off+uint64(n) > a.baseline {
		return nil, fmt.Errorf("arena: read at %d..%d exceeds baseline %d", off, off+uint64(n), a.baseline)
	}
	out := make([]byte, n)
	copy(out, a.region()[off:off+uint64(n)])
	return out, nil
}

// UpdateReaderView remaps (or re-slices) the heap to newSize, used by
// advance_transact step 1 and by commit after a successful write.
func (a *Arena) UpdateReaderView(newSize uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if newSize > a.capacity {
		if err := a.growLocked(newSize); err != nil {
			return err
		}
	}
	a.baseline = newSize
	return nil
}

// Truncate discards everything at or beyond newBaseline, used when a
// caller needs to roll the heap back to a known-good prefix (e.g. after
// reopening at a committed top-ref smaller than the mapped region).
func (a *Arena) Truncate(newBaseline uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.baseline = newBaseline
}

// Detach releases the mapping. Idempotent.
func (a *Arena) Detach() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var err error
	if a.data != nil {
		err = unmap(a.data)
		a.data = nil
	}
	if a.file != nil {
		if cerr := a.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		a.file = nil
	}
	a.buf = nil
	return err
}

// mapLocked (re)maps the backing file to size bytes. Callers hold a.mu.
func (a *Arena) mapLocked(size uint64) error {
	if a.file == nil {
		return nil
	}
	if a.data != nil {
		if err := unmap(a.data); err != nil {
			return err
		}
		a.data = nil
	}
	if err := a.file.Truncate(int64(size)); err != nil {
		return err
	}
	data, err := mmapWithRetry(a.file, int(size), a.readOnly)
	if err != nil {
		return err
	}
	a.data = data
	a.capacity = size
	return nil
}

// mmapRetrier bounds the handful of retries worth attempting when mmap
// fails transiently (EINTR, or EAGAIN under memory pressure); anything
// past a few hundred milliseconds is almost certainly not transient.
var mmapRetrier = retry.Retrier{MinSleep: time.Millisecond, MaxSleep: 20 * time.Millisecond, MaxNumRetries: 5}

func mmapWithRetry(f *os.File, size int, readOnly bool) ([]byte, error) {
	var data []byte
	var mmapErr error
	mmapRetrier.Do(context.Background(), func(i int) bool {
		data, mmapErr = mmap(f, size, readOnly)
		if mmapErr != nil {
			log.V(1).Infof("arena: mmap attempt %d failed: %s", i, mmapErr)
			return false
		}
		return true
	})
	return data, mmapErr
}

// growLocked extends capacity to at least newCap, remapping a file
// backing or growing the in-memory buffer as appropriate.
func (a *Arena) growLocked(newCap uint64) error {
	if a.file != nil {
		return a.mapLocked(newCap)
	}
	grown := make([]byte, a.baseline, newCap)
	copy(grown, a.buf[:a.baseline])
	a.buf = grown
	a.capacity = newCap
	return nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
