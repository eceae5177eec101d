// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/groupdb/groupdb/internal/arena"
)

// Every node written to the heap is a length-prefixed, 8-byte-aligned
// blob: an 8-byte payload length followed by the payload itself, padded
// with zero bytes so the next node's ref is also 8-byte aligned. A ref
// names the offset of the length field.
const nodeHeaderSize = 8

func padTo8(n int) int {
	if r := n % 8; r != 0 {
		return n + (8 - r)
	}
	return n
}

// writeNode appends payload as a new node and returns its ref.
func writeNode(ar *arena.Arena, payload []byte) (Ref, error) {
	padded := padTo8(len(payload))
	total := nodeHeaderSize + padded
	off, err := ar.Alloc(uint64(total))
	if err != nil {
		return Null, err
	}
	buf := make([]byte, total)
	binary.LittleEndian.PutUint64(buf[:8], uint64(len(payload)))
	copy(buf[8:8+len(payload)], payload)
	if err := ar.WriteAt(uint64(off), buf); err != nil {
		return Null, err
	}
	return Ref(off), nil
}

// readNode returns the payload of the node at ref.
func readNode(ar *arena.Arena, ref Ref) ([]byte, error) {
	hdr, err := ar.ReadAt(uint64(ref), nodeHeaderSize)
	if err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint64(hdr)
	payload, err := ar.ReadAt(uint64(ref)+nodeHeaderSize, int(n))
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func putString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint64(len(s)))
	buf.WriteString(s)
}

func getString(r *bytes.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// encodeStringList serializes table_names: a sibling array of top[0].
func encodeStringList(names []string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(len(names)))
	for _, n := range names {
		putString(&buf, n)
	}
	return buf.Bytes()
}

func decodeStringList(payload []byte) ([]string, error) {
	r := bytes.NewReader(payload)
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := getString(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// encodeRefList serializes tables: a sibling array of top[1], one
// per-table top ref in table order.
func encodeRefList(refs []Ref) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(len(refs)))
	for _, r := range refs {
		binary.Write(&buf, binary.LittleEndian, uint64(r))
	}
	return buf.Bytes()
}

func decodeRefList(payload []byte) ([]Ref, error) {
	r := bytes.NewReader(payload)
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]Ref, n)
	for i := range out {
		var v uint64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, err
		}
		out[i] = Ref(v)
	}
	return out, nil
}

// encodeTable serializes a table's full spec and row data as one deep
// node: name, columns, then each column's data in row order.
func encodeTable(t *Table) []byte {
	var buf bytes.Buffer
	putString(&buf, t.name)
	binary.Write(&buf, binary.LittleEndian, uint64(len(t.columns)))
	for _, c := range t.columns {
		binary.Write(&buf, binary.LittleEndian, uint8(c.typ))
		binary.Write(&buf, binary.LittleEndian, int32(c.linkTargetTable))
		binary.Write(&buf, binary.LittleEndian, int32(c.backlinkOrigin))
		var flags uint8
		if c.searchIndex {
			flags |= 1
		}
		if c.primaryKey {
			flags |= 2
		}
		binary.Write(&buf, binary.LittleEndian, flags)
		putString(&buf, c.name)
	}
	binary.Write(&buf, binary.LittleEndian, uint64(t.numRows))
	for ci, c := range t.columns {
		switch c.typ {
		case ColumnInt:
			for _, v := range t.intCol[ci] {
				binary.Write(&buf, binary.LittleEndian, v)
			}
		case ColumnBool:
			for _, v := range t.boolCol[ci] {
				b := uint8(0)
				if v {
					b = 1
				}
				buf.WriteByte(b)
			}
		case ColumnString:
			for _, v := range t.stringCol[ci] {
				putString(&buf, v)
			}
		case ColumnLink, ColumnBacklink:
			for _, v := range t.linkCol[ci] {
				binary.Write(&buf, binary.LittleEndian, v)
			}
		}
	}
	return buf.Bytes()
}

func decodeTable(g *Group, ndx int, payload []byte) (*Table, error) {
	r := bytes.NewReader(payload)
	name, err := getString(r)
	if err != nil {
		return nil, err
	}
	t := newTable(g, ndx, name)
	t.incomplete = false

	var numCols uint64
	if err := binary.Read(r, binary.LittleEndian, &numCols); err != nil {
		return nil, err
	}
	t.columns = make([]column, numCols)
	for i := range t.columns {
		var typ uint8
		var linkTarget, backOrigin int32
		var flags uint8
		if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &linkTarget); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &backOrigin); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
			return nil, err
		}
		cname, err := getString(r)
		if err != nil {
			return nil, err
		}
		t.columns[i] = column{
			name:            cname,
			typ:             ColumnType(typ),
			linkTargetTable: int(linkTarget),
			backlinkOrigin:  int(backOrigin),
			searchIndex:     flags&1 != 0,
			primaryKey:      flags&2 != 0,
		}
	}

	var numRows uint64
	if err := binary.Read(r, binary.LittleEndian, &numRows); err != nil {
		return nil, err
	}
	t.numRows = int(numRows)
	for ci, c := range t.columns {
		switch c.typ {
		case ColumnInt:
			col := make([]int64, numRows)
			for i := range col {
				if err := binary.Read(r, binary.LittleEndian, &col[i]); err != nil {
					return nil, err
				}
			}
			t.intCol[ci] = col
		case ColumnBool:
			col := make([]bool, numRows)
			for i := range col {
				b, err := r.ReadByte()
				if err != nil {
					return nil, err
				}
				col[i] = b != 0
			}
			t.boolCol[ci] = col
		case ColumnString:
			col := make([]string, numRows)
			for i := range col {
				s, err := getString(r)
				if err != nil {
					return nil, err
				}
				col[i] = s
			}
			t.stringCol[ci] = col
		case ColumnLink, ColumnBacklink:
			col := make([]int64, numRows)
			for i := range col {
				if err := binary.Read(r, binary.LittleEndian, &col[i]); err != nil {
					return nil, err
				}
			}
			t.linkCol[ci] = col
		default:
			return nil, fmt.Errorf("group: unknown column type %d decoding table %q", c.typ, name)
		}
	}
	return t, nil
}
