// Copyright 2021 - 2023 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rows implements the append-only store of encoded key rows backing
// the fast grouper. Rows live in two parallel stores: a fixed-length region
// (one record per row, null bits in a sideband bitmap) and, when any key
// column is variable length, an offsets array into a shared byte arena.
package rows

import (
	"bytes"

	"github.com/matrixorigin/grouper/pkg/common/bitmap"
	"github.com/matrixorigin/grouper/pkg/container/types"
)

// RowMeta is the metadata-driven row layout: per-column field offsets
// within the fixed region, row alignment and string alignment (multiples
// of 8).
type RowMeta struct {
	Cols []types.KeyColumnMeta

	// ColOffsets[i] is column i's field offset in the fixed region. A
	// varlen column's field is a 4 byte payload length.
	ColOffsets []uint32

	// FixedRowSize is the aligned size of one fixed region record.
	FixedRowSize int

	// NullMaskBytes reserved bytes (one bit per key column) lead every
	// record and stay zero; the null bits themselves live in the row
	// table's sideband bitmap.
	NullMaskBytes int

	IsFixedOnly bool

	RowAlign int
	StrAlign int
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

func NewRowMeta(cols []types.KeyColumnMeta, rowAlign, strAlign int) RowMeta {
	meta := RowMeta{
		Cols:     cols,
		RowAlign: rowAlign,
		StrAlign: strAlign,
	}
	meta.NullMaskBytes = (len(cols) + 7) / 8
	off := meta.NullMaskBytes
	meta.ColOffsets = make([]uint32, len(cols))
	meta.IsFixedOnly = true
	for i, col := range cols {
		width := int(col.FixedLength)
		if !col.IsFixedLength {
			width = 4
			meta.IsFixedOnly = false
		}
		if width > 1 {
			fieldAlign := width
			if fieldAlign > 8 {
				fieldAlign = 8
			}
			off = alignUp(off, fieldAlign)
		}
		meta.ColOffsets[i] = uint32(off)
		off += width
	}
	meta.FixedRowSize = alignUp(off, rowAlign)
	if meta.FixedRowSize == 0 {
		// all-null-type schemas still need addressable records
		meta.FixedRowSize = rowAlign
	}
	return meta
}

// RowTable stores encoded rows. Appended bytes are stable for the lifetime
// of the table; offsets are monotonic with Offsets[0] == 0 and
// Offsets[rowCount] equal to the arena size.
type RowTable struct {
	meta RowMeta

	rowCount int
	fixed    []byte
	nullBits bitmap.Bitmap

	offsets []uint32
	area    []byte

	zeroRec []byte
}

func (rt *RowTable) Init(meta RowMeta) {
	rt.meta = meta
	rt.zeroRec = make([]byte, meta.FixedRowSize)
	rt.Clean()
}

func (rt *RowTable) Meta() RowMeta {
	return rt.meta
}

// Clean truncates to zero rows, keeping capacity. Offsets[0] is reset to 0
// so later varlen allocations see a defined size.
func (rt *RowTable) Clean() {
	rt.rowCount = 0
	rt.fixed = rt.fixed[:0]
	rt.nullBits.Reset()
	if !rt.meta.IsFixedOnly {
		if cap(rt.offsets) == 0 {
			rt.offsets = make([]uint32, 1, 8)
		}
		rt.offsets = rt.offsets[:1]
		rt.offsets[0] = 0
		rt.area = rt.area[:0]
	}
}

func (rt *RowTable) Length() int {
	return rt.rowCount
}

// FixedRow returns the fixed region record of row i.
func (rt *RowTable) FixedRow(i int) []byte {
	sz := rt.meta.FixedRowSize
	return rt.fixed[i*sz : (i+1)*sz]
}

// VarRow returns the varlen blob of row i, empty for fixed-only layouts.
func (rt *RowTable) VarRow(i int) []byte {
	if rt.meta.IsFixedOnly {
		return nil
	}
	return rt.area[rt.offsets[i]:rt.offsets[i+1]]
}

// VarlenBytes returns the total arena size, Offsets[Length()].
func (rt *RowTable) VarlenBytes() uint32 {
	if rt.meta.IsFixedOnly {
		return 0
	}
	return rt.offsets[rt.rowCount]
}

func (rt *RowTable) IsNullAt(row, col int) bool {
	return rt.nullBits.Contains(uint64(row*len(rt.meta.Cols) + col))
}

func (rt *RowTable) setNullAt(row, col int) {
	pos := uint64(row*len(rt.meta.Cols) + col)
	rt.nullBits.TryExpandWithSize(int64(pos + 1))
	rt.nullBits.Add(pos)
}

// appendRow reserves one fixed record (zeroed) and returns it.
func (rt *RowTable) appendRow() []byte {
	sz := rt.meta.FixedRowSize
	old := len(rt.fixed)
	rt.fixed = append(rt.fixed, rt.zeroRec...)
	rt.rowCount++
	rt.nullBits.TryExpandWithSize(int64(rt.rowCount * len(rt.meta.Cols)))
	return rt.fixed[old : old+sz]
}

// AppendSelectionFrom appends count rows of src, chosen by sel, preserving
// their encoded bytes. A nil sel appends the first count rows.
func (rt *RowTable) AppendSelectionFrom(src *RowTable, count int, sel []uint16) {
	numCols := len(rt.meta.Cols)
	for k := 0; k < count; k++ {
		srcRow := k
		if sel != nil {
			srcRow = int(sel[k])
		}
		dstRow := rt.rowCount
		rec := rt.appendRow()
		copy(rec, src.FixedRow(srcRow))
		for c := 0; c < numCols; c++ {
			if src.IsNullAt(srcRow, c) {
				rt.setNullAt(dstRow, c)
			}
		}
		if !rt.meta.IsFixedOnly {
			blob := src.VarRow(srcRow)
			rt.area = append(rt.area, blob...)
			rt.offsets = append(rt.offsets, uint32(len(rt.area)))
		}
	}
}

// RowsEqual compares row i against row j of other byte for byte: fixed
// record, null bits and varlen blob. Encoding determinism makes this
// equivalent to key tuple equality.
func (rt *RowTable) RowsEqual(i int, other *RowTable, j int) bool {
	if !bytes.Equal(rt.FixedRow(i), other.FixedRow(j)) {
		return false
	}
	numCols := len(rt.meta.Cols)
	for c := 0; c < numCols; c++ {
		if rt.IsNullAt(i, c) != other.IsNullAt(j, c) {
			return false
		}
	}
	if !rt.meta.IsFixedOnly {
		if !bytes.Equal(rt.VarRow(i), other.VarRow(j)) {
			return false
		}
	}
	return true
}

func (rt *RowTable) Free() {
	rt.fixed, rt.area, rt.offsets = nil, nil, nil
	rt.nullBits = bitmap.New()
	rt.rowCount = 0
}
