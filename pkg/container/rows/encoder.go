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

package rows

import (
	"github.com/matrixorigin/grouper/pkg/container/nulls"
	"github.com/matrixorigin/grouper/pkg/container/types"
	"github.com/matrixorigin/grouper/pkg/container/vector"
)

// Encoder transcodes a window of key columns to and from the row table
// layout. Encoding is deterministic: bit-equal inputs produce bit-equal
// rows, padding is zero-filled, null rows are zero-filled.
type Encoder struct {
	typs []types.Type
	meta RowMeta

	// window captured by PrepareEncodeSelected
	cols     []*vector.Vector
	startRow int
	count    int
}

func (e *Encoder) Init(typs []types.Type, rowAlign, strAlign int) {
	e.typs = typs
	colMetas := make([]types.KeyColumnMeta, len(typs))
	for i, typ := range typs {
		colMetas[i] = typ.KeyMeta()
	}
	e.meta = NewRowMeta(colMetas, rowAlign, strAlign)
}

func (e *Encoder) RowMeta() RowMeta {
	return e.meta
}

// PrepareEncodeSelected captures the column window [start, start+n) that
// subsequent EncodeSelected calls read from.
func (e *Encoder) PrepareEncodeSelected(start, n int, cols []*vector.Vector) {
	e.startRow = start
	e.count = n
	e.cols = cols
}

// EncodeSelected appends the window rows chosen by sel (all n window rows
// when sel is nil) to rt, one encoded row each.
func (e *Encoder) EncodeSelected(rt *RowTable, n int, sel []uint16) {
	for k := 0; k < n; k++ {
		r := k
		if sel != nil {
			r = int(sel[k])
		}
		e.encodeRow(rt, e.startRow+r)
	}
}

func (e *Encoder) encodeRow(rt *RowTable, row int) {
	dst := rt.rowCount
	rec := rt.appendRow()
	for c, col := range e.meta.Cols {
		vec := e.cols[c]
		if col.IsNullType {
			rt.setNullAt(dst, c)
			continue
		}
		if vec.IsNull(uint64(row)) {
			rt.setNullAt(dst, c)
			// zero-filled field, zero length slot
			continue
		}
		if col.IsFixedLength {
			off := e.meta.ColOffsets[c]
			copy(rec[off:off+col.FixedLength], vec.RawFixedAt(row))
			continue
		}
		val := vec.GetBytesAt(row)
		off := e.meta.ColOffsets[c]
		length := uint32(len(val))
		copy(rec[off:off+4], types.EncodeUint32(&length))
		rt.area = append(rt.area, val...)
		if pad := alignUp(len(val), e.meta.StrAlign) - len(val); pad > 0 {
			rt.area = append(rt.area, rt.zeroRec[:pad]...)
		}
	}
	if !e.meta.IsFixedOnly {
		rt.offsets = append(rt.offsets, uint32(len(rt.area)))
	}
}

// DecodeFixed fills the fixed-length buffers of outVecs from rows
// [startRow, startRow+n) of rt, writing each value at its own row
// position. For varlen columns it records the payload length in
// Offsets[row+1]; the caller prefix-sums before DecodeVarlen.
func (e *Encoder) DecodeFixed(rt *RowTable, startRow, n int, outVecs []*vector.Vector) {
	for r := 0; r < n; r++ {
		row := startRow + r
		rec := rt.FixedRow(row)
		for c, col := range e.meta.Cols {
			out := outVecs[c]
			if col.IsNullType || out == nil {
				continue
			}
			isNull := rt.IsNullAt(row, c)
			if isNull {
				nulls.Add(out.Nsp, uint64(row))
			}
			off := e.meta.ColOffsets[c]
			if col.IsFixedLength {
				if !isNull {
					sz := int(col.FixedLength)
					copy(out.Data[row*sz:(row+1)*sz], rec[off:off+col.FixedLength])
				}
				continue
			}
			if isNull {
				out.Offsets[row+1] = 0
			} else {
				out.Offsets[row+1] = types.DecodeUint32(rec[off : off+4])
			}
		}
	}
}

// DecodeVarlen copies varlen payloads from rows [startRow, startRow+n) of
// rt into the out vectors' areas. Offsets must already be prefix-summed.
func (e *Encoder) DecodeVarlen(rt *RowTable, startRow, n int, outVecs []*vector.Vector) {
	if e.meta.IsFixedOnly {
		return
	}
	for r := 0; r < n; r++ {
		row := startRow + r
		rec := rt.FixedRow(row)
		blob := rt.VarRow(row)
		pos := 0
		for c, col := range e.meta.Cols {
			if col.IsFixedLength {
				continue
			}
			out := outVecs[c]
			if rt.IsNullAt(row, c) {
				continue
			}
			off := e.meta.ColOffsets[c]
			length := int(types.DecodeUint32(rec[off : off+4]))
			if out != nil {
				copy(out.Area[out.Offsets[row]:out.Offsets[row]+uint32(length)], blob[pos:pos+length])
			}
			pos += alignUp(length, e.meta.StrAlign)
		}
	}
}
