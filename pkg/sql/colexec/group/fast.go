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

package group

import (
	"github.com/matrixorigin/grouper/pkg/common/bitmap"
	"github.com/matrixorigin/grouper/pkg/common/moerr"
	"github.com/matrixorigin/grouper/pkg/common/mpool"
	"github.com/matrixorigin/grouper/pkg/container/batch"
	"github.com/matrixorigin/grouper/pkg/container/hashtable"
	"github.com/matrixorigin/grouper/pkg/container/nulls"
	"github.com/matrixorigin/grouper/pkg/container/rows"
	"github.com/matrixorigin/grouper/pkg/container/types"
	"github.com/matrixorigin/grouper/pkg/container/vector"
	"github.com/matrixorigin/grouper/pkg/vm/process"
)

// fastGrouper runs the mini-batched pipeline: encode the window slice into
// a scratch row table, hash each encoded row, probe the group table behind
// an early-filter bitvector, resolve candidates by byte comparison against
// the main row table, and append unmatched rows with fresh dense ids.
type fastGrouper struct {
	proc     *process.Process
	keyTypes []types.Type

	// dictionaries are frozen at the first batch that carries them
	dicts []*vector.Vector

	encoder  rows.Encoder
	rowsMain rows.RowTable
	rowsMini rows.RowTable
	table    hashtable.GroupTable
	hasher   hashtable.Hasher

	tempStack mpool.TempStack

	minibatchSize int
	hashes        []uint32
}

func newFastGrouper(keyTypes []types.Type, proc *process.Process) (*fastGrouper, error) {
	for _, typ := range keyTypes {
		if !typ.IsSupportedKey() {
			return nil, moerr.NewNYINoCtx("keys of type %s", typ)
		}
	}
	g := &fastGrouper{
		proc:          proc,
		keyTypes:      keyTypes,
		dicts:         make([]*vector.Vector, len(keyTypes)),
		hasher:        hashtable.NewHasher(proc.HwFlags),
		minibatchSize: minibatchSizeMin,
		hashes:        make([]uint32, minibatchSizeMax),
	}
	g.encoder.Init(keyTypes, 8, 8)
	g.rowsMain.Init(g.encoder.RowMeta())
	g.rowsMini.Init(g.encoder.RowMeta())
	if err := g.table.Init(proc.GetMPool()); err != nil {
		return nil, err
	}
	if err := g.tempStack.Init(proc.GetMPool(), 64*minibatchSizeMax); err != nil {
		g.table.Free()
		return nil, err
	}
	return g, nil
}

func (g *fastGrouper) NumGroups() uint32 {
	return uint32(g.rowsMain.Length())
}

func (g *fastGrouper) Reset() error {
	if g.tempStack.AllocatedSize() != 0 {
		return moerr.NewInvalidStateNoCtx("temp stack not empty before grouper reset")
	}
	g.rowsMain.Clean()
	g.rowsMini.Clean()
	g.table.Free()
	// dictionaries are kept: they are frozen for the grouper's lifespan
	return g.table.Init(g.proc.GetMPool())
}

func (g *fastGrouper) Free() {
	g.table.Free()
	g.tempStack.Free()
	g.rowsMain.Free()
	g.rowsMini.Free()
}

func (g *fastGrouper) Populate(bat *batch.Batch, offset, length int64) error {
	_, err := g.consumeImpl(bat, offset, length, modePopulate)
	return err
}

func (g *fastGrouper) Consume(bat *batch.Batch, offset, length int64) (*vector.Vector, error) {
	return g.consumeImpl(bat, offset, length, modeConsume)
}

func (g *fastGrouper) Lookup(bat *batch.Batch, offset, length int64) (*vector.Vector, error) {
	return g.consumeImpl(bat, offset, length, modeLookup)
}

func (g *fastGrouper) consumeImpl(bat *batch.Batch, offset, length int64, mode groupMode) (*vector.Vector, error) {
	if err := checkBatch(bat, g.keyTypes); err != nil {
		return nil, err
	}
	if err := checkAndCapLength(int64(bat.RowCount()), offset, &length); err != nil {
		return nil, err
	}
	mp := g.proc.GetMPool()

	for i, typ := range g.keyTypes {
		if !typ.IsDict() {
			continue
		}
		if g.dicts[i] != nil {
			if !g.dicts[i].Equals(bat.Vecs[i].Dict) {
				return nil, moerr.NewNYINoCtx("unifying differing dictionaries")
			}
		} else {
			g.dicts[i] = bat.Vecs[i].Dict
		}
	}

	// scalar arguments are broadcast before entering the mini-batch loop;
	// once one scalar is seen, every remaining scalar is materialized
	cols := make([]*vector.Vector, len(bat.Vecs))
	copy(cols, bat.Vecs)
	for i := range cols {
		if !cols[i].IsConst() {
			continue
		}
		for j := i; j < len(cols); j++ {
			if cols[j].IsConst() {
				expanded, err := cols[j].ExpandConst(mp)
				if err != nil {
					return nil, err
				}
				cols[j] = expanded
			}
		}
		break
	}

	n := int(length)
	start := int(offset)

	var out *vector.Vector
	var idsAll []uint32
	var popIds []uint32
	if mode == modePopulate {
		popIds = make([]uint32, minibatchSizeMax)
	} else {
		out = vector.New(types.New(types.T_uint32, 0))
		data, err := mp.Alloc(n * 4)
		if err != nil {
			return nil, err
		}
		out.Data = data
		out.SetLength(n)
		idsAll = types.DecodeSlice[uint32](data)
	}

	for startRow := 0; startRow < n; {
		bs := g.minibatchSize
		if n-startRow < bs {
			bs = n - startRow
		}
		var ids []uint32
		if mode == modePopulate {
			ids = popIds[:bs]
		} else {
			ids = idsAll[startRow : startRow+bs]
		}

		// encode
		g.rowsMini.Clean()
		g.encoder.PrepareEncodeSelected(start+startRow, bs, cols)
		g.encoder.EncodeSelected(&g.rowsMini, bs, nil)

		// hash
		for i := 0; i < bs; i++ {
			g.hashes[i] = g.hasher.HashRow(g.rowsMini.FixedRow(i), g.rowsMini.VarRow(i))
		}

		// map
		mark := g.tempStack.Save()
		var matchBv bitmap.Bitmap
		matchBv.InitWithWords(
			types.DecodeSlice[uint64](g.tempStack.AllocBytes(((bs+63)/64)*8)), int64(bs))
		slotHints := types.DecodeSlice[uint64](g.tempStack.AllocBytes(bs * 8))
		selA := types.DecodeSlice[uint16](g.tempStack.AllocBytes(bs * 2))
		selB := types.DecodeSlice[uint16](g.tempStack.AllocBytes(bs * 2))
		selC := types.DecodeSlice[uint16](g.tempStack.AllocBytes(bs * 2))
		selD := types.DecodeSlice[uint16](g.tempStack.AllocBytes(bs * 2))

		equal := func(cnt int, sel []uint16, ids []uint32, mismatch []uint16) int {
			nm := 0
			for _, i := range sel[:cnt] {
				if !g.rowsMini.RowsEqual(int(i), &g.rowsMain, int(ids[i])) {
					mismatch[nm] = i
					nm++
				}
			}
			return nm
		}

		g.table.EarlyFilter(bs, g.hashes, &matchBv, slotHints)
		g.table.FindBatch(bs, g.hashes, &matchBv, slotHints, ids, equal, selA, selB)

		if mode == modeLookup {
			// transfer the match bitvector into the output validity bitmap
			for i := 0; i < bs; i++ {
				if !matchBv.Contains(uint64(i)) {
					nulls.Add(out.Nsp, uint64(startRow+i))
					ids[i] = 0
				}
			}
		} else {
			newSel := matchBv.ToIndexesOfUnset(bs, selA[:0])
			if len(newSel) > 0 {
				appendF := func(cnt int, sel []uint16) error {
					g.rowsMain.AppendSelectionFrom(&g.rowsMini, cnt, sel)
					return nil
				}
				if err := g.table.MapNewKeys(newSel, g.hashes, ids, equal, appendF,
					slotHints, selB, selC, selD); err != nil {
					g.tempStack.Restore(mark)
					return nil, err
				}
			}
		}
		g.tempStack.Restore(mark)

		startRow += bs
		if g.minibatchSize < minibatchSizeMax {
			g.minibatchSize *= 2
			if g.minibatchSize > minibatchSizeMax {
				g.minibatchSize = minibatchSizeMax
			}
		}
	}

	if mode == modePopulate {
		return nil, nil
	}
	return out, nil
}

func (g *fastGrouper) GetUniques() (*batch.Batch, error) {
	mp := g.proc.GetMPool()
	n := g.rowsMain.Length()

	vecs := make([]*vector.Vector, len(g.keyTypes))
	decodeVecs := make([]*vector.Vector, len(g.keyTypes))
	for i, typ := range g.keyTypes {
		vec := vector.New(typ)
		vec.SetLength(n)
		vecs[i] = vec
		if typ.IsNullType() {
			// null columns short-circuit to a fresh null array
			for r := 0; r < n; r++ {
				nulls.Add(vec.Nsp, uint64(r))
			}
			continue
		}
		if typ.IsVarlen() {
			vec.Offsets = make([]uint32, n+1)
		} else {
			if err := vec.PreExtendFixed(n, mp); err != nil {
				return nil, err
			}
			vec.SetLength(n)
		}
		decodeVecs[i] = vec
	}

	for startRow := 0; startRow < n; startRow += minibatchSizeMax {
		bs := minibatchSizeMax
		if n-startRow < bs {
			bs = n - startRow
		}
		g.encoder.DecodeFixed(&g.rowsMain, startRow, bs, decodeVecs)
	}

	if !g.rowsMain.Meta().IsFixedOnly {
		for i, typ := range g.keyTypes {
			if decodeVecs[i] == nil || !typ.IsVarlen() {
				continue
			}
			vec := decodeVecs[i]
			// DecodeFixed left per-row lengths in Offsets[r+1]
			for r := 1; r <= n; r++ {
				vec.Offsets[r] += vec.Offsets[r-1]
			}
			area, err := mp.Alloc(int(vec.Offsets[n]))
			if err != nil {
				return nil, err
			}
			vec.Area = area
		}
		for startRow := 0; startRow < n; startRow += minibatchSizeMax {
			bs := minibatchSizeMax
			if n-startRow < bs {
				bs = n - startRow
			}
			g.encoder.DecodeVarlen(&g.rowsMain, startRow, bs, decodeVecs)
		}
	}

	for i, typ := range g.keyTypes {
		if typ.IsDict() {
			vecs[i].Dict = g.dicts[i]
		}
	}
	return batch.NewWithVectors(vecs, n), nil
}
