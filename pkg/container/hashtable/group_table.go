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

package hashtable

import (
	"unsafe"

	"github.com/matrixorigin/grouper/pkg/common/bitmap"
	"github.com/matrixorigin/grouper/pkg/common/moerr"
	"github.com/matrixorigin/grouper/pkg/common/mpool"
	"github.com/matrixorigin/grouper/pkg/logutil"
)

const (
	kInitialCellCnt        = 1 << 10
	kLoadFactorNumerator   = 1
	kLoadFactorDenominator = 2
)

// GroupCell stores a 32-bit hash fragment and a row index into the owning
// row table, biased by one so that zero means empty.
type GroupCell struct {
	Hash   uint32
	Mapped uint32
}

var cellSize = int(unsafe.Sizeof(GroupCell{}))

// EqualFunc compares the mini-batch rows selected by sel against the main
// row table rows named by ids (ids is indexed by mini-batch row). It
// writes the mini-batch row indices that mismatched into mismatch and
// returns their count. The table itself never inspects key bytes.
type EqualFunc func(n int, sel []uint16, ids []uint32, mismatch []uint16) int

// AppendFunc appends the mini-batch rows selected by sel to the main row
// table, in selection order.
type AppendFunc func(n int, sel []uint16) error

// GroupTable is an open-addressed map from row hash to row-table index.
// Key equality is externalized: the table only ever matches hash
// fragments and delegates resolution to an EqualFunc.
type GroupTable struct {
	m *mpool.MPool

	cellCnt     uint64
	cellCntMask uint64
	elemCnt     uint64
	maxElemCnt  uint64

	rawData []byte
	cells   []GroupCell
}

func (ht *GroupTable) Init(m *mpool.MPool) error {
	ht.m = m
	ht.elemCnt = 0
	return ht.allocate(kInitialCellCnt)
}

func (ht *GroupTable) allocate(cellCnt uint64) error {
	rawData, err := ht.m.Alloc(int(cellCnt) * cellSize)
	if err != nil {
		return err
	}
	ht.rawData = rawData
	ht.cells = unsafe.Slice((*GroupCell)(unsafe.Pointer(&rawData[0])), cellCnt)
	ht.cellCnt = cellCnt
	ht.cellCntMask = cellCnt - 1
	ht.maxElemCnt = cellCnt * kLoadFactorNumerator / kLoadFactorDenominator
	return nil
}

func (ht *GroupTable) Free() {
	if ht.m != nil {
		ht.m.Free(ht.rawData)
	}
	ht.rawData, ht.cells = nil, nil
	ht.cellCnt, ht.cellCntMask, ht.elemCnt, ht.maxElemCnt = 0, 0, 0, 0
}

// Cardinality returns the number of distinct rows mapped so far.
func (ht *GroupTable) Cardinality() uint64 {
	return ht.elemCnt
}

// EarlyFilter decides, per probe, whether a match is possible. A set bit
// means some cell along the probe path carries an equal hash fragment;
// slotHints then points at that cell. A clear bit is definitive: the probe
// hit an empty cell first, and slotHints points at it. Never
// false-negative.
func (ht *GroupTable) EarlyFilter(n int, hashes []uint32, matchBv *bitmap.Bitmap, slotHints []uint64) {
	for i := 0; i < n; i++ {
		h := hashes[i]
		for idx := uint64(h) & ht.cellCntMask; true; idx = (idx + 1) & ht.cellCntMask {
			cell := &ht.cells[idx]
			if cell.Mapped == 0 {
				slotHints[i] = idx
				break
			}
			if cell.Hash == h {
				matchBv.Add(uint64(i))
				slotHints[i] = idx
				break
			}
		}
	}
}

// FindBatch resolves the candidates produced by EarlyFilter. On a
// confirmed match ids[i] holds the row index; on a definitive miss the
// bit in matchBv is cleared. sel and mismatch are caller scratch of at
// least n entries each.
func (ht *GroupTable) FindBatch(n int, hashes []uint32, matchBv *bitmap.Bitmap, slotHints []uint64,
	ids []uint32, equal EqualFunc, sel, mismatch []uint16) {
	sel = matchBv.ToIndexes(n, sel[:0])
	for len(sel) > 0 {
		for _, i := range sel {
			ids[i] = ht.cells[slotHints[i]].Mapped - 1
		}
		nm := equal(len(sel), sel, ids, mismatch)
		sel = sel[:0]
		for _, i := range mismatch[:nm] {
			// reprobe past the mismatching cell
			if ht.probeFrom(slotHints[i]+1, hashes[i], &slotHints[i]) {
				sel = append(sel, i)
			} else {
				matchBv.Remove(uint64(i))
			}
		}
	}
}

// probeFrom advances the probe to the next cell with an equal hash
// fragment. It returns false after storing the empty cell's index when the
// probe path ends.
func (ht *GroupTable) probeFrom(start uint64, hash uint32, hint *uint64) bool {
	for idx := start & ht.cellCntMask; true; idx = (idx + 1) & ht.cellCntMask {
		cell := &ht.cells[idx]
		if cell.Mapped == 0 {
			*hint = idx
			return false
		}
		if cell.Hash == hash {
			*hint = idx
			return true
		}
	}
	return false
}

// MapNewKeys assigns dense row indices to the mini-batch rows in sel, all
// of which failed FindBatch. New rows are appended to the main row table
// through appendF before any equality resolution, so that the second
// occurrence of an unseen key within the same call resolves to the index
// the first occurrence just received and never allocates a new one.
// slotHints is indexed by mini-batch row, like hashes and ids; toAppend,
// toCompare and mismatch are caller scratch of at least len(sel) entries.
func (ht *GroupTable) MapNewKeys(sel []uint16, hashes []uint32, ids []uint32,
	equal EqualFunc, appendF AppendFunc,
	slotHints []uint64, toAppend, toCompare, mismatch []uint16) error {
	if err := ht.ResizeOnDemand(uint64(len(sel))); err != nil {
		return err
	}
	for _, i := range sel {
		slotHints[i] = uint64(hashes[i]) & ht.cellCntMask
	}

	unresolved := sel
	for len(unresolved) > 0 {
		toAppend, toCompare = toAppend[:0], toCompare[:0]
		for _, i := range unresolved {
			if ht.probeFrom(slotHints[i], hashes[i], &slotHints[i]) {
				ids[i] = ht.cells[slotHints[i]].Mapped - 1
				toCompare = append(toCompare, i)
				continue
			}
			id := uint32(ht.elemCnt)
			ht.elemCnt++
			ht.cells[slotHints[i]] = GroupCell{Hash: hashes[i], Mapped: id + 1}
			ids[i] = id
			toAppend = append(toAppend, i)
		}
		if len(toAppend) > 0 {
			if err := appendF(len(toAppend), toAppend); err != nil {
				return err
			}
		}
		unresolved = unresolved[:0]
		if len(toCompare) > 0 {
			nm := equal(len(toCompare), toCompare, ids, mismatch)
			for _, i := range mismatch[:nm] {
				slotHints[i]++
				unresolved = append(unresolved, i)
			}
		}
	}
	return nil
}

// ResizeOnDemand grows the table ahead of up to n insertions so the load
// factor stays below the threshold. Growing rearranges every cell, which
// invalidates outstanding slot hints; it therefore only runs at the top of
// MapNewKeys.
func (ht *GroupTable) ResizeOnDemand(n uint64) error {
	targetCnt := ht.elemCnt + n
	if targetCnt <= ht.maxElemCnt {
		return nil
	}

	newCellCnt := ht.cellCnt << 1
	for newCellCnt*kLoadFactorNumerator/kLoadFactorDenominator < targetCnt {
		newCellCnt <<= 1
	}
	logutil.Debugf("group table resize: %d -> %d cells, %d elems", ht.cellCnt, newCellCnt, ht.elemCnt)

	oldCells := ht.cells
	oldRawData := ht.rawData
	if err := ht.allocate(newCellCnt); err != nil {
		return err
	}
	for i := range oldCells {
		cell := &oldCells[i]
		if cell.Mapped != 0 {
			*ht.findEmptyCell(cell.Hash) = *cell
		}
	}
	ht.m.Free(oldRawData)
	return nil
}

func (ht *GroupTable) findEmptyCell(hash uint32) *GroupCell {
	for idx := uint64(hash) & ht.cellCntMask; true; idx = (idx + 1) & ht.cellCntMask {
		cell := &ht.cells[idx]
		if cell.Mapped == 0 {
			return cell
		}
	}
	return nil
}

type GroupTableIterator struct {
	table *GroupTable
	pos   uint64
}

func (it *GroupTableIterator) Init(ht *GroupTable) {
	it.table = ht
}

func (it *GroupTableIterator) Next() (*GroupCell, error) {
	for it.pos < it.table.cellCnt {
		cell := &it.table.cells[it.pos]
		it.pos++
		if cell.Mapped != 0 {
			return cell, nil
		}
	}
	return nil, moerr.NewInternalErrorNoCtx("group table iterator out of range")
}
