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

package bitmap

import (
	"fmt"
	"math/bits"
)

// In case len is not a multiple of 64, the code below assumes the trailing
// bits of the last word are zero.

type Bitmap struct {
	len  int64
	data []uint64
}

type BitmapIterator struct {
	i  uint64
	bm *Bitmap
}

func New() Bitmap {
	return Bitmap{}
}

func (n *Bitmap) InitWithSize(len int64) {
	n.len = len
	n.data = make([]uint64, (len+63)/64)
}

// InitWithWords adopts an externally owned word buffer, typically scratch
// from a temp stack. The words must be zeroed by the caller.
func (n *Bitmap) InitWithWords(words []uint64, len int64) {
	n.len = len
	n.data = words
}

func (n *Bitmap) InitWith(other *Bitmap) {
	n.len = other.len
	n.data = append([]uint64(nil), other.data...)
}

func (n *Bitmap) Clone() *Bitmap {
	if n == nil {
		return nil
	}
	var ret Bitmap
	ret.InitWith(n)
	return &ret
}

func (n *Bitmap) Len() int64 {
	return n.len
}

func (n *Bitmap) Reset() {
	for i := range n.data {
		n.data[i] = 0
	}
}

func (n *Bitmap) IsEmpty() bool {
	for _, w := range n.data {
		if w != 0 {
			return false
		}
	}
	return true
}

func (n *Bitmap) Add(row uint64) {
	n.data[row>>6] |= 1 << (row & 63)
}

func (n *Bitmap) AddMany(rows []uint64) {
	for _, row := range rows {
		n.Add(row)
	}
}

func (n *Bitmap) Remove(row uint64) {
	if row < uint64(n.len) {
		n.data[row>>6] &^= 1 << (row & 63)
	}
}

func (n *Bitmap) Contains(row uint64) bool {
	return n.data[row>>6]&(1<<(row&63)) != 0
}

func (n *Bitmap) TryExpandWithSize(size int64) {
	if size <= n.len {
		return
	}
	need := int((size + 63) / 64)
	if need > len(n.data) {
		data := make([]uint64, need)
		copy(data, n.data)
		n.data = data
	}
	n.len = size
}

func (n *Bitmap) Or(m *Bitmap) {
	n.TryExpandWithSize(m.len)
	for i := range m.data {
		n.data[i] |= m.data[i]
	}
}

func (n *Bitmap) IsSame(m *Bitmap) bool {
	if n.len != m.len || len(n.data) != len(m.data) {
		return false
	}
	for i := range n.data {
		if n.data[i] != m.data[i] {
			return false
		}
	}
	return true
}

func (n *Bitmap) Count() int {
	var cnt int
	for _, w := range n.data {
		cnt += bits.OnesCount64(w)
	}
	return cnt
}

// Words exposes the backing words; the row-table null sideband addresses
// bits through it directly.
func (n *Bitmap) Words() []uint64 {
	return n.data
}

// ToIndexes appends the positions of all set bits in [0, limit) to sels, in
// ascending order, and returns the extended slice. This is the
// bits-to-indexes step of the fast grouper's mini-batch loop.
func (n *Bitmap) ToIndexes(limit int, sels []uint16) []uint16 {
	for i, w := range n.data {
		base := i << 6
		if base >= limit {
			break
		}
		for w != 0 {
			t := bits.TrailingZeros64(w)
			pos := base + t
			if pos >= limit {
				return sels
			}
			sels = append(sels, uint16(pos))
			w &= w - 1
		}
	}
	return sels
}

// ToIndexesOfUnset appends the positions of all clear bits in [0, limit).
func (n *Bitmap) ToIndexesOfUnset(limit int, sels []uint16) []uint16 {
	for i := 0; i < limit; i++ {
		if !n.Contains(uint64(i)) {
			sels = append(sels, uint16(i))
		}
	}
	return sels
}

func (n *Bitmap) String() string {
	return fmt.Sprintf("bitmap<%d:%d set>", n.len, n.Count())
}

func (n *Bitmap) Iterator() *BitmapIterator {
	return &BitmapIterator{i: 0, bm: n}
}

func (itr *BitmapIterator) HasNext() bool {
	for ; itr.i < uint64(itr.bm.len); itr.i++ {
		if itr.bm.Contains(itr.i) {
			return true
		}
	}
	return false
}

func (itr *BitmapIterator) Next() uint64 {
	row := itr.i
	itr.i++
	return row
}
