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

package mpool

import (
	"sync/atomic"

	"github.com/matrixorigin/grouper/pkg/common/moerr"
)

// NoCap means the pool has no capacity limit.
const NoCap int64 = -1

// MPool is a capacity accounted allocator. All long lived buffers of the
// group-by engine (row tables, hash table cells, output vectors) are
// allocated from an MPool so that peak memory is observable and bounded.
type MPool struct {
	name string
	cap  int64
	curr int64
}

func NewMPool(name string, cap int64) *MPool {
	return &MPool{name: name, cap: cap}
}

// MustNewZero returns an unbounded pool. Used by tests and by callers that
// do their accounting elsewhere.
func MustNewZero() *MPool {
	return NewMPool("zero", NoCap)
}

func (m *MPool) Name() string {
	return m.name
}

// CurrNB returns the number of bytes currently allocated from the pool.
func (m *MPool) CurrNB() int64 {
	return atomic.LoadInt64(&m.curr)
}

func (m *MPool) Alloc(sz int) ([]byte, error) {
	if sz < 0 {
		return nil, moerr.NewInvalidInputNoCtx("mpool alloc size %d", sz)
	}
	if sz == 0 {
		return nil, nil
	}
	curr := atomic.AddInt64(&m.curr, int64(sz))
	if m.cap != NoCap && curr > m.cap {
		atomic.AddInt64(&m.curr, -int64(sz))
		return nil, moerr.NewOOMNoCtx()
	}
	return make([]byte, sz), nil
}

// Realloc grows bs to at least sz bytes, keeping its contents.
func (m *MPool) Realloc(bs []byte, sz int) ([]byte, error) {
	if sz <= cap(bs) {
		return bs[:sz], nil
	}
	nbs, err := m.Alloc(sz)
	if err != nil {
		return nil, err
	}
	copy(nbs, bs)
	m.Free(bs)
	return nbs, nil
}

func (m *MPool) Free(bs []byte) {
	if bs == nil {
		return
	}
	atomic.AddInt64(&m.curr, -int64(cap(bs)))
}
