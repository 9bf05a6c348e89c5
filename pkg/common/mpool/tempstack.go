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
	"github.com/matrixorigin/grouper/pkg/common/moerr"
)

// TempStack is a bump allocator for scratch buffers whose lifetime is a
// single operation. Callers Save the current mark, allocate, and Restore
// the mark before returning; AllocatedSize must be zero between operations.
type TempStack struct {
	m   *MPool
	buf []byte
	top int
}

func (ts *TempStack) Init(m *MPool, size int) error {
	buf, err := m.Alloc(size)
	if err != nil {
		return err
	}
	ts.m = m
	ts.buf = buf
	ts.top = 0
	return nil
}

func (ts *TempStack) Free() {
	if ts.m != nil {
		ts.m.Free(ts.buf)
	}
	ts.buf, ts.top = nil, 0
}

// AllocatedSize returns the number of scratch bytes currently outstanding.
func (ts *TempStack) AllocatedSize() int {
	return ts.top
}

func (ts *TempStack) Save() int {
	return ts.top
}

func (ts *TempStack) Restore(mark int) {
	if mark > ts.top {
		panic(moerr.NewInternalErrorNoCtx("temp stack restore above top"))
	}
	ts.top = mark
}

const tempStackAlign = 8

// AllocBytes returns a zeroed scratch buffer of n bytes. The buffer is only
// valid until the enclosing Restore.
func (ts *TempStack) AllocBytes(n int) []byte {
	need := (n + tempStackAlign - 1) &^ (tempStackAlign - 1)
	if ts.top+need > len(ts.buf) {
		// the stack is sized for the mini-batch maximum at Init time
		panic(moerr.NewInternalErrorNoCtx("temp stack overflow: %d + %d > %d",
			ts.top, need, len(ts.buf)))
	}
	bs := ts.buf[ts.top : ts.top+n : ts.top+n]
	for i := range bs {
		bs[i] = 0
	}
	ts.top += need
	return bs
}
