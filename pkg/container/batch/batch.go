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

package batch

import (
	"github.com/matrixorigin/grouper/pkg/common/mpool"
	"github.com/matrixorigin/grouper/pkg/container/vector"
)

// Batch is an ordered tuple of equal length columns plus a row count.
type Batch struct {
	Vecs []*vector.Vector
	Cnt  int
}

func New(n int) *Batch {
	return &Batch{Vecs: make([]*vector.Vector, n)}
}

func NewWithVectors(vecs []*vector.Vector, cnt int) *Batch {
	return &Batch{Vecs: vecs, Cnt: cnt}
}

func (bat *Batch) RowCount() int {
	return bat.Cnt
}

func (bat *Batch) SetRowCount(cnt int) {
	bat.Cnt = cnt
}

func (bat *Batch) VectorCount() int {
	return len(bat.Vecs)
}

func (bat *Batch) Clean(m *mpool.MPool) {
	for _, vec := range bat.Vecs {
		if vec != nil {
			vec.Free(m)
		}
	}
	bat.Vecs = nil
	bat.Cnt = 0
}
