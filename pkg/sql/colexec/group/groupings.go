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
	"github.com/matrixorigin/grouper/pkg/common/moerr"
	"github.com/matrixorigin/grouper/pkg/common/mpool"
	"github.com/matrixorigin/grouper/pkg/container/nulls"
	"github.com/matrixorigin/grouper/pkg/container/types"
	"github.com/matrixorigin/grouper/pkg/container/vector"
)

// Groupings lists, for every group, the input row indices belonging to it
// in ascending order: group g owns Indices[Offsets[g]:Offsets[g+1]].
type Groupings struct {
	Offsets []int32
	Indices []int32
}

func (g *Groupings) NumGroups() int {
	return len(g.Offsets) - 1
}

// MakeGroupings inverts an id mapping with a counting sort. The ids vector
// must be T_uint32 and free of nulls.
func MakeGroupings(ids *vector.Vector, numGroups uint32) (*Groupings, error) {
	if ids.Typ.Oid != types.T_uint32 {
		return nil, moerr.NewInvalidInputNoCtx("MakeGroupings with ids of type %s", ids.Typ)
	}
	if nulls.Any(ids.GetNulls()) {
		return nil, moerr.NewInvalidInputNoCtx("MakeGroupings with null ids")
	}
	values := types.DecodeSlice[uint32](ids.Data)[:ids.Length()]

	offsets := make([]int32, numGroups+1)
	for _, id := range values {
		if id >= numGroups {
			return nil, moerr.NewInvalidInputNoCtx("MakeGroupings with id %d out of %d groups", id, numGroups)
		}
		offsets[id]++
	}
	var length int32
	for id := uint32(0); id < numGroups; id++ {
		count := offsets[id]
		offsets[id] = length
		length += count
	}
	offsets[numGroups] = length

	cursors := make([]int32, numGroups)
	copy(cursors, offsets[:numGroups])
	indices := make([]int32, len(values))
	for i, id := range values {
		indices[cursors[id]] = int32(i)
		cursors[id]++
	}

	return &Groupings{Offsets: offsets, Indices: indices}, nil
}

// ApplyGroupings permutes a column into group-major order, one vector per
// group holding that group's values in ascending row order.
func ApplyGroupings(g *Groupings, vec *vector.Vector, m *mpool.MPool) ([]*vector.Vector, error) {
	if int(g.Offsets[len(g.Offsets)-1]) != vec.Length() {
		return nil, moerr.NewInvalidInputNoCtx(
			"ApplyGroupings with %d rows against groupings of %d", vec.Length(), g.Offsets[len(g.Offsets)-1])
	}
	out := make([]*vector.Vector, g.NumGroups())
	for grp := 0; grp < g.NumGroups(); grp++ {
		part := vector.New(vec.Typ)
		part.Dict = vec.Dict
		for _, row := range g.Indices[g.Offsets[grp]:g.Offsets[grp+1]] {
			isNull := vec.IsNull(uint64(row))
			if vec.Typ.IsVarlen() {
				var val []byte
				if !isNull {
					val = vec.GetBytesAt(int(row))
				}
				if err := vector.AppendBytes(part, val, isNull, m); err != nil {
					return nil, err
				}
				continue
			}
			if vec.Typ.IsNullType() {
				nulls.Add(part.Nsp, uint64(part.Length()))
				part.SetLength(part.Length() + 1)
				continue
			}
			if isNull {
				nulls.Add(part.Nsp, uint64(part.Length()))
				part.Data = append(part.Data, make([]byte, vec.Typ.TypeSize())...)
			} else {
				part.Data = append(part.Data, vec.RawFixedAt(int(row))...)
			}
			part.SetLength(part.Length() + 1)
		}
		out[grp] = part
	}
	return out, nil
}
