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
	"testing"

	"github.com/matrixorigin/grouper/pkg/common/moerr"
	"github.com/matrixorigin/grouper/pkg/common/mpool"
	"github.com/matrixorigin/grouper/pkg/container/nulls"
	"github.com/matrixorigin/grouper/pkg/container/types"
	"github.com/matrixorigin/grouper/pkg/container/vector"

	"github.com/stretchr/testify/require"
)

func newUint32Vector(vals []uint32, nullRows ...uint64) *vector.Vector {
	vec := vector.New(types.New(types.T_uint32, 0))
	nsp := nulls.Build(nullRows...)
	for i, v := range vals {
		_ = vector.AppendFixed(vec, v, nsp.Contains(uint64(i)), nil)
	}
	return vec
}

func TestMakeGroupings(t *testing.T) {
	ids := newUint32Vector([]uint32{2, 0, 2, 1, 0})
	g, err := MakeGroupings(ids, 3)
	require.NoError(t, err)
	require.Equal(t, []int32{0, 2, 3, 5}, g.Offsets)
	require.Equal(t, []int32{1, 4, 3, 0, 2}, g.Indices)
	require.Equal(t, 3, g.NumGroups())
}

func TestMakeGroupingsEmptyGroup(t *testing.T) {
	ids := newUint32Vector([]uint32{0, 2, 0})
	g, err := MakeGroupings(ids, 4)
	require.NoError(t, err)
	require.Equal(t, []int32{0, 2, 2, 3, 3}, g.Offsets)
	require.Equal(t, []int32{0, 2, 1}, g.Indices)
}

func TestMakeGroupingsNullIds(t *testing.T) {
	ids := newUint32Vector([]uint32{0, 1, 0}, 1)
	_, err := MakeGroupings(ids, 2)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))
}

func TestMakeGroupingsOutOfRangeId(t *testing.T) {
	ids := newUint32Vector([]uint32{0, 5})
	_, err := MakeGroupings(ids, 2)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))
}

func TestApplyGroupings(t *testing.T) {
	m := mpool.MustNewZero()
	ids := newUint32Vector([]uint32{2, 0, 2, 1, 0})
	g, err := MakeGroupings(ids, 3)
	require.NoError(t, err)

	vals := newInt32Vector([]int32{10, 11, 12, 13, 14})
	parts, err := ApplyGroupings(g, vals, m)
	require.NoError(t, err)
	require.Equal(t, 3, len(parts))
	require.Equal(t, int32(11), vector.GetFixedAt[int32](parts[0], 0))
	require.Equal(t, int32(14), vector.GetFixedAt[int32](parts[0], 1))
	require.Equal(t, int32(13), vector.GetFixedAt[int32](parts[1], 0))
	require.Equal(t, int32(10), vector.GetFixedAt[int32](parts[2], 0))
	require.Equal(t, int32(12), vector.GetFixedAt[int32](parts[2], 1))
}

func TestApplyGroupingsVarlen(t *testing.T) {
	m := mpool.MustNewZero()
	ids := newUint32Vector([]uint32{1, 0, 1})
	g, err := MakeGroupings(ids, 2)
	require.NoError(t, err)

	vals := newStringVector([]string{"x", "y", "z"})
	parts, err := ApplyGroupings(g, vals, m)
	require.NoError(t, err)
	require.Equal(t, "y", string(parts[0].GetBytesAt(0)))
	require.Equal(t, "x", string(parts[1].GetBytesAt(0)))
	require.Equal(t, "z", string(parts[1].GetBytesAt(1)))
}

func TestApplyGroupingsLengthMismatch(t *testing.T) {
	m := mpool.MustNewZero()
	ids := newUint32Vector([]uint32{0, 1})
	g, err := MakeGroupings(ids, 2)
	require.NoError(t, err)

	vals := newInt32Vector([]int32{1, 2, 3})
	_, err = ApplyGroupings(g, vals, m)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))
}
