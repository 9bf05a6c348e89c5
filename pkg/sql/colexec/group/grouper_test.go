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
	"fmt"
	"testing"

	"github.com/matrixorigin/grouper/pkg/common/moerr"
	"github.com/matrixorigin/grouper/pkg/container/batch"
	"github.com/matrixorigin/grouper/pkg/container/nulls"
	"github.com/matrixorigin/grouper/pkg/container/types"
	"github.com/matrixorigin/grouper/pkg/container/vector"
	"github.com/matrixorigin/grouper/pkg/vm/process"

	"github.com/stretchr/testify/require"
)

func newInt32Vector(vals []int32, nullRows ...uint64) *vector.Vector {
	vec := vector.New(types.New(types.T_int32, 0))
	nsp := nulls.Build(nullRows...)
	for i, v := range vals {
		_ = vector.AppendFixed(vec, v, nsp.Contains(uint64(i)), nil)
	}
	return vec
}

func newStringVector(vals []string, nullRows ...uint64) *vector.Vector {
	vec := vector.New(types.New(types.T_varchar, 0))
	nsp := nulls.Build(nullRows...)
	for i, v := range vals {
		_ = vector.AppendBytes(vec, []byte(v), nsp.Contains(uint64(i)), nil)
	}
	return vec
}

func newBoolVector(vals []bool, nullRows ...uint64) *vector.Vector {
	vec := vector.New(types.New(types.T_bool, 0))
	nsp := nulls.Build(nullRows...)
	for i, v := range vals {
		var b uint8
		if v {
			b = 1
		}
		_ = vector.AppendFixed(vec, b, nsp.Contains(uint64(i)), nil)
	}
	return vec
}

func idsOf(t *testing.T, vec *vector.Vector) []uint32 {
	t.Helper()
	require.Equal(t, types.T_uint32, vec.Typ.Oid)
	return types.DecodeSlice[uint32](vec.Data)[:vec.Length()]
}

// both implementations must satisfy every grouper contract
func forEachGrouper(t *testing.T, keyTypes []types.Type, fn func(t *testing.T, g Grouper)) {
	t.Helper()
	proc := process.NewTestProcess()
	if canUseFast(keyTypes) {
		g, err := newFastGrouper(keyTypes, proc)
		require.NoError(t, err)
		t.Run("fast", func(t *testing.T) { fn(t, g) })
		g.Free()
	}
	g, err := newGenericGrouper(keyTypes, proc)
	require.NoError(t, err)
	t.Run("generic", func(t *testing.T) { fn(t, g) })
	g.Free()
}

func TestConsumeSingleInt32(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_int32, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		bat := batch.NewWithVectors([]*vector.Vector{newInt32Vector([]int32{5, 5, 7, 5})}, 4)
		idsVec, err := g.Consume(bat, 0, -1)
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 0, 1, 0}, idsOf(t, idsVec))
		require.Equal(t, uint32(2), g.NumGroups())

		uniques, err := g.GetUniques()
		require.NoError(t, err)
		require.Equal(t, 2, uniques.RowCount())
		require.Equal(t, int32(5), vector.GetFixedAt[int32](uniques.Vecs[0], 0))
		require.Equal(t, int32(7), vector.GetFixedAt[int32](uniques.Vecs[0], 1))
	})
}

func TestConsumeStringInt32(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_varchar, 0), types.New(types.T_int32, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		bat := batch.NewWithVectors([]*vector.Vector{
			newStringVector([]string{"a", "a", "b", "a"}),
			newInt32Vector([]int32{1, 1, 1, 2}),
		}, 4)
		idsVec, err := g.Consume(bat, 0, -1)
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 0, 1, 2}, idsOf(t, idsVec))
		require.Equal(t, uint32(3), g.NumGroups())

		uniques, err := g.GetUniques()
		require.NoError(t, err)
		require.Equal(t, 3, uniques.RowCount())
		require.Equal(t, "a", string(uniques.Vecs[0].GetBytesAt(0)))
		require.Equal(t, "b", string(uniques.Vecs[0].GetBytesAt(1)))
		require.Equal(t, "a", string(uniques.Vecs[0].GetBytesAt(2)))
		require.Equal(t, int32(1), vector.GetFixedAt[int32](uniques.Vecs[1], 0))
		require.Equal(t, int32(1), vector.GetFixedAt[int32](uniques.Vecs[1], 1))
		require.Equal(t, int32(2), vector.GetFixedAt[int32](uniques.Vecs[1], 2))
	})
}

func TestConsumeNullableInt32(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_int32, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		bat := batch.NewWithVectors([]*vector.Vector{
			newInt32Vector([]int32{0, 3, 0, 3}, 0, 2),
		}, 4)
		idsVec, err := g.Consume(bat, 0, -1)
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 1, 0, 1}, idsOf(t, idsVec))
		require.Equal(t, uint32(2), g.NumGroups())

		uniques, err := g.GetUniques()
		require.NoError(t, err)
		require.True(t, uniques.Vecs[0].IsNull(0))
		require.False(t, uniques.Vecs[0].IsNull(1))
		require.Equal(t, int32(3), vector.GetFixedAt[int32](uniques.Vecs[0], 1))
	})
}

func TestNullDistinctFromZero(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_int32, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		bat := batch.NewWithVectors([]*vector.Vector{
			newInt32Vector([]int32{0, 0, 0}, 1),
		}, 3)
		idsVec, err := g.Consume(bat, 0, -1)
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 1, 0}, idsOf(t, idsVec))
	})
}

func TestLookup(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_int32, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		bat := batch.NewWithVectors([]*vector.Vector{newInt32Vector([]int32{5, 5, 7, 5})}, 4)
		_, err := g.Consume(bat, 0, -1)
		require.NoError(t, err)

		probe := batch.NewWithVectors([]*vector.Vector{newInt32Vector([]int32{7, 9, 5})}, 3)
		idsVec, err := g.Lookup(probe, 0, -1)
		require.NoError(t, err)
		ids := idsOf(t, idsVec)
		require.Equal(t, uint32(1), ids[0])
		require.Equal(t, uint32(0), ids[2])
		require.False(t, idsVec.IsNull(0))
		require.True(t, idsVec.IsNull(1))
		require.False(t, idsVec.IsNull(2))

		// lookup never inserts
		require.Equal(t, uint32(2), g.NumGroups())
	})
}

func TestLookupBeforeAnyConsume(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_int32, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		probe := batch.NewWithVectors([]*vector.Vector{newInt32Vector([]int32{1, 2})}, 2)
		idsVec, err := g.Lookup(probe, 0, -1)
		require.NoError(t, err)
		require.True(t, idsVec.IsNull(0))
		require.True(t, idsVec.IsNull(1))
	})
}

func TestPopulateThenLookup(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_int32, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		bat := batch.NewWithVectors([]*vector.Vector{newInt32Vector([]int32{10, 20, 10})}, 3)
		require.NoError(t, g.Populate(bat, 0, -1))
		require.Equal(t, uint32(2), g.NumGroups())

		probe := batch.NewWithVectors([]*vector.Vector{newInt32Vector([]int32{20, 30})}, 2)
		idsVec, err := g.Lookup(probe, 0, -1)
		require.NoError(t, err)
		require.Equal(t, uint32(1), idsOf(t, idsVec)[0])
		require.True(t, idsVec.IsNull(1))
	})
}

func TestConsumeWindow(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_int32, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		bat := batch.NewWithVectors([]*vector.Vector{newInt32Vector([]int32{9, 5, 5, 7, 9})}, 5)
		idsVec, err := g.Consume(bat, 1, 3)
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 0, 1}, idsOf(t, idsVec))
		require.Equal(t, uint32(2), g.NumGroups())

		_, err = g.Consume(bat, -1, 2)
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))

		_, err = g.Consume(bat, 4, 3)
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))
	})
}

func TestConsumeAcrossBatches(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_varchar, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		b1 := batch.NewWithVectors([]*vector.Vector{newStringVector([]string{"x", "y", "x"})}, 3)
		idsVec, err := g.Consume(b1, 0, -1)
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 1, 0}, idsOf(t, idsVec))

		b2 := batch.NewWithVectors([]*vector.Vector{newStringVector([]string{"z", "y"})}, 2)
		idsVec, err = g.Consume(b2, 0, -1)
		require.NoError(t, err)
		require.Equal(t, []uint32{2, 1}, idsOf(t, idsVec))
		require.Equal(t, uint32(3), g.NumGroups())
	})
}

func TestReset(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_int32, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		bat := batch.NewWithVectors([]*vector.Vector{newInt32Vector([]int32{1, 2, 3})}, 3)
		_, err := g.Consume(bat, 0, -1)
		require.NoError(t, err)
		require.Equal(t, uint32(3), g.NumGroups())

		require.NoError(t, g.Reset())
		require.Equal(t, uint32(0), g.NumGroups())

		idsVec, err := g.Consume(bat, 0, -1)
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 1, 2}, idsOf(t, idsVec))
	})
}

func TestBooleanKeys(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_bool, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		bat := batch.NewWithVectors([]*vector.Vector{
			newBoolVector([]bool{true, false, false, true}, 2),
		}, 4)
		idsVec, err := g.Consume(bat, 0, -1)
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 1, 2, 0}, idsOf(t, idsVec))
	})
}

func TestNullTypeKeys(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_any, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		vec := vector.New(types.New(types.T_any, 0))
		vec.SetLength(4)
		bat := batch.NewWithVectors([]*vector.Vector{vec}, 4)
		idsVec, err := g.Consume(bat, 0, -1)
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 0, 0, 0}, idsOf(t, idsVec))
		require.Equal(t, uint32(1), g.NumGroups())

		uniques, err := g.GetUniques()
		require.NoError(t, err)
		require.Equal(t, 1, uniques.RowCount())
		require.True(t, uniques.Vecs[0].IsNull(0))
	})
}

func TestZeroKeyColumns(t *testing.T) {
	proc := process.NewTestProcess()
	g, err := New(nil, proc)
	require.NoError(t, err)
	defer g.Free()

	bat := batch.NewWithVectors(nil, 3)
	idsVec, err := g.Consume(bat, 0, -1)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 0, 0}, idsOf(t, idsVec))
	require.Equal(t, uint32(1), g.NumGroups())
}

func TestSchemaMismatch(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_int32, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		bat := batch.NewWithVectors([]*vector.Vector{newStringVector([]string{"a"})}, 1)
		_, err := g.Consume(bat, 0, -1)
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))

		bat = batch.NewWithVectors([]*vector.Vector{
			newInt32Vector([]int32{1}), newInt32Vector([]int32{2}),
		}, 1)
		_, err = g.Consume(bat, 0, -1)
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))
	})
}

func TestDictionaryKeys(t *testing.T) {
	dictValues := newStringVector([]string{"red", "green", "blue"})
	keyTypes := []types.Type{types.New(types.T_dict, 1)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		vec := vector.New(types.New(types.T_dict, 1))
		vec.Data = []byte{2, 0, 2, 1}
		vec.SetLength(4)
		vec.Dict = dictValues
		bat := batch.NewWithVectors([]*vector.Vector{vec}, 4)

		idsVec, err := g.Consume(bat, 0, -1)
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 1, 0, 2}, idsOf(t, idsVec))

		uniques, err := g.GetUniques()
		require.NoError(t, err)
		require.Equal(t, 3, uniques.RowCount())
		require.Equal(t, []byte{2, 0, 1}, uniques.Vecs[0].Data[:3])
		require.True(t, dictValues.Equals(uniques.Vecs[0].Dict))

		// a second batch with an equal dictionary is fine
		vec2 := vector.New(types.New(types.T_dict, 1))
		vec2.Data = []byte{1}
		vec2.SetLength(1)
		vec2.Dict = newStringVector([]string{"red", "green", "blue"})
		_, err = g.Consume(batch.NewWithVectors([]*vector.Vector{vec2}, 1), 0, -1)
		require.NoError(t, err)

		// a differing dictionary is rejected
		vec3 := vector.New(types.New(types.T_dict, 1))
		vec3.Data = []byte{0}
		vec3.SetLength(1)
		vec3.Dict = newStringVector([]string{"cyan", "green", "blue"})
		_, err = g.Consume(batch.NewWithVectors([]*vector.Vector{vec3}, 1), 0, -1)
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrNYI))

		// dictionaries survive a reset
		require.NoError(t, g.Reset())
		_, err = g.Consume(batch.NewWithVectors([]*vector.Vector{vec3}, 1), 0, -1)
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrNYI))
	})
}

func TestScalarBroadcast(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_int32, 0), types.New(types.T_varchar, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		bat := batch.NewWithVectors([]*vector.Vector{
			vector.NewConstFixed(types.New(types.T_int32, 0), int32(7), 3),
			newStringVector([]string{"a", "b", "a"}),
		}, 3)
		idsVec, err := g.Consume(bat, 0, -1)
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 1, 0}, idsOf(t, idsVec))

		uniques, err := g.GetUniques()
		require.NoError(t, err)
		require.Equal(t, int32(7), vector.GetFixedAt[int32](uniques.Vecs[0], 0))
		require.Equal(t, int32(7), vector.GetFixedAt[int32](uniques.Vecs[0], 1))
	})
}

func TestManyGroupsAcrossMinibatches(t *testing.T) {
	// enough distinct groups to force the hash table past its initial
	// capacity, enough rows to cross several mini-batches
	const rowCnt = 5000
	const distinct = 997
	keyTypes := []types.Type{types.New(types.T_int64, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		vec := vector.New(types.New(types.T_int64, 0))
		for i := 0; i < rowCnt; i++ {
			require.NoError(t, vector.AppendFixed(vec, int64(i%distinct), false, nil))
		}
		bat := batch.NewWithVectors([]*vector.Vector{vec}, rowCnt)
		idsVec, err := g.Consume(bat, 0, -1)
		require.NoError(t, err)
		ids := idsOf(t, idsVec)
		require.Equal(t, uint32(distinct), g.NumGroups())

		// equality law: same key iff same id
		for i := 0; i < rowCnt; i++ {
			require.Equal(t, ids[i%distinct], ids[i], "row %d", i)
		}

		// round trip through the uniques
		uniques, err := g.GetUniques()
		require.NoError(t, err)
		require.Equal(t, distinct, uniques.RowCount())
		for i := 0; i < rowCnt; i++ {
			require.Equal(t, int64(i%distinct),
				vector.GetFixedAt[int64](uniques.Vecs[0], int(ids[i])))
		}
	})
}

func TestVarlenManyGroups(t *testing.T) {
	const rowCnt = 3000
	const distinct = 61
	keyTypes := []types.Type{types.New(types.T_varchar, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		vals := make([]string, rowCnt)
		for i := range vals {
			vals[i] = fmt.Sprintf("key-%d", i%distinct)
		}
		bat := batch.NewWithVectors([]*vector.Vector{newStringVector(vals)}, rowCnt)
		idsVec, err := g.Consume(bat, 0, -1)
		require.NoError(t, err)
		ids := idsOf(t, idsVec)
		require.Equal(t, uint32(distinct), g.NumGroups())

		uniques, err := g.GetUniques()
		require.NoError(t, err)
		for i := 0; i < rowCnt; i++ {
			require.Equal(t, vals[i], string(uniques.Vecs[0].GetBytesAt(int(ids[i]))))
		}
	})
}

func TestDeterminismAcrossGroupers(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_varchar, 0), types.New(types.T_int32, 0)}
	proc := process.NewTestProcess()

	build := func() *batch.Batch {
		return batch.NewWithVectors([]*vector.Vector{
			newStringVector([]string{"a", "b", "a", "c", "b", "a"}),
			newInt32Vector([]int32{1, 1, 1, 2, 1, 2}),
		}, 6)
	}

	fast, err := newFastGrouper(keyTypes, proc)
	require.NoError(t, err)
	defer fast.Free()
	generic, err := newGenericGrouper(keyTypes, proc)
	require.NoError(t, err)
	defer generic.Free()

	fastIds, err := fast.Consume(build(), 0, -1)
	require.NoError(t, err)
	genericIds, err := generic.Consume(build(), 0, -1)
	require.NoError(t, err)
	require.Equal(t, idsOf(t, genericIds), idsOf(t, fastIds))
	require.Equal(t, generic.NumGroups(), fast.NumGroups())

	fu, err := fast.GetUniques()
	require.NoError(t, err)
	gu, err := generic.GetUniques()
	require.NoError(t, err)
	require.Equal(t, gu.RowCount(), fu.RowCount())
	for i := 0; i < gu.RowCount(); i++ {
		require.Equal(t, string(gu.Vecs[0].GetBytesAt(i)), string(fu.Vecs[0].GetBytesAt(i)))
		require.Equal(t,
			vector.GetFixedAt[int32](gu.Vecs[1], i),
			vector.GetFixedAt[int32](fu.Vecs[1], i))
	}
}

func TestLargeVarlenFallsBackToGeneric(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_text, 0)}
	require.False(t, canUseFast(keyTypes))

	proc := process.NewTestProcess()
	g, err := New(keyTypes, proc)
	require.NoError(t, err)
	defer g.Free()
	_, ok := g.(*genericGrouper)
	require.True(t, ok)

	vec := vector.New(types.New(types.T_text, 0))
	for _, v := range []string{"big", "big", "bigger"} {
		require.NoError(t, vector.AppendBytes(vec, []byte(v), false, nil))
	}
	idsVec, err := g.Consume(batch.NewWithVectors([]*vector.Vector{vec}, 3), 0, -1)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 0, 1}, idsOf(t, idsVec))
}

func TestEmptyVarlenDistinctFromNull(t *testing.T) {
	keyTypes := []types.Type{types.New(types.T_varchar, 0)}
	forEachGrouper(t, keyTypes, func(t *testing.T, g Grouper) {
		bat := batch.NewWithVectors([]*vector.Vector{
			newStringVector([]string{"", "", ""}, 1),
		}, 3)
		idsVec, err := g.Consume(bat, 0, -1)
		require.NoError(t, err)
		require.Equal(t, []uint32{0, 1, 0}, idsOf(t, idsVec))
	})
}
