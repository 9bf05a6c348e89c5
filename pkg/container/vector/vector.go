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

package vector

import (
	"bytes"

	"github.com/matrixorigin/grouper/pkg/common/moerr"
	"github.com/matrixorigin/grouper/pkg/common/mpool"
	"github.com/matrixorigin/grouper/pkg/container/nulls"
	"github.com/matrixorigin/grouper/pkg/container/types"
)

const (
	// FLAT is a standard columnar vector.
	FLAT = iota
	// CONSTANT holds one physical value broadcast to Length rows.
	CONSTANT
)

// Vector is a typed column. Fixed width values live in Data (bools one byte
// each, T_dict index bytes of the declared width); variable length values
// are Area[Offsets[i]:Offsets[i+1]] with len(Offsets) == Length+1 and
// Offsets[0] == 0. A CONSTANT vector stores a single physical value; a
// CONSTANT null is marked by row 0 in Nsp.
type Vector struct {
	Typ   types.Type
	Class int

	length int

	Nsp     *nulls.Nulls
	Data    []byte
	Offsets []uint32
	Area    []byte

	// Dict holds the dictionary values of a T_dict vector.
	Dict *Vector
}

func New(typ types.Type) *Vector {
	vec := &Vector{Typ: typ, Nsp: nulls.New()}
	if typ.IsVarlen() {
		vec.Offsets = append(vec.Offsets, 0)
	}
	return vec
}

// NewConstNull returns a CONSTANT vector of the given type whose single
// value is null.
func NewConstNull(typ types.Type, length int) *Vector {
	vec := New(typ)
	vec.Class = CONSTANT
	vec.length = length
	nulls.Add(vec.Nsp, 0)
	return vec
}

// NewConstFixed returns a CONSTANT vector holding one fixed width value.
func NewConstFixed[T any](typ types.Type, val T, length int) *Vector {
	vec := New(typ)
	vec.Class = CONSTANT
	vec.length = length
	vec.Data = append([]byte(nil), types.EncodeFixed(val)...)
	return vec
}

// NewConstBytes returns a CONSTANT vector holding one varlen value.
func NewConstBytes(typ types.Type, val []byte, length int) *Vector {
	vec := New(typ)
	vec.Class = CONSTANT
	vec.length = length
	vec.Area = append(vec.Area, val...)
	vec.Offsets = []uint32{0, uint32(len(val))}
	return vec
}

func (vec *Vector) Length() int {
	return vec.length
}

func (vec *Vector) SetLength(n int) {
	vec.length = n
}

func (vec *Vector) IsConst() bool {
	return vec.Class == CONSTANT
}

func (vec *Vector) GetNulls() *nulls.Nulls {
	return vec.Nsp
}

// IsNull reports whether the value at row is null. For CONSTANT vectors the
// single physical value decides for every row.
func (vec *Vector) IsNull(row uint64) bool {
	if vec.Typ.IsNullType() {
		return true
	}
	if vec.IsConst() {
		return nulls.Contains(vec.Nsp, 0)
	}
	return nulls.Contains(vec.Nsp, row)
}

// RawFixedAt returns the raw bytes of the fixed width value at row i.
func (vec *Vector) RawFixedAt(i int) []byte {
	sz := vec.Typ.TypeSize()
	if vec.IsConst() {
		i = 0
	}
	return vec.Data[i*sz : (i+1)*sz]
}

// GetBytesAt returns the varlen value at row i.
func (vec *Vector) GetBytesAt(i int) []byte {
	if vec.IsConst() {
		i = 0
	}
	return vec.Area[vec.Offsets[i]:vec.Offsets[i+1]]
}

// GetFixedAt reads the value at row i reinterpreted as T.
func GetFixedAt[T any](vec *Vector, i int) T {
	if vec.IsConst() {
		i = 0
	}
	return types.DecodeSlice[T](vec.Data)[i]
}

// AppendFixed appends one fixed width value. Null values append a
// zero-filled slot so the buffer stays row addressable.
func AppendFixed[T any](vec *Vector, val T, isNull bool, m *mpool.MPool) error {
	if vec.IsConst() {
		return moerr.NewInvalidInputNoCtx("append to const vector")
	}
	sz := vec.Typ.TypeSize()
	if isNull {
		nulls.Add(vec.Nsp, uint64(vec.length))
		var zero [16]byte
		vec.Data = append(vec.Data, zero[:sz]...)
	} else {
		vec.Data = append(vec.Data, types.EncodeFixed(val)[:sz]...)
	}
	vec.length++
	return nil
}

// AppendBytes appends one varlen value.
func AppendBytes(vec *Vector, val []byte, isNull bool, m *mpool.MPool) error {
	if vec.IsConst() {
		return moerr.NewInvalidInputNoCtx("append to const vector")
	}
	if isNull {
		nulls.Add(vec.Nsp, uint64(vec.length))
	} else {
		vec.Area = append(vec.Area, val...)
	}
	vec.Offsets = append(vec.Offsets, uint32(len(vec.Area)))
	vec.length++
	return nil
}

// PreExtendFixed grows Data to hold n rows of the fixed width type and sets
// the length. The decode paths fill the buffer in place afterwards.
func (vec *Vector) PreExtendFixed(n int, m *mpool.MPool) error {
	sz := vec.Typ.TypeSize()
	data, err := m.Alloc(n * sz)
	if err != nil {
		return err
	}
	vec.Data = data
	vec.length = n
	return nil
}

// ExpandConst materializes a CONSTANT vector into a FLAT vector of the same
// length, duplicating the single value (or null) per row.
func (vec *Vector) ExpandConst(m *mpool.MPool) (*Vector, error) {
	if !vec.IsConst() {
		return vec, nil
	}
	out := New(vec.Typ)
	out.Dict = vec.Dict
	isNull := nulls.Contains(vec.Nsp, 0)
	if vec.Typ.IsNullType() {
		out.length = vec.length
		for i := 0; i < vec.length; i++ {
			nulls.Add(out.Nsp, uint64(i))
		}
		return out, nil
	}
	if vec.Typ.IsVarlen() {
		var val []byte
		if !isNull {
			val = vec.GetBytesAt(0)
		}
		for i := 0; i < vec.length; i++ {
			if err := AppendBytes(out, val, isNull, m); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	sz := vec.Typ.TypeSize()
	var val []byte
	if !isNull {
		val = vec.Data[:sz]
	} else {
		val = make([]byte, sz)
	}
	for i := 0; i < vec.length; i++ {
		if isNull {
			nulls.Add(out.Nsp, uint64(i))
		}
		out.Data = append(out.Data, val...)
	}
	out.length = vec.length
	return out, nil
}

// Equals compares two vectors value by value, nulls included. It is used
// for the frozen-dictionary check of the fast grouper.
func (vec *Vector) Equals(other *Vector) bool {
	if other == nil {
		return false
	}
	if !vec.Typ.Eq(other.Typ) || vec.length != other.length {
		return false
	}
	for i := 0; i < vec.length; i++ {
		ln, rn := vec.IsNull(uint64(i)), other.IsNull(uint64(i))
		if ln != rn {
			return false
		}
		if ln {
			continue
		}
		if vec.Typ.IsVarlen() {
			if !bytes.Equal(vec.GetBytesAt(i), other.GetBytesAt(i)) {
				return false
			}
		} else {
			if !bytes.Equal(vec.RawFixedAt(i), other.RawFixedAt(i)) {
				return false
			}
		}
	}
	return true
}

func (vec *Vector) Free(m *mpool.MPool) {
	m.Free(vec.Data)
	m.Free(vec.Area)
	vec.Data, vec.Area, vec.Offsets = nil, nil, nil
	vec.Nsp = nulls.New()
	vec.length = 0
}
