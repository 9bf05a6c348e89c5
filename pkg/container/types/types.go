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

package types

import (
	"fmt"
)

type T uint8

const (
	// T_any is the null type: a column with no values, only nulls.
	T_any T = iota

	T_bool

	T_int8
	T_int16
	T_int32
	T_int64
	T_uint8
	T_uint16
	T_uint32
	T_uint64

	T_float32
	T_float64

	T_date
	T_datetime

	T_decimal64
	T_decimal128

	T_char
	T_varchar

	// T_text is variable length with 64-bit offsets on the wire; it is
	// excluded from the grouper fast path.
	T_text

	// T_dict is a dictionary encoded key column: Width holds the index
	// width in bytes, the dictionary values live on the vector.
	T_dict
)

type Type struct {
	Oid   T
	Width int32
}

type Date int32

type Datetime int64

type Decimal64 uint64

type Decimal128 struct {
	Lo uint64
	Hi uint64
}

func New(oid T, width int32) Type {
	return Type{Oid: oid, Width: width}
}

var fixedSizes = map[T]int{
	T_bool:       1,
	T_int8:       1,
	T_int16:      2,
	T_int32:      4,
	T_int64:      8,
	T_uint8:      1,
	T_uint16:     2,
	T_uint32:     4,
	T_uint64:     8,
	T_float32:    4,
	T_float64:    8,
	T_date:       4,
	T_datetime:   8,
	T_decimal64:  8,
	T_decimal128: 16,
}

// TypeSize returns the fixed byte width of the type, 0 for the null type
// and -1 for variable length types.
func (t Type) TypeSize() int {
	if t.Oid == T_any {
		return 0
	}
	if t.Oid == T_dict {
		return int(t.Width)
	}
	if sz, ok := fixedSizes[t.Oid]; ok {
		return sz
	}
	return -1
}

func (t Type) IsVarlen() bool {
	return t.Oid == T_char || t.Oid == T_varchar || t.Oid == T_text
}

// IsLargeVarlen reports a variable length type with 64-bit offsets.
func (t Type) IsLargeVarlen() bool {
	return t.Oid == T_text
}

func (t Type) IsNullType() bool {
	return t.Oid == T_any
}

func (t Type) IsDict() bool {
	return t.Oid == T_dict
}

func (t Type) Eq(o Type) bool {
	return t.Oid == o.Oid && t.Width == o.Width
}

func (t Type) String() string {
	names := map[T]string{
		T_any: "ANY", T_bool: "BOOL",
		T_int8: "INT8", T_int16: "INT16", T_int32: "INT32", T_int64: "INT64",
		T_uint8: "UINT8", T_uint16: "UINT16", T_uint32: "UINT32", T_uint64: "UINT64",
		T_float32: "FLOAT32", T_float64: "FLOAT64",
		T_date: "DATE", T_datetime: "DATETIME",
		T_decimal64: "DECIMAL64", T_decimal128: "DECIMAL128",
		T_char: "CHAR", T_varchar: "VARCHAR", T_text: "TEXT",
		T_dict: "DICT",
	}
	if s, ok := names[t.Oid]; ok {
		if t.Oid == T_dict {
			return fmt.Sprintf("%s(%d)", s, t.Width)
		}
		return s
	}
	return fmt.Sprintf("UNKNOWN(%d)", t.Oid)
}

// KeyColumnMeta describes how a key column is laid out by the row encoder.
type KeyColumnMeta struct {
	IsFixedLength bool
	FixedLength   uint32
	IsNullType    bool
}

// KeyMeta maps a type to its key column descriptor. Variable length
// columns report a 4 byte offset slot.
func (t Type) KeyMeta() KeyColumnMeta {
	switch {
	case t.IsNullType():
		return KeyColumnMeta{IsFixedLength: true, FixedLength: 0, IsNullType: true}
	case t.IsVarlen():
		return KeyColumnMeta{IsFixedLength: false, FixedLength: 4}
	default:
		return KeyColumnMeta{IsFixedLength: true, FixedLength: uint32(t.TypeSize())}
	}
}

// IsSupportedKey reports whether the grouper can handle keys of this type.
func (t Type) IsSupportedKey() bool {
	if t.IsNullType() || t.IsVarlen() {
		return true
	}
	if t.Oid == T_dict {
		return t.Width == 1 || t.Width == 2 || t.Width == 4
	}
	_, ok := fixedSizes[t.Oid]
	return ok
}
