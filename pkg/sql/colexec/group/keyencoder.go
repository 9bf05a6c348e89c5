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
	"github.com/matrixorigin/grouper/pkg/container/nulls"
	"github.com/matrixorigin/grouper/pkg/container/types"
	"github.com/matrixorigin/grouper/pkg/container/vector"
)

// keyEncoder maps one key column to the portable packed byte
// representation and back. addLength adds each row's encoded size to lens;
// encode writes row fields at the cursors in curs and advances them;
// decode rebuilds a column of n values from the cursors.
//
// Encoders are deterministic: bit-equal inputs produce bit-equal outputs.
type keyEncoder interface {
	addLength(vec *vector.Vector, offset, n int, lens []int32)
	encode(vec *vector.Vector, offset, n int, buf []byte, curs []int32)
	decode(keyBytes []byte, curs []int32, n int) (*vector.Vector, error)
}

const (
	kNullByte  = byte(0)
	kValidByte = byte(1)
)

func newKeyEncoder(typ types.Type) (keyEncoder, error) {
	switch {
	case typ.IsNullType():
		return &nullKeyEncoder{}, nil
	case typ.Oid == types.T_bool:
		return &boolKeyEncoder{}, nil
	case typ.IsDict():
		if !typ.IsSupportedKey() {
			return nil, moerr.NewNYINoCtx("keys of type %s", typ)
		}
		return &dictKeyEncoder{typ: typ, sz: typ.TypeSize()}, nil
	case typ.IsLargeVarlen():
		return &varlenKeyEncoder{typ: typ, lenBytes: 8}, nil
	case typ.IsVarlen():
		return &varlenKeyEncoder{typ: typ, lenBytes: 4}, nil
	case typ.IsSupportedKey():
		return &fixedKeyEncoder{typ: typ, sz: typ.TypeSize()}, nil
	default:
		return nil, moerr.NewNYINoCtx("keys of type %s", typ)
	}
}

// nullKeyEncoder encodes the null type: one byte per row, always null.
type nullKeyEncoder struct{}

func (e *nullKeyEncoder) addLength(vec *vector.Vector, offset, n int, lens []int32) {
	for i := 0; i < n; i++ {
		lens[i]++
	}
}

func (e *nullKeyEncoder) encode(vec *vector.Vector, offset, n int, buf []byte, curs []int32) {
	for i := 0; i < n; i++ {
		buf[curs[i]] = kNullByte
		curs[i]++
	}
}

func (e *nullKeyEncoder) decode(keyBytes []byte, curs []int32, n int) (*vector.Vector, error) {
	out := vector.New(types.New(types.T_any, 0))
	for i := 0; i < n; i++ {
		nulls.Add(out.Nsp, uint64(i))
		curs[i]++
	}
	out.SetLength(n)
	return out, nil
}

// boolKeyEncoder packs validity and value into one byte: bit 1 is set for
// a valid row, bit 0 holds the value.
type boolKeyEncoder struct{}

func (e *boolKeyEncoder) addLength(vec *vector.Vector, offset, n int, lens []int32) {
	for i := 0; i < n; i++ {
		lens[i]++
	}
}

func (e *boolKeyEncoder) encode(vec *vector.Vector, offset, n int, buf []byte, curs []int32) {
	for i := 0; i < n; i++ {
		var b byte
		if !vec.IsNull(uint64(offset + i)) {
			b = 2 | vec.RawFixedAt(offset+i)[0]&1
		}
		buf[curs[i]] = b
		curs[i]++
	}
}

func (e *boolKeyEncoder) decode(keyBytes []byte, curs []int32, n int) (*vector.Vector, error) {
	out := vector.New(types.New(types.T_bool, 0))
	for i := 0; i < n; i++ {
		b := keyBytes[curs[i]]
		curs[i]++
		if b&2 == 0 {
			nulls.Add(out.Nsp, uint64(i))
			out.Data = append(out.Data, 0)
		} else {
			out.Data = append(out.Data, b&1)
		}
	}
	out.SetLength(n)
	return out, nil
}

// fixedKeyEncoder writes one validity byte followed by the W value bytes,
// zero-filled for null rows.
type fixedKeyEncoder struct {
	typ types.Type
	sz  int
}

func (e *fixedKeyEncoder) addLength(vec *vector.Vector, offset, n int, lens []int32) {
	for i := 0; i < n; i++ {
		lens[i] += int32(1 + e.sz)
	}
}

func (e *fixedKeyEncoder) encode(vec *vector.Vector, offset, n int, buf []byte, curs []int32) {
	for i := 0; i < n; i++ {
		p := curs[i]
		if vec.IsNull(uint64(offset + i)) {
			buf[p] = kNullByte
			// value bytes stay zero
		} else {
			buf[p] = kValidByte
			copy(buf[p+1:p+1+int32(e.sz)], vec.RawFixedAt(offset+i))
		}
		curs[i] += int32(1 + e.sz)
	}
}

func (e *fixedKeyEncoder) decode(keyBytes []byte, curs []int32, n int) (*vector.Vector, error) {
	out := vector.New(e.typ)
	for i := 0; i < n; i++ {
		p := curs[i]
		if keyBytes[p] == kNullByte {
			nulls.Add(out.Nsp, uint64(i))
		}
		out.Data = append(out.Data, keyBytes[p+1:p+1+int32(e.sz)]...)
		curs[i] += int32(1 + e.sz)
	}
	out.SetLength(n)
	return out, nil
}

// dictKeyEncoder encodes the index bytes of a dictionary column. The
// dictionary itself is frozen at the first batch; later batches must carry
// an equal dictionary.
type dictKeyEncoder struct {
	typ  types.Type
	sz   int
	dict *vector.Vector
}

func (e *dictKeyEncoder) freeze(vec *vector.Vector) error {
	if e.dict == nil {
		e.dict = vec.Dict
		return nil
	}
	if !e.dict.Equals(vec.Dict) {
		return moerr.NewNYINoCtx("unifying differing dictionaries")
	}
	return nil
}

func (e *dictKeyEncoder) addLength(vec *vector.Vector, offset, n int, lens []int32) {
	for i := 0; i < n; i++ {
		lens[i] += int32(1 + e.sz)
	}
}

func (e *dictKeyEncoder) encode(vec *vector.Vector, offset, n int, buf []byte, curs []int32) {
	for i := 0; i < n; i++ {
		p := curs[i]
		if vec.IsNull(uint64(offset + i)) {
			buf[p] = kNullByte
		} else {
			buf[p] = kValidByte
			copy(buf[p+1:p+1+int32(e.sz)], vec.RawFixedAt(offset+i))
		}
		curs[i] += int32(1 + e.sz)
	}
}

func (e *dictKeyEncoder) decode(keyBytes []byte, curs []int32, n int) (*vector.Vector, error) {
	out := vector.New(e.typ)
	for i := 0; i < n; i++ {
		p := curs[i]
		if keyBytes[p] == kNullByte {
			nulls.Add(out.Nsp, uint64(i))
		}
		out.Data = append(out.Data, keyBytes[p+1:p+1+int32(e.sz)]...)
		curs[i] += int32(1 + e.sz)
	}
	out.SetLength(n)
	out.Dict = e.dict
	return out, nil
}

// varlenKeyEncoder writes a validity byte, the payload length (4 bytes for
// 32-bit offset types, 8 for large varlen) and the payload itself.
type varlenKeyEncoder struct {
	typ      types.Type
	lenBytes int
}

func (e *varlenKeyEncoder) addLength(vec *vector.Vector, offset, n int, lens []int32) {
	for i := 0; i < n; i++ {
		sz := 1 + e.lenBytes
		if !vec.IsNull(uint64(offset + i)) {
			sz += len(vec.GetBytesAt(offset + i))
		}
		lens[i] += int32(sz)
	}
}

func (e *varlenKeyEncoder) encode(vec *vector.Vector, offset, n int, buf []byte, curs []int32) {
	for i := 0; i < n; i++ {
		p := curs[i]
		if vec.IsNull(uint64(offset + i)) {
			buf[p] = kNullByte
			// zero length slot
			curs[i] += int32(1 + e.lenBytes)
			continue
		}
		buf[p] = kValidByte
		val := vec.GetBytesAt(offset + i)
		if e.lenBytes == 8 {
			length := uint64(len(val))
			copy(buf[p+1:p+9], types.EncodeUint64(&length))
		} else {
			length := uint32(len(val))
			copy(buf[p+1:p+5], types.EncodeUint32(&length))
		}
		copy(buf[p+1+int32(e.lenBytes):], val)
		curs[i] += int32(1 + e.lenBytes + len(val))
	}
}

func (e *varlenKeyEncoder) decode(keyBytes []byte, curs []int32, n int) (*vector.Vector, error) {
	out := vector.New(e.typ)
	for i := 0; i < n; i++ {
		p := curs[i]
		valid := keyBytes[p] == kValidByte
		var length int
		if e.lenBytes == 8 {
			length = int(types.DecodeUint64(keyBytes[p+1 : p+9]))
		} else {
			length = int(types.DecodeUint32(keyBytes[p+1 : p+5]))
		}
		if !valid {
			length = 0
		}
		val := keyBytes[p+1+int32(e.lenBytes) : p+1+int32(e.lenBytes)+int32(length)]
		if err := vector.AppendBytes(out, val, !valid, nil); err != nil {
			return nil, err
		}
		curs[i] += int32(1 + e.lenBytes + length)
	}
	return out, nil
}
