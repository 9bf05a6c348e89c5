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

package hashtable

import (
	"encoding/binary"
	"hash/crc32"
	"math/bits"
	"math/rand"

	"github.com/matrixorigin/grouper/pkg/vm/process"
)

var hashkey [4]uint64

func init() {
	hashkey[0] = rand.Uint64()
	hashkey[1] = rand.Uint64()
	hashkey[2] = rand.Uint64()
	hashkey[3] = rand.Uint64()
}

const (
	m1 = 0xa0761d6478bd642f
	m2 = 0xe7037ed1a0b428db
	m3 = 0x8ebc6af09c88c6e3
	m4 = 0x589965cc75374cc3
	m5 = 0x1d8e4e27c47d124f
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Hasher produces the 32-bit row hashes consumed by GroupTable. The crc32
// variant is used when the CPU feature word reports hardware CRC32, the
// wyhash port otherwise.
type Hasher struct {
	useCrc bool
}

func NewHasher(hwFlags uint64) Hasher {
	return Hasher{useCrc: hwFlags&process.HwFlagCRC32 != 0}
}

// HashRow hashes the two stores of one encoded row (fixed region, varlen
// blob) into a single 32-bit value.
func (h Hasher) HashRow(fixed, varlen []byte) uint32 {
	if h.useCrc {
		c := crc32.Update(uint32(hashkey[0]), crcTable, fixed)
		if len(varlen) > 0 {
			c = crc32.Update(c, crcTable, varlen)
		}
		return c
	}
	s := wyhash(fixed, hashkey[0])
	if len(varlen) > 0 {
		s = wyhash(varlen, s)
	}
	return uint32(s ^ (s >> 32))
}

func mix(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	return hi ^ lo
}

func r4(data []byte, p uint64) uint64 {
	return uint64(binary.LittleEndian.Uint32(data[p:]))
}

func r8(data []byte, p uint64) uint64 {
	return binary.LittleEndian.Uint64(data[p:])
}

func wyhash(data []byte, seed uint64) uint64 {
	s := uint64(len(data))
	var a, b uint64
	seed ^= hashkey[0] ^ m1
	switch {
	case s == 0:
		return seed
	case s < 4:
		a = uint64(data[0])
		a |= uint64(data[s>>1]) << 8
		a |= uint64(data[s-1]) << 16
	case s == 4:
		a = r4(data, 0)
		b = a
	case s < 8:
		a = r4(data, 0)
		b = r4(data, s-4)
	case s == 8:
		a = r8(data, 0)
		b = a
	case s <= 16:
		a = r8(data, 0)
		b = r8(data, s-8)
	default:
		l := s
		p := uint64(0)
		if l > 48 {
			seed1 := seed
			seed2 := seed
			for ; l > 48; l -= 48 {
				seed = mix(r8(data, p)^m2, r8(data, p+8)^seed)
				seed1 = mix(r8(data, p+16)^m3, r8(data, p+24)^seed1)
				seed2 = mix(r8(data, p+32)^m4, r8(data, p+40)^seed2)
				p += 48
			}
			seed ^= seed1 ^ seed2
		}
		for ; l > 16; l -= 16 {
			seed = mix(r8(data, p)^m2, r8(data, p+8)^seed)
			p += 16
		}
		a = r8(data, p+l-16)
		b = r8(data, p+l-8)
	}

	return mix(m5^s, mix(a^m2, b^seed))
}
