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
	"github.com/matrixorigin/grouper/pkg/container/batch"
	"github.com/matrixorigin/grouper/pkg/container/nulls"
	"github.com/matrixorigin/grouper/pkg/container/types"
	"github.com/matrixorigin/grouper/pkg/container/vector"
	"github.com/matrixorigin/grouper/pkg/vm/process"
)

// genericGrouper is the portable fallback: rows are encoded into opaque
// byte strings and mapped through a Go map. It handles every key type
// including large varlen, at scalar speed.
type genericGrouper struct {
	proc     *process.Process
	keyTypes []types.Type
	encoders []keyEncoder

	groups    map[string]uint32
	offsets   []int32
	keyBytes  []byte
	numGroups uint32
}

func newGenericGrouper(keyTypes []types.Type, proc *process.Process) (*genericGrouper, error) {
	g := &genericGrouper{
		proc:     proc,
		keyTypes: keyTypes,
		encoders: make([]keyEncoder, len(keyTypes)),
		groups:   make(map[string]uint32),
		offsets:  []int32{0},
	}
	for i, typ := range keyTypes {
		enc, err := newKeyEncoder(typ)
		if err != nil {
			return nil, err
		}
		g.encoders[i] = enc
	}
	return g, nil
}

func (g *genericGrouper) Reset() error {
	g.groups = make(map[string]uint32)
	g.offsets = g.offsets[:1]
	g.keyBytes = g.keyBytes[:0]
	g.numGroups = 0
	return nil
}

func (g *genericGrouper) NumGroups() uint32 {
	return g.numGroups
}

func (g *genericGrouper) Populate(bat *batch.Batch, offset, length int64) error {
	_, err := g.consumeImpl(bat, offset, length, modePopulate)
	return err
}

func (g *genericGrouper) Consume(bat *batch.Batch, offset, length int64) (*vector.Vector, error) {
	return g.consumeImpl(bat, offset, length, modeConsume)
}

func (g *genericGrouper) Lookup(bat *batch.Batch, offset, length int64) (*vector.Vector, error) {
	return g.consumeImpl(bat, offset, length, modeLookup)
}

func (g *genericGrouper) consumeImpl(bat *batch.Batch, offset, length int64, mode groupMode) (*vector.Vector, error) {
	if err := checkBatch(bat, g.keyTypes); err != nil {
		return nil, err
	}
	if err := checkAndCapLength(int64(bat.RowCount()), offset, &length); err != nil {
		return nil, err
	}
	// freeze dictionaries before any bytes are encoded so a rejected batch
	// leaves no visible state change
	for i, enc := range g.encoders {
		if de, ok := enc.(*dictKeyEncoder); ok {
			if err := de.freeze(bat.Vecs[i]); err != nil {
				return nil, err
			}
		}
	}

	n := int(length)
	start := int(offset)

	// per-row encoded lengths, then prefix-sum into row offsets
	lens := make([]int32, n+1)
	for i, enc := range g.encoders {
		enc.addLength(bat.Vecs[i], start, n, lens)
	}
	var total int32
	for i := 0; i < n; i++ {
		rowLen := lens[i]
		lens[i] = total
		total += rowLen
	}
	lens[n] = total
	rowOffs := lens

	buf := make([]byte, total)
	curs := make([]int32, n)
	copy(curs, rowOffs[:n])
	for i, enc := range g.encoders {
		enc.encode(bat.Vecs[i], start, n, buf, curs)
	}

	if mode == modePopulate {
		for i := 0; i < n; i++ {
			g.insertKey(buf[rowOffs[i]:rowOffs[i+1]])
		}
		return nil, nil
	}

	out := vector.New(types.New(types.T_uint32, 0))
	for i := 0; i < n; i++ {
		key := buf[rowOffs[i]:rowOffs[i+1]]
		if mode == modeConsume {
			id := g.insertKey(key)
			var v = id
			out.Data = append(out.Data, types.EncodeUint32(&v)...)
			continue
		}
		// lookup never inserts; misses turn into nulls
		if id, ok := g.groups[string(key)]; ok {
			var v = id
			out.Data = append(out.Data, types.EncodeUint32(&v)...)
		} else {
			nulls.Add(out.Nsp, uint64(i))
			out.Data = append(out.Data, 0, 0, 0, 0)
		}
	}
	out.SetLength(n)
	return out, nil
}

func (g *genericGrouper) insertKey(key []byte) uint32 {
	if id, ok := g.groups[string(key)]; ok {
		return id
	}
	id := g.numGroups
	g.groups[string(key)] = id
	g.numGroups++
	g.keyBytes = append(g.keyBytes, key...)
	g.offsets = append(g.offsets, int32(len(g.keyBytes)))
	return id
}

func (g *genericGrouper) GetUniques() (*batch.Batch, error) {
	n := int(g.numGroups)
	curs := make([]int32, n)
	copy(curs, g.offsets[:n])

	out := batch.New(len(g.encoders))
	for i, enc := range g.encoders {
		vec, err := enc.decode(g.keyBytes, curs, n)
		if err != nil {
			return nil, err
		}
		out.Vecs[i] = vec
	}
	out.SetRowCount(n)
	return out, nil
}

func (g *genericGrouper) Free() {
	g.groups = nil
	g.keyBytes = nil
	g.offsets = nil
}
