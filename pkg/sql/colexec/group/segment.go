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
	"bytes"

	"github.com/matrixorigin/grouper/pkg/common/moerr"
	"github.com/matrixorigin/grouper/pkg/container/batch"
	"github.com/matrixorigin/grouper/pkg/container/nulls"
	"github.com/matrixorigin/grouper/pkg/container/types"
	"github.com/matrixorigin/grouper/pkg/vm/process"
)

// the first segment ever returned extends by definition: there is nothing
// to not extend
const defaultExtends = true

func makeSegment(batchLength, offset, length int64, extends bool) Segment {
	return Segment{
		Offset:  offset,
		Length:  length,
		IsOpen:  offset+length >= batchLength,
		Extends: extends,
	}
}

// NewRowSegmenter selects a segmenter variant for the key schema: no state
// for zero keys, saved key bytes for a single non-nullable fixed width
// key, an embedded grouper otherwise.
func NewRowSegmenter(keyTypes []types.Type, nullableKeys bool, proc *process.Process) (RowSegmenter, error) {
	if len(keyTypes) == 0 {
		return &noKeysSegmenter{}, nil
	}
	if !nullableKeys && len(keyTypes) == 1 {
		typ := keyTypes[0]
		if !typ.IsDict() && !typ.IsNullType() && typ.TypeSize() > 0 {
			return newSimpleKeySegmenter(typ), nil
		}
	}
	return newAnyKeysSegmenter(keyTypes, proc)
}

type noKeysSegmenter struct{}

func (s *noKeysSegmenter) KeyTypes() []types.Type {
	return nil
}

func (s *noKeysSegmenter) Reset() error {
	return nil
}

func (s *noKeysSegmenter) GetSegments(bat *batch.Batch) ([]Segment, error) {
	if err := checkBatch(bat, nil); err != nil {
		return nil, err
	}
	length := int64(bat.RowCount())
	if length == 0 {
		return []Segment{}, nil
	}
	return []Segment{makeSegment(length, 0, length, defaultExtends)}, nil
}

// simpleKeySegmenter remembers the fixed width bytes of the last row's key
// and scans for run boundaries with byte comparisons.
type simpleKeySegmenter struct {
	keyType     types.Type
	saveKeyData []byte
	extendCalled bool
}

func newSimpleKeySegmenter(typ types.Type) *simpleKeySegmenter {
	return &simpleKeySegmenter{
		keyType:     typ,
		saveKeyData: make([]byte, typ.TypeSize()),
	}
}

func (s *simpleKeySegmenter) KeyTypes() []types.Type {
	return []types.Type{s.keyType}
}

func (s *simpleKeySegmenter) Reset() error {
	s.extendCalled = false
	return nil
}

func (s *simpleKeySegmenter) extend(data []byte) bool {
	if !s.extendCalled {
		s.extendCalled = true
		return defaultExtends
	}
	return bytes.Equal(s.saveKeyData, data)
}

func (s *simpleKeySegmenter) GetSegments(bat *batch.Batch) ([]Segment, error) {
	if err := checkBatch(bat, []types.Type{s.keyType}); err != nil {
		return nil, err
	}
	length := int64(bat.RowCount())
	if length == 0 {
		return []Segment{}, nil
	}

	vec := bat.Vecs[0]
	if nulls.Any(vec.GetNulls()) {
		return nil, moerr.NewInvalidInputNoCtx("simple key segmenter requires non-nullable keys")
	}

	var segments []Segment
	var keyData []byte
	if vec.IsConst() {
		keyData = vec.RawFixedAt(0)
		segments = append(segments, makeSegment(length, 0, length, s.extend(keyData)))
	} else {
		width := int64(s.keyType.TypeSize())
		data := vec.Data
		extends := s.extend(data[:width])
		var offset int64
		for offset < length {
			matchLength := getMatchLength(data[offset*width:(offset+1)*width], width, data, offset, length)
			first := extends
			if offset != 0 {
				first = false
			}
			segments = append(segments, makeSegment(length, offset, matchLength, first))
			offset += matchLength
		}
		keyData = data[(length-1)*width : length*width]
	}
	copy(s.saveKeyData, keyData)

	return segments, nil
}

// getMatchLength counts how many rows from offset on compare equal to
// matchBytes within a fixed width buffer.
func getMatchLength(matchBytes []byte, width int64, arrayBytes []byte, offset, length int64) int64 {
	cursor := offset
	for ; cursor < length; cursor++ {
		if !bytes.Equal(matchBytes, arrayBytes[cursor*width:(cursor+1)*width]) {
			break
		}
	}
	return cursor - offset
}

// anyKeysSegmenter delegates key equality to an embedded grouper. Resetting
// the grouper between batches keeps its id space to one batch; before the
// reset, the new batch's row 0 is mapped in the previous batch's id space
// and compared with the saved id of that batch's last row.
type anyKeysSegmenter struct {
	keyTypes    []types.Type
	grouper     Grouper
	saveGroupID uint32
}

func newAnyKeysSegmenter(keyTypes []types.Type, proc *process.Process) (*anyKeysSegmenter, error) {
	grouper, err := New(keyTypes, proc)
	if err != nil {
		return nil, err
	}
	return &anyKeysSegmenter{
		keyTypes:    keyTypes,
		grouper:     grouper,
		saveGroupID: NoGroupID,
	}, nil
}

func (s *anyKeysSegmenter) KeyTypes() []types.Type {
	return s.keyTypes
}

func (s *anyKeysSegmenter) Reset() error {
	if err := s.grouper.Reset(); err != nil {
		return err
	}
	s.saveGroupID = NoGroupID
	return nil
}

func (s *anyKeysSegmenter) GetSegments(bat *batch.Batch) ([]Segment, error) {
	if err := checkBatch(bat, s.keyTypes); err != nil {
		return nil, err
	}
	length := int64(bat.RowCount())
	if length == 0 {
		return []Segment{}, nil
	}

	// the group id of row 0 must be mapped before resetting the grouper:
	// after a reset the grouper produces incomparable ids
	extends := defaultExtends
	if s.saveGroupID != NoGroupID {
		id, err := s.mapGroupIDAt(bat, 0)
		if err != nil {
			return nil, err
		}
		extends = id == s.saveGroupID
	}

	// resetting drops the grouper's ids, freeing memory for the next batch
	if err := s.grouper.Reset(); err != nil {
		return nil, err
	}

	idsVec, err := s.grouper.Consume(bat, 0, -1)
	if err != nil {
		return nil, err
	}
	ids := types.DecodeSlice[uint32](idsVec.Data)

	var segments []Segment
	var runStart int64
	for cursor := int64(1); cursor < length; cursor++ {
		if ids[cursor] != ids[runStart] {
			first := extends
			if runStart != 0 {
				first = false
			}
			segments = append(segments, makeSegment(length, runStart, cursor-runStart, first))
			runStart = cursor
		}
	}
	first := extends
	if runStart != 0 {
		first = false
	}
	segments = append(segments, makeSegment(length, runStart, length-runStart, first))

	s.saveGroupID = ids[length-1]

	return segments, nil
}

func (s *anyKeysSegmenter) mapGroupIDAt(bat *batch.Batch, offset int64) (uint32, error) {
	idsVec, err := s.grouper.Consume(bat, offset, 1)
	if err != nil {
		return 0, err
	}
	return types.DecodeSlice[uint32](idsVec.Data)[0], nil
}
