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

// Package group implements the columnar group-by engine: groupers assign
// each row of a key batch a dense 32-bit group id such that rows with
// equal key tuples receive the same id, and reproduce the unique key
// tuples in id order; row segmenters partition batches into runs of
// consecutive equal-key rows for streaming aggregation over sorted input.
package group

import (
	"math"

	"github.com/matrixorigin/grouper/pkg/container/batch"
	"github.com/matrixorigin/grouper/pkg/container/types"
	"github.com/matrixorigin/grouper/pkg/container/vector"
)

// NoGroupID is the reserved "no group" sentinel. Group ids are assigned
// densely from 0 and never reach it; the segmenter uses it to mean "no
// previous batch observed".
const NoGroupID uint32 = math.MaxUint32

const (
	minibatchSizeMin = 128
	minibatchSizeMax = 1024
)

type groupMode int

const (
	modePopulate groupMode = iota
	modeConsume
	modeLookup
)

// Grouper assigns dense group ids to key tuples across batches.
//
// Populate inserts unseen keys without producing ids. Consume inserts
// unseen keys and returns one id per row. Lookup never inserts; its result
// carries a validity bitmap with a null wherever the key was never seen.
// A negative length means "to the end of the batch"; a negative offset is
// an error.
type Grouper interface {
	Populate(bat *batch.Batch, offset, length int64) error
	Consume(bat *batch.Batch, offset, length int64) (*vector.Vector, error)
	Lookup(bat *batch.Batch, offset, length int64) (*vector.Vector, error)

	// NumGroups returns the number of distinct keys seen so far.
	NumGroups() uint32

	// GetUniques returns the unique key tuples in group id order.
	GetUniques() (*batch.Batch, error)

	// Reset drops all groups. Dictionaries observed so far are retained.
	Reset() error

	Free()
}

// Segment is a maximal run of consecutive equal-key rows within one
// GetSegments call. IsOpen is true iff the segment reaches the batch end
// and may continue into the next batch; Extends is true iff it continues
// the previous batch's final segment.
type Segment struct {
	Offset  int64
	Length  int64
	IsOpen  bool
	Extends bool
}

// RowSegmenter produces equal-key run segments across streaming batches of
// pre-sorted keys.
type RowSegmenter interface {
	KeyTypes() []types.Type
	Reset() error
	GetSegments(bat *batch.Batch) ([]Segment, error)
}
