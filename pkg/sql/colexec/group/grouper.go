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
	"github.com/matrixorigin/grouper/pkg/container/batch"
	"github.com/matrixorigin/grouper/pkg/container/types"
	"github.com/matrixorigin/grouper/pkg/vm/process"
)

// New returns a grouper for the given key schema. The fast implementation
// is used when the host is little-endian and no key column is large
// varlen; the portable implementation otherwise.
func New(keyTypes []types.Type, proc *process.Process) (Grouper, error) {
	if canUseFast(keyTypes) {
		return newFastGrouper(keyTypes, proc)
	}
	return newGenericGrouper(keyTypes, proc)
}

func canUseFast(keyTypes []types.Type) bool {
	if len(keyTypes) == 0 {
		return false
	}
	if !types.IsLittleEndian() {
		return false
	}
	for _, typ := range keyTypes {
		if typ.IsLargeVarlen() {
			return false
		}
	}
	return true
}

// checkBatch validates a batch against the key schema.
func checkBatch(bat *batch.Batch, keyTypes []types.Type) error {
	if len(bat.Vecs) != len(keyTypes) {
		return moerr.NewInvalidInputNoCtx(
			"expected batch of %d columns but got %d", len(keyTypes), len(bat.Vecs))
	}
	for i, vec := range bat.Vecs {
		if !vec.Typ.Eq(keyTypes[i]) {
			return moerr.NewInvalidInputNoCtx(
				"expected batch column %d of type %s but got %s", i, keyTypes[i], vec.Typ)
		}
	}
	return nil
}

// checkAndCapLength validates the consume window. A negative length means
// "to the end of the batch".
func checkAndCapLength(batchLength, offset int64, length *int64) error {
	if offset < 0 {
		return moerr.NewInvalidInputNoCtx("invalid grouper consume offset: %d", offset)
	}
	if *length < 0 {
		*length = batchLength - offset
	}
	if offset+*length > batchLength {
		return moerr.NewInvalidInputNoCtx(
			"grouper consume window [%d, %d) out of batch of %d rows",
			offset, offset+*length, batchLength)
	}
	return nil
}
