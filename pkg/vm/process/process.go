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

package process

import (
	"github.com/matrixorigin/grouper/pkg/common/mpool"

	"golang.org/x/sys/cpu"
)

// Hardware feature bits carried by the execution context. The hash layer
// picks its batch hasher off these.
const (
	HwFlagCRC32 uint64 = 1 << iota
	HwFlagAVX2
)

// Process is the execution context injected into groupers and segmenters:
// a memory pool plus a CPU feature word. No global state.
type Process struct {
	mp      *mpool.MPool
	HwFlags uint64
}

func New(m *mpool.MPool) *Process {
	return &Process{mp: m, HwFlags: detectHwFlags()}
}

// NewTestProcess returns a context backed by an unbounded pool.
func NewTestProcess() *Process {
	return New(mpool.MustNewZero())
}

func (proc *Process) GetMPool() *mpool.MPool {
	return proc.mp
}

func detectHwFlags() uint64 {
	var flags uint64
	if cpu.X86.HasSSE42 || cpu.ARM64.HasCRC32 {
		flags |= HwFlagCRC32
	}
	if cpu.X86.HasAVX2 {
		flags |= HwFlagAVX2
	}
	return flags
}
