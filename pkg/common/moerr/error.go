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

package moerr

import (
	"fmt"
)

const (
	Ok uint16 = 0

	// Group 1: internal errors
	ErrInternal uint16 = 20101
	ErrNYI      uint16 = 20102
	ErrOOM      uint16 = 20103

	ErrNotSupported uint16 = 20105

	// Group 3: invalid input
	ErrInvalidInput uint16 = 20301

	// Group 4: unexpected state
	ErrInvalidState uint16 = 20400
)

// Error is the error type returned by every fallible operation in this
// module. It carries a stable numeric code and a human readable message.
type Error struct {
	code    uint16
	message string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

func (e *Error) Is(err error) bool {
	t, ok := err.(*Error)
	if !ok {
		return false
	}
	return t.code == e.code
}

// IsMoErrCode reports whether err is a *Error with the given code.
func IsMoErrCode(err error, code uint16) bool {
	if err == nil {
		return code == Ok
	}
	me, ok := err.(*Error)
	if !ok {
		return false
	}
	return me.code == code
}

func newError(code uint16, msg string) *Error {
	return &Error{code: code, message: msg}
}

func NewInternalErrorNoCtx(msg string, args ...any) *Error {
	return newError(ErrInternal, "internal error: "+fmt.Sprintf(msg, args...))
}

func NewNYINoCtx(msg string, args ...any) *Error {
	return newError(ErrNYI, fmt.Sprintf(msg, args...)+" not implemented yet")
}

func NewNotSupportedNoCtx(msg string, args ...any) *Error {
	return newError(ErrNotSupported, fmt.Sprintf(msg, args...)+" is not supported")
}

func NewOOMNoCtx() *Error {
	return newError(ErrOOM, "out of memory")
}

func NewInvalidInputNoCtx(msg string, args ...any) *Error {
	return newError(ErrInvalidInput, "invalid input: "+fmt.Sprintf(msg, args...))
}

func NewInvalidStateNoCtx(msg string, args ...any) *Error {
	return newError(ErrInvalidState, "invalid state: "+fmt.Sprintf(msg, args...))
}
