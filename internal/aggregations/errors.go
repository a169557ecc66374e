// Copyright 2021 DocPipe Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package aggregations

import (
	"errors"
	"fmt"
)

// ErrorCode represents an aggregation error code.
type ErrorCode int

const (
	errUnset ErrorCode = iota

	// ErrInvalidSpec indicates a malformed stage configuration.
	ErrInvalidSpec

	// ErrTypeMismatch indicates a value-level type error during evaluation.
	ErrTypeMismatch

	// ErrMissingDependency indicates that a projection omits a field required downstream.
	ErrMissingDependency

	// ErrCursorInvalidated indicates that the storage cursor is no longer usable after a yield.
	ErrCursorInvalidated

	// ErrInterrupted indicates that cooperative cancellation was observed.
	ErrInterrupted

	// ErrExhaustedSource indicates Current was called after EOF. Programming error.
	ErrExhaustedSource

	// ErrAlreadyLinked indicates SetUpstream was called twice. Programming error.
	ErrAlreadyLinked

	// ErrEvaluationError indicates that expression evaluation failed.
	ErrEvaluationError
)

// String returns the error code name.
func (code ErrorCode) String() string {
	switch code {
	case ErrInvalidSpec:
		return "InvalidSpec"
	case ErrTypeMismatch:
		return "TypeMismatch"
	case ErrMissingDependency:
		return "MissingDependency"
	case ErrCursorInvalidated:
		return "CursorInvalidated"
	case ErrInterrupted:
		return "Interrupted"
	case ErrExhaustedSource:
		return "ExhaustedSource"
	case ErrAlreadyLinked:
		return "AlreadyLinked"
	case ErrEvaluationError:
		return "EvaluationError"
	case errUnset:
		fallthrough
	default:
		return fmt.Sprintf("ErrorCode(%d)", code)
	}
}

// CommandError describes an aggregation failure with a fixed error code.
type CommandError struct {
	err      error
	code     ErrorCode
	argument string
}

// NewCommandError creates a new CommandError wrapping the given error.
func NewCommandError(code ErrorCode, err error) error {
	if err == nil {
		panic("err must not be nil")
	}

	return &CommandError{
		err:  err,
		code: code,
	}
}

// NewCommandErrorMsg creates a new CommandError with the given message.
func NewCommandErrorMsg(code ErrorCode, msg string) error {
	return NewCommandError(code, errors.New(msg))
}

// NewCommandErrorMsgWithArgument creates a new CommandError with the given message
// and the argument that caused it.
func NewCommandErrorMsgWithArgument(code ErrorCode, msg, argument string) error {
	return &CommandError{
		err:      errors.New(msg),
		code:     code,
		argument: argument,
	}
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.err)
}

// Code returns the error code.
func (e *CommandError) Code() ErrorCode {
	return e.code
}

// Argument returns the argument that caused the error, if recorded.
func (e *CommandError) Argument() string {
	return e.argument
}

// Unwrap implements the standard error unwrapping interface.
func (e *CommandError) Unwrap() error {
	return e.err
}

// ErrorCodeOf returns the code of err if it is a CommandError, errUnset otherwise.
func ErrorCodeOf(err error) ErrorCode {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code()
	}

	return errUnset
}
