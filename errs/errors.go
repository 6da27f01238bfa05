/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package errs classifies the failures casstor can raise so that callers
// (chiefly the CLI) can pick an exit code without string-matching errors.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the error classes from the error handling design: some
// are fatal to the current operation, BackendTransient is the only one an
// implementation may retry.
type Kind uint8

const (
	BackendUnavailable Kind = iota
	BackendTransient
	MissingBlock
	HashMismatch
	IOError
	BadInvocation
)

func (k Kind) String() string {
	switch k {
	case BackendUnavailable:
		return "BackendUnavailable"
	case BackendTransient:
		return "BackendTransient"
	case MissingBlock:
		return "MissingBlock"
	case HashMismatch:
		return "HashMismatch"
	case IOError:
		return "IOError"
	case BadInvocation:
		return "BadInvocation"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can classify it
// with errors.As without parsing messages.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// MissingBlockErr names the offset/hash a restore could not satisfy.
func MissingBlockErr(offset int64, hash string) *Error {
	return New(MissingBlock, fmt.Sprintf("offset %d: hash %s not found in block store", offset, hash))
}

// HashMismatchErr records a block whose content did not hash to its
// expected identity, the defensive check described in the error design.
func HashMismatchErr(offset int64, want, got string) *Error {
	return New(HashMismatch, fmt.Sprintf("offset %d: expected hash %s, got %s", offset, want, got))
}

// ExitCode maps a Kind to the process exit code the CLI reports.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == BadInvocation {
		return 2
	}
	return 1
}
