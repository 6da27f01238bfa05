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

package errs

import (
	"errors"
	"testing"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{New(BadInvocation, "bad verb"), 2},
		{New(IOError, "disk full"), 1},
		{New(MissingBlock, "gone"), 1},
		{errors.New("unrelated error"), 1},
	}
	for _, c := range cases {
		if got := ExitCode(c.err); got != c.want {
			t.Errorf("ExitCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := Wrap(BackendTransient, "retry me", cause)
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
	var e *Error
	if !errors.As(wrapped, &e) || e.Kind != BackendTransient {
		t.Fatalf("expected errors.As to recover the Kind")
	}
}

func TestMissingBlockErr(t *testing.T) {
	err := MissingBlockErr(128, "deadbeef")
	var e *Error
	if !errors.As(err, &e) || e.Kind != MissingBlock {
		t.Fatalf("expected MissingBlock kind, got %v", err)
	}
}
