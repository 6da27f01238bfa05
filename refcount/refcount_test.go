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

package refcount

import "testing"

// TestDisabledReturnsNil covers the documented default: reference counting
// is off unless an operator opts in.
func TestDisabledReturnsNil(t *testing.T) {
	if got := New(nil, false); got != nil {
		t.Fatalf("expected New(_, false) to return nil, got %v", got)
	}
}

// TestNilTrackerIsNoOp means every pipeline call site can pass a possibly-nil
// *Tracker around without a nil check of its own.
func TestNilTrackerIsNoOp(t *testing.T) {
	var tr *Tracker
	if err := tr.Incr("deadbeef", 1024); err != nil {
		t.Fatalf("Incr on nil Tracker should be a no-op, got %v", err)
	}
	if err := tr.Decr("deadbeef", 1024); err != nil {
		t.Fatalf("Decr on nil Tracker should be a no-op, got %v", err)
	}
}
