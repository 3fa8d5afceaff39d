// This file is part of btags.
//
// btags is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// btags is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with btags.  If not, see <https://www.gnu.org/licenses/>.

// Package btest is a tiny hand-rolled assertion helper, in the spirit
// of the teacher's own internal test package: no third-party
// assertion library, just a handful of ExpectX functions that call
// t.Errorf with a useful message.
package btest

import (
	"math"
	"reflect"
	"testing"
)

// ExpectEquality fails the test if got != want.
func ExpectEquality(t *testing.T, got, want interface{}) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected value: got %#v, want %#v", got, want)
	}
}

// ExpectInequality fails the test if got == want.
func ExpectInequality(t *testing.T, got, want interface{}) {
	t.Helper()
	if reflect.DeepEqual(got, want) {
		t.Errorf("unexpected equality: got %#v, want anything but %#v", got, want)
	}
}

// ExpectApproximate fails the test unless got and want are within tolerance.
func ExpectApproximate(t *testing.T, got, want, tolerance float64) {
	t.Helper()
	if math.Abs(got-want) > tolerance {
		t.Errorf("unexpected value: got %v, want %v (+/- %v)", got, want, tolerance)
	}
}

// ExpectSuccess fails the test if v is a non-nil error or false.
func ExpectSuccess(t *testing.T, v interface{}) {
	t.Helper()
	switch x := v.(type) {
	case error:
		if x != nil {
			t.Errorf("unexpected error: %v", x)
		}
	case bool:
		if !x {
			t.Errorf("unexpected failure")
		}
	case nil:
		// fine
	default:
		t.Errorf("ExpectSuccess: unsupported type %T", v)
	}
}

// ExpectFailure fails the test if v is a nil error or true.
func ExpectFailure(t *testing.T, v interface{}) {
	t.Helper()
	switch x := v.(type) {
	case error:
		if x == nil {
			t.Errorf("expected an error, got nil")
		}
	case bool:
		if x {
			t.Errorf("expected failure, got success")
		}
	default:
		t.Errorf("ExpectFailure: unsupported type %T", v)
	}
}

// Equate is an alias for ExpectEquality, kept for parity with the
// teacher's older test.Equate name used by some of its packages.
func Equate(t *testing.T, got, want interface{}) {
	t.Helper()
	ExpectEquality(t, got, want)
}
