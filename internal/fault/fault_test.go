// Copyright (c) 2026 John Earle
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

package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	if got := KindOf(New(Validation, "bad input")); got != Validation {
		t.Errorf("KindOf = %v, want Validation", got)
	}
	if got := KindOf(errors.New("plain")); got != Internal {
		t.Errorf("KindOf(plain) = %v, want Internal", got)
	}
	if got := KindOf(nil); got != Internal {
		t.Errorf("KindOf(nil) = %v, want Internal", got)
	}

	// The kind survives wrapping by callers.
	wrapped := fmt.Errorf("while connecting: %w", New(Auth, "token rejected"))
	if got := KindOf(wrapped); got != Auth {
		t.Errorf("KindOf(wrapped) = %v, want Auth", got)
	}
}

func TestPublicMessageHidesInternalDetail(t *testing.T) {
	cause := errors.New("pq: connection refused on 10.0.0.5:5432")
	err := Wrap(Internal, "storage unavailable", cause)

	if got := PublicMessage(err); got != "storage unavailable" {
		t.Errorf("PublicMessage = %q", got)
	}
	if got := PublicMessage(cause); got != "an internal error occurred" {
		t.Errorf("PublicMessage(raw cause) = %q, want generic", got)
	}

	// The cause is still reachable for logging.
	if !errors.Is(err, cause) {
		t.Error("wrapped cause lost from the chain")
	}
}

func TestIsKind(t *testing.T) {
	err := New(NotFound, "missing")
	if !IsKind(err, NotFound) {
		t.Error("IsKind(NotFound) = false")
	}
	if IsKind(err, Conflict) {
		t.Error("IsKind(Conflict) = true")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		Internal:   "internal_error",
		Validation: "validation_error",
		Auth:       "authentication_error",
		NotFound:   "not_found",
		Conflict:   "conflict",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
