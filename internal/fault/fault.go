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

// Package fault defines the caller-facing error taxonomy. Internal detail
// (provider error bodies, wrapped causes) stays attached for logging but
// only the category and a generic message cross the API boundary.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorises an error for external callers.
type Kind int

const (
	Internal Kind = iota
	Validation
	Auth
	NotFound
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation_error"
	case Auth:
		return "authentication_error"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

// Error carries a public category and message plus the wrapped internal
// cause. The cause is for logs only.
type Error struct {
	Kind Kind
	Msg  string // generic, safe to expose
	Err  error  // internal detail, never exposed
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a taxonomy error without an internal cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a taxonomy category to an internal error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the category from an error chain, defaulting to
// Internal for unclassified errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// PublicMessage returns the message safe to expose to callers.
func PublicMessage(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Msg != "" {
		return fe.Msg
	}
	return "an internal error occurred"
}

// IsKind reports whether err carries the given category.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
