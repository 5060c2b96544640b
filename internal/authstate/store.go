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

// Package authstate provides the short-lived, one-time-use correlation
// between an outbound authorization request and its callback. A state
// nonce is bound to a PKCE verifier and target provider; retrieval
// consumes the entry, and expired entries are reclaimed.
package authstate

import (
	"context"
	"errors"
	"time"

	"github.com/mailfold/mailfold/internal/models"
)

// TTL is the lifetime of an authorization state entry.
const TTL = 10 * time.Minute

// ErrNotFound is returned when a state is missing, expired, or was
// already consumed.
var ErrNotFound = errors.New("authorization state not found")

// Entry binds a state nonce to the PKCE verifier and provider that
// initiated the authorization attempt.
type Entry struct {
	Provider  models.Provider `json:"provider"`
	Verifier  string          `json:"verifier"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Store persists authorization state entries. Implementations must make
// Consume atomic: a state value is accepted at most once, and only
// before its expiry.
type Store interface {
	Put(ctx context.Context, state string, entry Entry) error
	Consume(ctx context.Context, state string) (*Entry, error)
	Close() error
}
