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

// Package models defines the data structures shared across the unified
// inbox core: the canonical email record, pagination windows, and
// provider identities.
package models

import (
	"time"

	"github.com/mailfold/mailfold/internal/fault"
)

// Provider identifies the identity provider namespace a credential or
// message belongs to. It is distinct from the user-facing mailbox brand.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
	ProviderIMAP      Provider = "imap"
)

// ParseProvider validates a provider tag received from an external
// caller. An unknown tag is the caller's mistake, so the error carries
// the validation kind rather than reading as an internal failure.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderGoogle, ProviderMicrosoft, ProviderIMAP:
		return Provider(s), nil
	}
	return "", fault.New(fault.Validation, "unsupported provider")
}

// EmailAddress represents a sender or recipient with an address and
// optional display name.
type EmailAddress struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// EmailBody holds the message body parts. Either part may be empty;
// the first occurrence of each content type wins during normalization.
type EmailBody struct {
	Text string `json:"text,omitempty"`
	HTML string `json:"html,omitempty"`
}

// Attachment represents metadata for a file attached to an email.
// Content bytes are never carried through the aggregate pipeline.
type Attachment struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Email is the canonical, provider-agnostic message record. IDs carry a
// provider-derived prefix so records never collide when merged across
// accounts.
type Email struct {
	ID          string       `json:"id"`
	Sender      EmailAddress `json:"sender"`
	Subject     string       `json:"subject"`
	Preview     string       `json:"preview"`
	Body        EmailBody    `json:"body"`
	Date        time.Time    `json:"date"`
	IsRead      bool         `json:"is_read"`
	Provider    Provider     `json:"provider"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

const (
	// DefaultFetchLimit is used when a caller omits the page size.
	DefaultFetchLimit = 50

	// MaxFetchLimit is the server-enforced upper bound on page size.
	MaxFetchLimit = 100
)

// FetchWindow describes one page of a provider fetch.
type FetchWindow struct {
	Limit int `json:"limit"`
	Skip  int `json:"skip"`
}

// Clamp normalises a window to the server-enforced bounds. It applies
// to caller-facing windows only; internal fan-out windows that must
// cover a deep offset use Normalize instead.
func (w FetchWindow) Clamp() FetchWindow {
	w = w.Normalize()
	if w.Limit > MaxFetchLimit {
		w.Limit = MaxFetchLimit
	}
	return w
}

// Normalize fills defaults without imposing the caller-facing maximum.
// The aggregator asks each account for skip+limit messages, which may
// legitimately exceed MaxFetchLimit at deep offsets.
func (w FetchWindow) Normalize() FetchWindow {
	if w.Limit <= 0 {
		w.Limit = DefaultFetchLimit
	}
	if w.Skip < 0 {
		w.Skip = 0
	}
	return w
}
