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

package models

import (
	"net/mail"
	"strings"
)

// Fallback values used when sender parsing fails. Callers always receive
// a populated {name, email} pair, never the raw unparsed form.
const (
	UnknownSenderName  = "Unknown Sender"
	UnknownSenderEmail = "unknown@example.com"
)

// ParseSender normalises a free-text sender header into an EmailAddress.
// It handles the "Name <addr>" form, bare addresses, and name-only
// values, falling back to placeholder values rather than failing.
func ParseSender(raw string) EmailAddress {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return EmailAddress{Name: UnknownSenderName, Email: UnknownSenderEmail}
	}

	if addr, err := mail.ParseAddress(raw); err == nil {
		return SenderFromParts(addr.Name, addr.Address)
	}

	// Unparseable. A bare string containing "@" is treated as an address,
	// anything else as a display name.
	if strings.Contains(raw, "@") {
		return EmailAddress{Name: UnknownSenderName, Email: raw}
	}
	return EmailAddress{Name: raw, Email: UnknownSenderEmail}
}

// SenderFromParts normalises an already-structured sender, applying the
// same fallbacks as ParseSender for missing fields.
func SenderFromParts(name, email string) EmailAddress {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		name = UnknownSenderName
	}
	if email == "" {
		email = UnknownSenderEmail
	}
	return EmailAddress{Name: name, Email: email}
}
