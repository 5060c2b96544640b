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

package aggregate

import (
	"sync"

	"github.com/mailfold/mailfold/internal/models"
)

// Session deduplicates messages across successive pages of one browsing
// session. Offset pagination over a live mailbox shifts under new mail,
// so the same message can reappear on a later page; Merge drops the
// repeats.
type Session struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewSession creates an empty dedup session.
func NewSession() *Session {
	return &Session{seen: make(map[string]struct{})}
}

// Merge returns the messages not seen earlier in this session, in input
// order, and records them as seen.
func (s *Session) Merge(emails []models.Email) []models.Email {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]models.Email, 0, len(emails))
	for _, email := range emails {
		if _, dup := s.seen[email.ID]; dup {
			continue
		}
		s.seen[email.ID] = struct{}{}
		fresh = append(fresh, email)
	}
	return fresh
}

// Len reports how many distinct messages the session has seen.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
