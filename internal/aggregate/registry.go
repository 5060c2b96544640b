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
	"time"

	"github.com/google/uuid"
)

// SessionTTL is how long an idle browsing session keeps its seen-set.
const SessionTTL = 30 * time.Minute

// SessionRegistry tracks the dedup session of each browsing client. Idle
// sessions are reclaimed by a background sweep.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry

	done chan struct{}
	wg   sync.WaitGroup
}

type sessionEntry struct {
	session  *Session
	lastSeen time.Time
}

// NewSessionRegistry creates a registry and starts its sweep loop.
func NewSessionRegistry(sweepInterval time.Duration) *SessionRegistry {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	r := &SessionRegistry{
		sessions: make(map[string]*sessionEntry),
		done:     make(chan struct{}),
	}

	r.wg.Add(1)
	go r.sweepLoop(sweepInterval)

	return r
}

// Get returns the session for an id, creating a fresh one when the id is
// empty or unknown (an expired id silently becomes a new session). The
// returned id is what the client passes on its next page request.
func (r *SessionRegistry) Get(id string) (*Session, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if entry, ok := r.sessions[id]; ok {
			entry.lastSeen = time.Now()
			return entry.session, id
		}
	}

	id = uuid.NewString()
	session := NewSession()
	r.sessions[id] = &sessionEntry{session: session, lastSeen: time.Now()}
	return session, id
}

// Close stops the sweep loop.
func (r *SessionRegistry) Close() error {
	close(r.done)
	r.wg.Wait()
	return nil
}

func (r *SessionRegistry) sweepLoop(interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.sweep(time.Now())
		}
	}
}

func (r *SessionRegistry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, entry := range r.sessions {
		if now.Sub(entry.lastSeen) > SessionTTL {
			delete(r.sessions, id)
		}
	}
}
