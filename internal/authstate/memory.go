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

package authstate

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the single-process Store implementation. A background
// sweep removes expired entries so the map does not grow unbounded in a
// long-running process; the sweep and Consume share one mutex, so a
// retrieve-and-delete never races the reclamation pass.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry

	done chan struct{}
	wg   sync.WaitGroup
}

// NewMemoryStore creates an in-memory state store and starts its sweep
// loop at the given interval.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	s := &MemoryStore{
		entries: make(map[string]Entry),
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.sweepLoop(sweepInterval)

	return s
}

// Put stores an entry under the state nonce.
func (s *MemoryStore) Put(_ context.Context, state string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[state] = entry
	return nil
}

// Consume retrieves and deletes an entry. A second Consume for the same
// state, or a Consume after expiry, returns ErrNotFound.
func (s *MemoryStore) Consume(_ context.Context, state string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.entries, state)

	if time.Now().After(entry.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// Close stops the sweep loop.
func (s *MemoryStore) Close() error {
	close(s.done)
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for state, entry := range s.entries {
		if now.After(entry.ExpiresAt) {
			delete(s.entries, state)
		}
	}
}
