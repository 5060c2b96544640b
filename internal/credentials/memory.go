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

package credentials

import (
	"context"
	"sort"
	"sync"

	"github.com/mailfold/mailfold/internal/models"
)

// MemoryRepository is the in-process Repository used in development and
// tests, when no DATABASE_URL is configured.
type MemoryRepository struct {
	mu        sync.RWMutex
	passwords map[string]PasswordCredential
	oauth     map[string]OAuthCredential
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		passwords: make(map[string]PasswordCredential),
		oauth:     make(map[string]OAuthCredential),
	}
}

func (r *MemoryRepository) PutPassword(_ context.Context, cred PasswordCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passwords[cred.Email] = cred
	return nil
}

func (r *MemoryRepository) GetPassword(_ context.Context, email string) (*PasswordCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.passwords[email]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (r *MemoryRepository) DeletePassword(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.passwords[email]
	delete(r.passwords, email)
	return ok, nil
}

func (r *MemoryRepository) ListPasswords(_ context.Context) ([]PasswordCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	creds := make([]PasswordCredential, 0, len(r.passwords))
	for _, cred := range r.passwords {
		creds = append(creds, cred)
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].Email < creds[j].Email })
	return creds, nil
}

func (r *MemoryRepository) PutOAuth(_ context.Context, cred OAuthCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oauth[cred.Key()] = cred
	return nil
}

func (r *MemoryRepository) GetOAuth(_ context.Context, provider models.Provider, email string) (*OAuthCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.oauth[string(provider)+"_"+email]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (r *MemoryRepository) DeleteOAuth(_ context.Context, provider models.Provider, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := string(provider) + "_" + email
	_, ok := r.oauth[key]
	delete(r.oauth, key)
	return ok, nil
}

func (r *MemoryRepository) ListOAuth(_ context.Context) ([]OAuthCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	creds := make([]OAuthCredential, 0, len(r.oauth))
	for _, cred := range r.oauth {
		creds = append(creds, cred)
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].Key() < creds[j].Key() })
	return creds, nil
}

func (r *MemoryRepository) Close() error { return nil }
