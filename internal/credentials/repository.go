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

// Package credentials persists connected-account credentials. Secrets are
// encrypted before they reach the repository; the repository itself only
// ever sees opaque strings.
package credentials

import (
	"context"
	"time"

	"github.com/mailfold/mailfold/internal/models"
)

// PasswordCredential holds the connection settings for a password-based
// (IMAP) account. Password is stored encrypted.
type PasswordCredential struct {
	Email    string          `json:"email"`
	Provider models.Provider `json:"provider"`
	Host     string          `json:"host"`
	Port     int             `json:"port"`
	Username string          `json:"username"`
	Password string          `json:"password"`
}

// OAuthCredential holds the token set for an OAuth-connected account.
// AccessToken and RefreshToken are stored encrypted.
type OAuthCredential struct {
	Provider     models.Provider `json:"provider"`
	Email        string          `json:"email"`
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	Expiry       time.Time       `json:"expiry"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Key returns the storage key for this credential. Accounts are unique
// per (provider, email) pair.
func (c OAuthCredential) Key() string {
	return string(c.Provider) + "_" + c.Email
}

// Repository is the persistence boundary for credentials. Delete methods
// report whether a record was actually removed so callers can
// distinguish deletion from an already-absent account. Get methods
// return nil, nil when the record does not exist.
type Repository interface {
	PutPassword(ctx context.Context, cred PasswordCredential) error
	GetPassword(ctx context.Context, email string) (*PasswordCredential, error)
	DeletePassword(ctx context.Context, email string) (bool, error)
	ListPasswords(ctx context.Context) ([]PasswordCredential, error)

	PutOAuth(ctx context.Context, cred OAuthCredential) error
	GetOAuth(ctx context.Context, provider models.Provider, email string) (*OAuthCredential, error)
	DeleteOAuth(ctx context.Context, provider models.Provider, email string) (bool, error)
	ListOAuth(ctx context.Context) ([]OAuthCredential, error)

	Close() error
}
