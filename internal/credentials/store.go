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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mailfold/mailfold/internal/crypto"
	"github.com/mailfold/mailfold/internal/fault"
	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/oauth"
)

// Account is the secret-free view of a connected account, safe to return
// from listing and status endpoints.
type Account struct {
	Provider models.Provider `json:"provider"`
	Email    string          `json:"email"`
}

// OAuthStatus describes the health of an OAuth connection without
// exposing token material.
type OAuthStatus struct {
	Provider  models.Provider `json:"provider"`
	Email     string          `json:"email"`
	Expiry    time.Time       `json:"expiry"`
	IsExpired bool            `json:"isExpired"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store is the credential service: it validates input, encrypts secrets
// before they reach the Repository, and decrypts on the way out.
type Store struct {
	repo   Repository
	cipher *crypto.Cipher
	logger *slog.Logger
}

// NewStore wraps a repository with the encryption layer.
func NewStore(repo Repository, cipher *crypto.Cipher, logger *slog.Logger) *Store {
	return &Store{repo: repo, cipher: cipher, logger: logger}
}

// StorePassword validates and saves a password-based account. Saving an
// account that already exists is a conflict; the caller decides whether
// to treat that as an update via Remove first.
func (s *Store) StorePassword(ctx context.Context, cred PasswordCredential) error {
	if err := validatePassword(cred); err != nil {
		return err
	}
	cred.Email = strings.ToLower(cred.Email)

	exists, err := s.HasPassword(ctx, cred.Email)
	if err != nil {
		return err
	}
	if exists {
		return fault.New(fault.Conflict, "account is already connected")
	}

	encrypted, err := s.cipher.Encrypt(cred.Password)
	if err != nil {
		return fmt.Errorf("encrypt password: %w", err)
	}
	cred.Password = encrypted

	if err := s.repo.PutPassword(ctx, cred); err != nil {
		return fmt.Errorf("store password credential: %w", err)
	}

	s.logger.Info("password account stored", "email", cred.Email, "host", cred.Host)
	return nil
}

// GetPassword returns a password credential with the password decrypted.
// Values stored before encryption was enabled are passed through
// unchanged. Returns nil, nil when the account is not connected.
func (s *Store) GetPassword(ctx context.Context, email string) (*PasswordCredential, error) {
	cred, err := s.repo.GetPassword(ctx, strings.ToLower(email))
	if err != nil {
		return nil, fmt.Errorf("load password credential: %w", err)
	}
	if cred == nil {
		return nil, nil
	}
	cred.Password = s.cipher.DecryptIfNeeded(cred.Password)
	return cred, nil
}

// HasPassword reports whether a password credential exists for the
// email, without decrypting anything.
func (s *Store) HasPassword(ctx context.Context, email string) (bool, error) {
	cred, err := s.repo.GetPassword(ctx, strings.ToLower(email))
	if err != nil {
		return false, fmt.Errorf("check password credential: %w", err)
	}
	return cred != nil, nil
}

// HasOAuth reports whether an OAuth credential exists for the account,
// without decrypting anything.
func (s *Store) HasOAuth(ctx context.Context, provider models.Provider, email string) (bool, error) {
	cred, err := s.repo.GetOAuth(ctx, provider, strings.ToLower(email))
	if err != nil {
		return false, fmt.Errorf("check oauth credential: %w", err)
	}
	return cred != nil, nil
}

// SetOAuth saves an OAuth token set for an account, encrypting both
// tokens. Re-authorization of an existing account overwrites its tokens
// but keeps the original CreatedAt.
func (s *Store) SetOAuth(ctx context.Context, cred OAuthCredential) error {
	if cred.Email == "" {
		return fault.New(fault.Validation, "email is required")
	}
	if cred.AccessToken == "" {
		return fault.New(fault.Validation, "access token is required")
	}
	cred.Email = strings.ToLower(cred.Email)

	now := time.Now()
	cred.UpdatedAt = now
	cred.CreatedAt = now
	if existing, err := s.repo.GetOAuth(ctx, cred.Provider, cred.Email); err == nil && existing != nil {
		cred.CreatedAt = existing.CreatedAt
	}

	encAccess, err := s.cipher.Encrypt(cred.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	cred.AccessToken = encAccess

	if cred.RefreshToken != "" {
		encRefresh, err := s.cipher.Encrypt(cred.RefreshToken)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		cred.RefreshToken = encRefresh
	}

	if err := s.repo.PutOAuth(ctx, cred); err != nil {
		return fmt.Errorf("store oauth credential: %w", err)
	}

	s.logger.Info("oauth account stored", "provider", cred.Provider, "email", cred.Email)
	return nil
}

// GetOAuth returns an OAuth credential with tokens decrypted. Token
// material that fails to decrypt is an authentication failure, never
// silently passed through: a garbage access token must not be sent to a
// provider. Returns nil, nil when the account is not connected.
func (s *Store) GetOAuth(ctx context.Context, provider models.Provider, email string) (*OAuthCredential, error) {
	cred, err := s.repo.GetOAuth(ctx, provider, strings.ToLower(email))
	if err != nil {
		return nil, fmt.Errorf("load oauth credential: %w", err)
	}
	if cred == nil {
		return nil, nil
	}

	access, err := s.cipher.Decrypt(cred.AccessToken)
	if err != nil {
		return nil, fault.Wrap(fault.Auth, "stored credentials are unreadable, re-authorization required", err)
	}
	cred.AccessToken = access

	if cred.RefreshToken != "" {
		refresh, err := s.cipher.Decrypt(cred.RefreshToken)
		if err != nil {
			return nil, fault.Wrap(fault.Auth, "stored credentials are unreadable, re-authorization required", err)
		}
		cred.RefreshToken = refresh
	}
	return cred, nil
}

// Remove deletes an account's credentials. Returns a not-found fault
// when the account was not connected.
func (s *Store) Remove(ctx context.Context, provider models.Provider, email string) error {
	email = strings.ToLower(email)

	var (
		removed bool
		err     error
	)
	if provider == models.ProviderIMAP {
		removed, err = s.repo.DeletePassword(ctx, email)
	} else {
		removed, err = s.repo.DeleteOAuth(ctx, provider, email)
	}
	if err != nil {
		return fmt.Errorf("remove credential: %w", err)
	}
	if !removed {
		return fault.New(fault.NotFound, "account is not connected")
	}

	s.logger.Info("account removed", "provider", provider, "email", email)
	return nil
}

// ListAccounts returns every connected account without any secret
// material.
func (s *Store) ListAccounts(ctx context.Context) ([]Account, error) {
	oauth, err := s.repo.ListOAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("list oauth credentials: %w", err)
	}
	passwords, err := s.repo.ListPasswords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list password credentials: %w", err)
	}

	accounts := make([]Account, 0, len(oauth)+len(passwords))
	for _, cred := range oauth {
		accounts = append(accounts, Account{Provider: cred.Provider, Email: cred.Email})
	}
	for _, cred := range passwords {
		accounts = append(accounts, Account{Provider: cred.Provider, Email: cred.Email})
	}
	return accounts, nil
}

// ListOAuthStatus returns the connection health of every OAuth account.
// IsExpired applies the same skew as the refresh path, so a token the
// next fetch would refresh already reports as expired. No token material
// is included.
func (s *Store) ListOAuthStatus(ctx context.Context) ([]OAuthStatus, error) {
	creds, err := s.repo.ListOAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("list oauth credentials: %w", err)
	}

	statuses := make([]OAuthStatus, 0, len(creds))
	for _, cred := range creds {
		statuses = append(statuses, OAuthStatus{
			Provider:  cred.Provider,
			Email:     cred.Email,
			Expiry:    cred.Expiry,
			IsExpired: oauth.NeedsRefresh(cred.Expiry),
			CreatedAt: cred.CreatedAt,
			UpdatedAt: cred.UpdatedAt,
		})
	}
	return statuses, nil
}

// Close releases the underlying repository.
func (s *Store) Close() error { return s.repo.Close() }

func validatePassword(cred PasswordCredential) error {
	switch {
	case cred.Email == "":
		return fault.New(fault.Validation, "email is required")
	case !strings.Contains(cred.Email, "@"):
		return fault.New(fault.Validation, "email is not a valid address")
	case cred.Host == "":
		return fault.New(fault.Validation, "host is required")
	case cred.Port <= 0 || cred.Port > 65535:
		return fault.New(fault.Validation, "port must be between 1 and 65535")
	case cred.Username == "":
		return fault.New(fault.Validation, "username is required")
	case cred.Password == "":
		return fault.New(fault.Validation, "password is required")
	}
	return nil
}
