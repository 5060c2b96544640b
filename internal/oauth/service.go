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

// Package oauth implements the authorization-code flow with PKCE for the
// mail providers, token refresh with a safety skew, and best-effort
// revocation on disconnect.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/mailfold/mailfold/internal/authstate"
	"github.com/mailfold/mailfold/internal/fault"
	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/retry"
)

// ExpirySkew is subtracted from a token's expiry when deciding whether
// it is still usable. A token inside the skew window is refreshed before
// use so a request never goes out with a token about to lapse mid-flight.
const ExpirySkew = 5 * time.Minute

// Token is the provider-agnostic token shape handed to callers. Expiry
// is absolute; a zero Expiry means the provider did not report one.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
}

// UserProfile identifies the account that completed authorization.
type UserProfile struct {
	Email string
	Name  string
}

// Service runs the OAuth flows for one provider. The endpoints come from
// golang.org/x/oauth2's provider packages; userInfoURL and revokeURL are
// the provider's non-standard extensions (revokeURL may be empty).
type Service struct {
	provider    models.Provider
	config      *oauth2.Config
	states      authstate.Store
	userInfoURL string
	revokeURL   string
	client      *http.Client
	retry       retry.Policy
	logger      *slog.Logger
}

// Config carries the per-provider settings needed to build a Service.
type Config struct {
	Provider     models.Provider
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
	RevokeURL    string
}

// NewService builds the flow runner for one provider.
func NewService(cfg Config, states authstate.Store, logger *slog.Logger) *Service {
	return &Service{
		provider: cfg.Provider,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		states:      states,
		userInfoURL: cfg.UserInfoURL,
		revokeURL:   cfg.RevokeURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		retry:       retry.Default,
		logger:      logger.With("provider", cfg.Provider),
	}
}

// Provider returns the provider this service authorizes.
func (s *Service) Provider() models.Provider { return s.provider }

// InitiateAuthorization generates a PKCE verifier and state nonce,
// records them for the callback, and returns the authorization URL. The
// verifier never leaves the server.
func (s *Service) InitiateAuthorization(ctx context.Context) (string, error) {
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	now := time.Now()
	err := s.states.Put(ctx, state, authstate.Entry{
		Provider:  s.provider,
		Verifier:  verifier,
		CreatedAt: now,
		ExpiresAt: now.Add(authstate.TTL),
	})
	if err != nil {
		return "", fmt.Errorf("record authorization state: %w", err)
	}

	authURL := s.config.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
	)

	s.logger.Info("authorization initiated", "state", state)
	return authURL, nil
}

// ConsumeState validates and consumes a callback state nonce, returning
// the PKCE verifier recorded at initiation. Unknown, expired, reused, or
// cross-provider states are all authentication failures.
func (s *Service) ConsumeState(ctx context.Context, state string) (string, error) {
	entry, err := s.states.Consume(ctx, state)
	if err != nil {
		if err == authstate.ErrNotFound {
			return "", fault.New(fault.Auth, "authorization state is invalid or expired")
		}
		return "", fmt.Errorf("consume authorization state: %w", err)
	}
	if entry.Provider != s.provider {
		return "", fault.New(fault.Auth, "authorization state is invalid or expired")
	}
	return entry.Verifier, nil
}

// ExchangeCode trades an authorization code plus its PKCE verifier for a
// token set.
func (s *Service) ExchangeCode(ctx context.Context, code, verifier string) (*Token, error) {
	tok, err := s.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, asOAuthError(s.provider, err)
	}
	return fromOAuth2Token(tok), nil
}

// Refresh obtains a fresh access token from a refresh token. Transient
// failures are retried; an invalid_grant rejection is terminal and
// returned immediately. When the provider does not rotate the refresh
// token the original one is retained in the result.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, fault.New(fault.Auth, "no refresh token available, re-authorization required")
	}

	var refreshed *oauth2.Token
	err := s.retry.Do(ctx, func() error {
		src := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		tok, err := src.Token()
		if err != nil {
			err = asOAuthError(s.provider, err)
			if IsInvalidGrant(err) {
				return retry.Permanent(err)
			}
			return err
		}
		refreshed = tok
		return nil
	})
	if err != nil {
		if IsInvalidGrant(err) {
			return nil, fault.Wrap(fault.Auth, "refresh token rejected, re-authorization required", err)
		}
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	out := fromOAuth2Token(refreshed)
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}

	s.logger.Debug("access token refreshed", "expiry", out.Expiry)
	return out, nil
}

// UserInfo fetches the authorized account's identity from the provider's
// userinfo endpoint.
func (s *Service) UserInfo(ctx context.Context, accessToken string) (*UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("userinfo returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// Google uses email/name; Microsoft Graph uses mail/displayName and
	// falls back to userPrincipalName for accounts without a mailbox
	// address set.
	var payload struct {
		Email             string `json:"email"`
		Name              string `json:"name"`
		Mail              string `json:"mail"`
		DisplayName       string `json:"displayName"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}

	email := firstNonEmpty(payload.Email, payload.Mail, payload.UserPrincipalName)
	if email == "" {
		return nil, fmt.Errorf("userinfo response contained no email address")
	}

	return &UserProfile{
		Email: strings.ToLower(email),
		Name:  firstNonEmpty(payload.Name, payload.DisplayName),
	}, nil
}

// Revoke invalidates a token at the provider. Revocation is best-effort:
// failures are logged, not returned, because local credential removal
// must not be blocked by the provider. Providers without a revocation
// endpoint (Microsoft) are a no-op.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if s.revokeURL == "" {
		s.logger.Debug("provider has no revocation endpoint, skipping")
		return nil
	}
	if token == "" {
		return nil
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		s.logger.Warn("token revocation failed", "error", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("token revocation failed", "error", err)
		return nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("token revocation rejected", "status", resp.StatusCode)
	}
	return nil
}

// NeedsRefresh reports whether a token with the given expiry should be
// refreshed before use. A zero expiry is treated as non-expiring.
func NeedsRefresh(expiry time.Time) bool {
	if expiry.IsZero() {
		return false
	}
	return time.Until(expiry) <= ExpirySkew
}

func fromOAuth2Token(tok *oauth2.Token) *Token {
	scope, _ := tok.Extra("scope").(string)
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scope:        scope,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
