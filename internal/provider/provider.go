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

// Package provider adapts each mail backend (Gmail REST, Microsoft
// Graph, IMAP) to one common interface over the canonical email model.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mailfold/mailfold/internal/credentials"
	"github.com/mailfold/mailfold/internal/fault"
	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/oauth"
)

// Provider is one connected account's view of its mailbox. Email IDs are
// prefixed with the provider tag ("gmail-", "outlook-", "imap-") so they
// stay unique across accounts in an aggregated listing; operations
// accept the prefixed form.
type Provider interface {
	Info() Info
	// Authenticate verifies the stored credentials are still usable,
	// refreshing tokens where the transport supports it.
	Authenticate(ctx context.Context) error
	FetchEmails(ctx context.Context, window models.FetchWindow, unreadOnly bool) ([]models.Email, error)
	GetEmailDetail(ctx context.Context, id string) (*models.Email, error)
	MarkAsRead(ctx context.Context, id string, read bool) error
	ArchiveEmail(ctx context.Context, id string) error
	DeleteEmail(ctx context.Context, id string) error
	// Disconnect releases transport resources. Credential removal and
	// token revocation are handled elsewhere.
	Disconnect(ctx context.Context) error
}

// Info identifies the account a Provider serves.
type Info struct {
	Provider models.Provider
	Email    string
}

// stripID removes the expected provider prefix from an email ID.
func stripID(id, prefix string) (string, error) {
	raw, ok := strings.CutPrefix(id, prefix)
	if !ok || raw == "" {
		return "", fault.New(fault.Validation, "email id does not belong to this provider")
	}
	return raw, nil
}

// session holds the per-account OAuth state and refreshes the access
// token before use when it is inside the expiry skew. Refreshed tokens
// are written back to the credential store so the next request starts
// from the new expiry.
type session struct {
	svc    *oauth.Service
	store  *credentials.Store
	email  string
	logger *slog.Logger
}

func newSession(svc *oauth.Service, store *credentials.Store, email string, logger *slog.Logger) *session {
	return &session{svc: svc, store: store, email: email, logger: logger}
}

// accessToken returns a usable access token for the account, refreshing
// first when the stored one expires within the skew window.
func (s *session) accessToken(ctx context.Context) (string, error) {
	cred, err := s.store.GetOAuth(ctx, s.svc.Provider(), s.email)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", fault.New(fault.NotFound, "account is not connected")
	}

	if !oauth.NeedsRefresh(cred.Expiry) {
		return cred.AccessToken, nil
	}

	if cred.RefreshToken == "" {
		return "", fault.New(fault.Auth, "access token expired and no refresh token is available, re-authorization required")
	}

	s.logger.Debug("refreshing access token", "email", s.email, "expiry", cred.Expiry)
	tok, err := s.svc.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return "", err
	}

	err = s.store.SetOAuth(ctx, credentials.OAuthCredential{
		Provider:     s.svc.Provider(),
		Email:        s.email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	})
	if err != nil {
		// The refreshed token is still good for this request.
		s.logger.Warn("failed to persist refreshed token", "email", s.email, "error", err)
	}

	return tok.AccessToken, nil
}

// httpJSON performs an authenticated JSON request against a provider
// REST API and decodes the response into out (which may be nil).
func httpJSON(ctx context.Context, client *http.Client, method, url, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusFault(resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusFault maps a provider HTTP status to the error taxonomy. The
// provider's response body goes into the wrapped cause for logging; the
// public message stays generic.
func statusFault(status int, detail string) error {
	cause := fmt.Errorf("provider returned status %d: %s", status, detail)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fault.Wrap(fault.Auth, "provider rejected credentials", cause)
	case http.StatusNotFound:
		return fault.Wrap(fault.NotFound, "message not found", cause)
	case http.StatusBadRequest:
		return fault.Wrap(fault.Validation, "provider rejected request", cause)
	default:
		return fault.Wrap(fault.Internal, "provider request failed", cause)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
