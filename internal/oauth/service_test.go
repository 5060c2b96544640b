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

package oauth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/mailfold/mailfold/internal/authstate"
	"github.com/mailfold/mailfold/internal/fault"
	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, provider models.Provider, tokenURL, userInfoURL, revokeURL string) (*Service, *authstate.MemoryStore) {
	t.Helper()

	states := authstate.NewMemoryStore(time.Hour)
	t.Cleanup(func() { states.Close() })

	svc := NewService(Config{
		Provider:     provider,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/callback",
		Scopes:       []string{"mail.read"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://provider.example/authorize",
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		UserInfoURL: userInfoURL,
		RevokeURL:   revokeURL,
	}, states, testLogger())

	// Fast retries so failure paths don't slow the suite down.
	svc.retry = retry.Policy{Attempts: 3, Delay: time.Millisecond, MaxDelay: time.Millisecond}
	return svc, states
}

func TestInitiateAuthorization(t *testing.T) {
	svc, _ := newTestService(t, models.ProviderGoogle, "https://provider.example/token", "", "")

	authURL, err := svc.InitiateAuthorization(context.Background())
	if err != nil {
		t.Fatalf("InitiateAuthorization: %v", err)
	}

	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth URL: %v", err)
	}
	query := parsed.Query()

	state := query.Get("state")
	if state == "" {
		t.Fatal("auth URL missing state parameter")
	}
	if query.Get("code_challenge") == "" {
		t.Error("auth URL missing PKCE code challenge")
	}
	if query.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q, want S256", query.Get("code_challenge_method"))
	}
	if query.Get("access_type") != "offline" {
		t.Errorf("access_type = %q, want offline", query.Get("access_type"))
	}

	// The verifier must never appear in the outbound URL.
	verifier, err := svc.ConsumeState(context.Background(), state)
	if err != nil {
		t.Fatalf("ConsumeState: %v", err)
	}
	if strings.Contains(authURL, verifier) {
		t.Error("PKCE verifier leaked into the authorization URL")
	}
}

func TestConsumeStateIsOneTime(t *testing.T) {
	svc, _ := newTestService(t, models.ProviderGoogle, "https://provider.example/token", "", "")

	authURL, err := svc.InitiateAuthorization(context.Background())
	if err != nil {
		t.Fatalf("InitiateAuthorization: %v", err)
	}
	parsed, _ := url.Parse(authURL)
	state := parsed.Query().Get("state")

	if _, err := svc.ConsumeState(context.Background(), state); err != nil {
		t.Fatalf("first ConsumeState: %v", err)
	}
	_, err = svc.ConsumeState(context.Background(), state)
	if !fault.IsKind(err, fault.Auth) {
		t.Fatalf("second ConsumeState error = %v, want auth fault", err)
	}
}

func TestConsumeStateRejectsCrossProvider(t *testing.T) {
	states := authstate.NewMemoryStore(time.Hour)
	defer states.Close()

	google := NewService(Config{
		Provider: models.ProviderGoogle,
		Endpoint: oauth2.Endpoint{AuthURL: "https://g.example/auth", TokenURL: "https://g.example/token"},
	}, states, testLogger())
	microsoft := NewService(Config{
		Provider: models.ProviderMicrosoft,
		Endpoint: oauth2.Endpoint{AuthURL: "https://m.example/auth", TokenURL: "https://m.example/token"},
	}, states, testLogger())

	authURL, err := google.InitiateAuthorization(context.Background())
	if err != nil {
		t.Fatalf("InitiateAuthorization: %v", err)
	}
	parsed, _ := url.Parse(authURL)
	state := parsed.Query().Get("state")

	_, err = microsoft.ConsumeState(context.Background(), state)
	if !fault.IsKind(err, fault.Auth) {
		t.Fatalf("cross-provider ConsumeState error = %v, want auth fault", err)
	}
}

func TestExchangeCodeSendsVerifier(t *testing.T) {
	var gotVerifier, gotGrantType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotVerifier = r.FormValue("code_verifier")
		gotGrantType = r.FormValue("grant_type")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer ts.Close()

	svc, _ := newTestService(t, models.ProviderGoogle, ts.URL, "", "")

	tok, err := svc.ExchangeCode(context.Background(), "auth-code", "the-verifier")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if gotGrantType != "authorization_code" {
		t.Errorf("grant_type = %q, want authorization_code", gotGrantType)
	}
	if gotVerifier != "the-verifier" {
		t.Errorf("code_verifier = %q, want the-verifier", gotVerifier)
	}
	if tok.AccessToken != "at-1" || tok.RefreshToken != "rt-1" {
		t.Errorf("token = %+v, want at-1/rt-1", tok)
	}
	if tok.Expiry.IsZero() {
		t.Error("token expiry not set from expires_in")
	}
}

func TestRefreshRetainsRefreshTokenWhenNotRotated(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		// No refresh_token in the response: provider did not rotate.
		w.Write([]byte(`{"access_token":"at-new","token_type":"Bearer","expires_in":3600}`))
	}))
	defer ts.Close()

	svc, _ := newTestService(t, models.ProviderGoogle, ts.URL, "", "")

	tok, err := svc.Refresh(context.Background(), "rt-original")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if calls != 1 {
		t.Errorf("token endpoint calls = %d, want 1", calls)
	}
	if tok.AccessToken != "at-new" {
		t.Errorf("AccessToken = %q, want at-new", tok.AccessToken)
	}
	if tok.RefreshToken != "rt-original" {
		t.Errorf("RefreshToken = %q, want retained rt-original", tok.RefreshToken)
	}
}

func TestRefreshAdoptsRotatedRefreshToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-new","refresh_token":"rt-rotated","token_type":"Bearer","expires_in":3600}`))
	}))
	defer ts.Close()

	svc, _ := newTestService(t, models.ProviderMicrosoft, ts.URL, "", "")

	tok, err := svc.Refresh(context.Background(), "rt-original")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tok.RefreshToken != "rt-rotated" {
		t.Errorf("RefreshToken = %q, want rt-rotated", tok.RefreshToken)
	}
}

func TestRefreshInvalidGrantIsTerminal(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been revoked"}`))
	}))
	defer ts.Close()

	svc, _ := newTestService(t, models.ProviderGoogle, ts.URL, "", "")

	_, err := svc.Refresh(context.Background(), "rt-revoked")
	if !fault.IsKind(err, fault.Auth) {
		t.Fatalf("Refresh error = %v, want auth fault", err)
	}
	if calls != 1 {
		t.Errorf("token endpoint calls = %d, want 1 (invalid_grant must not be retried)", calls)
	}
}

func TestRefreshRetriesTransientFailures(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-new","token_type":"Bearer","expires_in":3600}`))
	}))
	defer ts.Close()

	svc, _ := newTestService(t, models.ProviderGoogle, ts.URL, "", "")

	tok, err := svc.Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if calls != 3 {
		t.Errorf("token endpoint calls = %d, want 3", calls)
	}
	if tok.AccessToken != "at-new" {
		t.Errorf("AccessToken = %q, want at-new", tok.AccessToken)
	}
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	svc, _ := newTestService(t, models.ProviderGoogle, "https://provider.example/token", "", "")

	_, err := svc.Refresh(context.Background(), "")
	if !fault.IsKind(err, fault.Auth) {
		t.Fatalf("Refresh error = %v, want auth fault", err)
	}
}

func TestNeedsRefresh(t *testing.T) {
	cases := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"expires in two minutes", time.Now().Add(2 * time.Minute), true},
		{"already expired", time.Now().Add(-time.Minute), true},
		{"exactly at skew boundary", time.Now().Add(ExpirySkew - time.Second), true},
		{"expires in an hour", time.Now().Add(time.Hour), false},
		{"zero expiry never refreshes", time.Time{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NeedsRefresh(tc.expiry); got != tc.want {
				t.Errorf("NeedsRefresh = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUserInfoGoogleShape(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer at-1" {
			t.Errorf("Authorization = %q, want Bearer at-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"email":"User@Example.com","name":"Example User"}`))
	}))
	defer ts.Close()

	svc, _ := newTestService(t, models.ProviderGoogle, "https://provider.example/token", ts.URL, "")

	profile, err := svc.UserInfo(context.Background(), "at-1")
	if err != nil {
		t.Fatalf("UserInfo: %v", err)
	}
	if profile.Email != "user@example.com" {
		t.Errorf("Email = %q, want lowercased user@example.com", profile.Email)
	}
	if profile.Name != "Example User" {
		t.Errorf("Name = %q, want Example User", profile.Name)
	}
}

func TestUserInfoGraphShape(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"mail":"user@contoso.com","displayName":"Contoso User","userPrincipalName":"user_contoso.com#EXT"}`))
	}))
	defer ts.Close()

	svc, _ := newTestService(t, models.ProviderMicrosoft, "https://provider.example/token", ts.URL, "")

	profile, err := svc.UserInfo(context.Background(), "at-1")
	if err != nil {
		t.Fatalf("UserInfo: %v", err)
	}
	if profile.Email != "user@contoso.com" {
		t.Errorf("Email = %q, want user@contoso.com", profile.Email)
	}
	if profile.Name != "Contoso User" {
		t.Errorf("Name = %q, want Contoso User", profile.Name)
	}
}

func TestUserInfoFallsBackToPrincipalName(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"displayName":"No Mailbox","userPrincipalName":"upn@contoso.com"}`))
	}))
	defer ts.Close()

	svc, _ := newTestService(t, models.ProviderMicrosoft, "https://provider.example/token", ts.URL, "")

	profile, err := svc.UserInfo(context.Background(), "at-1")
	if err != nil {
		t.Fatalf("UserInfo: %v", err)
	}
	if profile.Email != "upn@contoso.com" {
		t.Errorf("Email = %q, want upn@contoso.com", profile.Email)
	}
}

func TestRevokeBestEffort(t *testing.T) {
	revoked := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.FormValue("token") == "rt-1" {
			revoked = true
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	svc, _ := newTestService(t, models.ProviderGoogle, "https://provider.example/token", "", ts.URL)
	if err := svc.Revoke(context.Background(), "rt-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !revoked {
		t.Error("revocation endpoint was not called")
	}

	// No endpoint configured: a no-op, not an error.
	noRevoke, _ := newTestService(t, models.ProviderMicrosoft, "https://provider.example/token", "", "")
	if err := noRevoke.Revoke(context.Background(), "rt-1"); err != nil {
		t.Fatalf("Revoke without endpoint: %v", err)
	}

	// An endpoint so broken the request cannot even be built is still
	// best-effort: logged, never returned.
	broken, _ := newTestService(t, models.ProviderGoogle, "https://provider.example/token", "", "https://bad host.example/revoke")
	if err := broken.Revoke(context.Background(), "rt-1"); err != nil {
		t.Fatalf("Revoke with unusable endpoint: %v", err)
	}
}
