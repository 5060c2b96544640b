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

// Package api exposes the unified inbox over HTTP: OAuth connect flows,
// account management, and the aggregated email operations.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mailfold/mailfold/internal/aggregate"
	"github.com/mailfold/mailfold/internal/credentials"
	"github.com/mailfold/mailfold/internal/fault"
	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/oauth"
	"github.com/mailfold/mailfold/internal/provider"
)

// Handler serves the inbox API.
type Handler struct {
	services   map[models.Provider]*oauth.Service
	store      *credentials.Store
	aggregator *aggregate.Aggregator
	factory    *provider.Factory
	sessions   *aggregate.SessionRegistry
	logger     *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(
	services map[models.Provider]*oauth.Service,
	store *credentials.Store,
	aggregator *aggregate.Aggregator,
	factory *provider.Factory,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		services:   services,
		store:      store,
		aggregator: aggregator,
		factory:    factory,
		sessions:   aggregate.NewSessionRegistry(time.Minute),
		logger:     logger,
	}
}

// Close stops the handler's background work.
func (h *Handler) Close() error {
	return h.sessions.Close()
}

// Routes registers every endpoint on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.handleHealth)

	mux.HandleFunc("GET /auth/{provider}/initiate", h.handleInitiate)
	mux.HandleFunc("GET /auth/{provider}/callback", h.handleCallback)
	mux.HandleFunc("GET /auth/status", h.handleAuthStatus)

	mux.HandleFunc("GET /accounts", h.handleListAccounts)
	mux.HandleFunc("POST /accounts/imap", h.handleAddIMAP)
	mux.HandleFunc("DELETE /accounts/{provider}/{email}", h.handleDisconnect)

	mux.HandleFunc("GET /emails", h.handleFetchAll)
	mux.HandleFunc("GET /accounts/{provider}/{email}/emails", h.handleFetchAccount)
	mux.HandleFunc("GET /accounts/{provider}/{email}/emails/{id}", h.handleEmailDetail)
	mux.HandleFunc("POST /accounts/{provider}/{email}/emails/{id}/read", h.handleMarkRead)
	mux.HandleFunc("POST /accounts/{provider}/{email}/emails/{id}/archive", h.handleArchive)
	mux.HandleFunc("DELETE /accounts/{provider}/{email}/emails/{id}", h.handleDeleteEmail)

	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) serviceFor(r *http.Request) (*oauth.Service, error) {
	p, err := models.ParseProvider(r.PathValue("provider"))
	if err != nil {
		return nil, err
	}
	svc, ok := h.services[p]
	if !ok {
		return nil, fault.New(fault.Validation, "provider does not support oauth or is not enabled")
	}
	return svc, nil
}

// handleInitiate starts the authorization flow. Only the authorization
// URL leaves the server; the PKCE verifier stays in the state store.
func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	svc, err := h.serviceFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	authURL, err := svc.InitiateAuthorization(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": authURL})
}

// handleCallback completes the authorization flow: consume the state,
// exchange the code, resolve the account identity, store the tokens.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	svc, err := h.serviceFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		h.writeError(w, r, fault.New(fault.Auth, "authorization was denied"))
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		h.writeError(w, r, fault.New(fault.Validation, "code and state are required"))
		return
	}

	verifier, err := svc.ConsumeState(r.Context(), state)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	tok, err := svc.ExchangeCode(r.Context(), code, verifier)
	if err != nil {
		h.writeError(w, r, fault.Wrap(fault.Auth, "authorization code exchange failed", err))
		return
	}

	profile, err := svc.UserInfo(r.Context(), tok.AccessToken)
	if err != nil {
		h.writeError(w, r, fault.Wrap(fault.Auth, "could not resolve account identity", err))
		return
	}

	err = h.store.SetOAuth(r.Context(), credentials.OAuthCredential{
		Provider:     svc.Provider(),
		Email:        profile.Email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("account connected", "provider", svc.Provider(), "email", profile.Email)
	writeJSON(w, http.StatusOK, map[string]string{
		"provider": string(svc.Provider()),
		"email":    profile.Email,
	})
}

func (h *Handler) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.store.ListOAuthStatus(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": statuses})
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.ListAccounts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// handleAddIMAP connects a password-authenticated account. Adding an
// account that is already connected is a conflict.
func (h *Handler) handleAddIMAP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fault.New(fault.Validation, "request body is not valid JSON"))
		return
	}

	err := h.store.StorePassword(r.Context(), credentials.PasswordCredential{
		Email:    req.Email,
		Provider: models.ProviderIMAP,
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"provider": string(models.ProviderIMAP),
		"email":    req.Email,
	})
}

// handleDisconnect removes an account. Provider-side revocation is
// best-effort; local credential removal is what the success response
// reports. Disconnecting an unknown account is a 404.
func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	p, err := models.ParseProvider(r.PathValue("provider"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	email := r.PathValue("email")

	if svc, ok := h.services[p]; ok {
		if cred, err := h.store.GetOAuth(r.Context(), p, email); err == nil && cred != nil {
			token := cred.AccessToken
			if token == "" {
				token = cred.RefreshToken
			}
			_ = svc.Revoke(r.Context(), token)
		}
	}

	if err := h.store.Remove(r.Context(), p, email); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (h *Handler) handleFetchAll(w http.ResponseWriter, r *http.Request) {
	window, unread, err := fetchParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.aggregator.FetchAll(r.Context(), window, unread)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if !r.URL.Query().Has("session") {
		writeJSON(w, http.StatusOK, result)
		return
	}

	// Paging with a session drops records an earlier page already
	// returned, so offset drift between pages never shows a duplicate.
	// An empty or expired session id starts a fresh session.
	session, id := h.sessions.Get(r.URL.Query().Get("session"))
	result.Emails = session.Merge(result.Emails)
	writeJSON(w, http.StatusOK, sessionResult{
		Result:    result,
		SessionID: id,
		NewCount:  len(result.Emails),
	})
}

// sessionResult is the fetch response when the client opted in to
// session deduplication.
type sessionResult struct {
	*aggregate.Result
	SessionID string `json:"sessionId"`
	NewCount  int    `json:"newCount"`
}

func (h *Handler) handleFetchAccount(w http.ResponseWriter, r *http.Request) {
	p, err := models.ParseProvider(r.PathValue("provider"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	window, unread, err := fetchParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	emails, err := h.aggregator.FetchAccount(r.Context(), p, r.PathValue("email"), window, unread)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"emails": emails})
}

func (h *Handler) handleEmailDetail(w http.ResponseWriter, r *http.Request) {
	prov, err := h.providerFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	email, err := prov.GetEmailDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, email)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	prov, err := h.providerFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Absent body defaults to marking read.
	req := struct {
		Read *bool `json:"read"`
	}{}
	_ = json.NewDecoder(r.Body).Decode(&req)
	read := req.Read == nil || *req.Read

	if err := prov.MarkAsRead(r.Context(), r.PathValue("id"), read); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": read})
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	prov, err := h.providerFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := prov.ArchiveEmail(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (h *Handler) handleDeleteEmail(w http.ResponseWriter, r *http.Request) {
	prov, err := h.providerFor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := prov.DeleteEmail(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) providerFor(r *http.Request) (provider.Provider, error) {
	p, err := models.ParseProvider(r.PathValue("provider"))
	if err != nil {
		return nil, err
	}
	return h.factory.For(r.Context(), p, r.PathValue("email"))
}

// fetchParams reads the paging query parameters. Out-of-range values are
// clamped rather than rejected; only non-numeric input is an error.
func fetchParams(r *http.Request) (models.FetchWindow, bool, error) {
	window := models.FetchWindow{Limit: models.DefaultFetchLimit}
	query := r.URL.Query()

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return window, false, fault.New(fault.Validation, "limit must be an integer")
		}
		window.Limit = limit
	}
	if raw := query.Get("skip"); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil {
			return window, false, fault.New(fault.Validation, "skip must be an integer")
		}
		window.Skip = skip
	}

	return window.Clamp(), query.Get("unread") == "true", nil
}

// writeError maps an error to its HTTP status. The generic public
// message goes to the client; the full cause chain goes to the log.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := fault.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case fault.Validation:
		status = http.StatusBadRequest
	case fault.Auth:
		status = http.StatusUnauthorized
	case fault.NotFound:
		status = http.StatusNotFound
	case fault.Conflict:
		status = http.StatusConflict
	}

	h.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"kind", kind.String(),
		"error", err)

	writeJSON(w, status, map[string]string{"error": fault.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
