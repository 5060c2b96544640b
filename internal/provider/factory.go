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

package provider

import (
	"context"
	"log/slog"

	"github.com/mailfold/mailfold/internal/credentials"
	"github.com/mailfold/mailfold/internal/fault"
	"github.com/mailfold/mailfold/internal/imapx"
	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/oauth"
)

// Factory builds the Provider for a connected account on demand.
// Providers are cheap request-scoped values; credentials are read fresh
// per build so a disconnect takes effect immediately.
type Factory struct {
	Services     map[models.Provider]*oauth.Service
	Store        *credentials.Store
	GmailBaseURL string
	GraphBaseURL string
	Logger       *slog.Logger

	// DialIMAP is replaceable in tests.
	DialIMAP func(host string, port int, username, password string) *imapx.Client
}

// NewFactory creates a provider factory over the configured OAuth
// services and credential store.
func NewFactory(services map[models.Provider]*oauth.Service, store *credentials.Store, logger *slog.Logger) *Factory {
	return &Factory{
		Services:     services,
		Store:        store,
		GmailBaseURL: GmailBaseURL,
		GraphBaseURL: GraphBaseURL,
		Logger:       logger,
		DialIMAP:     imapx.NewClient,
	}
}

// For returns the provider serving one connected account.
func (f *Factory) For(ctx context.Context, p models.Provider, email string) (Provider, error) {
	switch p {
	case models.ProviderGoogle:
		svc, ok := f.Services[models.ProviderGoogle]
		if !ok {
			return nil, fault.New(fault.Validation, "google provider is not enabled")
		}
		sess := newSession(svc, f.Store, email, f.Logger)
		return NewGmail(sess, email, f.GmailBaseURL, f.Logger), nil

	case models.ProviderMicrosoft:
		svc, ok := f.Services[models.ProviderMicrosoft]
		if !ok {
			return nil, fault.New(fault.Validation, "microsoft provider is not enabled")
		}
		sess := newSession(svc, f.Store, email, f.Logger)
		return NewOutlook(sess, email, f.GraphBaseURL, f.Logger), nil

	case models.ProviderIMAP:
		cred, err := f.Store.GetPassword(ctx, email)
		if err != nil {
			return nil, err
		}
		if cred == nil {
			return nil, fault.New(fault.NotFound, "account is not connected")
		}
		client := f.DialIMAP(cred.Host, cred.Port, cred.Username, cred.Password)
		return NewIMAP(client, email, f.Logger), nil

	default:
		return nil, fault.New(fault.Validation, "unsupported provider")
	}
}
