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

// Package aggregate fans a fetch out across every connected account and
// merges the results into one timestamp-ordered inbox page.
package aggregate

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mailfold/mailfold/internal/credentials"
	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/provider"
)

// DefaultAccountTimeout bounds how long one slow account can hold up an
// aggregated fetch.
const DefaultAccountTimeout = 25 * time.Second

// ProviderFactory builds the provider for one connected account.
type ProviderFactory interface {
	For(ctx context.Context, p models.Provider, email string) (provider.Provider, error)
}

// Result is one aggregated inbox page.
type Result struct {
	Emails []models.Email `json:"emails"`
	// HasMore reports whether the connected accounts produced more
	// messages than the requested page.
	HasMore bool `json:"hasMore"`
	// PartialFailure is set when at least one account failed while
	// others succeeded; the page then holds the union of the survivors.
	PartialFailure bool `json:"partialFailure"`
	// Total is the number of messages collected across accounts before
	// the page window was applied.
	Total int `json:"total"`
}

// Aggregator coordinates the multi-account fetch.
type Aggregator struct {
	factory        ProviderFactory
	store          *credentials.Store
	accountTimeout time.Duration
	logger         *slog.Logger
}

// New creates an aggregator over the connected accounts.
func New(factory ProviderFactory, store *credentials.Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		factory:        factory,
		store:          store,
		accountTimeout: DefaultAccountTimeout,
		logger:         logger,
	}
}

// FetchAll fetches from every connected account concurrently and merges
// the results newest-first. An account that fails is skipped and flagged
// rather than failing the page; the error surface of one provider never
// empties the whole inbox.
func (a *Aggregator) FetchAll(ctx context.Context, window models.FetchWindow, unreadOnly bool) (*Result, error) {
	window = window.Clamp()

	accounts, err := a.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return &Result{Emails: []models.Email{}}, nil
	}

	// Each account contributes up to skip+limit messages so the merged
	// page is correct at any offset.
	perAccount := models.FetchWindow{Limit: window.Skip + window.Limit}

	type fetchResult struct {
		account credentials.Account
		emails  []models.Email
		err     error
	}

	results := make(chan fetchResult, len(accounts))
	var wg sync.WaitGroup

	for _, account := range accounts {
		wg.Add(1)
		go func(account credentials.Account) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, a.accountTimeout)
			defer cancel()

			emails, err := a.fetchOne(fetchCtx, account, perAccount, unreadOnly)
			results <- fetchResult{account: account, emails: emails, err: err}
		}(account)
	}
	wg.Wait()
	close(results)

	var (
		merged  []models.Email
		failed  int
		succeed int
	)
	for r := range results {
		if r.err != nil {
			failed++
			a.logger.Warn("account fetch failed",
				"provider", r.account.Provider,
				"email", r.account.Email,
				"error", r.err)
			continue
		}
		succeed++
		merged = append(merged, r.emails...)
	}

	sortEmails(merged)

	result := &Result{
		Total:          len(merged),
		PartialFailure: failed > 0,
	}

	if window.Skip >= len(merged) {
		result.Emails = []models.Email{}
		return result, nil
	}
	merged = merged[window.Skip:]

	result.HasMore = len(merged) > window.Limit
	if result.HasMore {
		merged = merged[:window.Limit]
	}
	result.Emails = merged

	a.logger.Info("aggregated fetch complete",
		"accounts", len(accounts),
		"failed", failed,
		"returned", len(result.Emails),
		"hasMore", result.HasMore)
	return result, nil
}

// FetchAccount fetches one account's page directly; unlike FetchAll the
// account's failure is the caller's failure.
func (a *Aggregator) FetchAccount(ctx context.Context, p models.Provider, email string, window models.FetchWindow, unreadOnly bool) ([]models.Email, error) {
	window = window.Clamp()

	emails, err := a.fetchOne(ctx, credentials.Account{Provider: p, Email: email}, window, unreadOnly)
	if err != nil {
		return nil, err
	}
	sortEmails(emails)
	return emails, nil
}

func (a *Aggregator) fetchOne(ctx context.Context, account credentials.Account, window models.FetchWindow, unreadOnly bool) ([]models.Email, error) {
	prov, err := a.factory.For(ctx, account.Provider, account.Email)
	if err != nil {
		return nil, err
	}
	return prov.FetchEmails(ctx, window, unreadOnly)
}

// sortEmails orders newest-first, with the ID as a stable tie-break so
// equal timestamps keep a deterministic order across requests.
func sortEmails(emails []models.Email) {
	sort.SliceStable(emails, func(i, j int) bool {
		if !emails[i].Date.Equal(emails[j].Date) {
			return emails[i].Date.After(emails[j].Date)
		}
		return emails[i].ID < emails[j].ID
	})
}
