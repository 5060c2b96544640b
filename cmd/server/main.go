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

// Mailfold — Unified Inbox Service
//
// Entry point for the inbox service. It:
//  1. Loads configuration from config.yaml and environment variables
//  2. Connects to PostgreSQL and Redis (in-memory fallbacks for dev)
//  3. Builds the OAuth flow runners for the enabled providers
//  4. Serves the inbox API: auth flows, accounts, aggregated email
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/mailfold/mailfold/internal/aggregate"
	"github.com/mailfold/mailfold/internal/api"
	"github.com/mailfold/mailfold/internal/authstate"
	"github.com/mailfold/mailfold/internal/config"
	"github.com/mailfold/mailfold/internal/credentials"
	"github.com/mailfold/mailfold/internal/crypto"
	"github.com/mailfold/mailfold/internal/models"
	"github.com/mailfold/mailfold/internal/oauth"
	"github.com/mailfold/mailfold/internal/provider"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	googleRevokeURL   = "https://oauth2.googleapis.com/revoke"
	graphUserInfoURL  = "https://graph.microsoft.com/v1.0/me"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting mailfold inbox service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"environment", cfg.Environment,
		"google_enabled", cfg.Google.Enabled(),
		"microsoft_enabled", cfg.Microsoft.Enabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Credential Cipher ---
	secret := cfg.EncryptionSecret
	if secret == "" {
		// Development only: credentials stored under an ephemeral key
		// become unreadable after restart.
		secret = ephemeralSecret()
		slog.Warn("ENCRYPTION_SECRET not set, using ephemeral key — stored credentials will not survive a restart")
	}
	cipher, err := crypto.NewCipher(secret)
	if err != nil {
		slog.Error("failed to initialise cipher", "error", err)
		os.Exit(1)
	}

	// --- Credential Repository (Postgres or in-memory) ---
	var repo credentials.Repository
	var pgPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pgPool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")

		repo, err = credentials.NewPostgresRepository(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise credential repository", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory credential store")
		repo = credentials.NewMemoryRepository()
	}

	store := credentials.NewStore(repo, cipher, logger)
	defer store.Close()

	// --- Authorization State Store (Redis or in-memory) ---
	var states authstate.Store
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")
		defer rdb.Close()

		states = authstate.NewRedisStore(rdb)
	} else {
		slog.Warn("REDIS_URL not set, using in-memory authorization state store")
		states = authstate.NewMemoryStore(time.Minute)
	}
	defer states.Close()

	// --- OAuth Services per provider ---
	services := make(map[models.Provider]*oauth.Service)
	if cfg.Google.Enabled() {
		services[models.ProviderGoogle] = oauth.NewService(oauth.Config{
			Provider:     models.ProviderGoogle,
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/gmail.modify",
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint:    google.Endpoint,
			UserInfoURL: googleUserInfoURL,
			RevokeURL:   googleRevokeURL,
		}, states, logger)
	}
	if cfg.Microsoft.Enabled() {
		services[models.ProviderMicrosoft] = oauth.NewService(oauth.Config{
			Provider:     models.ProviderMicrosoft,
			ClientID:     cfg.Microsoft.ClientID,
			ClientSecret: cfg.Microsoft.ClientSecret,
			RedirectURL:  cfg.Microsoft.RedirectURL,
			Scopes: []string{
				"offline_access",
				"https://graph.microsoft.com/Mail.ReadWrite",
				"https://graph.microsoft.com/User.Read",
			},
			Endpoint:    microsoft.AzureADEndpoint("common"),
			UserInfoURL: graphUserInfoURL,
			// Microsoft has no token revocation endpoint.
		}, states, logger)
	}
	if len(services) == 0 {
		slog.Warn("no oauth providers configured — only IMAP accounts can connect")
	}

	// --- Providers and Aggregator ---
	factory := provider.NewFactory(services, store, logger)
	aggregator := aggregate.New(factory, store, logger)

	// --- API Server ---
	handler := api.NewHandler(services, store, aggregator, factory, logger)
	defer handler.Close()
	ready, err := api.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start api server", "error", err)
		os.Exit(1)
	}
	<-ready
	slog.Info("inbox service ready", "port", cfg.Port)

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()

	// Give in-flight requests a moment to drain.
	time.Sleep(500 * time.Millisecond)
	slog.Info("inbox service stopped")
}

// ephemeralSecret generates a random one-process encryption key.
func ephemeralSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		slog.Error("failed to generate ephemeral secret", "error", err)
		os.Exit(1)
	}
	return hex.EncodeToString(buf)
}
