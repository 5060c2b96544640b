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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailfold/mailfold/internal/models"
)

// PostgresRepository persists credentials in Postgres. Secret columns
// hold the encrypted form; the repository never handles plaintext.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a credential repository backed by the
// given Postgres pool. It ensures the credential tables exist on creation.
func NewPostgresRepository(ctx context.Context, pool *pgxpool.Pool) (*PostgresRepository, error) {
	r := &PostgresRepository{pool: pool}
	if err := r.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure credentials schema: %w", err)
	}
	slog.Info("credential repository initialised")
	return r, nil
}

func (r *PostgresRepository) ensureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS password_credentials (
			email      TEXT PRIMARY KEY,
			provider   TEXT NOT NULL,
			host       TEXT NOT NULL,
			port       INTEGER NOT NULL,
			username   TEXT NOT NULL,
			password   TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS oauth_credentials (
			provider      TEXT NOT NULL,
			email         TEXT NOT NULL,
			access_token  TEXT NOT NULL,
			refresh_token TEXT DEFAULT '',
			expiry        TIMESTAMPTZ,
			created_at    TIMESTAMPTZ DEFAULT NOW(),
			updated_at    TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (provider, email)
		);
	`)
	return err
}

func (r *PostgresRepository) PutPassword(ctx context.Context, cred PasswordCredential) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO password_credentials (email, provider, host, port, username, password)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET
			provider   = EXCLUDED.provider,
			host       = EXCLUDED.host,
			port       = EXCLUDED.port,
			username   = EXCLUDED.username,
			password   = EXCLUDED.password,
			updated_at = NOW()
	`, cred.Email, cred.Provider, cred.Host, cred.Port, cred.Username, cred.Password)
	return err
}

func (r *PostgresRepository) GetPassword(ctx context.Context, email string) (*PasswordCredential, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT email, provider, host, port, username, password
		FROM password_credentials
		WHERE email = $1
	`, email)

	var cred PasswordCredential
	err := row.Scan(&cred.Email, &cred.Provider, &cred.Host, &cred.Port, &cred.Username, &cred.Password)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *PostgresRepository) DeletePassword(ctx context.Context, email string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM password_credentials WHERE email = $1
	`, email)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) ListPasswords(ctx context.Context) ([]PasswordCredential, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT email, provider, host, port, username, password
		FROM password_credentials
		ORDER BY email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []PasswordCredential
	for rows.Next() {
		var cred PasswordCredential
		if err := rows.Scan(&cred.Email, &cred.Provider, &cred.Host, &cred.Port, &cred.Username, &cred.Password); err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

func (r *PostgresRepository) PutOAuth(ctx context.Context, cred OAuthCredential) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO oauth_credentials (provider, email, access_token, refresh_token, expiry, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider, email) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expiry        = EXCLUDED.expiry,
			updated_at    = NOW()
	`, cred.Provider, cred.Email, cred.AccessToken, cred.RefreshToken, cred.Expiry, cred.CreatedAt)
	return err
}

func (r *PostgresRepository) GetOAuth(ctx context.Context, provider models.Provider, email string) (*OAuthCredential, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT provider, email, access_token, refresh_token, expiry, created_at, updated_at
		FROM oauth_credentials
		WHERE provider = $1 AND email = $2
	`, provider, email)

	var cred OAuthCredential
	err := row.Scan(&cred.Provider, &cred.Email, &cred.AccessToken, &cred.RefreshToken,
		&cred.Expiry, &cred.CreatedAt, &cred.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *PostgresRepository) DeleteOAuth(ctx context.Context, provider models.Provider, email string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM oauth_credentials WHERE provider = $1 AND email = $2
	`, provider, email)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) ListOAuth(ctx context.Context) ([]OAuthCredential, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT provider, email, access_token, refresh_token, expiry, created_at, updated_at
		FROM oauth_credentials
		ORDER BY provider, email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []OAuthCredential
	for rows.Next() {
		var cred OAuthCredential
		if err := rows.Scan(&cred.Provider, &cred.Email, &cred.AccessToken, &cred.RefreshToken,
			&cred.Expiry, &cred.CreatedAt, &cred.UpdatedAt); err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// Close is a no-op; the pool is owned by the caller.
func (r *PostgresRepository) Close() error { return nil }
