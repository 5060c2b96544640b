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
	"strconv"

	"github.com/mailfold/mailfold/internal/fault"
	"github.com/mailfold/mailfold/internal/imapx"
	"github.com/mailfold/mailfold/internal/models"
)

const imapIDPrefix = "imap-"

// IMAP serves one password-authenticated account through the imapx
// client. Message IDs are the mailbox UIDs.
type IMAP struct {
	client *imapx.Client
	email  string
	logger *slog.Logger
}

// NewIMAP creates the IMAP provider for one account.
func NewIMAP(client *imapx.Client, email string, logger *slog.Logger) *IMAP {
	return &IMAP{
		client: client,
		email:  email,
		logger: logger.With("provider", models.ProviderIMAP, "email", email),
	}
}

func (p *IMAP) Info() Info {
	return Info{Provider: models.ProviderIMAP, Email: p.email}
}

// Authenticate verifies the stored password by logging in and out.
func (p *IMAP) Authenticate(ctx context.Context) error {
	return p.client.CheckLogin(ctx)
}

// Disconnect is a no-op; every operation dials its own connection.
func (p *IMAP) Disconnect(context.Context) error { return nil }

// FetchEmails lists the most recent inbox messages. IMAP search returns
// mailbox order (oldest first), so the window is taken from the tail and
// reversed to newest-first.
func (p *IMAP) FetchEmails(ctx context.Context, window models.FetchWindow, unreadOnly bool) ([]models.Email, error) {
	window = window.Normalize()

	messages, err := p.client.ListMessages(ctx, window.Skip+window.Limit, unreadOnly)
	if err != nil {
		return nil, err
	}

	emails := make([]models.Email, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		emails = append(emails, p.toEmail(&messages[i]))
	}
	if window.Skip >= len(emails) {
		return nil, nil
	}
	emails = emails[window.Skip:]

	p.logger.Debug("imap fetch complete", "returned", len(emails))
	return emails, nil
}

// GetEmailDetail fetches the full message with parsed bodies.
func (p *IMAP) GetEmailDetail(ctx context.Context, id string) (*models.Email, error) {
	uid, err := p.parseUID(id)
	if err != nil {
		return nil, err
	}

	msg, err := p.client.FetchMessage(ctx, uid)
	if err != nil {
		return nil, err
	}
	email := p.toEmail(msg)
	email.Body.Text = msg.Text
	email.Body.HTML = msg.HTML
	email.Attachments = msg.Attachments
	return &email, nil
}

// MarkAsRead toggles the \Seen flag.
func (p *IMAP) MarkAsRead(ctx context.Context, id string, read bool) error {
	uid, err := p.parseUID(id)
	if err != nil {
		return err
	}
	return p.client.SetSeen(ctx, uid, read)
}

// ArchiveEmail moves the message out of INBOX.
func (p *IMAP) ArchiveEmail(ctx context.Context, id string) error {
	uid, err := p.parseUID(id)
	if err != nil {
		return err
	}
	return p.client.Archive(ctx, uid)
}

// DeleteEmail moves the message to the trash folder.
func (p *IMAP) DeleteEmail(ctx context.Context, id string) error {
	uid, err := p.parseUID(id)
	if err != nil {
		return err
	}
	return p.client.Delete(ctx, uid)
}

func (p *IMAP) parseUID(id string) (uint32, error) {
	raw, err := stripID(id, imapIDPrefix)
	if err != nil {
		return 0, err
	}
	uid, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fault.New(fault.Validation, "email id is not a valid message identifier")
	}
	return uint32(uid), nil
}

func (p *IMAP) toEmail(msg *imapx.Message) models.Email {
	preview := msg.Text
	if len(preview) > 200 {
		preview = preview[:200]
	}
	return models.Email{
		ID:       imapIDPrefix + strconv.FormatUint(uint64(msg.UID), 10),
		Sender:   msg.From,
		Subject:  msg.Subject,
		Preview:  preview,
		Date:     msg.Date,
		IsRead:   msg.Seen,
		Provider: models.ProviderIMAP,
	}
}
