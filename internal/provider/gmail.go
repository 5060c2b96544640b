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
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mailfold/mailfold/internal/models"
)

// GmailBaseURL is the production Gmail REST endpoint.
const GmailBaseURL = "https://gmail.googleapis.com/gmail/v1"

const gmailIDPrefix = "gmail-"

// gmailDetailWorkers bounds the parallel per-message detail fetches
// behind a list call.
const gmailDetailWorkers = 5

// Gmail serves one Google account over the Gmail REST API.
type Gmail struct {
	sess    *session
	client  *http.Client
	baseURL string
	email   string
	logger  *slog.Logger
}

// NewGmail creates the Gmail provider for one account.
func NewGmail(sess *session, email, baseURL string, logger *slog.Logger) *Gmail {
	return &Gmail{
		sess:    sess,
		client:  newHTTPClient(),
		baseURL: baseURL,
		email:   email,
		logger:  logger.With("provider", models.ProviderGoogle, "email", email),
	}
}

func (g *Gmail) Info() Info {
	return Info{Provider: models.ProviderGoogle, Email: g.email}
}

// Authenticate verifies the account's token against the Gmail profile
// endpoint, refreshing it first when it is near expiry.
func (g *Gmail) Authenticate(ctx context.Context) error {
	token, err := g.sess.accessToken(ctx)
	if err != nil {
		return err
	}
	profileURL := g.baseURL + "/users/me/profile"
	if err := httpJSON(ctx, g.client, http.MethodGet, profileURL, token, nil, nil); err != nil {
		return fmt.Errorf("check gmail profile: %w", err)
	}
	return nil
}

// Disconnect is a no-op; the Gmail transport holds no connection state.
func (g *Gmail) Disconnect(context.Context) error { return nil }

// Gmail list calls return only message IDs; the message content comes
// from per-ID detail requests.
type gmailListResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	NextPageToken      string `json:"nextPageToken"`
	ResultSizeEstimate int    `json:"resultSizeEstimate"`
}

type gmailMessage struct {
	ID           string        `json:"id"`
	Snippet      string        `json:"snippet"`
	LabelIDs     []string      `json:"labelIds"`
	InternalDate string        `json:"internalDate"`
	Payload      *gmailPayload `json:"payload"`
}

type gmailPayload struct {
	MimeType string        `json:"mimeType"`
	Filename string        `json:"filename"`
	Headers  []gmailHeader `json:"headers"`
	Body     *gmailBody    `json:"body"`
	Parts    []gmailPayload `json:"parts"`
}

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailBody struct {
	AttachmentID string `json:"attachmentId"`
	Size         int64  `json:"size"`
	Data         string `json:"data"`
}

// FetchEmails lists messages newest-first. Gmail paginates by token, not
// offset, so an offset window is satisfied by requesting skip+limit
// messages and discarding the first skip.
func (g *Gmail) FetchEmails(ctx context.Context, window models.FetchWindow, unreadOnly bool) ([]models.Email, error) {
	window = window.Normalize()

	token, err := g.sess.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("maxResults", strconv.Itoa(window.Skip+window.Limit))
	params.Add("labelIds", "INBOX")
	if unreadOnly {
		params.Add("labelIds", "UNREAD")
	}

	var list gmailListResponse
	listURL := g.baseURL + "/users/me/messages?" + params.Encode()
	if err := httpJSON(ctx, g.client, http.MethodGet, listURL, token, nil, &list); err != nil {
		return nil, fmt.Errorf("list gmail messages: %w", err)
	}

	ids := make([]string, 0, len(list.Messages))
	for i, m := range list.Messages {
		if i < window.Skip {
			continue
		}
		ids = append(ids, m.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	emails, err := g.fetchDetails(ctx, token, ids)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("gmail fetch complete", "requested", len(ids), "returned", len(emails))
	return emails, nil
}

// fetchDetails resolves message IDs to full emails with a bounded worker
// pool, preserving the list order.
func (g *Gmail) fetchDetails(ctx context.Context, token string, ids []string) ([]models.Email, error) {
	type result struct {
		index int
		email *models.Email
		err   error
	}

	sem := make(chan struct{}, gmailDetailWorkers)
	results := make(chan result, len(ids))
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func(index int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			email, err := g.getMessage(ctx, token, id, "metadata")
			results <- result{index: index, email: email, err: err}
		}(i, id)
	}
	wg.Wait()
	close(results)

	emails := make([]*models.Email, len(ids))
	for r := range results {
		if r.err != nil {
			// One unreadable message should not sink the whole page.
			g.logger.Warn("failed to fetch gmail message", "error", r.err)
			continue
		}
		emails[r.index] = r.email
	}

	out := make([]models.Email, 0, len(ids))
	for _, e := range emails {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

// GetEmailDetail fetches the full message, including decoded bodies and
// attachment metadata.
func (g *Gmail) GetEmailDetail(ctx context.Context, id string) (*models.Email, error) {
	raw, err := stripID(id, gmailIDPrefix)
	if err != nil {
		return nil, err
	}

	token, err := g.sess.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return g.getMessage(ctx, token, raw, "full")
}

func (g *Gmail) getMessage(ctx context.Context, token, id, format string) (*models.Email, error) {
	var msg gmailMessage
	msgURL := fmt.Sprintf("%s/users/me/messages/%s?format=%s", g.baseURL, url.PathEscape(id), format)
	if err := httpJSON(ctx, g.client, http.MethodGet, msgURL, token, nil, &msg); err != nil {
		return nil, fmt.Errorf("get gmail message %s: %w", id, err)
	}
	email := g.toEmail(&msg)
	return &email, nil
}

// MarkAsRead toggles the UNREAD label.
func (g *Gmail) MarkAsRead(ctx context.Context, id string, read bool) error {
	raw, err := stripID(id, gmailIDPrefix)
	if err != nil {
		return err
	}
	token, err := g.sess.accessToken(ctx)
	if err != nil {
		return err
	}

	body := map[string][]string{}
	if read {
		body["removeLabelIds"] = []string{"UNREAD"}
	} else {
		body["addLabelIds"] = []string{"UNREAD"}
	}

	modifyURL := fmt.Sprintf("%s/users/me/messages/%s/modify", g.baseURL, url.PathEscape(raw))
	if err := httpJSON(ctx, g.client, http.MethodPost, modifyURL, token, body, nil); err != nil {
		return fmt.Errorf("modify gmail labels: %w", err)
	}
	return nil
}

// ArchiveEmail removes the message from the inbox by dropping its INBOX
// label; the message itself survives in All Mail.
func (g *Gmail) ArchiveEmail(ctx context.Context, id string) error {
	raw, err := stripID(id, gmailIDPrefix)
	if err != nil {
		return err
	}
	token, err := g.sess.accessToken(ctx)
	if err != nil {
		return err
	}

	body := map[string][]string{"removeLabelIds": {"INBOX"}}
	modifyURL := fmt.Sprintf("%s/users/me/messages/%s/modify", g.baseURL, url.PathEscape(raw))
	if err := httpJSON(ctx, g.client, http.MethodPost, modifyURL, token, body, nil); err != nil {
		return fmt.Errorf("archive gmail message: %w", err)
	}
	return nil
}

// DeleteEmail moves the message to trash. Trash is recoverable, so this
// is the delete the inbox exposes; permanent deletion stays out of reach.
func (g *Gmail) DeleteEmail(ctx context.Context, id string) error {
	raw, err := stripID(id, gmailIDPrefix)
	if err != nil {
		return err
	}
	token, err := g.sess.accessToken(ctx)
	if err != nil {
		return err
	}

	trashURL := fmt.Sprintf("%s/users/me/messages/%s/trash", g.baseURL, url.PathEscape(raw))
	if err := httpJSON(ctx, g.client, http.MethodPost, trashURL, token, nil, nil); err != nil {
		return fmt.Errorf("trash gmail message: %w", err)
	}
	return nil
}

// toEmail normalizes a Gmail message into the canonical model.
func (g *Gmail) toEmail(msg *gmailMessage) models.Email {
	email := models.Email{
		ID:       gmailIDPrefix + msg.ID,
		Preview:  msg.Snippet,
		Provider: models.ProviderGoogle,
		IsRead:   true,
		Sender:   models.ParseSender(headerValue(msg.Payload, "From")),
		Subject:  headerValue(msg.Payload, "Subject"),
	}

	for _, label := range msg.LabelIDs {
		if label == "UNREAD" {
			email.IsRead = false
		}
	}

	// internalDate is epoch milliseconds as a string.
	if ms, err := strconv.ParseInt(msg.InternalDate, 10, 64); err == nil {
		email.Date = time.UnixMilli(ms).UTC()
	}

	if msg.Payload != nil {
		collectGmailParts(*msg.Payload, &email)
	}
	return email
}

func headerValue(payload *gmailPayload, name string) string {
	if payload == nil {
		return ""
	}
	for _, h := range payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// collectGmailParts walks the MIME tree collecting text bodies and
// attachment metadata.
func collectGmailParts(part gmailPayload, email *models.Email) {
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentID != "" {
		email.Attachments = append(email.Attachments, models.Attachment{
			ID:          part.Body.AttachmentID,
			Name:        part.Filename,
			ContentType: part.MimeType,
			Size:        part.Body.Size,
		})
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		if decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(part.Body.Data); err == nil {
			switch {
			case strings.HasPrefix(part.MimeType, "text/plain") && email.Body.Text == "":
				email.Body.Text = string(decoded)
			case strings.HasPrefix(part.MimeType, "text/html") && email.Body.HTML == "":
				email.Body.HTML = string(decoded)
			}
		}
	}

	for _, child := range part.Parts {
		collectGmailParts(child, email)
	}
}
