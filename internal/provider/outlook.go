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
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mailfold/mailfold/internal/models"
)

// GraphBaseURL is the production Microsoft Graph endpoint.
const GraphBaseURL = "https://graph.microsoft.com/v1.0"

const outlookIDPrefix = "outlook-"

// Outlook serves one Microsoft account over the Graph API.
type Outlook struct {
	sess    *session
	client  *http.Client
	baseURL string
	email   string
	logger  *slog.Logger
}

// NewOutlook creates the Outlook provider for one account.
func NewOutlook(sess *session, email, baseURL string, logger *slog.Logger) *Outlook {
	return &Outlook{
		sess:    sess,
		client:  newHTTPClient(),
		baseURL: baseURL,
		email:   email,
		logger:  logger.With("provider", models.ProviderMicrosoft, "email", email),
	}
}

func (o *Outlook) Info() Info {
	return Info{Provider: models.ProviderMicrosoft, Email: o.email}
}

// Authenticate verifies the account's token against the Graph /me
// endpoint, refreshing it first when it is near expiry.
func (o *Outlook) Authenticate(ctx context.Context) error {
	token, err := o.sess.accessToken(ctx)
	if err != nil {
		return err
	}
	if err := httpJSON(ctx, o.client, http.MethodGet, o.baseURL+"/me?$select=id", token, nil, nil); err != nil {
		return fmt.Errorf("check graph identity: %w", err)
	}
	return nil
}

// Disconnect is a no-op; the Graph transport holds no connection state.
func (o *Outlook) Disconnect(context.Context) error { return nil }

type graphMessage struct {
	ID               string    `json:"id"`
	Subject          string    `json:"subject"`
	BodyPreview      string    `json:"bodyPreview"`
	IsRead           bool      `json:"isRead"`
	HasAttachments   bool      `json:"hasAttachments"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	From             *struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	Body *struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

type graphListResponse struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type graphAttachmentList struct {
	Value []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
		Size        int64  `json:"size"`
	} `json:"value"`
}

// FetchEmails lists inbox messages newest-first. Graph supports offset
// pagination directly through $skip/$top.
func (o *Outlook) FetchEmails(ctx context.Context, window models.FetchWindow, unreadOnly bool) ([]models.Email, error) {
	window = window.Normalize()

	token, err := o.sess.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("$top", strconv.Itoa(window.Limit))
	params.Set("$orderby", "receivedDateTime DESC")
	params.Set("$select", "id,subject,bodyPreview,from,isRead,hasAttachments,receivedDateTime")
	if window.Skip > 0 {
		params.Set("$skip", strconv.Itoa(window.Skip))
	}
	if unreadOnly {
		params.Set("$filter", "isRead eq false")
	}

	var list graphListResponse
	listURL := o.baseURL + "/me/mailFolders/inbox/messages?" + params.Encode()
	if err := httpJSON(ctx, o.client, http.MethodGet, listURL, token, nil, &list); err != nil {
		return nil, fmt.Errorf("list outlook messages: %w", err)
	}

	emails := make([]models.Email, 0, len(list.Value))
	for i := range list.Value {
		emails = append(emails, o.toEmail(&list.Value[i]))
	}

	o.logger.Debug("outlook fetch complete", "returned", len(emails))
	return emails, nil
}

// GetEmailDetail fetches the full message body and attachment metadata.
func (o *Outlook) GetEmailDetail(ctx context.Context, id string) (*models.Email, error) {
	raw, err := stripID(id, outlookIDPrefix)
	if err != nil {
		return nil, err
	}
	token, err := o.sess.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var msg graphMessage
	msgURL := fmt.Sprintf("%s/me/messages/%s?$select=id,subject,bodyPreview,from,isRead,hasAttachments,receivedDateTime,body",
		o.baseURL, url.PathEscape(raw))
	if err := httpJSON(ctx, o.client, http.MethodGet, msgURL, token, nil, &msg); err != nil {
		return nil, fmt.Errorf("get outlook message %s: %w", raw, err)
	}
	email := o.toEmail(&msg)

	if msg.HasAttachments {
		var attachments graphAttachmentList
		attURL := fmt.Sprintf("%s/me/messages/%s/attachments?$select=id,name,contentType,size",
			o.baseURL, url.PathEscape(raw))
		if err := httpJSON(ctx, o.client, http.MethodGet, attURL, token, nil, &attachments); err != nil {
			o.logger.Warn("failed to list attachments", "error", err)
		}
		for _, a := range attachments.Value {
			email.Attachments = append(email.Attachments, models.Attachment{
				ID:          a.ID,
				Name:        a.Name,
				ContentType: a.ContentType,
				Size:        a.Size,
			})
		}
	}
	return &email, nil
}

// MarkAsRead patches the isRead flag.
func (o *Outlook) MarkAsRead(ctx context.Context, id string, read bool) error {
	raw, err := stripID(id, outlookIDPrefix)
	if err != nil {
		return err
	}
	token, err := o.sess.accessToken(ctx)
	if err != nil {
		return err
	}

	patchURL := fmt.Sprintf("%s/me/messages/%s", o.baseURL, url.PathEscape(raw))
	if err := httpJSON(ctx, o.client, http.MethodPatch, patchURL, token, map[string]bool{"isRead": read}, nil); err != nil {
		return fmt.Errorf("mark outlook message: %w", err)
	}
	return nil
}

// ArchiveEmail moves the message to the well-known archive folder.
func (o *Outlook) ArchiveEmail(ctx context.Context, id string) error {
	return o.move(ctx, id, "archive")
}

// DeleteEmail moves the message to Deleted Items rather than issuing a
// hard delete, so the user can still recover it.
func (o *Outlook) DeleteEmail(ctx context.Context, id string) error {
	return o.move(ctx, id, "deleteditems")
}

func (o *Outlook) move(ctx context.Context, id, destination string) error {
	raw, err := stripID(id, outlookIDPrefix)
	if err != nil {
		return err
	}
	token, err := o.sess.accessToken(ctx)
	if err != nil {
		return err
	}

	moveURL := fmt.Sprintf("%s/me/messages/%s/move", o.baseURL, url.PathEscape(raw))
	body := map[string]string{"destinationId": destination}
	if err := httpJSON(ctx, o.client, http.MethodPost, moveURL, token, body, nil); err != nil {
		return fmt.Errorf("move outlook message to %s: %w", destination, err)
	}
	return nil
}

// toEmail normalizes a Graph message into the canonical model.
func (o *Outlook) toEmail(msg *graphMessage) models.Email {
	email := models.Email{
		ID:       outlookIDPrefix + msg.ID,
		Subject:  msg.Subject,
		Preview:  msg.BodyPreview,
		Date:     msg.ReceivedDateTime,
		IsRead:   msg.IsRead,
		Provider: models.ProviderMicrosoft,
	}

	if msg.From != nil {
		email.Sender = models.SenderFromParts(msg.From.EmailAddress.Name, msg.From.EmailAddress.Address)
	} else {
		email.Sender = models.SenderFromParts("", "")
	}

	if msg.Body != nil {
		if strings.EqualFold(msg.Body.ContentType, "html") {
			email.Body.HTML = msg.Body.Content
		} else {
			email.Body.Text = msg.Body.Content
		}
	}
	return email
}
