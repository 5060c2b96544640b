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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mailfold/mailfold/internal/fault"
	"github.com/mailfold/mailfold/internal/models"
)

func TestOutlookFetchEmails(t *testing.T) {
	tokens := newTestTokenServer(t)
	sess, _ := newOAuthFixture(t, models.ProviderMicrosoft, "user@contoso.com", time.Now().Add(time.Hour), tokens.URL)

	var gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /me/mailFolders/inbox/messages", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{
					"id":               "o1",
					"subject":          "First",
					"bodyPreview":      "preview one",
					"isRead":           false,
					"receivedDateTime": "2026-08-20T10:00:00Z",
					"from": map[string]any{
						"emailAddress": map[string]string{"name": "Jane", "address": "jane@contoso.com"},
					},
				},
				{
					"id":               "o2",
					"subject":          "Second",
					"bodyPreview":      "preview two",
					"isRead":           true,
					"receivedDateTime": "2026-08-19T10:00:00Z",
				},
			},
		})
	})
	api := httptest.NewServer(mux)
	defer api.Close()

	o := NewOutlook(sess, "user@contoso.com", api.URL, discardLogger())

	emails, err := o.FetchEmails(context.Background(), models.FetchWindow{Limit: 25, Skip: 50}, false)
	if err != nil {
		t.Fatalf("FetchEmails: %v", err)
	}

	if !containsParam(gotQuery, "%24top=25") {
		t.Errorf("query = %q, want $top=25", gotQuery)
	}
	if !containsParam(gotQuery, "%24skip=50") {
		t.Errorf("query = %q, want $skip=50", gotQuery)
	}

	if len(emails) != 2 {
		t.Fatalf("len(emails) = %d, want 2", len(emails))
	}
	first := emails[0]
	if first.ID != "outlook-o1" {
		t.Errorf("ID = %q, want outlook-o1", first.ID)
	}
	if first.IsRead {
		t.Error("o1 isRead=false, want IsRead=false")
	}
	if first.Sender.Name != "Jane" || first.Sender.Email != "jane@contoso.com" {
		t.Errorf("Sender = %+v", first.Sender)
	}

	// A message without a from block gets the placeholder sender.
	second := emails[1]
	if second.Sender.Name != models.UnknownSenderName || second.Sender.Email != models.UnknownSenderEmail {
		t.Errorf("missing-from Sender = %+v, want placeholders", second.Sender)
	}
}

func TestOutlookUnreadFilter(t *testing.T) {
	tokens := newTestTokenServer(t)
	sess, _ := newOAuthFixture(t, models.ProviderMicrosoft, "user@contoso.com", time.Now().Add(time.Hour), tokens.URL)

	var gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /me/mailFolders/inbox/messages", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
	})
	api := httptest.NewServer(mux)
	defer api.Close()

	o := NewOutlook(sess, "user@contoso.com", api.URL, discardLogger())
	if _, err := o.FetchEmails(context.Background(), models.FetchWindow{Limit: 10}, true); err != nil {
		t.Fatalf("FetchEmails: %v", err)
	}
	if !containsParam(gotQuery, "%24filter=isRead+eq+false") {
		t.Errorf("query = %q, want $filter=isRead eq false", gotQuery)
	}
}

func TestOutlookMarkAsRead(t *testing.T) {
	tokens := newTestTokenServer(t)
	sess, _ := newOAuthFixture(t, models.ProviderMicrosoft, "user@contoso.com", time.Now().Add(time.Hour), tokens.URL)

	var gotBody map[string]bool
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	})
	api := httptest.NewServer(mux)
	defer api.Close()

	o := NewOutlook(sess, "user@contoso.com", api.URL, discardLogger())
	if err := o.MarkAsRead(context.Background(), "outlook-o1", true); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}
	if !gotBody["isRead"] {
		t.Errorf("patch body = %v, want isRead=true", gotBody)
	}
}

func TestOutlookArchiveAndDeleteDestinations(t *testing.T) {
	tokens := newTestTokenServer(t)
	sess, _ := newOAuthFixture(t, models.ProviderMicrosoft, "user@contoso.com", time.Now().Add(time.Hour), tokens.URL)

	var destinations []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /me/messages/{id}/move", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		destinations = append(destinations, body["destinationId"])
		w.Write([]byte(`{}`))
	})
	api := httptest.NewServer(mux)
	defer api.Close()

	o := NewOutlook(sess, "user@contoso.com", api.URL, discardLogger())
	if err := o.ArchiveEmail(context.Background(), "outlook-o1"); err != nil {
		t.Fatalf("ArchiveEmail: %v", err)
	}
	if err := o.DeleteEmail(context.Background(), "outlook-o1"); err != nil {
		t.Fatalf("DeleteEmail: %v", err)
	}

	if len(destinations) != 2 || destinations[0] != "archive" || destinations[1] != "deleteditems" {
		t.Errorf("move destinations = %v, want [archive deleteditems]", destinations)
	}
}

func TestOutlookDetailIncludesAttachments(t *testing.T) {
	tokens := newTestTokenServer(t)
	sess, _ := newOAuthFixture(t, models.ProviderMicrosoft, "user@contoso.com", time.Now().Add(time.Hour), tokens.URL)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":               "o1",
			"subject":          "With attachment",
			"isRead":           true,
			"hasAttachments":   true,
			"receivedDateTime": "2026-08-20T10:00:00Z",
			"body":             map[string]string{"contentType": "html", "content": "<p>hi</p>"},
		})
	})
	mux.HandleFunc("GET /me/messages/{id}/attachments", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"id": "a1", "name": "report.pdf", "contentType": "application/pdf", "size": 1234},
			},
		})
	})
	api := httptest.NewServer(mux)
	defer api.Close()

	o := NewOutlook(sess, "user@contoso.com", api.URL, discardLogger())
	email, err := o.GetEmailDetail(context.Background(), "outlook-o1")
	if err != nil {
		t.Fatalf("GetEmailDetail: %v", err)
	}
	if email.Body.HTML != "<p>hi</p>" {
		t.Errorf("Body.HTML = %q", email.Body.HTML)
	}
	if len(email.Attachments) != 1 {
		t.Fatalf("len(Attachments) = %d, want 1", len(email.Attachments))
	}
	att := email.Attachments[0]
	if att.Name != "report.pdf" || att.Size != 1234 {
		t.Errorf("attachment = %+v", att)
	}
}

func TestOutlookAuthFaultOn401(t *testing.T) {
	tokens := newTestTokenServer(t)
	sess, _ := newOAuthFixture(t, models.ProviderMicrosoft, "user@contoso.com", time.Now().Add(time.Hour), tokens.URL)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"InvalidAuthenticationToken"}}`))
	}))
	defer api.Close()

	o := NewOutlook(sess, "user@contoso.com", api.URL, discardLogger())
	_, err := o.FetchEmails(context.Background(), models.FetchWindow{Limit: 10}, false)
	if !fault.IsKind(err, fault.Auth) {
		t.Fatalf("FetchEmails error = %v, want auth fault", err)
	}
}
