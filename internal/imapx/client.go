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

// Package imapx wraps go-imap v2 with the mailbox operations the inbox
// needs: envelope listing, full-message fetch with MIME parsing, flag
// changes, and archive/trash moves.
package imapx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/mailfold/mailfold/internal/fault"
	"github.com/mailfold/mailfold/internal/models"
)

// Folder names tried in order for archive and delete moves. Servers
// differ; the first folder the server accepts wins.
var (
	archiveFolders = []string{"Archive", "[Gmail]/All Mail", "Archives", "INBOX.Archive"}
	trashFolders   = []string{"Trash", "[Gmail]/Trash", "Deleted Items", "INBOX.Trash"}
)

// Message is one fetched IMAP message. Text, HTML, and Attachments are
// only populated by FetchMessage, not by the envelope listing.
type Message struct {
	UID         uint32
	MessageID   string
	Subject     string
	From        models.EmailAddress
	Date        time.Time
	Seen        bool
	Text        string
	HTML        string
	Attachments []models.Attachment
}

// Client holds the connection settings for one IMAP account. Every
// operation dials, runs, and logs out; IMAP connections are cheap
// relative to keeping per-account sessions alive across requests.
type Client struct {
	host     string
	port     int
	username string
	password string
}

// NewClient creates an IMAP client for the given account settings.
func NewClient(host string, port int, username, password string) *Client {
	return &Client{host: host, port: port, username: username, password: password}
}

func (c *Client) connect(_ context.Context) (*imapclient.Client, error) {
	addr := c.host + ":" + strconv.Itoa(c.port)

	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fault.Wrap(fault.Auth, "mailbox login failed", err)
	}
	return client, nil
}

// CheckLogin verifies the stored credentials by logging in and out.
func (c *Client) CheckLogin(ctx context.Context) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	return client.Logout().Wait()
}

// ListMessages returns envelope data for the most recent messages in
// INBOX, newest last in mailbox order. When unreadOnly is set, only
// unseen messages are searched.
func (c *Client) ListMessages(ctx context.Context, limit int, unreadOnly bool) ([]Message, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("select INBOX: %w", err)
	}

	criteria := &imap.SearchCriteria{}
	if unreadOnly {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope: true,
		Flags:    true,
		UID:      true,
	})
	defer fetchCmd.Close()

	var messages []Message
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		messages = append(messages, messageFromBuffer(buf))
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetch envelopes: %w", err)
	}
	return messages, nil
}

// FetchMessage returns the full message for a UID, including parsed
// text/HTML bodies and attachment metadata.
func (c *Client) FetchMessage(ctx context.Context, uid uint32) (*Message, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("select INBOX: %w", err)
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fault.New(fault.NotFound, "message not found")
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collect message: %w", err)
	}

	message := messageFromBuffer(buf)
	if raw := buf.FindBodySection(bodySection); raw != nil {
		message.Text, message.HTML, message.Attachments = parseMIMEBody(raw)
	}

	if err := fetchCmd.Close(); err != nil {
		return &message, fmt.Errorf("close fetch: %w", err)
	}
	return &message, nil
}

// SetSeen adds or removes the \Seen flag on a message.
func (c *Client) SetSeen(ctx context.Context, uid uint32, seen bool) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("select INBOX: %w", err)
	}

	op := imap.StoreFlagsAdd
	if !seen {
		op = imap.StoreFlagsDel
	}

	storeCmd := client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	return storeCmd.Close()
}

// Archive moves a message out of INBOX into an archive folder, falling
// back to the \Deleted flag when no archive folder exists.
func (c *Client) Archive(ctx context.Context, uid uint32) error {
	return c.moveTo(ctx, uid, archiveFolders)
}

// Delete moves a message to the trash folder, falling back to the
// \Deleted flag when no trash folder exists.
func (c *Client) Delete(ctx context.Context, uid uint32) error {
	return c.moveTo(ctx, uid, trashFolders)
}

func (c *Client) moveTo(ctx context.Context, uid uint32, folders []string) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("select INBOX: %w", err)
	}

	uidSet := imap.UIDSetNum(imap.UID(uid))
	for _, folder := range folders {
		if _, err := client.Move(uidSet, folder).Wait(); err == nil {
			return nil
		}
	}

	storeCmd := client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	return storeCmd.Close()
}

func messageFromBuffer(buf *imapclient.FetchMessageBuffer) Message {
	msg := Message{UID: uint32(buf.UID)}

	if buf.Envelope != nil {
		msg.MessageID = buf.Envelope.MessageID
		msg.Subject = buf.Envelope.Subject
		msg.Date = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			msg.From = models.SenderFromParts(from.Name, from.Addr())
		} else {
			msg.From = models.SenderFromParts("", "")
		}
	}

	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			msg.Seen = true
		}
	}
	return msg
}

// parseMIMEBody extracts the text and HTML bodies plus attachment
// metadata from a raw RFC 5322 message. A message that fails MIME
// parsing is treated as a single plain-text body.
func parseMIMEBody(raw []byte) (text, html string, attachments []models.Attachment) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), "", nil
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			// First part of each kind wins.
			switch {
			case strings.HasPrefix(contentType, "text/plain") && text == "":
				text = string(body)
			case strings.HasPrefix(contentType, "text/html") && html == "":
				html = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			attachments = append(attachments, models.Attachment{
				Name:        filename,
				ContentType: contentType,
				Size:        int64(len(body)),
			})
		}
	}

	return text, html, attachments
}
