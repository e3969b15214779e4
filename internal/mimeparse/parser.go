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

// Package mimeparse turns raw RFC 5322 messages into InboundMessage values.
package mimeparse

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/bcem/hrintake/internal/models"
)

// ErrNoSender is returned when a message carries no usable From address.
var ErrNoSender = errors.New("message has no sender address")

// MaxAttachmentBytes caps how much of a single attachment is read into memory.
const MaxAttachmentBytes = 20 << 20

// Parse reads a full message. receivedAt is used when the Date header is
// missing or unparseable.
func Parse(r io.Reader, receivedAt time.Time) (*models.InboundMessage, error) {
	mr, err := mail.CreateReader(r)
	if mr == nil || (err != nil && !message.IsUnknownCharset(err)) {
		return nil, fmt.Errorf("read message header: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	from, err := h.AddressList("From")
	if err != nil || len(from) == 0 || strings.TrimSpace(from[0].Address) == "" {
		return nil, ErrNoSender
	}

	msg := &models.InboundMessage{
		From:       models.NormalizeEmail(from[0].Address),
		FromName:   from[0].Name,
		ReceivedAt: receivedAt,
	}
	if id, err := h.MessageID(); err == nil {
		msg.MessageID = id
	}
	if subject, err := h.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = h.Get("Subject")
	}
	if date, err := h.Date(); err == nil && !date.IsZero() {
		msg.ReceivedAt = date
	}

	var plain, htmlBody string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return nil, fmt.Errorf("read message part: %w", err)
		}

		switch ph := p.Header.(type) {
		case *mail.InlineHeader:
			ct, params, _ := ph.ContentType()
			name := params["name"]
			if name == "" {
				if _, dparams, err := ph.ContentDisposition(); err == nil {
					name = dparams["filename"]
				}
			}
			if name != "" && !strings.HasPrefix(ct, "text/") {
				att, err := readAttachment(name, ct, p.Body)
				if err != nil {
					return nil, err
				}
				msg.Attachments = append(msg.Attachments, att)
				continue
			}
			data, err := io.ReadAll(io.LimitReader(p.Body, MaxAttachmentBytes))
			if err != nil {
				return nil, fmt.Errorf("read body part: %w", err)
			}
			switch {
			case ct == "text/html" && htmlBody == "":
				htmlBody = string(data)
			case (ct == "text/plain" || ct == "") && plain == "":
				plain = string(data)
			}
		case *mail.AttachmentHeader:
			name, _ := ph.Filename()
			ct, _, _ := ph.ContentType()
			att, err := readAttachment(name, ct, p.Body)
			if err != nil {
				return nil, err
			}
			msg.Attachments = append(msg.Attachments, att)
		}
	}

	msg.Body = strings.TrimSpace(plain)
	if msg.Body == "" && htmlBody != "" {
		msg.Body = htmlToText(htmlBody)
	}
	return msg, nil
}

func readAttachment(name, contentType string, body io.Reader) (models.Attachment, error) {
	name = decodeFilename(name)
	data, err := io.ReadAll(io.LimitReader(body, MaxAttachmentBytes))
	if err != nil {
		return models.Attachment{}, fmt.Errorf("read attachment %q: %w", name, err)
	}
	return models.Attachment{
		Filename:    name,
		ContentType: contentType,
		Kind:        models.KindFromFilename(name),
		Content:     data,
	}, nil
}

func decodeFilename(name string) string {
	dec := new(mime.WordDecoder)
	dec.CharsetReader = charsetReader
	if out, err := dec.DecodeHeader(name); err == nil {
		return out
	}
	return name
}

// htmlToText keeps the visible text of an HTML body. Block elements and
// <br> become line breaks; script and style content is dropped.
func htmlToText(s string) string {
	var b strings.Builder
	skip := 0
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseSpace(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style, atom.Head:
				skip++
			case atom.Br:
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style, atom.Head:
				if skip > 0 {
					skip--
				}
			case atom.P, atom.Div, atom.Tr, atom.Li, atom.H1, atom.H2, atom.H3, atom.Table:
				b.WriteByte('\n')
			}
		}
	}
}

func collapseSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
