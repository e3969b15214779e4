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

// Package models defines the records that flow through the intake pipeline:
// the transient inbound message and its attachments, the identity record
// extracted from an attachment, and the persistent employee record.
package models

import (
	"path"
	"strings"
	"time"
)

// AttachmentKind is inferred from the attachment filename suffix.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentOther AttachmentKind = "other"
)

// imageSuffixes are the filename suffixes treated as identity-card images.
var imageSuffixes = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// KindFromFilename classifies an attachment by its filename suffix.
func KindFromFilename(filename string) AttachmentKind {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(filename)))
	if imageSuffixes[ext] {
		return AttachmentImage
	}
	return AttachmentOther
}

// Attachment is a single decoded attachment of an inbound message.
type Attachment struct {
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type"`
	Kind        AttachmentKind `json:"kind"`
	Content     []byte         `json:"-"`
}

// IsImage reports whether the attachment should go through extraction.
func (a Attachment) IsImage() bool {
	return a.Kind == AttachmentImage
}

// InboundMessage is a parsed message. It only lives for the duration of one
// processMessage call.
type InboundMessage struct {
	MessageID   string       `json:"message_id"`
	From        string       `json:"from"` // lower-cased address
	FromName    string       `json:"from_name,omitempty"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"` // plain text, trimmed
	Attachments []Attachment `json:"attachments"`
	ReceivedAt  time.Time    `json:"received_at"`
}

// MessageLabel is the intent assigned to a message body.
type MessageLabel string

const (
	LabelOfferAcceptance  MessageLabel = "offer_acceptance"
	LabelApprovalResponse MessageLabel = "approval_response"
	LabelLeaveRequest     MessageLabel = "leave_request"
	LabelHRRelated        MessageLabel = "hr_related"
)
