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

package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/bcem/hrintake/internal/metrics"
	"github.com/bcem/hrintake/internal/models"
)

// Reply is the canned response for one label.
type Reply struct {
	Subject string
	Body    string
}

// ReplyFor returns the reply for label. ok is false for labels that get no
// reply. employeeExists selects the offer-acceptance wording.
func ReplyFor(label models.MessageLabel, employeeExists bool) (Reply, bool) {
	switch label {
	case models.LabelOfferAcceptance:
		if employeeExists {
			return Reply{"Next Steps", "Thank you for accepting our offer! Please send your updated CV & CNIC."}, true
		}
		return Reply{"Next Steps", "Thank you for accepting! Please send your CV & CNIC to get started."}, true
	case models.LabelApprovalResponse:
		return Reply{"Approval/Decision Recorded", "Thank you for your response. Your approval/rejection has been recorded."}, true
	case models.LabelLeaveRequest:
		return Reply{"Leave Request Received", "Your leave request has been received and will be reviewed."}, true
	}
	return Reply{}, false
}

// ReplyDispatcher answers classified messages.
type ReplyDispatcher struct {
	sender  Sender
	from    Identity
	metrics *metrics.Metrics
}

// NewReplyDispatcher creates a ReplyDispatcher.
func NewReplyDispatcher(sender Sender, from Identity, m *metrics.Metrics) *ReplyDispatcher {
	return &ReplyDispatcher{sender: sender, from: from, metrics: m}
}

// Dispatch sends the reply for label to to. It reports whether a message
// was sent; labels without a reply return false, nil.
func (d *ReplyDispatcher) Dispatch(ctx context.Context, to string, label models.MessageLabel, employeeExists bool) (bool, error) {
	reply, ok := ReplyFor(label, employeeExists)
	if !ok {
		slog.Debug("no reply for label", "label", label, "to", to)
		return false, nil
	}

	msg, err := compose(d.from, to, reply.Subject, mail.TypeTextPlain, reply.Body)
	if err != nil {
		return false, err
	}
	err = d.sender.Send(ctx, msg)
	d.metrics.MailSent(string(label), err)
	if err != nil {
		return false, fmt.Errorf("send %s reply to %s: %w", label, to, err)
	}
	slog.Info("reply sent", "label", label, "to", to)
	return true, nil
}
