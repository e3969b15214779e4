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
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/bcem/hrintake/internal/metrics"
	"github.com/bcem/hrintake/internal/models"
)

// Identity is the sending side of every outbound message.
type Identity struct {
	FromName     string
	FromAddress  string
	Company      string
	CompanyEmail string
	Contact      string
}

// ProfileSubject is the subject of the profile-completion notification.
const ProfileSubject = "Thank You! Help Me Finalize Your Profile"

var profileTmpl = template.Must(template.New("profile").Parse(`<p>Dear {{.Name}},</p>
<p>Thank you for sharing your details with {{.Company}}. We have updated your employee record with the information from your identity card.</p>
<p>Please take a moment to review and complete the rest of your profile:</p>
<p><a href="{{.Link}}">Complete your profile</a></p>
<p>If the link does not open, copy this address into your browser:<br>{{.Link}}</p>
<p>Best regards,<br>{{.Company}} HR Team{{if .CompanyEmail}}<br>{{.CompanyEmail}}{{end}}{{if .Contact}}<br>{{.Contact}}{{end}}</p>
`))

type profileData struct {
	Name         string
	Company      string
	Link         string
	CompanyEmail string
	Contact      string
}

// NotificationSender emails employees a link to finish their profile.
type NotificationSender struct {
	sender          Sender
	from            Identity
	frontendBaseURL string
	metrics         *metrics.Metrics
}

// NewNotificationSender creates a NotificationSender.
func NewNotificationSender(sender Sender, from Identity, frontendBaseURL string, m *metrics.Metrics) *NotificationSender {
	return &NotificationSender{
		sender:          sender,
		from:            from,
		frontendBaseURL: strings.TrimRight(frontendBaseURL, "/"),
		metrics:         m,
	}
}

// ProfileLink returns the complete-profile URL for an employee.
func (n *NotificationSender) ProfileLink(emp *models.Employee) string {
	return fmt.Sprintf("%s/complete-profile/%s", n.frontendBaseURL, emp.ID)
}

// SendProfileCompletion emails emp the complete-profile link.
func (n *NotificationSender) SendProfileCompletion(ctx context.Context, emp *models.Employee) error {
	name := strings.TrimSpace(emp.Name)
	if name == "" {
		name = "Employee"
	}

	var body bytes.Buffer
	if err := profileTmpl.Execute(&body, profileData{
		Name:         name,
		Company:      n.from.Company,
		Link:         n.ProfileLink(emp),
		CompanyEmail: n.from.CompanyEmail,
		Contact:      n.from.Contact,
	}); err != nil {
		return fmt.Errorf("render profile notification: %w", err)
	}

	msg, err := compose(n.from, emp.Email, ProfileSubject, mail.TypeTextHTML, body.String())
	if err != nil {
		return err
	}
	err = n.sender.Send(ctx, msg)
	n.metrics.MailSent("profile_completion", err)
	if err != nil {
		return fmt.Errorf("send profile notification to %s: %w", emp.Email, err)
	}
	slog.Info("profile completion email sent", "email", emp.Email, "employee_id", emp.ID)
	return nil
}

// compose builds a single-recipient message; the recipient is the only
// envelope recipient.
func compose(from Identity, to, subject string, ct mail.ContentType, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(from.FromName, from.FromAddress); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", from.FromAddress, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(ct, body)
	return msg, nil
}
