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

package classify

import (
	"regexp"
	"testing"

	"github.com/bcem/hrintake/internal/models"
)

// TestClassifier_Classify covers each label and the precedence rules.
func TestClassifier_Classify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want models.MessageLabel
	}{
		{"accept", "I accept the offer.", models.LabelOfferAcceptance},
		{"accepted uppercase", "ACCEPTED, see you Monday", models.LabelOfferAcceptance},
		{"acceptance", "Please find my acceptance letter", models.LabelOfferAcceptance},
		{"accepting is not a match", "I am accepting nothing", models.LabelHRRelated},
		{"reject", "I would like to reject this offer", models.LabelApprovalResponse},
		{"approve", "I approve the request", models.LabelApprovalResponse},
		{"reject beats date", "I reject the leave on 12/10/2026", models.LabelApprovalResponse},
		{"accept beats reject", "I accept, do not reject", models.LabelOfferAcceptance},
		{"tomorrow", "Please note I'll be on leave tomorrow", models.LabelLeaveRequest},
		{"today", "Out sick TODAY", models.LabelLeaveRequest},
		{"slash date", "Leave on 5/3/2026 please", models.LabelLeaveRequest},
		{"dash date", "Leave on 05-03-2026 please", models.LabelLeaveRequest},
		{"short year is not a date", "Leave on 05/03/26", models.LabelHRRelated},
		{"plain", "What is the payroll cutoff?", models.LabelHRRelated},
		{"empty", "", models.LabelHRRelated},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.body); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

// TestClassifier_Explain verifies the matching rule name is reported.
func TestClassifier_Explain(t *testing.T) {
	c := New()
	if label, rule := c.Explain("approve"); label != models.LabelApprovalResponse || rule != "approve_or_reject" {
		t.Errorf("Explain = %q, %q", label, rule)
	}
	if label, rule := c.Explain("hello"); label != models.LabelHRRelated || rule != "" {
		t.Errorf("Explain = %q, %q", label, rule)
	}
}

// TestClassifier_CustomRules verifies a caller-supplied order is honoured.
func TestClassifier_CustomRules(t *testing.T) {
	c := New(Rule{Name: "urgent", Label: models.LabelLeaveRequest, Pattern: regexp.MustCompile(`(?i)urgent`)})
	if got := c.Classify("URGENT: I accept"); got != models.LabelLeaveRequest {
		t.Errorf("Classify = %q, want leave_request", got)
	}
}
