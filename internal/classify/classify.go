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

// Package classify assigns a MessageLabel to an inbound message body.
package classify

import (
	"regexp"

	"github.com/bcem/hrintake/internal/models"
)

// Rule maps a body pattern to a label. Rules are evaluated in order and the
// first match wins.
type Rule struct {
	Name    string
	Label   models.MessageLabel
	Pattern *regexp.Regexp
}

// DefaultRules is the production rule order. Acceptance is checked before
// approve/reject, which is checked before the leave-date heuristic.
var DefaultRules = []Rule{
	{
		Name:    "acceptance",
		Label:   models.LabelOfferAcceptance,
		Pattern: regexp.MustCompile(`(?i)\baccept(?:ed|ance)?\b`),
	},
	{
		Name:    "approve_or_reject",
		Label:   models.LabelApprovalResponse,
		Pattern: regexp.MustCompile(`(?i)\b(?:approve|reject)\b`),
	},
	{
		Name:    "leave_date",
		Label:   models.LabelLeaveRequest,
		Pattern: regexp.MustCompile(`(?i)\b(?:\d{1,2}[/-]\d{1,2}[/-]\d{4}|today|tomorrow)\b`),
	},
}

// Classifier evaluates an ordered rule list.
type Classifier struct {
	rules    []Rule
	fallback models.MessageLabel
}

// New creates a Classifier. With no rules, DefaultRules are used.
func New(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Classifier{rules: rules, fallback: models.LabelHRRelated}
}

// Classify returns the label of the first matching rule, or hr_related.
func (c *Classifier) Classify(body string) models.MessageLabel {
	label, _ := c.Explain(body)
	return label
}

// Explain is Classify that also names the rule that matched ("" for the
// fallback).
func (c *Classifier) Explain(body string) (models.MessageLabel, string) {
	for _, r := range c.rules {
		if r.Pattern.MatchString(body) {
			return r.Label, r.Name
		}
	}
	return c.fallback, ""
}
