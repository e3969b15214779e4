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

package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bcem/hrintake/internal/llm"
	"github.com/bcem/hrintake/internal/models"
)

// Completer is the part of llm.Client the LLM stage needs.
type Completer interface {
	Available() bool
	Complete(ctx context.Context, prompt string) (string, error)
}

const promptTemplate = `You parse Pakistani CNIC (national identity card) text produced by OCR.
From the raw text below, extract the card holder's details and return EXACTLY this JSON object.
No explanation, no markdown, no extra keys. Use "" for anything you cannot find.

{
  "name": "",
  "fatherOrHusbandName": "",
  "cnic": "",
  "gender": "",
  "nationality": "",
  "dateOfBirth": "",
  "dateOfIssue": "",
  "dateOfExpiry": ""
}

Text:
"""%s"""
`

// LLMStrategy asks a chat completion model for the eight-field JSON object.
type LLMStrategy struct {
	client Completer
}

// NewLLMStrategy creates an LLMStrategy.
func NewLLMStrategy(client Completer) *LLMStrategy {
	return &LLMStrategy{client: client}
}

func (s *LLMStrategy) Name() string { return "llm" }

// Attempt succeeds only when the completion decodes to a JSON object that
// carries at least one of the schema keys.
func (s *LLMStrategy) Attempt(ctx context.Context, text string) (models.IdentityRecord, bool) {
	if s.client == nil || !s.client.Available() {
		return models.IdentityRecord{}, false
	}

	content, err := s.client.Complete(ctx, fmt.Sprintf(promptTemplate, text))
	if err != nil {
		slog.Warn("llm extraction failed, using fallback", "error", err)
		return models.IdentityRecord{}, false
	}

	obj, err := llm.DecodeObject(content)
	if err != nil {
		slog.Warn("llm returned no usable JSON, using fallback", "error", err)
		return models.IdentityRecord{}, false
	}

	identity, ok := identityFromObject(obj)
	if !ok {
		slog.Warn("llm JSON does not match identity schema, using fallback")
	}
	return identity, ok
}

func identityFromObject(obj map[string]any) (models.IdentityRecord, bool) {
	values := make(map[string]string, len(models.IdentityFields))
	matched := false
	for _, field := range models.IdentityFields {
		v, present := obj[field]
		if !present {
			continue
		}
		matched = true
		switch t := v.(type) {
		case nil:
		case string:
			values[field] = strings.TrimSpace(t)
		case float64, bool:
			values[field] = fmt.Sprint(t)
		}
	}
	return models.IdentityFromMap(values), matched
}
