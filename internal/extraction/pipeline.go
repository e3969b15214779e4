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

// Package extraction turns identity-card images into IdentityRecords through
// an ordered list of strategies.
package extraction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bcem/hrintake/internal/metrics"
	"github.com/bcem/hrintake/internal/models"
	"github.com/bcem/hrintake/internal/ocr"
)

// Strategy is one stage of the extraction cascade. ok=false means the
// stage failed or is unavailable and the next stage should run.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, text string) (models.IdentityRecord, bool)
}

// Result is the outcome of extracting one image.
type Result struct {
	Identity models.IdentityRecord
	Stage    string
	Text     string
}

// Pipeline runs optical recognition, then each strategy in order until one
// succeeds. The final strategy is always a PatternStrategy.
type Pipeline struct {
	recognizer ocr.Recognizer
	strategies []Strategy
	metrics    *metrics.Metrics
}

// NewPipeline creates a Pipeline. A PatternStrategy is appended when the
// given strategies do not already end with one.
func NewPipeline(recognizer ocr.Recognizer, m *metrics.Metrics, strategies ...Strategy) *Pipeline {
	if len(strategies) == 0 {
		strategies = append(strategies, NewPatternStrategy())
	} else if _, ok := strategies[len(strategies)-1].(*PatternStrategy); !ok {
		strategies = append(strategies, NewPatternStrategy())
	}
	return &Pipeline{recognizer: recognizer, strategies: strategies, metrics: m}
}

// Extract recognizes image and returns the first successful strategy's
// record. Only recognition failures are returned as errors.
func (p *Pipeline) Extract(ctx context.Context, image []byte) (Result, error) {
	text, err := p.recognizer.Recognize(ctx, image)
	if err != nil {
		return Result{}, fmt.Errorf("recognize image: %w", err)
	}
	identity, stage := p.ExtractText(ctx, text)
	return Result{Identity: identity, Stage: stage, Text: text}, nil
}

// ExtractText runs the strategy cascade over already recognized text.
func (p *Pipeline) ExtractText(ctx context.Context, text string) (models.IdentityRecord, string) {
	for _, s := range p.strategies {
		if identity, ok := attempt(ctx, s, text); ok {
			p.metrics.Extraction(s.Name())
			return identity, s.Name()
		}
		slog.Debug("extraction stage fell through", "stage", s.Name())
	}
	// Unreachable while the terminal stage is a PatternStrategy.
	return models.IdentityRecord{}, ""
}

func attempt(ctx context.Context, s Strategy, text string) (identity models.IdentityRecord, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("extraction stage panicked", "stage", s.Name(), "panic", r)
			identity, ok = models.IdentityRecord{}, false
		}
	}()
	return s.Attempt(ctx, text)
}
