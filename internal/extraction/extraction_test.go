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
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bcem/hrintake/internal/llm"
	"github.com/bcem/hrintake/internal/metrics"
	"github.com/bcem/hrintake/internal/models"
)

type fakeRecognizer struct {
	text string
	err  error
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ []byte) (string, error) {
	return f.text, f.err
}

type fakeCompleter struct {
	mu        sync.Mutex
	available bool
	content   string
	err       error
	prompts   []string
}

func (f *fakeCompleter) Available() bool { return f.available }

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.content, f.err
}

type panicStrategy struct{}

func (panicStrategy) Name() string { return "panics" }
func (panicStrategy) Attempt(context.Context, string) (models.IdentityRecord, bool) {
	panic("boom")
}

const saraText = "Name: SARA AHMED CNIC 42101-1234567-1 Gender: Female"

// TestPipeline_FallbackOnLLMFailure covers the end-to-end fallback scenario:
// the extraction service is unavailable and the pattern stage recovers fields.
func TestPipeline_FallbackOnLLMFailure(t *testing.T) {
	completer := &fakeCompleter{available: true, err: &llm.Error{Code: llm.ErrUnavailable, Message: "down"}}
	m := metrics.New(prometheus.NewRegistry())
	p := NewPipeline(&fakeRecognizer{text: saraText}, m, NewLLMStrategy(completer))

	res, err := p.Extract(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := models.IdentityRecord{Name: "SARA AHMED", CNIC: "42101-1234567-1", Gender: "Female"}
	if res.Identity != want {
		t.Errorf("identity = %+v, want %+v", res.Identity, want)
	}
	if res.Stage != "pattern" {
		t.Errorf("stage = %q, want pattern", res.Stage)
	}
	if len(completer.prompts) != 1 || !strings.Contains(completer.prompts[0], saraText) {
		t.Errorf("prompt did not carry OCR text: %v", completer.prompts)
	}
	if got := testutil.ToFloat64(m.Extractions.WithLabelValues("pattern")); got != 1 {
		t.Errorf("pattern extractions = %v, want 1", got)
	}
}

// TestPipeline_LLMSuccess verifies a good completion short-circuits the cascade.
func TestPipeline_LLMSuccess(t *testing.T) {
	completer := &fakeCompleter{
		available: true,
		content:   "Here you go:\n{\"name\": \" ALI KHAN \", \"cnic\": \"35202-7654321-3\", \"gender\": null, \"nationality\": \"Pakistan\"}",
	}
	p := NewPipeline(&fakeRecognizer{text: "garbled"}, nil, NewLLMStrategy(completer))

	res, err := p.Extract(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := models.IdentityRecord{Name: "ALI KHAN", CNIC: "35202-7654321-3", Nationality: "Pakistan"}
	if res.Identity != want || res.Stage != "llm" {
		t.Errorf("result = %+v stage %q, want %+v from llm", res.Identity, res.Stage, want)
	}
}

// TestPipeline_LLMBadJSON verifies unparsable output falls through.
func TestPipeline_LLMBadJSON(t *testing.T) {
	tests := map[string]string{
		"prose":        "I could not read this card.",
		"broken brace": "{name: SARA}",
		"wrong schema": `{"answer": "42"}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			completer := &fakeCompleter{available: true, content: content}
			p := NewPipeline(&fakeRecognizer{text: "CNIC 42101-1234567-1"}, nil, NewLLMStrategy(completer))

			res, err := p.Extract(context.Background(), nil)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if res.Stage != "pattern" || res.Identity.CNIC != "42101-1234567-1" {
				t.Errorf("result = %+v stage %q", res.Identity, res.Stage)
			}
		})
	}
}

// TestPipeline_LLMUnavailableSkipped verifies an unconfigured client is never called.
func TestPipeline_LLMUnavailableSkipped(t *testing.T) {
	completer := &fakeCompleter{available: false}
	p := NewPipeline(&fakeRecognizer{text: saraText}, nil, NewLLMStrategy(completer))

	res, _ := p.Extract(context.Background(), nil)
	if len(completer.prompts) != 0 {
		t.Errorf("unavailable client was called %d times", len(completer.prompts))
	}
	if res.Stage != "pattern" {
		t.Errorf("stage = %q, want pattern", res.Stage)
	}
}

// TestPipeline_RecognitionFailure verifies OCR errors propagate.
func TestPipeline_RecognitionFailure(t *testing.T) {
	ocrErr := errors.New("unreadable")
	p := NewPipeline(&fakeRecognizer{err: ocrErr}, nil)

	if _, err := p.Extract(context.Background(), nil); !errors.Is(err, ocrErr) {
		t.Fatalf("err = %v, want wrapped ocr error", err)
	}
}

// TestPipeline_PanickingStageFallsThrough verifies a panicking stage is treated as failure.
func TestPipeline_PanickingStageFallsThrough(t *testing.T) {
	p := NewPipeline(&fakeRecognizer{text: saraText}, nil, panicStrategy{})

	identity, stage := p.ExtractText(context.Background(), saraText)
	if stage != "pattern" || identity.Name != "SARA AHMED" {
		t.Errorf("identity = %+v stage %q", identity, stage)
	}
}

// TestPipeline_AlwaysEightFields verifies arbitrary text never fails and
// always yields the full key set.
func TestPipeline_AlwaysEightFields(t *testing.T) {
	p := NewPipeline(&fakeRecognizer{}, nil)
	for _, text := range []string{"", "   ", "\x00\xff", "Name:", "Name\nName\nName", strings.Repeat("Gender ", 500)} {
		identity, stage := p.ExtractText(context.Background(), text)
		if stage != "pattern" {
			t.Errorf("text %q: stage = %q", text, stage)
		}
		if got := len(identity.Map()); got != len(models.IdentityFields) {
			t.Errorf("text %q: %d keys, want %d", text, got, len(models.IdentityFields))
		}
	}
}

// TestPatternStrategy_CardLayout verifies the multi-line layout OCR produces
// for a printed card.
func TestPatternStrategy_CardLayout(t *testing.T) {
	text := `PAKISTAN National Identity Card
Name
Muhammad Bilal
Father Name
Tariq Mehmood
Gender
M
Country of Stay
Pakistan
Identity Number
3520212345679
Date of Birth
14.08.1992
Date of Issue
01.02.2020
Date of Expiry
01.02.2030
`
	identity, ok := NewPatternStrategy().Attempt(context.Background(), text)
	if !ok {
		t.Fatal("pattern strategy must always succeed")
	}
	want := models.IdentityRecord{
		Name:                "Muhammad Bilal",
		FatherOrHusbandName: "Tariq Mehmood",
		CNIC:                "35202-1234567-9",
		Gender:              "M",
		Nationality:         "Pakistan",
		DateOfBirth:         "14.08.1992",
		DateOfIssue:         "01.02.2020",
		DateOfExpiry:        "01.02.2030",
	}
	if identity != want {
		t.Errorf("identity =\n%+v\nwant\n%+v", identity, want)
	}
}

// TestPatternStrategy_UnlabelledDates verifies positional date assignment.
func TestPatternStrategy_UnlabelledDates(t *testing.T) {
	text := "42101-1234567-1 female 01/01/1990 05/06/2018 05/06/2028"
	identity, _ := NewPatternStrategy().Attempt(context.Background(), text)

	if identity.CNIC != "42101-1234567-1" || identity.Gender != "Female" {
		t.Errorf("identity = %+v", identity)
	}
	if identity.DateOfBirth != "01/01/1990" || identity.DateOfIssue != "05/06/2018" || identity.DateOfExpiry != "05/06/2028" {
		t.Errorf("dates = %q %q %q", identity.DateOfBirth, identity.DateOfIssue, identity.DateOfExpiry)
	}
}

// TestPatternStrategy_GluedCNIC verifies the identity number is found when
// OCR drops the space after the label or glues noise to the number.
func TestPatternStrategy_GluedCNIC(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"label glued", "CNIC42101-1234567-1", "42101-1234567-1"},
		{"noise both sides", "ID#42101-1234567-1x", "42101-1234567-1"},
		{"label with dot", "Identity No.42101-1234567-1", "42101-1234567-1"},
		{"undashed glued", "CNIC4210112345671 Gender F", "42101-1234567-1"},
		{"longer digit run", "Ref 942101-1234567-1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, _ := NewPatternStrategy().Attempt(context.Background(), tt.text)
			if identity.CNIC != tt.want {
				t.Errorf("cnic = %q, want %q", identity.CNIC, tt.want)
			}
		})
	}
}

// TestPipeline_GluedCNICFallback runs glued text through a failing
// extraction service.
func TestPipeline_GluedCNICFallback(t *testing.T) {
	completer := &fakeCompleter{available: true, err: &llm.Error{Code: llm.ErrTimeout, Message: "slow"}}
	p := NewPipeline(nil, nil, NewLLMStrategy(completer))

	identity, stage := p.ExtractText(context.Background(), "Name:SARA AHMED CNIC42101-1234567-1")
	if stage != "pattern" {
		t.Fatalf("stage = %q, want pattern", stage)
	}
	if identity.CNIC != "42101-1234567-1" || identity.Name != "SARA AHMED" {
		t.Errorf("identity = %+v", identity)
	}
}

// TestPatternStrategy_GluedDates verifies labelled dates touching the label.
func TestPatternStrategy_GluedDates(t *testing.T) {
	identity, _ := NewPatternStrategy().Attempt(context.Background(), "Date of Birth14.08.1992\nDate of Issue 01.02.2020")
	if identity.DateOfBirth != "14.08.1992" || identity.DateOfIssue != "01.02.2020" {
		t.Errorf("dates = %q %q", identity.DateOfBirth, identity.DateOfIssue)
	}
}
