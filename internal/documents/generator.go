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

// Package documents generates identity-dependent employee documents and
// records their paths.
package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bcem/hrintake/internal/models"
)

// Generator produces one document for an employee. An empty path with a nil
// error means the generator declined.
type Generator interface {
	Generate(ctx context.Context, emp *models.Employee) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, emp *models.Employee) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, emp *models.Employee) (string, error) {
	return f(ctx, emp)
}

// Declined is a Generator that never produces a document.
var Declined Generator = GeneratorFunc(func(context.Context, *models.Employee) (string, error) {
	return "", nil
})

// HTTPGenerator asks a document service to render one kind of document.
// The service answers 200 with {"path": "..."} or 204 when it declines.
type HTTPGenerator struct {
	url        string
	httpClient *http.Client
}

// NewHTTPGenerator creates a generator that POSTs to {baseURL}/{kind}.
func NewHTTPGenerator(baseURL string, kind models.DocumentKind, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGenerator{
		url:        strings.TrimRight(baseURL, "/") + "/" + string(kind),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewGenerators returns one generator per document kind. With an empty
// baseURL every kind declines.
func NewGenerators(baseURL string, timeout time.Duration) map[models.DocumentKind]Generator {
	gens := make(map[models.DocumentKind]Generator, len(models.DocumentKinds))
	for _, kind := range models.DocumentKinds {
		if baseURL == "" {
			gens[kind] = Declined
			continue
		}
		gens[kind] = NewHTTPGenerator(baseURL, kind, timeout)
	}
	return gens
}

type generateResponse struct {
	Path string `json:"path"`
}

// Generate implements Generator.
func (g *HTTPGenerator) Generate(ctx context.Context, emp *models.Employee) (string, error) {
	body, err := json.Marshal(emp)
	if err != nil {
		return "", fmt.Errorf("marshal employee: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate document: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return "", nil
	case http.StatusOK, http.StatusCreated:
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("document service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode document response: %w", err)
	}
	return strings.TrimSpace(out.Path), nil
}
