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

// Package llm is a minimal client for OpenAI-compatible chat completion APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ErrNoJSON is returned when a completion contains no parseable JSON object.
var ErrNoJSON = errors.New("no JSON object in completion")

// ErrorCode identifies the type of LLM error.
type ErrorCode string

const (
	ErrTimeout      ErrorCode = "timeout"
	ErrUnavailable  ErrorCode = "unavailable"
	ErrRateLimit    ErrorCode = "rate_limit"
	ErrParseFailure ErrorCode = "parse_failure"
)

// Error is returned for any failed completion call.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %s", e.Code, e.Message)
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Config holds connection settings for a chat completion endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Client calls {BaseURL}/chat/completions.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Available reports whether the client has enough configuration to be called.
func (c *Client) Available() bool {
	return c != nil && c.config.BaseURL != "" && c.config.APIKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends a single user prompt and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if !c.Available() {
		return "", &Error{Code: ErrUnavailable, Message: "client not configured"}
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		return "", &Error{Code: ErrParseFailure, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Code: ErrUnavailable, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil || isTimeout(err) {
			return "", &Error{Code: ErrTimeout, Message: "request timeout"}
		}
		return "", &Error{Code: ErrUnavailable, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Code: ErrParseFailure, Message: fmt.Sprintf("read response: %v", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &Error{Code: ErrRateLimit, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(respBody))}
	case resp.StatusCode != http.StatusOK:
		return "", &Error{Code: ErrUnavailable, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(respBody))}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", &Error{Code: ErrParseFailure, Message: fmt.Sprintf("parse response: %v", err)}
	}
	if len(chatResp.Choices) == 0 {
		return "", &Error{Code: ErrParseFailure, Message: "no choices in response"}
	}
	return chatResp.Choices[0].Message.Content, nil
}

var firstObjectRe = regexp.MustCompile(`(?s)\{.*?\}`)

// DecodeObject parses content as a JSON object. When the whole content is not
// an object, the first brace-delimited substring is tried instead.
func DecodeObject(content string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &obj); err == nil && obj != nil {
		return obj, nil
	}

	match := firstObjectRe.FindString(content)
	if match == "" {
		return nil, ErrNoJSON
	}
	obj = nil
	if err := json.Unmarshal([]byte(match), &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return obj, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
