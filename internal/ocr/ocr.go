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

// Package ocr converts identity-card images into raw text.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrEmptyImage is returned when there is nothing to recognise.
var ErrEmptyImage = errors.New("empty image")

// Recognizer turns image bytes into text.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Config holds the settings for a Tesseract recognizer.
type Config struct {
	Binary   string
	Language string
	Timeout  time.Duration
}

// Tesseract shells out to the tesseract CLI, feeding the image on stdin.
type Tesseract struct {
	binary   string
	language string
	timeout  time.Duration
}

// NewTesseract creates a Tesseract recognizer.
func NewTesseract(cfg Config) *Tesseract {
	t := &Tesseract{binary: cfg.Binary, language: cfg.Language, timeout: cfg.Timeout}
	if t.binary == "" {
		t.binary = "tesseract"
	}
	if t.language == "" {
		t.language = "eng"
	}
	if t.timeout <= 0 {
		t.timeout = 60 * time.Second
	}
	return t
}

// Recognize runs OCR on a single image.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.binary, "stdin", "stdout", "-l", t.language)
	cmd.Stdin = bytes.NewReader(image)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("tesseract: %w", ctx.Err())
		}
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Available reports whether the configured binary can be found on PATH.
func (t *Tesseract) Available() bool {
	_, err := exec.LookPath(t.binary)
	return err == nil
}
