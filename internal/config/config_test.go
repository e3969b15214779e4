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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"IMAP_HOST", "DATABASE_URL", "DEFAULT_OWNER", "DELIVERY_MODE", "MAX_IN_FLIGHT",
		"POLL_INTERVAL", "MAIL_PORT", "DEEPSEEK_API_KEY", "FRONTEND_BASE_URL", "PORT",
	} {
		t.Setenv(k, "")
	}
}

const minimalYAML = `
default_owner: hr-bot
database:
  url: postgres://localhost/hr
mailbox:
  host: imap.example.com
  username: hr@example.com
  password: secret
`

// TestParse_Defaults verifies defaults for unset keys.
func TestParse_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Mailbox.Port != 993 || !cfg.Mailbox.TLS {
		t.Errorf("mailbox = %d tls=%v, want 993 tls=true", cfg.Mailbox.Port, cfg.Mailbox.TLS)
	}
	if cfg.Mailbox.Folder != "INBOX" {
		t.Errorf("folder = %q, want INBOX", cfg.Mailbox.Folder)
	}
	if cfg.Mailbox.Delivery != DeliveryAtMostOnce {
		t.Errorf("delivery = %q, want %q", cfg.Mailbox.Delivery, DeliveryAtMostOnce)
	}
	if cfg.Mailbox.MaxInFlight != 8 {
		t.Errorf("max in flight = %d, want 8", cfg.Mailbox.MaxInFlight)
	}
	if cfg.Mailbox.PollInterval != 5*time.Minute {
		t.Errorf("poll interval = %v, want 5m", cfg.Mailbox.PollInterval)
	}
	if len(cfg.SMTP.Profiles) != 2 || cfg.SMTP.Profiles[0].Port != 465 || cfg.SMTP.Profiles[1].TLS != TLSStartTLS {
		t.Errorf("profiles = %+v, want implicit 465 then starttls 587", cfg.SMTP.Profiles)
	}
	if cfg.LLM.MaxTokens != 512 || cfg.LLM.Temperature != 0.2 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
}

// TestParse_ExpandsEnv verifies ${VAR} references in YAML are expanded.
func TestParse_ExpandsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_IMAP_PASSWORD", "from-env")

	data := strings.Replace(minimalYAML, "password: secret", "password: ${TEST_IMAP_PASSWORD}", 1)
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Mailbox.Password != "from-env" {
		t.Errorf("password = %q, want from-env", cfg.Mailbox.Password)
	}
}

// TestParse_MissingRequired verifies that missing required keys fail.
func TestParse_MissingRequired(t *testing.T) {
	clearEnv(t)

	cases := map[string]string{
		"mailbox host":  strings.Replace(minimalYAML, "host: imap.example.com", "", 1),
		"database url":  strings.Replace(minimalYAML, "url: postgres://localhost/hr", "", 1),
		"default owner": strings.Replace(minimalYAML, "default_owner: hr-bot", "", 1),
	}
	for name, data := range cases {
		if _, err := Parse([]byte(data)); err == nil || !strings.Contains(err.Error(), name) {
			t.Errorf("%s: err = %v, want mention of %q", name, err, name)
		}
	}
}

// TestParse_InvalidDelivery verifies unknown delivery modes are rejected.
func TestParse_InvalidDelivery(t *testing.T) {
	clearEnv(t)

	data := minimalYAML + "  delivery: exactly_once\n"
	if _, err := Parse([]byte(data)); err == nil {
		t.Fatal("expected error for unknown delivery mode")
	}
}

// TestParse_OAuth2TokenURL verifies the tenant token endpoint is derived.
func TestParse_OAuth2TokenURL(t *testing.T) {
	clearEnv(t)

	data := minimalYAML + `  auth: oauth2
  oauth2:
    tenant_id: tenant-1
    client_id: cid
    client_secret: csecret
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := "https://login.microsoftonline.com/tenant-1/oauth2/v2.0/token"
	if cfg.Mailbox.OAuth2.TokenURL != want {
		t.Errorf("token url = %q, want %q", cfg.Mailbox.OAuth2.TokenURL, want)
	}
	if cfg.SMTP.Auth != AuthOAuth2 {
		t.Errorf("smtp auth = %q, want oauth2", cfg.SMTP.Auth)
	}
}

// TestParse_CustomProfiles verifies explicit transport profiles are kept in order.
func TestParse_CustomProfiles(t *testing.T) {
	clearEnv(t)

	data := minimalYAML + `smtp:
  host: smtp.example.com
  profiles:
    - port: 587
      tls: starttls
    - name: legacy
      port: 25
      tls: bogus
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.SMTP.Profiles) != 2 {
		t.Fatalf("profiles = %d, want 2", len(cfg.SMTP.Profiles))
	}
	if cfg.SMTP.Profiles[0].Name != "starttls-587" {
		t.Errorf("profile[0] name = %q", cfg.SMTP.Profiles[0].Name)
	}
	if cfg.SMTP.Profiles[1].TLS != TLSImplicit {
		t.Errorf("profile[1] tls = %q, want implicit", cfg.SMTP.Profiles[1].TLS)
	}
}

// TestLoad_ReadsFile verifies Load honours CONFIG_PATH.
func TestLoad_ReadsFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultOwner != "hr-bot" {
		t.Errorf("owner = %q, want hr-bot", cfg.DefaultOwner)
	}
}
