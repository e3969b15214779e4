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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Delivery modes for the mailbox poller.
const (
	DeliveryAtMostOnce  = "at_most_once"
	DeliveryAtLeastOnce = "at_least_once"
)

// Mailbox auth modes.
const (
	AuthPassword = "password"
	AuthOAuth2   = "oauth2"
)

// SMTP TLS modes for a transport profile.
const (
	TLSImplicit = "implicit"
	TLSStartTLS = "starttls"
)

// CompanyConfig is shown in outbound notifications.
type CompanyConfig struct {
	Name    string
	Email   string
	Contact string
}

// OAuth2Config holds client-credentials settings for XOAUTH2 mailbox and
// SMTP authentication.
type OAuth2Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// MailboxConfig describes the inbound IMAP mailbox.
type MailboxConfig struct {
	Host         string
	Port         int
	TLS          bool
	Username     string
	Password     string
	Folder       string
	Auth         string
	OAuth2       OAuth2Config
	PollInterval time.Duration
	Delivery     string
	MaxInFlight  int
}

// Addr returns host:port.
func (m MailboxConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// TransportProfile is one way of reaching the SMTP relay.
type TransportProfile struct {
	Name string
	Port int
	TLS  string // TLSImplicit or TLSStartTLS
}

// RetryConfig is the connection retry policy for the SMTP relay.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// SMTPConfig describes the outbound relay.
type SMTPConfig struct {
	Host        string
	Username    string
	Password    string
	Auth        string
	FromName    string
	FromAddress string
	Timeout     time.Duration
	Profiles    []TransportProfile
	Retry       RetryConfig
}

// OCRConfig configures the optical recognition engine.
type OCRConfig struct {
	Binary   string
	Language string
	Timeout  time.Duration
}

// LLMConfig configures the schema-extraction service.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// DocumentsConfig configures the document generator service.
type DocumentsConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Config holds all configuration for the intake service.
type Config struct {
	Company         CompanyConfig
	FrontendBaseURL string
	DefaultOwner    string

	DatabaseURL string

	// Redis
	RedisURL    string
	EventsQueue string
	DedupTTL    time.Duration

	Mailbox   MailboxConfig
	SMTP      SMTPConfig
	OCR       OCRConfig
	LLM       LLMConfig
	Documents DocumentsConfig

	// Server (health check + metrics)
	Port     int
	LogLevel string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Company struct {
		Name    string `yaml:"name"`
		Email   string `yaml:"email"`
		Contact string `yaml:"contact"`
	} `yaml:"company"`
	FrontendBaseURL string `yaml:"frontend_base_url"`
	DefaultOwner    string `yaml:"default_owner"`
	Database        struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL         string `yaml:"url"`
		EventsQueue string `yaml:"events_queue"`
		DedupTTL    string `yaml:"dedup_ttl"`
	} `yaml:"redis"`
	Mailbox struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		TLS      *bool  `yaml:"tls"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Folder   string `yaml:"folder"`
		Auth     string `yaml:"auth"`
		OAuth2   struct {
			TenantID     string   `yaml:"tenant_id"`
			ClientID     string   `yaml:"client_id"`
			ClientSecret string   `yaml:"client_secret"`
			TokenURL     string   `yaml:"token_url"`
			Scopes       []string `yaml:"scopes"`
		} `yaml:"oauth2"`
		PollInterval string `yaml:"poll_interval"`
		Delivery     string `yaml:"delivery"`
		MaxInFlight  int    `yaml:"max_in_flight"`
	} `yaml:"mailbox"`
	SMTP struct {
		Host        string `yaml:"host"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		FromName    string `yaml:"from_name"`
		FromAddress string `yaml:"from_address"`
		Timeout     string `yaml:"timeout"`
		Profiles    []struct {
			Name string `yaml:"name"`
			Port int    `yaml:"port"`
			TLS  string `yaml:"tls"`
		} `yaml:"profiles"`
		Retry struct {
			MaxAttempts    int     `yaml:"max_attempts"`
			InitialBackoff string  `yaml:"initial_backoff"`
			MaxBackoff     string  `yaml:"max_backoff"`
			BackoffFactor  float64 `yaml:"backoff_factor"`
		} `yaml:"retry"`
	} `yaml:"smtp"`
	OCR struct {
		Binary   string `yaml:"binary"`
		Language string `yaml:"language"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"ocr"`
	LLM struct {
		BaseURL     string   `yaml:"base_url"`
		APIKey      string   `yaml:"api_key"`
		Model       string   `yaml:"model"`
		Temperature *float32 `yaml:"temperature"`
		MaxTokens   int      `yaml:"max_tokens"`
		Timeout     string   `yaml:"timeout"`
	} `yaml:"llm"`
	Documents struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"documents"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse builds a Config from YAML bytes. ${VAR} references are expanded
// before decoding.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		Company: CompanyConfig{
			Name:    firstNonEmpty(raw.Company.Name, envOrDefault("COMPANY_NAME", "Mavens Advisors")),
			Email:   firstNonEmpty(raw.Company.Email, os.Getenv("COMPANY_EMAIL")),
			Contact: firstNonEmpty(raw.Company.Contact, os.Getenv("COMPANY_CONTACT")),
		},
		FrontendBaseURL: strings.TrimRight(firstNonEmpty(raw.FrontendBaseURL, os.Getenv("FRONTEND_BASE_URL")), "/"),
		DefaultOwner:    firstNonEmpty(raw.DefaultOwner, os.Getenv("DEFAULT_OWNER")),
		DatabaseURL:     firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:        firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		EventsQueue:     firstNonEmpty(raw.Redis.EventsQueue, envOrDefault("EVENTS_QUEUE", "hrintake:events")),
		DedupTTL:        parseDuration(raw.Redis.DedupTTL, envOrDefaultDuration("DEDUP_TTL", 7*24*time.Hour)),
		Port:            firstPositive(raw.Port, envOrDefaultInt("PORT", 8080)),
		LogLevel:        firstNonEmpty(raw.LogLevel, envOrDefault("LOG_LEVEL", "info")),
	}

	tls := true
	if raw.Mailbox.TLS != nil {
		tls = *raw.Mailbox.TLS
	}
	cfg.Mailbox = MailboxConfig{
		Host:     firstNonEmpty(raw.Mailbox.Host, os.Getenv("IMAP_HOST")),
		Port:     firstPositive(raw.Mailbox.Port, envOrDefaultInt("IMAP_PORT", 993)),
		TLS:      tls,
		Username: firstNonEmpty(raw.Mailbox.Username, os.Getenv("IMAP_USERNAME")),
		Password: firstNonEmpty(raw.Mailbox.Password, os.Getenv("IMAP_PASSWORD")),
		Folder:   firstNonEmpty(raw.Mailbox.Folder, "INBOX"),
		Auth:     strings.ToLower(firstNonEmpty(raw.Mailbox.Auth, AuthPassword)),
		OAuth2: OAuth2Config{
			TenantID:     raw.Mailbox.OAuth2.TenantID,
			ClientID:     raw.Mailbox.OAuth2.ClientID,
			ClientSecret: raw.Mailbox.OAuth2.ClientSecret,
			TokenURL:     raw.Mailbox.OAuth2.TokenURL,
			Scopes:       raw.Mailbox.OAuth2.Scopes,
		},
		PollInterval: parseDuration(raw.Mailbox.PollInterval, envOrDefaultDuration("POLL_INTERVAL", 5*time.Minute)),
		Delivery:     strings.ToLower(firstNonEmpty(raw.Mailbox.Delivery, envOrDefault("DELIVERY_MODE", DeliveryAtMostOnce))),
		MaxInFlight:  firstPositive(raw.Mailbox.MaxInFlight, envOrDefaultInt("MAX_IN_FLIGHT", 8)),
	}
	if cfg.Mailbox.Auth == AuthOAuth2 {
		o := &cfg.Mailbox.OAuth2
		if o.TokenURL == "" && o.TenantID != "" {
			o.TokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", o.TenantID)
		}
		if len(o.Scopes) == 0 {
			o.Scopes = []string{"https://outlook.office365.com/.default"}
		}
	}

	cfg.SMTP = SMTPConfig{
		Host:        firstNonEmpty(raw.SMTP.Host, os.Getenv("MAIL_HOST")),
		Username:    firstNonEmpty(raw.SMTP.Username, os.Getenv("MAIL_USERNAME")),
		Password:    firstNonEmpty(raw.SMTP.Password, os.Getenv("MAIL_PASSWORD")),
		Auth:        cfg.Mailbox.Auth,
		FromName:    firstNonEmpty(raw.SMTP.FromName, os.Getenv("MAIL_FROM_NAME"), cfg.Company.Name),
		FromAddress: firstNonEmpty(raw.SMTP.FromAddress, os.Getenv("MAIL_FROM_ADDRESS"), cfg.Company.Email),
		Timeout:     parseDuration(raw.SMTP.Timeout, 20*time.Second),
		Retry: RetryConfig{
			MaxAttempts:    firstPositive(raw.SMTP.Retry.MaxAttempts, 3),
			InitialBackoff: parseDuration(raw.SMTP.Retry.InitialBackoff, time.Second),
			MaxBackoff:     parseDuration(raw.SMTP.Retry.MaxBackoff, 30*time.Second),
			BackoffFactor:  raw.SMTP.Retry.BackoffFactor,
		},
	}
	if cfg.SMTP.Retry.BackoffFactor <= 1 {
		cfg.SMTP.Retry.BackoffFactor = 2.0
	}
	for _, p := range raw.SMTP.Profiles {
		tp := TransportProfile{Name: p.Name, Port: p.Port, TLS: strings.ToLower(p.TLS)}
		if tp.Port == 0 {
			continue
		}
		if tp.TLS != TLSStartTLS {
			tp.TLS = TLSImplicit
		}
		if tp.Name == "" {
			tp.Name = fmt.Sprintf("%s-%d", tp.TLS, tp.Port)
		}
		cfg.SMTP.Profiles = append(cfg.SMTP.Profiles, tp)
	}
	if len(cfg.SMTP.Profiles) == 0 {
		cfg.SMTP.Profiles = DefaultTransportProfiles(envOrDefaultInt("MAIL_PORT", 465))
	}

	cfg.OCR = OCRConfig{
		Binary:   firstNonEmpty(raw.OCR.Binary, envOrDefault("TESSERACT_BIN", "tesseract")),
		Language: firstNonEmpty(raw.OCR.Language, "eng"),
		Timeout:  parseDuration(raw.OCR.Timeout, 60*time.Second),
	}

	temperature := float32(0.2)
	if raw.LLM.Temperature != nil {
		temperature = *raw.LLM.Temperature
	}
	cfg.LLM = LLMConfig{
		BaseURL:     strings.TrimRight(firstNonEmpty(raw.LLM.BaseURL, envOrDefault("LLM_BASE_URL", "https://openrouter.ai/api/v1")), "/"),
		APIKey:      firstNonEmpty(raw.LLM.APIKey, os.Getenv("DEEPSEEK_API_KEY")),
		Model:       firstNonEmpty(raw.LLM.Model, "deepseek/deepseek-r1-0528:free"),
		Temperature: temperature,
		MaxTokens:   firstPositive(raw.LLM.MaxTokens, 512),
		Timeout:     parseDuration(raw.LLM.Timeout, 45*time.Second),
	}

	cfg.Documents = DocumentsConfig{
		BaseURL: strings.TrimRight(firstNonEmpty(raw.Documents.BaseURL, os.Getenv("DOCUMENTS_BASE_URL")), "/"),
		Timeout: parseDuration(raw.Documents.Timeout, 30*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultTransportProfiles returns implicit TLS on port, then STARTTLS on 587.
func DefaultTransportProfiles(port int) []TransportProfile {
	return []TransportProfile{
		{Name: "implicit-tls", Port: port, TLS: TLSImplicit},
		{Name: "starttls", Port: 587, TLS: TLSStartTLS},
	}
}

func (c *Config) validate() error {
	if c.Mailbox.Host == "" {
		return fmt.Errorf("mailbox host is required (mailbox.host or IMAP_HOST)")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url is required (database.url or DATABASE_URL)")
	}
	if c.DefaultOwner == "" {
		return fmt.Errorf("default owner is required (default_owner or DEFAULT_OWNER)")
	}
	switch c.Mailbox.Delivery {
	case DeliveryAtMostOnce, DeliveryAtLeastOnce:
	default:
		return fmt.Errorf("unknown mailbox delivery mode %q", c.Mailbox.Delivery)
	}
	switch c.Mailbox.Auth {
	case AuthPassword:
	case AuthOAuth2:
		if c.Mailbox.OAuth2.ClientID == "" || c.Mailbox.OAuth2.ClientSecret == "" || c.Mailbox.OAuth2.TokenURL == "" {
			return fmt.Errorf("oauth2 mailbox auth needs client_id, client_secret and tenant_id or token_url")
		}
	default:
		return fmt.Errorf("unknown mailbox auth mode %q", c.Mailbox.Auth)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw = strings.TrimSpace(raw); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
