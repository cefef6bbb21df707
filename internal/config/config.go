package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults match the behavior of the production deployment.
const (
	DefaultDaysInFuture = 21
	DefaultMaxAttempts  = 5
	DefaultUserDelay    = time.Second
	DefaultMaxUsers     = 500

	// DefaultInstructionsDocName is the Google Doc name users share with
	// the service account to opt in to calendar analysis.
	DefaultInstructionsDocName = "PROMPT.AI_AGENT.GCAL"
)

var defaultPersonalDomains = []string{
	"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "icloud.com", "yahoo.co.uk",
}

var defaultExcludedDomains = []string{
	"resource.calendar.google.com", "hibob.io", "assistant.gong.io",
}

// Config holds all injected settings: domain sets for the classifier,
// window and retry policy for the pipeline, and collaborator addressing.
// Built once at startup and treated as immutable afterwards.
type Config struct {
	InternalDomains []string
	PersonalDomains []string
	ExcludedDomains []string

	DaysInFuture int
	MaxAttempts  int
	UserDelay    time.Duration
	MaxUsers     int

	AdminEmail          string
	InstructionsDocName string
}

// Load builds a Config from the environment. Domain lists are
// comma-separated; unset values fall back to the defaults above.
func Load() (*Config, error) {
	cfg := &Config{
		InternalDomains:     splitList(os.Getenv("INTERNAL_DOMAINS")),
		PersonalDomains:     defaultPersonalDomains,
		ExcludedDomains:     defaultExcludedDomains,
		DaysInFuture:        DefaultDaysInFuture,
		MaxAttempts:         DefaultMaxAttempts,
		UserDelay:           DefaultUserDelay,
		MaxUsers:            DefaultMaxUsers,
		AdminEmail:          os.Getenv("ADMIN_EMAIL"),
		InstructionsDocName: DefaultInstructionsDocName,
	}

	if v := os.Getenv("PERSONAL_DOMAINS"); v != "" {
		cfg.PersonalDomains = splitList(v)
	}
	if v := os.Getenv("EXCLUDED_DOMAINS"); v != "" {
		cfg.ExcludedDomains = splitList(v)
	}
	if v := os.Getenv("DAYS_IN_FUTURE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DAYS_IN_FUTURE %q: %w", v, err)
		}
		cfg.DaysInFuture = n
	}
	if v := os.Getenv("MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_ATTEMPTS %q: %w", v, err)
		}
		cfg.MaxAttempts = n
	}
	if v := os.Getenv("USER_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid USER_DELAY %q: %w", v, err)
		}
		cfg.UserDelay = d
	}
	if v := os.Getenv("INSTRUCTIONS_DOC_NAME"); v != "" {
		cfg.InstructionsDocName = v
	}

	return cfg, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadServiceAccount resolves the GCP service account JSON. Order of
// precedence: local file, then environment variable.
func LoadServiceAccount() ([]byte, error) {
	return loadCredential("gcp")
}

// GeminiCredentials is the shape of the Gemini settings blob.
type GeminiCredentials struct {
	APIKey    string `json:"API_KEY"`
	ModelName string `json:"DEFAULT_MODEL_NAME"`
}

// LoadGemini resolves the Gemini API credentials.
func LoadGemini() (*GeminiCredentials, error) {
	raw, err := loadCredential("gemini")
	if err != nil {
		return nil, err
	}
	var creds GeminiCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse gemini credentials: %w", err)
	}
	if creds.APIKey == "" {
		return nil, fmt.Errorf("gemini credentials missing API_KEY")
	}
	return &creds, nil
}

// loadCredential reads a credential blob from .creds.<key>.json, falling
// back to the GCAL_<KEY> environment variable.
func loadCredential(key string) ([]byte, error) {
	filename := fmt.Sprintf(".creds.%s.json", strings.ToLower(key))
	if data, err := os.ReadFile(filename); err == nil {
		return data, nil
	}
	envvar := "GCAL_" + strings.ToUpper(key)
	if v := os.Getenv(envvar); v != "" {
		return []byte(v), nil
	}
	return nil, fmt.Errorf("no %s credentials found in %s or $%s", key, filename, envvar)
}
