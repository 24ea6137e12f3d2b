// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string
	Port string
	Env  string // "development", "production", "testing"

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible cache)
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// S3-compatible object storage for generated images
	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3BucketPublic string
	S3PublicURL    string

	// Operator default keys and endpoints per provider
	OpenAIKey         string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIStrategy    string // "describe" or "edit"
	StabilityKey      string
	StabilityBaseURL  string
	StabilityEngine   string
	MidjourneyKey     string
	MidjourneyBaseURL string
	LeonardoKey       string
	LeonardoBaseURL   string
	LeonardoModel     string

	// Provider call behaviour
	ProviderTimeout      time.Duration
	LeonardoPollInterval time.Duration
	LeonardoMaxAttempts  int

	// Generation policy
	FreeGenerations    int // free generations per profile before a key or subscription is required
	GenerateRateLimit  int // generate requests per minute per user (or IP for the worker route)
	MaxUploadMB        int
	ModerationEnabled  bool
	CORSAllowedOrigins []string

	// TrustedProxies lists the proxies whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the peer address is always used.
	TrustedProxies []netip.Prefix
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. A .env file in the working directory
// is loaded first if present; real environment variables take precedence.
// Returns an error if critical values are missing in production mode.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Host: envOrDefault("APP_HOST", "0.0.0.0"),
		Port: envOrDefault("APP_PORT", "8080"),
		Env:  envOrDefault("APP_ENV", "development"),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "artshift"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "artshift"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3Region:       envOrDefault("S3_REGION", "fsn1"),
		S3AccessKey:    os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:    os.Getenv("S3_SECRET_KEY"),
		S3BucketPublic: envOrDefault("S3_BUCKET_PUBLIC", "artshift-public"),
		S3PublicURL:    os.Getenv("S3_PUBLIC_URL"),

		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:       envOrDefault("OPENAI_MODEL", "dall-e-3"),
		OpenAIStrategy:    envOrDefault("OPENAI_STRATEGY", "describe"),
		StabilityKey:      os.Getenv("STABILITY_API_KEY"),
		StabilityBaseURL:  envOrDefault("STABILITY_BASE_URL", "https://api.stability.ai"),
		StabilityEngine:   envOrDefault("STABILITY_ENGINE", "stable-diffusion-xl-1024-v1-0"),
		MidjourneyKey:     os.Getenv("MIDJOURNEY_API_KEY"),
		MidjourneyBaseURL: envOrDefault("MIDJOURNEY_BASE_URL", "https://api.midjourney.com/v1"),
		LeonardoKey:       os.Getenv("LEONARDO_API_KEY"),
		LeonardoBaseURL:   envOrDefault("LEONARDO_BASE_URL", "https://cloud.leonardo.ai/api/rest/v1"),
		LeonardoModel:     envOrDefault("LEONARDO_MODEL", "e71a1c2f-4f80-4800-934f-2c68979d8cc8"),

		CORSAllowedOrigins: splitList(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.TrustedProxies, err = envPrefixes("TRUSTED_PROXIES"); err != nil {
		return nil, err
	}
	if cfg.ProviderTimeout, err = envDuration("PROVIDER_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.LeonardoPollInterval, err = envDuration("LEONARDO_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.LeonardoMaxAttempts, err = envInt("LEONARDO_MAX_ATTEMPTS", 30); err != nil {
		return nil, err
	}
	if cfg.FreeGenerations, err = envInt("FREE_GENERATIONS", 1); err != nil {
		return nil, err
	}
	if cfg.GenerateRateLimit, err = envInt("GENERATE_RATE_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.MaxUploadMB, err = envInt("MAX_UPLOAD_MB", 25); err != nil {
		return nil, err
	}
	if cfg.ModerationEnabled, err = envBool("MODERATION_ENABLED", false); err != nil {
		return nil, err
	}

	if cfg.OpenAIStrategy != "describe" && cfg.OpenAIStrategy != "edit" {
		return nil, fmt.Errorf("OPENAI_STRATEGY must be \"describe\" or \"edit\", got %q", cfg.OpenAIStrategy)
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// MaxUploadBytes returns the multipart body limit for generate requests.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

// envDuration accepts Go durations ("2s", "1m") or a bare number of milliseconds.
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

// envPrefixes parses a comma-separated list of CIDRs or bare IPs.
func envPrefixes(key string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range splitList(os.Getenv(key)) {
		if prefix, err := netip.ParsePrefix(item); err == nil {
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an IP or CIDR", key, item)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
