// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package ai turns an uploaded photo into a stylised image by dispatching it
// to one of several image-generation providers (OpenAI, Stability AI,
// Midjourney, Leonardo AI). Each provider implements the Adapter interface,
// the Registry maps provider IDs to adapters, and the Gateway validates
// requests, resolves API keys and normalises results.
package ai

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// ProviderID identifies one of the supported upstream providers.
type ProviderID string

const (
	OpenAI     ProviderID = "openai"
	Stability  ProviderID = "stability"
	Midjourney ProviderID = "midjourney"
	Leonardo   ProviderID = "leonardo"
)

// Providers lists every supported provider in display order.
var Providers = []ProviderID{OpenAI, Stability, Midjourney, Leonardo}

// Label returns the human-readable provider name used in error messages.
func (id ProviderID) Label() string {
	switch id {
	case OpenAI:
		return "OpenAI"
	case Stability:
		return "Stability AI"
	case Midjourney:
		return "Midjourney"
	case Leonardo:
		return "Leonardo AI"
	}
	return string(id)
}

// ParseProvider converts a caller-supplied identifier into a ProviderID.
// Unknown identifiers yield an InvalidProvider error.
func ParseProvider(s string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers {
		if id == known {
			return id, nil
		}
	}
	return "", &Error{Kind: KindInvalidProvider, Message: "Invalid AI provider"}
}

// Image is an uploaded source image.
type Image struct {
	Data     []byte
	MIMEType string
}

// Output is what an adapter hands back on success: either a URL hosted by
// the provider, or raw image bytes that still need a home.
type Output struct {
	ImageURL  string
	ImageData []byte
	MIMEType  string
}

// Adapter speaks one provider's request/response protocol. Adapters are
// stateless; the API key is supplied per call.
type Adapter interface {
	// Transform sends the image and prompt upstream and returns the
	// generated image. Failures are returned as *Error.
	Transform(ctx context.Context, img Image, prompt, apiKey string) (*Output, error)

	// ID returns the provider this adapter serves.
	ID() ProviderID
}

// ProviderConfig holds the endpoint settings shared by every adapter.
type ProviderConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultTimeout bounds a single upstream HTTP call when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// httpClient returns a client honouring the configured timeout.
func (c ProviderConfig) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Config groups the settings for all adapters.
type Config struct {
	OpenAI     OpenAIConfig
	Stability  ProviderConfig
	Midjourney ProviderConfig
	Leonardo   LeonardoConfig
}

// Registry maps provider IDs to their adapters. It is built once at
// startup and only read afterwards.
type Registry struct {
	adapters map[ProviderID]Adapter
}

// NewRegistry creates a registry with an adapter for every supported provider.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{adapters: make(map[ProviderID]Adapter)}
	r.Register(newOpenAI(cfg.OpenAI))
	r.Register(newStability(cfg.Stability))
	r.Register(newMidjourney(cfg.Midjourney))
	r.Register(newLeonardo(cfg.Leonardo))
	return r
}

// Register adds or replaces the adapter for its provider. Call it during
// setup only (e.g. to inject test doubles).
func (r *Registry) Register(a Adapter) {
	if r.adapters == nil {
		r.adapters = make(map[ProviderID]Adapter)
	}
	r.adapters[a.ID()] = a
}

// Get returns the adapter for the given provider.
func (r *Registry) Get(id ProviderID) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, &Error{Kind: KindInvalidProvider, Provider: id, Message: "Invalid AI provider"}
	}
	return a, nil
}

// Available returns the IDs of all registered providers, sorted.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		names = append(names, string(id))
	}
	sort.Strings(names)
	return names
}

// KeySource supplies the operator's default API key for a provider.
type KeySource interface {
	DefaultKey(id ProviderID) string
}

// StaticKeys is a KeySource backed by a fixed map, usually filled from
// configuration at startup.
type StaticKeys map[ProviderID]string

// DefaultKey returns the configured key or "" when none is set.
func (k StaticKeys) DefaultKey(id ProviderID) string {
	return strings.TrimSpace(k[id])
}

// String lists which providers have a key without revealing the keys.
func (k StaticKeys) String() string {
	var have []string
	for _, id := range Providers {
		if k.DefaultKey(id) != "" {
			have = append(have, string(id))
		}
	}
	return fmt.Sprintf("keys%v", have)
}
