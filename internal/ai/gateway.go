// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// DefaultPrompt is used when the caller does not send a prompt.
const DefaultPrompt = "Transform this photo into a Studio Ghibli style anime illustration, " +
	"keeping the subject recognizable with soft colors and a whimsical, hand-painted look."

// TransformRequest is one image transformation requested by a caller.
type TransformRequest struct {
	Image    []byte
	MIMEType string
	Prompt   string
	Provider string
	APIKey   string // optional, overrides the operator default
}

// Result is a successful transformation.
type Result struct {
	ImageURL string
	Provider ProviderID
}

// Observer receives the outcome of every transformation. The metrics
// collector implements it.
type Observer interface {
	ObserveTransform(provider, outcome string, duration time.Duration)
}

// Gateway is the single entry point for image transformations. It holds no
// per-request state and is safe for concurrent use.
type Gateway struct {
	registry  *Registry
	keys      KeySource
	sink      ResultSink
	moderator Moderator
	observer  Observer
}

// GatewayOption customises a Gateway.
type GatewayOption func(*Gateway)

// WithResultSink stores byte results (e.g. Stability artifacts) in object
// storage instead of returning them as data URLs.
func WithResultSink(s ResultSink) GatewayOption {
	return func(g *Gateway) { g.sink = s }
}

// WithModerator enables prompt moderation before dispatch.
func WithModerator(m Moderator) GatewayOption {
	return func(g *Gateway) { g.moderator = m }
}

// WithObserver reports every outcome to o.
func WithObserver(o Observer) GatewayOption {
	return func(g *Gateway) { g.observer = o }
}

// NewGateway creates a gateway dispatching through registry and falling
// back to keys when the caller supplies no API key.
func NewGateway(registry *Registry, keys KeySource, opts ...GatewayOption) *Gateway {
	g := &Gateway{registry: registry, keys: keys}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ResolveKey returns the caller key when set, otherwise the operator
// default for the provider. It returns "" when neither exists.
func (g *Gateway) ResolveKey(id ProviderID, callerKey string) string {
	if k := strings.TrimSpace(callerKey); k != "" {
		return k
	}
	if g.keys == nil {
		return ""
	}
	return g.keys.DefaultKey(id)
}

// Transform validates req, dispatches it to the provider's adapter and
// normalises the result into an image URL. Every failure is an *Error.
func (g *Gateway) Transform(ctx context.Context, req TransformRequest) (*Result, error) {
	start := time.Now()
	res, err := g.transform(ctx, req)

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = string(KindUpstreamError)
		}
	}
	if g.observer != nil {
		g.observer.ObserveTransform(provider, outcome, time.Since(start))
	}

	if err != nil {
		slog.Warn("image transform failed",
			"provider", provider,
			"kind", outcome,
			"error", err,
			"duration", time.Since(start),
		)
		return nil, err
	}

	slog.Info("image transformed",
		"provider", provider,
		"duration", time.Since(start),
	)
	return res, nil
}

func (g *Gateway) transform(ctx context.Context, req TransformRequest) (*Result, error) {
	id, err := ParseProvider(req.Provider)
	if err != nil {
		return nil, err
	}

	if len(req.Image) == 0 {
		return nil, &Error{Kind: KindValidation, Provider: id, Message: "image is required"}
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}

	apiKey := g.ResolveKey(id, req.APIKey)
	if apiKey == "" {
		return nil, missingKeyError(id)
	}

	if g.moderator != nil && prompt != DefaultPrompt {
		if err := g.moderate(ctx, id, prompt); err != nil {
			return nil, err
		}
	}

	adapter, err := g.registry.Get(id)
	if err != nil {
		return nil, err
	}

	out, err := adapter.Transform(ctx, Image{Data: req.Image, MIMEType: req.MIMEType}, prompt, apiKey)
	if err != nil {
		return nil, classify(id, err)
	}

	imageURL, err := g.normalize(ctx, id, out)
	if err != nil {
		return nil, err
	}
	return &Result{ImageURL: imageURL, Provider: id}, nil
}

func (g *Gateway) moderate(ctx context.Context, id ProviderID, prompt string) error {
	res, err := g.moderator.CheckSafety(ctx, prompt)
	if err != nil {
		// A moderation outage should not block generation.
		slog.Warn("prompt moderation unavailable", "error", err)
		return nil
	}
	if res.Safe {
		return nil
	}
	return &Error{
		Kind:     KindValidation,
		Provider: id,
		Message:  "Prompt rejected by content policy: " + strings.Join(res.Categories, ", "),
	}
}

// classify makes sure every adapter failure carries a kind.
func classify(id ProviderID, err error) error {
	if KindOf(err) != "" {
		return err
	}
	if isTimeout(context.Background(), err) {
		return &Error{Kind: KindTimeout, Provider: id, Message: id.Label() + " request timed out", Err: err}
	}
	return upstreamError(id, err, "%s request failed", id.Label())
}
