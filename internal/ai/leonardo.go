// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"artshift/internal/imaging"
)

// Leonardo generation statuses reported by GET /generations/{id}.
const (
	leonardoComplete = "COMPLETE"
	leonardoFailed   = "FAILED"
)

// Polling defaults: 30 attempts, 2 seconds apart.
const (
	DefaultLeonardoPollInterval = 2 * time.Second
	DefaultLeonardoMaxAttempts  = 30
)

// LeonardoConfig configures the Leonardo adapter.
type LeonardoConfig struct {
	ProviderConfig
	PollInterval time.Duration
	MaxAttempts  int
	InitStrength float64
}

// leonardoProvider runs the upload, submit and poll flow against the
// Leonardo AI REST API. It is the only asynchronous provider.
type leonardoProvider struct {
	config LeonardoConfig
	client *http.Client
}

func newLeonardo(cfg LeonardoConfig) *leonardoProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://cloud.leonardo.ai/api/rest/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "e71a1c2f-4f80-4800-934f-2c68979d8cc8" // Leonardo Anime XL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultLeonardoPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultLeonardoMaxAttempts
	}
	if cfg.InitStrength <= 0 {
		cfg.InitStrength = 0.5
	}
	return &leonardoProvider{
		config: cfg,
		client: cfg.httpClient(),
	}
}

func (p *leonardoProvider) ID() ProviderID { return Leonardo }

func (p *leonardoProvider) Transform(ctx context.Context, img Image, prompt, apiKey string) (*Output, error) {
	initID, err := p.uploadInitImage(ctx, img, apiKey)
	if err != nil {
		return nil, err
	}

	generationID, err := p.submit(ctx, initID, prompt, apiKey)
	if err != nil {
		return nil, err
	}

	imageURL, err := p.poll(ctx, generationID, apiKey)
	if err != nil {
		return nil, err
	}
	return &Output{ImageURL: imageURL}, nil
}

func (p *leonardoProvider) uploadInitImage(ctx context.Context, img Image, apiKey string) (string, error) {
	mimeType := imaging.ContentType(img.MIMEType, img.Data)
	payload := leonardoInitImageRequest{
		Extension: imaging.Extension(mimeType),
		Image:     DataURL(mimeType, img.Data),
	}

	var resp leonardoInitImageResponse
	if err := doJSON(ctx, p.client, Leonardo, http.MethodPost, p.endpoint("/init-image"), apiKey, payload, &resp); err != nil {
		return "", err
	}
	if resp.UploadInitImage.ID == "" {
		return "", upstreamError(Leonardo, nil, "Leonardo AI did not return an init image id")
	}
	return resp.UploadInitImage.ID, nil
}

func (p *leonardoProvider) submit(ctx context.Context, initImageID, prompt, apiKey string) (string, error) {
	payload := leonardoGenerationRequest{
		Prompt:       prompt,
		ModelID:      p.config.Model,
		Width:        1024,
		Height:       1024,
		NumImages:    1,
		InitImageID:  initImageID,
		InitStrength: p.config.InitStrength,
	}

	var resp leonardoGenerationResponse
	if err := doJSON(ctx, p.client, Leonardo, http.MethodPost, p.endpoint("/generations"), apiKey, payload, &resp); err != nil {
		return "", err
	}
	if resp.SDGenerationJob.GenerationID == "" {
		return "", upstreamError(Leonardo, nil, "Leonardo AI did not return a generation id")
	}
	return resp.SDGenerationJob.GenerationID, nil
}

// poll waits one interval before every status check and gives up after
// MaxAttempts checks. Cancellation of ctx ends the wait immediately.
func (p *leonardoProvider) poll(ctx context.Context, generationID, apiKey string) (string, error) {
	statusURL := p.endpoint("/generations/" + url.PathEscape(generationID))

	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", &Error{Kind: KindTimeout, Provider: Leonardo, Message: "generation timed out", Err: ctx.Err()}
		case <-time.After(p.config.PollInterval):
		}

		var resp leonardoStatusResponse
		if err := doJSON(ctx, p.client, Leonardo, http.MethodGet, statusURL, apiKey, nil, &resp); err != nil {
			return "", err
		}

		gen := resp.GenerationsByPK
		switch gen.Status {
		case leonardoComplete:
			for _, img := range gen.GeneratedImages {
				if img.URL != "" {
					return img.URL, nil
				}
			}
			return "", emptyResultError(Leonardo)
		case leonardoFailed:
			return "", upstreamError(Leonardo, nil, "Leonardo AI generation failed")
		}

		slog.Debug("leonardo generation pending",
			"generation_id", generationID,
			"status", gen.Status,
			"attempt", attempt,
		)
	}

	return "", &Error{Kind: KindTimeout, Provider: Leonardo, Message: "generation timed out"}
}

func (p *leonardoProvider) endpoint(path string) string {
	return strings.TrimRight(p.config.BaseURL, "/") + path
}

type leonardoInitImageRequest struct {
	Extension string `json:"extension"`
	Image     string `json:"image"`
}

type leonardoInitImageResponse struct {
	UploadInitImage struct {
		ID string `json:"id"`
	} `json:"uploadInitImage"`
}

type leonardoGenerationRequest struct {
	Prompt       string  `json:"prompt"`
	ModelID      string  `json:"modelId"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	NumImages    int     `json:"num_images"`
	InitImageID  string  `json:"init_image_id"`
	InitStrength float64 `json:"init_strength"`
}

type leonardoGenerationResponse struct {
	SDGenerationJob struct {
		GenerationID string `json:"generationId"`
	} `json:"sdGenerationJob"`
}

type leonardoStatusResponse struct {
	GenerationsByPK struct {
		Status          string `json:"status"`
		GeneratedImages []struct {
			URL string `json:"url"`
		} `json:"generated_images"`
	} `json:"generations_by_pk"`
}
