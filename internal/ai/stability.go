// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"artshift/internal/imaging"
)

// stabilityProvider implements image-to-image generation against the
// Stability AI v1 REST API. The result arrives as base64 artifacts.
type stabilityProvider struct {
	config ProviderConfig
	client *http.Client
}

func newStability(cfg ProviderConfig) *stabilityProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.stability.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "stable-diffusion-xl-1024-v1-0"
	}
	return &stabilityProvider{
		config: cfg,
		client: cfg.httpClient(),
	}
}

func (p *stabilityProvider) ID() ProviderID { return Stability }

func (p *stabilityProvider) Transform(ctx context.Context, img Image, prompt, apiKey string) (*Output, error) {
	mimeType := imaging.ContentType(img.MIMEType, img.Data)
	body, contentType, err := multipartBody([]formField{
		{name: "init_image", filename: "image." + imaging.Extension(mimeType), mimeType: mimeType, data: img.Data},
		{name: "text_prompts[0][text]", value: prompt},
		{name: "cfg_scale", value: "7"},
		{name: "samples", value: "1"},
		{name: "steps", value: "30"},
		{name: "style_preset", value: "anime"},
	})
	if err != nil {
		return nil, fmt.Errorf("stability form: %w", err)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/v1/generation/" + p.config.Model + "/image-to-image"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("stability request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	respBody, err := do(p.client, Stability, req)
	if err != nil {
		return nil, err
	}

	var result stabilityResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, upstreamError(Stability, err, "Stability AI returned an invalid response")
	}
	if len(result.Artifacts) == 0 || result.Artifacts[0].Base64 == "" {
		return nil, emptyResultError(Stability)
	}

	art := result.Artifacts[0]
	if art.FinishReason == "ERROR" {
		return nil, upstreamError(Stability, nil, "Stability AI generation failed")
	}
	data, err := base64.StdEncoding.DecodeString(art.Base64)
	if err != nil {
		return nil, upstreamError(Stability, err, "Stability AI returned an undecodable image")
	}

	return &Output{ImageData: data, MIMEType: "image/png"}, nil
}

type stabilityResponse struct {
	Artifacts []stabilityArtifact `json:"artifacts"`
}

type stabilityArtifact struct {
	Base64       string `json:"base64"`
	Seed         int64  `json:"seed"`
	FinishReason string `json:"finishReason"`
}
