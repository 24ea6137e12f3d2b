// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"artshift/internal/imaging"
)

// midjourneyProvider talks to a Midjourney relay. Midjourney has no public
// API, so the relay accepts the photo and returns a hosted image URL.
type midjourneyProvider struct {
	config ProviderConfig
	client *http.Client
}

func newMidjourney(cfg ProviderConfig) *midjourneyProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.midjourney.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "niji"
	}
	return &midjourneyProvider{
		config: cfg,
		client: cfg.httpClient(),
	}
}

func (p *midjourneyProvider) ID() ProviderID { return Midjourney }

func (p *midjourneyProvider) Transform(ctx context.Context, img Image, prompt, apiKey string) (*Output, error) {
	mimeType := imaging.ContentType(img.MIMEType, img.Data)
	body, contentType, err := multipartBody([]formField{
		{name: "image", filename: "image." + imaging.Extension(mimeType), mimeType: mimeType, data: img.Data},
		{name: "prompt", value: prompt},
		{name: "style", value: p.config.Model},
	})
	if err != nil {
		return nil, fmt.Errorf("midjourney form: %w", err)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/imagine"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("midjourney request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+apiKey)

	respBody, err := do(p.client, Midjourney, req)
	if err != nil {
		return nil, err
	}

	var result struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, upstreamError(Midjourney, err, "Midjourney returned an invalid response")
	}
	if result.ImageURL == "" {
		return nil, upstreamError(Midjourney, nil, "Midjourney response did not include an image URL")
	}
	return &Output{ImageURL: result.ImageURL}, nil
}
