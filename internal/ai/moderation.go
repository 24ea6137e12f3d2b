// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ModerationResult contains the outcome of a prompt safety check.
type ModerationResult struct {
	Safe       bool     // true if the prompt passes moderation
	Categories []string // flagged category names (empty when safe)
}

// Moderator checks user prompts for policy violations before they are
// sent to a generation provider.
type Moderator interface {
	CheckSafety(ctx context.Context, text string) (*ModerationResult, error)
}

// openAIModerator uses the free OpenAI moderation endpoint.
type openAIModerator struct {
	client openai.Client
}

// NewOpenAIModerator creates a moderator backed by the OpenAI moderation API.
// An empty baseURL selects the public endpoint.
func NewOpenAIModerator(apiKey, baseURL string) Moderator {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &openAIModerator{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(&http.Client{Timeout: 15 * time.Second}),
			option.WithMaxRetries(0),
		),
	}
}

func (m *openAIModerator) CheckSafety(ctx context.Context, text string) (*ModerationResult, error) {
	resp, err := m.client.Moderations.New(ctx, openai.ModerationNewParams{
		Model: openai.ModerationModel("omni-moderation-latest"),
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("moderation: %w", err)
	}

	if len(resp.Results) == 0 || !resp.Results[0].Flagged {
		return &ModerationResult{Safe: true}, nil
	}

	var categories map[string]bool
	if raw := resp.Results[0].Categories.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &categories); err != nil {
			return nil, fmt.Errorf("moderation categories: %w", err)
		}
	}

	return &ModerationResult{Safe: false, Categories: flaggedCategories(categories)}, nil
}

// flaggedCategories converts "hate/threatening" into "hate (threatening)"
// and returns the flagged names sorted.
func flaggedCategories(categories map[string]bool) []string {
	var flagged []string
	for cat, isFlagged := range categories {
		if !isFlagged {
			continue
		}
		display := cat
		if before, after, ok := strings.Cut(cat, "/"); ok {
			display = before + " (" + after + ")"
		}
		flagged = append(flagged, strings.ReplaceAll(display, "_", " "))
	}
	sort.Strings(flagged)
	return flagged
}
