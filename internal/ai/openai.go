// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"artshift/internal/imaging"
)

// OpenAIStrategy selects how the OpenAI adapter produces its image.
type OpenAIStrategy string

const (
	// DescribeThenGenerate asks a vision model to describe the photo, then
	// renders a new image from that description.
	DescribeThenGenerate OpenAIStrategy = "describe"
	// DirectEdit sends the photo straight to the image edit endpoint.
	DirectEdit OpenAIStrategy = "edit"
)

// MaxOpenAIImageBytes is the largest decoded upload the OpenAI adapter accepts.
const MaxOpenAIImageBytes = 20 * 1024 * 1024

const describeInstruction = "You are an expert art director. Describe the person or subject in this photo " +
	"in precise visual detail so an illustrator can redraw them: facial features, skin tone, " +
	"hair colour and hairstyle, clothing, accessories, expression, pose and background. " +
	"Answer with the description only."

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	ProviderConfig
	Strategy    OpenAIStrategy
	VisionModel string // describe step, default gpt-4o
	EditModel   string // direct edit, default dall-e-2
}

type openAIProvider struct {
	config OpenAIConfig
	client *http.Client
}

func newOpenAI(cfg OpenAIConfig) *openAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "dall-e-3"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "gpt-4o"
	}
	if cfg.EditModel == "" {
		cfg.EditModel = "dall-e-2"
	}
	if cfg.Strategy == "" {
		cfg.Strategy = DescribeThenGenerate
	}
	return &openAIProvider{
		config: cfg,
		client: cfg.httpClient(),
	}
}

func (p *openAIProvider) ID() ProviderID { return OpenAI }

// Transform validates the upload size and runs the configured strategy.
func (p *openAIProvider) Transform(ctx context.Context, img Image, prompt, apiKey string) (*Output, error) {
	if decodedSize(base64.StdEncoding.EncodedLen(len(img.Data))) > MaxOpenAIImageBytes {
		return nil, &Error{
			Kind:     KindValidation,
			Provider: OpenAI,
			Message:  "Image size exceeds the 20MB limit",
		}
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(p.config.BaseURL),
		option.WithHTTPClient(p.client),
		option.WithMaxRetries(0),
	)

	if p.config.Strategy == DirectEdit {
		return p.edit(ctx, client, img, prompt)
	}

	description, err := p.describe(ctx, client, img)
	if err != nil {
		return nil, err
	}
	return p.generate(ctx, client, enhancedPrompt(description, prompt))
}

// describe asks the vision model for a detailed description of the subject.
func (p *openAIProvider) describe(ctx context.Context, client openai.Client, img Image) (string, error) {
	mimeType := imaging.ContentType(img.MIMEType, img.Data)
	dataURL := DataURL(mimeType, img.Data)

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart("Describe this photo for a stylised redraw."),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
	}

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     p.config.VisionModel,
		MaxTokens: openai.Int(500),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(describeInstruction),
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: parts,
					},
				},
			},
		},
	})
	if err != nil {
		return "", openAIError(ctx, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &Error{
			Kind:     KindUpstreamEmpty,
			Provider: OpenAI,
			Message:  "OpenAI returned an empty image description",
		}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// generate renders a single image from the enhanced prompt.
func (p *openAIProvider) generate(ctx context.Context, client openai.Client, prompt string) (*Output, error) {
	resp, err := client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:          openai.ImageModel(p.config.Model),
		Prompt:         prompt,
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize("1024x1024"),
		Quality:        openai.ImageGenerateParamsQuality("hd"),
		ResponseFormat: openai.ImageGenerateParamsResponseFormat("url"),
	})
	if err != nil {
		return nil, openAIError(ctx, err)
	}
	return firstImage(resp)
}

// edit sends the photo, normalised to a square PNG, to the image edit endpoint.
func (p *openAIProvider) edit(ctx context.Context, client openai.Client, img Image, prompt string) (*Output, error) {
	square, err := imaging.ToSquarePNG(img.Data, imaging.DefaultEdge)
	if errors.Is(err, imaging.ErrTooManyPixels) {
		return nil, &Error{
			Kind:     KindValidation,
			Provider: OpenAI,
			Message:  "Image dimensions are too large",
			Err:      err,
		}
	}
	if err != nil {
		return nil, &Error{
			Kind:     KindValidation,
			Provider: OpenAI,
			Message:  "Unsupported image format",
			Err:      err,
		}
	}

	resp, err := client.Images.Edit(ctx, openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(square), "image.png", "image/png"),
		},
		Prompt:         prompt,
		Model:          openai.ImageModel(p.config.EditModel),
		N:              openai.Int(1),
		Size:           openai.ImageEditParamsSize("1024x1024"),
		ResponseFormat: openai.ImageEditParamsResponseFormat("url"),
	})
	if err != nil {
		return nil, openAIError(ctx, err)
	}
	return firstImage(resp)
}

func firstImage(resp *openai.ImagesResponse) (*Output, error) {
	if resp == nil || len(resp.Data) == 0 {
		return nil, emptyResultError(OpenAI)
	}
	img := resp.Data[0]
	if img.URL != "" {
		return &Output{ImageURL: img.URL}, nil
	}
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, upstreamError(OpenAI, err, "OpenAI returned an undecodable image")
		}
		return &Output{ImageData: data, MIMEType: "image/png"}, nil
	}
	return nil, emptyResultError(OpenAI)
}

// openAIError maps SDK failures onto the error taxonomy, keeping the
// upstream message when the API supplied one.
func openAIError(ctx context.Context, err error) error {
	if isTimeout(ctx, err) {
		return &Error{Kind: KindTimeout, Provider: OpenAI, Message: "OpenAI request timed out", Err: err}
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = fmt.Sprintf("OpenAI API error (status %d)", apiErr.StatusCode)
		}
		return upstreamError(OpenAI, err, "%s", msg)
	}
	return upstreamError(OpenAI, err, "OpenAI request failed: %v", err)
}

// enhancedPrompt wraps the vision description with the style directives.
func enhancedPrompt(description, userPrompt string) string {
	var b strings.Builder
	b.WriteString("Create a Studio Ghibli style illustration of the following subject. ")
	b.WriteString("Subject: ")
	b.WriteString(description)
	b.WriteString("\n\nStyle: hand-painted watercolor texture, soft gradients and gentle lighting. ")
	b.WriteString("Keep the same pose, hairstyle and clothing. ")
	b.WriteString("The character must stay recognizable as the person in the photo while being stylized.")
	if p := strings.TrimSpace(userPrompt); p != "" {
		b.WriteString("\n\nAdditional instructions: ")
		b.WriteString(p)
	}
	return b.String()
}

// decodedSize is the byte length of a base64 payload of b64Len characters.
func decodedSize(b64Len int) int {
	return (b64Len*3 + 3) / 4
}
