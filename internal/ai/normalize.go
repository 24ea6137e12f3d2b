// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"encoding/base64"
	"log/slog"
)

// ResultSink stores generated image bytes and returns a public URL.
// storage.Client implements it.
type ResultSink interface {
	PutPublic(ctx context.Context, prefix, contentType string, data []byte) (string, error)
}

// resultPrefix is the object key prefix for stored results.
const resultPrefix = "generated"

// normalize turns an adapter Output into the single imageUrl returned to
// callers. URLs pass through unchanged. Raw bytes go to the result sink
// when one is configured and become a data URL otherwise, or when the
// upload fails.
func (g *Gateway) normalize(ctx context.Context, id ProviderID, out *Output) (string, error) {
	if out == nil {
		return "", emptyResultError(id)
	}
	if out.ImageURL != "" {
		return out.ImageURL, nil
	}
	if len(out.ImageData) == 0 {
		return "", emptyResultError(id)
	}

	mimeType := out.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}

	if g.sink != nil {
		url, err := g.sink.PutPublic(ctx, resultPrefix+"/"+string(id), mimeType, out.ImageData)
		if err == nil {
			return url, nil
		}
		slog.Warn("storing generated image failed, returning data URL",
			"provider", id,
			"error", err,
		)
	}

	return DataURL(mimeType, out.ImageData), nil
}

// DataURL encodes data as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
