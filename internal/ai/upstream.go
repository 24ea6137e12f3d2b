// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
)

// maxResponseBytes caps how much of an upstream response body is read.
const maxResponseBytes = 32 << 20

// do sends req and returns the response body. Transport failures become
// Timeout or UpstreamError, non-2xx statuses become UpstreamError.
func do(client *http.Client, id ProviderID, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(req.Context(), err) {
			return nil, &Error{Kind: KindTimeout, Provider: id, Message: id.Label() + " request timed out", Err: err}
		}
		return nil, upstreamError(id, err, "%s request failed", id.Label())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, upstreamError(id, fmt.Errorf("%s read body: %w", id, err), "%s response could not be read", id.Label())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(id, resp.StatusCode, body)
	}
	return body, nil
}

// doJSON sends a JSON body (or none when payload is nil) and decodes the
// JSON response into out.
func doJSON(ctx context.Context, client *http.Client, id ProviderID, method, url, apiKey string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s marshal: %w", id, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%s request: %w", id, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	respBody, err := do(client, id, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return upstreamError(id, err, "%s returned an invalid response", id.Label())
	}
	return nil
}

// formField is one part of a multipart request body.
type formField struct {
	name     string
	value    string
	filename string // non-empty for file parts
	mimeType string
	data     []byte
}

// multipartBody encodes fields as multipart/form-data and returns the body
// along with its Content-Type header value.
func multipartBody(fields []formField) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if f.filename == "" {
			if err := w.WriteField(f.name, f.value); err != nil {
				return nil, "", fmt.Errorf("write field %s: %w", f.name, err)
			}
			continue
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.name, f.filename))
		h.Set("Content-Type", f.mimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", f.name, err)
		}
		if _, err := part.Write(f.data); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", f.name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func isTimeout(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
