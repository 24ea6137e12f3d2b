// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ---------- Helpers ----------

// newTestServer creates an httptest.Server that responds with the given
// status code and body. The server is closed when the test ends.
func newTestServer(t *testing.T, statusCode int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// pngBytes is a small valid PNG used as the uploaded photo.
var pngBytes = mustPNG(8, 4)

func mustPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 60), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func testImage() Image {
	return Image{Data: pngBytes, MIMEType: "image/png"}
}

// assertKind fails the test unless err is an *Error of the given kind.
func assertKind(t *testing.T, err error, want ErrorKind) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	var aiErr *Error
	if !errors.As(err, &aiErr) {
		t.Fatalf("expected *ai.Error, got %T: %v", err, err)
	}
	if aiErr.Kind != want {
		t.Fatalf("kind = %q, want %q (message %q)", aiErr.Kind, want, aiErr.Message)
	}
	return aiErr
}

// =====================================================================
// ProviderID
// =====================================================================

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in   string
		want ProviderID
	}{
		{"openai", OpenAI},
		{"stability", Stability},
		{"midjourney", Midjourney},
		{"leonardo", Leonardo},
		{" OpenAI ", OpenAI},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseProvider_Unknown(t *testing.T) {
	for _, in := range []string{"", "dalle", "gemini", "openai2"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseProvider(in)
			e := assertKind(t, err, KindInvalidProvider)
			if e.Message != "Invalid AI provider" {
				t.Errorf("message = %q", e.Message)
			}
		})
	}
}

func TestProviderLabel(t *testing.T) {
	want := map[ProviderID]string{
		OpenAI:     "OpenAI",
		Stability:  "Stability AI",
		Midjourney: "Midjourney",
		Leonardo:   "Leonardo AI",
	}
	for id, label := range want {
		if got := id.Label(); got != label {
			t.Errorf("%s.Label() = %q, want %q", id, got, label)
		}
	}
}

// =====================================================================
// Registry
// =====================================================================

func TestNewRegistry_AllProviders(t *testing.T) {
	r := NewRegistry(Config{})

	got := r.Available()
	want := []string{"leonardo", "midjourney", "openai", "stability"}
	if len(got) != len(want) {
		t.Fatalf("Available() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Available()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	for _, id := range Providers {
		a, err := r.Get(id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if a.ID() != id {
			t.Errorf("Get(%s).ID() = %s", id, a.ID())
		}
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := &Registry{}
	_, err := r.Get(OpenAI)
	assertKind(t, err, KindInvalidProvider)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry(Config{})
	fake := &fakeAdapter{id: Stability}
	r.Register(fake)

	got, err := r.Get(Stability)
	if err != nil {
		t.Fatal(err)
	}
	if got != fake {
		t.Error("expected registered fake to replace the default adapter")
	}
}

func TestStaticKeys(t *testing.T) {
	keys := StaticKeys{OpenAI: " sk-test ", Leonardo: ""}

	if got := keys.DefaultKey(OpenAI); got != "sk-test" {
		t.Errorf("DefaultKey(openai) = %q", got)
	}
	if got := keys.DefaultKey(Leonardo); got != "" {
		t.Errorf("DefaultKey(leonardo) = %q, want empty", got)
	}
	if got := keys.DefaultKey(Midjourney); got != "" {
		t.Errorf("DefaultKey(midjourney) = %q, want empty", got)
	}
	if s := keys.String(); s != "keys[openai]" {
		t.Errorf("String() = %q", s)
	}
}

// =====================================================================
// Error helpers
// =====================================================================

func TestStatusError_UsesUpstreamMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message field", `{"message":"invalid api key"}`, "Stability AI API error (status 401): invalid api key"},
		{"error string", `{"error":"quota exceeded"}`, "Stability AI API error (status 401): quota exceeded"},
		{"nested error", `{"error":{"message":"bad prompt"}}`, "Stability AI API error (status 401): bad prompt"},
		{"plain text", `gateway down`, "Stability AI API error (status 401): gateway down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := statusError(Stability, http.StatusUnauthorized, []byte(tt.body))
			if err.Kind != KindUpstreamError {
				t.Errorf("kind = %q", err.Kind)
			}
			if err.Message != tt.want {
				t.Errorf("message = %q, want %q", err.Message, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", &Error{Kind: KindTimeout})
	if got := KindOf(wrapped); got != KindTimeout {
		t.Errorf("KindOf(wrapped) = %q", got)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestMissingKeyMessages(t *testing.T) {
	want := map[ProviderID]string{
		OpenAI:     "OpenAI API key not found. Please provide your own API key.",
		Stability:  "Stability AI API key not found. Please provide your own API key.",
		Midjourney: "Midjourney API key not found. Please provide your own API key.",
		Leonardo:   "Leonardo AI API key not found. Please provide your own API key.",
	}
	for id, msg := range want {
		if got := missingKeyError(id).Error(); got != msg {
			t.Errorf("%s: got %q, want %q", id, got, msg)
		}
	}
}

// fakeAdapter is a hand-written Adapter used by the gateway tests.
type fakeAdapter struct {
	id     ProviderID
	out    *Output
	err    error
	calls  int
	prompt string
	apiKey string
}

func (f *fakeAdapter) ID() ProviderID { return f.id }

func (f *fakeAdapter) Transform(_ context.Context, _ Image, prompt, apiKey string) (*Output, error) {
	f.calls++
	f.prompt = prompt
	f.apiKey = apiKey
	return f.out, f.err
}
