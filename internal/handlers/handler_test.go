// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides the shared fakes and request builders for the
// handler tests.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"artshift/internal/ai"
	"artshift/internal/middleware"
	"artshift/internal/models"
	"artshift/internal/session"
)

// mockGateway implements Transformer.
type mockGateway struct {
	mu    sync.Mutex
	res   *ai.Result
	err   error
	delay time.Duration
	calls int
	last  ai.TransformRequest
}

func (m *mockGateway) Transform(_ context.Context, req ai.TransformRequest) (*ai.Result, error) {
	time.Sleep(m.delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = req
	return m.res, m.err
}

// mockProfiles implements ProfileStore. Reservations are serialised by mu
// the way the database serialises them per row.
type mockProfiles struct {
	mu         sync.Mutex
	profile    *models.Profile
	findErr    error
	reserveErr error
	used       int
	reserved   []uuid.UUID
	released   []uuid.UUID
}

func (m *mockProfiles) FindByID(_ context.Context, _ uuid.UUID) (*models.Profile, error) {
	return m.profile, m.findErr
}

func (m *mockProfiles) ReserveFreeGeneration(_ context.Context, id uuid.UUID, allowance int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserveErr != nil {
		return false, m.reserveErr
	}
	if m.used >= allowance {
		return false, nil
	}
	m.used++
	m.reserved = append(m.reserved, id)
	return true, nil
}

func (m *mockProfiles) ReleaseFreeGeneration(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used--
	m.released = append(m.released, id)
	return nil
}

// mockHistory implements HistoryStore.
type mockHistory struct {
	mu       sync.Mutex
	recorded []*models.Generation
	recent   []models.Generation
	err      error
}

func (m *mockHistory) Record(_ context.Context, g *models.Generation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, g)
}

func (m *mockHistory) Recent(_ context.Context, _ uuid.UUID, _ int) ([]models.Generation, error) {
	return m.recent, m.err
}

// mockUsage implements UsageCounter.
type mockUsage struct {
	mu sync.Mutex
	n  int
}

func (m *mockUsage) IncFreeGenerations() {
	m.mu.Lock()
	m.n++
	m.mu.Unlock()
}

// testPNG is a small valid PNG used as the uploaded photo.
var testPNG = func() []byte {
	var buf bytes.Buffer
	png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	return buf.Bytes()
}()

// multipartRequest builds a POST with the given text fields and, when
// img is non-nil, an "image" file part.
func multipartRequest(t *testing.T, path string, fields map[string]string, img []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if img != nil {
		part, err := mw.CreateFormFile("image", "photo.png")
		if err != nil {
			t.Fatal(err)
		}
		part.Write(img)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// withUser attaches a session for userID to req.
func withUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithSession(req.Context(), &session.Data{UserID: userID, Email: "user@artshift.local"}))
}

// decodeBody unmarshals a JSON response body.
func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %q", rr.Body.String())
	}
	return body
}
