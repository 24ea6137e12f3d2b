// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers implements the artshift HTTP API: the session-gated
// generate route, the edge-worker route, generation history and the
// download proxy.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"artshift/internal/ai"
	"artshift/internal/imaging"
	"artshift/internal/middleware"
	"artshift/internal/models"
)

const (
	msgMissingFields = "Missing required fields"
	msgFreeUsedUp    = "Free image generations already used. Please provide API key or subscribe."
	msgUnauthorized  = "Unauthorized"

	// historyLimit is how many entries GET /api/generations returns.
	historyLimit = 20

	// backgroundTimeout bounds history writes that run after the response
	// has been written, and allowance refunds.
	backgroundTimeout = 5 * time.Second
)

// Transformer runs one image transformation.
type Transformer interface {
	Transform(ctx context.Context, req ai.TransformRequest) (*ai.Result, error)
}

// ProfileStore reads and updates per-user free usage. ReserveFreeGeneration
// must be atomic per profile.
type ProfileStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	ReserveFreeGeneration(ctx context.Context, id uuid.UUID, allowance int) (bool, error)
	ReleaseFreeGeneration(ctx context.Context, id uuid.UUID) error
}

// HistoryStore records and lists generation outcomes.
type HistoryStore interface {
	Record(ctx context.Context, g *models.Generation)
	Recent(ctx context.Context, profileID uuid.UUID, limit int) ([]models.Generation, error)
}

// UsageCounter counts consumed free generations.
type UsageCounter interface {
	IncFreeGenerations()
}

// GenerateOptions configures the generate handlers.
type GenerateOptions struct {
	FreeGenerations int
	MaxUploadBytes  int64
	History         HistoryStore // optional
	Usage           UsageCounter // optional
}

// Generate serves the image generation endpoints.
type Generate struct {
	gateway  Transformer
	profiles ProfileStore
	opts     GenerateOptions
	wg       sync.WaitGroup
}

// NewGenerate creates the generate handler group.
func NewGenerate(gateway Transformer, profiles ProfileStore, opts GenerateOptions) *Generate {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 << 20
	}
	return &Generate{gateway: gateway, profiles: profiles, opts: opts}
}

// Wait blocks until background bookkeeping has finished. Call it
// after the server has stopped accepting requests.
func (h *Generate) Wait() {
	h.wg.Wait()
}

// generateForm is the parsed multipart body shared by both routes.
type generateForm struct {
	image    []byte
	mimeType string
	prompt   string
	provider string
	apiKey   string
}

// Generate handles POST /api/generate for signed-in users. Users without
// their own API key and without a subscription are limited to the free
// allowance. A unit of it is reserved before any provider is called and
// given back if the generation fails.
func (h *Generate) Generate(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromCtx(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	form, status, msg := h.parseForm(w, r)
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	usesFree := false
	if form.apiKey == "" {
		profile, err := h.profiles.FindByID(r.Context(), sess.UserID)
		if err != nil {
			slog.Error("failed to load profile", "user_id", sess.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to load profile")
			return
		}
		if !profile.HasFreeGenerations(h.opts.FreeGenerations) {
			writeError(w, http.StatusForbidden, msgFreeUsedUp)
			return
		}
		if profile == nil || !profile.SubscriptionActive {
			ok, err := h.profiles.ReserveFreeGeneration(r.Context(), sess.UserID, h.opts.FreeGenerations)
			if err != nil {
				slog.Error("failed to reserve free generation", "user_id", sess.UserID, "error", err)
				writeError(w, http.StatusInternalServerError, "Failed to load profile")
				return
			}
			if !ok {
				writeError(w, http.StatusForbidden, msgFreeUsedUp)
				return
			}
			usesFree = true
		}
	}

	start := time.Now()
	res, err := h.gateway.Transform(r.Context(), form.request())
	elapsed := time.Since(start)

	entry := &models.Generation{
		ProfileID:  sess.UserID,
		Provider:   strings.ToLower(form.provider),
		DurationMS: elapsed.Milliseconds(),
	}
	if err != nil {
		if usesFree {
			h.releaseFree(r.Context(), sess.UserID)
		}
		entry.Status = models.GenerationFailed
		entry.ErrorKind = string(ai.KindOf(err))
		h.background(r.Context(), func(ctx context.Context) { h.record(ctx, entry) })
		writeTransformError(w, err)
		return
	}

	entry.Status = models.GenerationSucceeded
	entry.UsedFree = usesFree
	if usesFree && h.opts.Usage != nil {
		h.opts.Usage.IncFreeGenerations()
	}
	h.background(r.Context(), func(ctx context.Context) { h.record(ctx, entry) })

	writeResult(w, res)
}

// WorkerGenerate handles POST /api/worker/generate. It behaves like
// Generate without the session and free-usage gate.
func (h *Generate) WorkerGenerate(w http.ResponseWriter, r *http.Request) {
	form, status, msg := h.parseForm(w, r)
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	res, err := h.gateway.Transform(r.Context(), form.request())
	if err != nil {
		writeTransformError(w, err)
		return
	}
	writeResult(w, res)
}

// History handles GET /api/generations, listing the caller's most recent
// generations.
func (h *Generate) History(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromCtx(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	if h.opts.History == nil {
		writeJSON(w, http.StatusOK, map[string]any{"generations": []models.Generation{}})
		return
	}

	entries, err := h.opts.History.Recent(r.Context(), sess.UserID, historyLimit)
	if err != nil {
		slog.Error("failed to list generations", "user_id", sess.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"generations": entries})
}

// parseForm reads the multipart body. A non-zero status means the request
// was rejected with msg.
func (h *Generate) parseForm(w http.ResponseWriter, r *http.Request) (*generateForm, int, string) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, "Image is too large"
		}
		return nil, http.StatusBadRequest, msgMissingFields
	}

	provider := strings.TrimSpace(r.FormValue("provider"))
	file, header, err := r.FormFile("image")
	if err != nil || provider == "" {
		return nil, http.StatusBadRequest, msgMissingFields
	}
	defer file.Close()

	data, err := readUpload(file, h.opts.MaxUploadBytes)
	if err != nil {
		return nil, http.StatusRequestEntityTooLarge, "Image is too large"
	}
	if len(data) == 0 {
		return nil, http.StatusBadRequest, msgMissingFields
	}

	return &generateForm{
		image:    data,
		mimeType: imaging.ContentType(header.Header.Get("Content-Type"), data),
		prompt:   r.FormValue("prompt"),
		provider: provider,
		apiKey:   strings.TrimSpace(r.FormValue("apiKey")),
	}, 0, ""
}

func readUpload(f multipart.File, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errors.New("upload exceeds limit")
	}
	return data, nil
}

func (f *generateForm) request() ai.TransformRequest {
	return ai.TransformRequest{
		Image:    f.image,
		MIMEType: f.mimeType,
		Prompt:   f.prompt,
		Provider: f.provider,
		APIKey:   f.apiKey,
	}
}

// background runs fn alongside the response. fn keeps the request's
// values but not its cancellation.
func (h *Generate) background(parent context.Context, fn func(ctx context.Context)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), backgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// releaseFree returns a reservation before the error response is written,
// so an immediate retry sees the unit again. It survives client disconnects.
func (h *Generate) releaseFree(parent context.Context, userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), backgroundTimeout)
	defer cancel()
	if err := h.profiles.ReleaseFreeGeneration(ctx, userID); err != nil {
		slog.Error("failed to release free generation", "user_id", userID, "error", err)
	}
}

func (h *Generate) record(ctx context.Context, g *models.Generation) {
	if h.opts.History != nil {
		h.opts.History.Record(ctx, g)
	}
}

func writeResult(w http.ResponseWriter, res *ai.Result) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"imageUrl": res.ImageURL,
		"provider": string(res.Provider),
	})
}

// writeTransformError maps every gateway failure to 500 with the
// caller-safe message and its kind.
func writeTransformError(w http.ResponseWriter, err error) {
	body := map[string]string{"error": err.Error()}
	if kind := ai.KindOf(err); kind != "" {
		body["kind"] = string(kind)
	}
	writeJSON(w, http.StatusInternalServerError, body)
}
