// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a transformation failed.
type ErrorKind string

const (
	KindMissingKey      ErrorKind = "missing_key"
	KindInvalidProvider ErrorKind = "invalid_provider"
	KindUpstreamEmpty   ErrorKind = "upstream_empty"
	KindUpstreamError   ErrorKind = "upstream_error"
	KindTimeout         ErrorKind = "timeout"
	KindValidation      ErrorKind = "validation_error"
)

// Error is the failure type returned by the Gateway and all adapters.
// Message is safe to show to the caller; Err keeps the underlying cause.
type Error struct {
	Kind     ErrorKind
	Provider ProviderID
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind carried by err, or "" if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func missingKeyError(id ProviderID) *Error {
	return &Error{
		Kind:     KindMissingKey,
		Provider: id,
		Message:  fmt.Sprintf("%s API key not found. Please provide your own API key.", id.Label()),
	}
}

func upstreamError(id ProviderID, err error, format string, args ...any) *Error {
	return &Error{
		Kind:     KindUpstreamError,
		Provider: id,
		Message:  fmt.Sprintf(format, args...),
		Err:      err,
	}
}

func emptyResultError(id ProviderID) *Error {
	return &Error{
		Kind:     KindUpstreamEmpty,
		Provider: id,
		Message:  fmt.Sprintf("No image generated by %s", id.Label()),
	}
}

// statusError builds an UpstreamError for a non-2xx response, preferring
// the message the provider put in its JSON body.
func statusError(id ProviderID, status int, body []byte) *Error {
	msg := upstreamMessage(body)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return &Error{
		Kind:     KindUpstreamError,
		Provider: id,
		Message:  fmt.Sprintf("%s API error (status %d): %s", id.Label(), status, msg),
	}
}

// upstreamMessage extracts a human-readable message from the common error
// body shapes: {"message": ...}, {"error": "..."} and {"error": {"message": ...}}.
func upstreamMessage(body []byte) string {
	var shape struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return ""
	}
	if shape.Message != "" {
		return shape.Message
	}
	if len(shape.Error) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(shape.Error, &s); err == nil {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(shape.Error, &nested); err == nil {
		return nested.Message
	}
	return ""
}
