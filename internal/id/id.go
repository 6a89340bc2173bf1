// Package id mints run/event/log identifiers and carries them on context.Context
// so every log line and event record can be correlated back to the run that
// produced it without threading extra parameters through every call site.
package id

import (
	"context"

	"github.com/segmentio/ksuid"
)

// NewRunID mints a new opaque run identifier.
func NewRunID() string {
	return "run-" + ksuid.New().String()
}

// NewEventID mints a new opaque event identifier.
func NewEventID() string {
	return "evt-" + ksuid.New().String()
}

// NewLogID mints a new log correlation identifier.
func NewLogID() string {
	return "log-" + ksuid.New().String()
}

type (
	runIDKey struct{}
	logIDKey struct{}
)

// WithRunID attaches a run id to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext retrieves the run id previously attached, or "".
func RunIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey{}).(string)
	return v
}

// WithLogID attaches a log correlation id to the context.
func WithLogID(ctx context.Context, logID string) context.Context {
	return context.WithValue(ctx, logIDKey{}, logID)
}

// LogIDFromContext retrieves the log id, or "".
func LogIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(logIDKey{}).(string)
	return v
}
