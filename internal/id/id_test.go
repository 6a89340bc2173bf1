package id

import (
	"context"
	"testing"
)

func TestNewRunIDIsUnique(t *testing.T) {
	if NewRunID() == NewRunID() {
		t.Fatalf("expected distinct run ids")
	}
}

func TestWithRunIDRoundTrip(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	if RunIDFromContext(ctx) != "run-1" {
		t.Fatalf("expected run id run-1, got %q", RunIDFromContext(ctx))
	}
	if RunIDFromContext(context.Background()) != "" {
		t.Fatalf("expected empty run id on a bare context")
	}
}

func TestWithLogIDRoundTrip(t *testing.T) {
	ctx := WithLogID(context.Background(), "log-1")
	if LogIDFromContext(ctx) != "log-1" {
		t.Fatalf("expected log id log-1, got %q", LogIDFromContext(ctx))
	}
	if LogIDFromContext(context.Background()) != "" {
		t.Fatalf("expected empty log id on a bare context")
	}
}
