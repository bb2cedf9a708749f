package services_test

import (
	"context"
	"testing"

	"screenclip/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTakeID(ctx, "take-1")
	ctx = services.WithStage(ctx, "trim")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.TakeIDFromContext(ctx); !ok || id != "take-1" {
		t.Fatalf("unexpected take id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "trim" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithTakeID(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.TakeIDFromContext(ctx); ok {
		t.Fatal("expected no take id value")
	}
}
