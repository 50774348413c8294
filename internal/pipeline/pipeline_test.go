package pipeline

import (
	"context"
	"errors"
	"testing"
)

type ctx struct {
	order []string
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	p := New[ctx]("test").
		Stage("a", func(_ context.Context, c *ctx) error { c.order = append(c.order, "a"); return nil }).
		Stage("b", func(_ context.Context, c *ctx) error { c.order = append(c.order, "b"); return nil })

	c := &ctx{}
	result := Run(context.Background(), p, c)
	if !result.Ok() {
		t.Fatalf("expected ok, got %+v", result)
	}
	if len(c.order) != 2 || c.order[0] != "a" || c.order[1] != "b" {
		t.Fatalf("unexpected order: %v", c.order)
	}
}

func TestPipelineStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	p := New[ctx]("test").
		Stage("a", func(_ context.Context, c *ctx) error { c.order = append(c.order, "a"); return nil }).
		Stage("b", func(_ context.Context, c *ctx) error { return boom }).
		Stage("c", func(_ context.Context, c *ctx) error { c.order = append(c.order, "c"); return nil })

	c := &ctx{}
	result := Run(context.Background(), p, c)
	if result.Ok() || result.FailedStage != "b" {
		t.Fatalf("expected failure at stage b, got %+v", result)
	}
	if len(c.order) != 1 || c.order[0] != "a" {
		t.Fatalf("expected stage c to be skipped, order=%v", c.order)
	}
}

func TestFinalizersAlwaysRunEvenOnAbort(t *testing.T) {
	boom := errors.New("boom")
	ran := false
	p := New[ctx]("test").
		Stage("a", func(_ context.Context, c *ctx) error { return boom }).
		Finalize("cleanup", func(_ context.Context, c *ctx) { ran = true })

	c := &ctx{}
	Run(context.Background(), p, c)
	if !ran {
		t.Fatal("expected finalizer to run despite stage abort")
	}
}

func TestPipelineAbortsOnCancelledContext(t *testing.T) {
	p := New[ctx]("test").
		Stage("a", func(_ context.Context, c *ctx) error { c.order = append(c.order, "a"); return nil })

	ctxCancelled, cancel := context.WithCancel(context.Background())
	cancel()

	c := &ctx{}
	result := Run(ctxCancelled, p, c)
	if result.Ok() {
		t.Fatal("expected cancellation to abort the chain")
	}
	if len(c.order) != 0 {
		t.Fatalf("expected no stages to run, got %v", c.order)
	}
}
