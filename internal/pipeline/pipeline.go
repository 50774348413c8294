// Package pipeline implements the generic staged task-chain runtime shared
// by the auction and billing-event pipelines: an ordered sequence of named
// stages over a shared context, stopping at the first failure, followed
// unconditionally by a finalizer pass.
package pipeline

import "context"

// Stage is one named step in a Pipeline. A stage that returns a non-nil
// error aborts the chain; every later stage is skipped, but finalizers
// still run.
type Stage[C any] struct {
	Name string
	Run  func(ctx context.Context, c *C) error
}

// Finalizer is a terminal task that runs regardless of whether the primary
// chain completed or aborted — counter merges, cleanup.
type Finalizer[C any] struct {
	Name string
	Run  func(ctx context.Context, c *C)
}

// Pipeline is an ordered chain of stages plus a post-stage of finalizers,
// generic over the shared context type each pipeline threads through its
// stages (AuctionContext, EventContext, ...).
type Pipeline[C any] struct {
	name       string
	stages     []Stage[C]
	finalizers []Finalizer[C]
}

// New creates an empty, named pipeline.
func New[C any](name string) *Pipeline[C] {
	return &Pipeline[C]{name: name}
}

// Name returns the pipeline's name, used in logging/tracing.
func (p *Pipeline[C]) Name() string { return p.name }

// Stage appends a task to the primary chain. Run calls every stage inline,
// one after another; there is no async stage kind and no per-stage deadline.
func (p *Pipeline[C]) Stage(name string, run func(ctx context.Context, c *C) error) *Pipeline[C] {
	p.stages = append(p.stages, Stage[C]{Name: name, Run: run})
	return p
}

// Finalize appends a terminal task that always runs.
func (p *Pipeline[C]) Finalize(name string, run func(ctx context.Context, c *C)) *Pipeline[C] {
	p.finalizers = append(p.finalizers, Finalizer[C]{Name: name, Run: run})
	return p
}

// Result reports which stage (if any) aborted the chain.
type Result struct {
	FailedStage string
	Err         error
}

// Ok reports whether every stage in the primary chain completed.
func (r Result) Ok() bool { return r.Err == nil }

// Run drives c through every stage in order, stopping at the first error
// or at context cancellation (cooperative — a stage already running is not
// interrupted, only the next stage boundary is). Finalizers always run,
// even on abort, in pipeline order.
func Run[C any](ctx context.Context, p *Pipeline[C], c *C) Result {
	result := Result{}
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			result = Result{FailedStage: s.Name, Err: err}
			break
		}
		if err := s.Run(ctx, c); err != nil {
			result = Result{FailedStage: s.Name, Err: err}
			break
		}
	}

	for _, f := range p.finalizers {
		f.Run(ctx, c)
	}

	return result
}
