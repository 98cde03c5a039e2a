package ext_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tavlicon/lanes/ext"
	"github.com/tavlicon/lanes/id"
	"github.com/tavlicon/lanes/job"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls   []string
	lastErr error
	elapsed time.Duration
	pct     float64
	evicted int
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobQueued(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobQueued")
	return nil
}

func (e *allHooksExt) OnJobStarted(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobStarted")
	return nil
}

func (e *allHooksExt) OnJobProgressed(_ context.Context, _ *job.Job, p job.Progress) error {
	e.calls = append(e.calls, "OnJobProgressed")
	e.pct = p.Percent
	return nil
}

func (e *allHooksExt) OnJobSucceeded(_ context.Context, _ *job.Job, elapsed time.Duration) error {
	e.calls = append(e.calls, "OnJobSucceeded")
	e.elapsed = elapsed
	return nil
}

func (e *allHooksExt) OnJobFailed(_ context.Context, _ *job.Job, err error) error {
	e.calls = append(e.calls, "OnJobFailed")
	e.lastErr = err
	return nil
}

func (e *allHooksExt) OnJobCancelled(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobCancelled")
	return nil
}

func (e *allHooksExt) OnJobRejected(_ context.Context, _ *job.Job, _ error) error {
	e.calls = append(e.calls, "OnJobRejected")
	return nil
}

func (e *allHooksExt) OnJobsEvicted(_ context.Context, count int) error {
	e.calls = append(e.calls, "OnJobsEvicted")
	e.evicted += count
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// queuedOnlyExt only implements OnJobQueued.
type queuedOnlyExt struct {
	calls []string
}

func (e *queuedOnlyExt) Name() string { return "queued-only" }

func (e *queuedOnlyExt) OnJobQueued(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobQueued")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobQueued(_ context.Context, _ *job.Job) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

func newJob() *job.Job {
	return &job.Job{ID: id.NewJobID(), Lane: job.LaneImageEdit}
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_Register(t *testing.T) {
	r := ext.NewRegistry(testLogger())
	r.Register(&allHooksExt{})

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(testLogger())
	all := &allHooksExt{}
	qo := &queuedOnlyExt{}
	r.Register(all)
	r.Register(qo)

	ctx := context.Background()
	j := newJob()

	r.EmitJobQueued(ctx, j)
	if len(all.calls) != 1 || len(qo.calls) != 1 {
		t.Fatalf("all=%v qo=%v", all.calls, qo.calls)
	}

	r.EmitJobStarted(ctx, j)
	if len(all.calls) != 2 || all.calls[1] != "OnJobStarted" {
		t.Fatalf("all: expected OnJobStarted as 2nd, got %v", all.calls)
	}
	if len(qo.calls) != 1 {
		t.Fatalf("qo: should still have 1 call, got %v", qo.calls)
	}
}

func TestRegistry_EmitJobEventRoutesByKind(t *testing.T) {
	r := ext.NewRegistry(testLogger())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	start := time.Now()
	end := start.Add(3 * time.Second)
	j := newJob()
	j.StartedAt, j.EndedAt = &start, &end
	p := job.NewProgress(1, 4, "denoise")

	events := []*job.Event{
		{Kind: job.EventQueued},
		{Kind: job.EventStarted},
		{Kind: job.EventProgress, Data: job.EventData{Progress: &p}},
		{Kind: job.EventCompleted},
		{Kind: job.EventFailed, Data: job.EventData{Error: &job.ErrorDetail{Message: "Model not loaded"}}},
		{Kind: job.EventCancelled},
	}
	for _, evt := range events {
		r.EmitJobEvent(ctx, j, evt)
	}

	expected := []string{
		"OnJobQueued", "OnJobStarted", "OnJobProgressed",
		"OnJobSucceeded", "OnJobFailed", "OnJobCancelled",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
	if all.pct != 25 {
		t.Errorf("progress percent = %v, want 25", all.pct)
	}
	if all.elapsed != 3*time.Second {
		t.Errorf("elapsed = %v, want 3s", all.elapsed)
	}
	if all.lastErr == nil || all.lastErr.Error() != "Model not loaded" {
		t.Errorf("failure error = %v", all.lastErr)
	}
}

func TestRegistry_OtherHooksFire(t *testing.T) {
	r := ext.NewRegistry(testLogger())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	r.EmitJobRejected(ctx, newJob(), errors.New("full"))
	r.EmitJobsEvicted(ctx, 3)
	r.EmitShutdown(ctx)

	expected := []string{"OnJobRejected", "OnJobsEvicted", "OnShutdown"}
	if len(all.calls) != len(expected) {
		t.Fatalf("calls = %v", all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
	if all.evicted != 3 {
		t.Errorf("evicted = %d, want 3", all.evicted)
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(testLogger())
	all := &allHooksExt{}
	r.Register(&failingExt{})
	r.Register(all)

	r.EmitJobQueued(context.Background(), newJob())
	r.EmitShutdown(context.Background())

	if len(all.calls) != 2 || all.calls[0] != "OnJobQueued" {
		t.Fatalf("all: expected hooks to fire despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(testLogger())
	ctx := context.Background()

	r.EmitJobQueued(ctx, &job.Job{})
	r.EmitJobStarted(ctx, &job.Job{})
	r.EmitJobProgressed(ctx, &job.Job{}, job.Progress{})
	r.EmitJobSucceeded(ctx, &job.Job{}, time.Second)
	r.EmitJobFailed(ctx, &job.Job{}, errors.New("x"))
	r.EmitJobCancelled(ctx, &job.Job{})
	r.EmitJobRejected(ctx, &job.Job{}, errors.New("x"))
	r.EmitJobEvent(ctx, &job.Job{}, &job.Event{Kind: job.EventProgress})
	r.EmitJobsEvicted(ctx, 1)
	r.EmitShutdown(ctx)
}

func TestRegistry_MultipleExtensionsOrderPreserved(t *testing.T) {
	r := ext.NewRegistry(testLogger())
	ext1 := &allHooksExt{}
	ext2 := &allHooksExt{}
	r.Register(ext1)
	r.Register(ext2)

	r.EmitJobQueued(context.Background(), newJob())

	if len(ext1.calls) != 1 {
		t.Errorf("ext1: expected 1 call, got %d", len(ext1.calls))
	}
	if len(ext2.calls) != 1 {
		t.Errorf("ext2: expected 1 call, got %d", len(ext2.calls))
	}
}
