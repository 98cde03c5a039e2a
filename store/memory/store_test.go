package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/id"
	"github.com/tavlicon/lanes/job"
	"github.com/tavlicon/lanes/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStore(opts ...memory.Option) *memory.Store {
	return memory.New(append([]memory.Option{memory.WithLogger(testLogger())}, opts...)...)
}

func mustCreate(t *testing.T, s *memory.Store) *job.Job {
	t.Helper()
	j, err := s.CreateJob(context.Background(), job.LaneImageEdit, []byte(`{"prompt":"cat"}`))
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

func kinds(events []*job.Event) []job.EventKind {
	out := make([]job.EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestCreateAndGet(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	j := mustCreate(t, s)
	if j.ID.Prefix() != id.PrefixJob {
		t.Errorf("prefix = %q, want %q", j.ID.Prefix(), id.PrefixJob)
	}
	if j.State != job.StateQueued {
		t.Errorf("state = %q, want queued", j.State)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Lane != job.LaneImageEdit {
		t.Errorf("lane = %q, want %q", got.Lane, job.LaneImageEdit)
	}
	if string(got.Payload) != `{"prompt":"cat"}` {
		t.Errorf("payload = %s", got.Payload)
	}

	events, _ := s.ListEvents(ctx, j.ID)
	if len(events) != 1 || events[0].Kind != job.EventQueued {
		t.Fatalf("events = %v, want [queued]", kinds(events))
	}
	if events[0].Data.Status != job.StateQueued {
		t.Errorf("queued event status = %q", events[0].Data.Status)
	}
}

func TestCreate_UnknownLane(t *testing.T) {
	s := newStore()
	_, err := s.CreateJob(context.Background(), job.Lane("video"), nil)
	if !errors.Is(err, lanes.ErrUnknownLane) {
		t.Fatalf("expected ErrUnknownLane, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newStore()
	_, err := s.GetJob(context.Background(), id.NewJobID())
	if !errors.Is(err, lanes.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := newStore()
	j := mustCreate(t, s)
	j.State = job.StateSucceeded

	got, _ := s.GetJob(context.Background(), j.ID)
	if got.State != job.StateQueued {
		t.Errorf("store state changed through a returned copy: %q", got.State)
	}
}

func TestHappyPath(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)

	if err := s.SetRunning(ctx, j.ID); err != nil {
		t.Fatalf("SetRunning: %v", err)
	}
	if err := s.SetProgress(ctx, j.ID, 5, 20, "denoise"); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	if err := s.Succeed(ctx, j.ID, []byte(`{"image":"out.png"}`)); err != nil {
		t.Fatalf("Succeed: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.State != job.StateSucceeded {
		t.Errorf("state = %q, want succeeded", got.State)
	}
	if got.StartedAt == nil || got.EndedAt == nil {
		t.Fatal("expected start and end times")
	}
	if got.Progress.Percent != 25 {
		t.Errorf("percent = %v, want 25", got.Progress.Percent)
	}
	if string(got.Result) != `{"image":"out.png"}` {
		t.Errorf("result = %s", got.Result)
	}

	events, _ := s.ListEvents(ctx, j.ID)
	want := []job.EventKind{job.EventQueued, job.EventStarted, job.EventProgress, job.EventCompleted}
	got2 := kinds(events)
	if len(got2) != len(want) {
		t.Fatalf("events = %v, want %v", got2, want)
	}
	for i := range want {
		if got2[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, got2[i], want[i])
		}
		if events[i].Seq != uint64(i+1) {
			t.Errorf("event[%d].Seq = %d, want %d", i, events[i].Seq, i+1)
		}
	}

	p := events[2].Data.Progress
	if p == nil || p.Current != 5 || p.Total != 20 || p.Stage != "denoise" {
		t.Errorf("progress data = %+v", p)
	}
}

func TestFail_RecordsMessage(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)
	_ = s.SetRunning(ctx, j.ID)

	if err := s.Fail(ctx, j.ID, "Model not loaded"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.State != job.StateFailed || got.Error != "Model not loaded" {
		t.Errorf("got state=%q error=%q", got.State, got.Error)
	}

	events, _ := s.ListEvents(ctx, j.ID)
	last := events[len(events)-1]
	if last.Kind != job.EventFailed || last.Data.Error == nil || last.Data.Error.Message != "Model not loaded" {
		t.Errorf("terminal event = %+v", last)
	}
}

func TestFail_QueuedJob(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)

	if err := s.Fail(ctx, j.ID, lanes.QueueFullMessage); err != nil {
		t.Fatalf("Fail on queued job: %v", err)
	}
	got, _ := s.GetJob(ctx, j.ID)
	if got.State != job.StateFailed {
		t.Errorf("state = %q, want failed", got.State)
	}
	if got.StartedAt != nil {
		t.Error("rejected job must not have a start time")
	}
}

func TestSetRunning_Twice(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)

	if err := s.SetRunning(ctx, j.ID); err != nil {
		t.Fatalf("SetRunning: %v", err)
	}
	first, _ := s.GetJob(ctx, j.ID)

	err := s.SetRunning(ctx, j.ID)
	if !errors.Is(err, lanes.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	second, _ := s.GetJob(ctx, j.ID)
	if !second.StartedAt.Equal(*first.StartedAt) {
		t.Error("second SetRunning overwrote StartedAt")
	}
	events, _ := s.ListEvents(ctx, j.ID)
	if len(events) != 2 {
		t.Errorf("events = %v, want [queued started]", kinds(events))
	}
}

func TestSetProgress_ZeroTotal(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)
	_ = s.SetRunning(ctx, j.ID)

	if err := s.SetProgress(ctx, j.ID, 3, 0, "warmup"); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	got, _ := s.GetJob(ctx, j.ID)
	if got.Progress.Percent != 0 {
		t.Errorf("percent = %v, want 0", got.Progress.Percent)
	}
}

func TestSetProgress_NotRunning(t *testing.T) {
	s := newStore()
	j := mustCreate(t, s)

	err := s.SetProgress(context.Background(), j.ID, 1, 2, "")
	if !errors.Is(err, lanes.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestSecondTerminalTransitionIgnored(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)
	_ = s.SetRunning(ctx, j.ID)
	_ = s.Succeed(ctx, j.ID, []byte(`1`))

	if err := s.Fail(ctx, j.ID, "late failure"); !errors.Is(err, lanes.ErrInvalidState) {
		t.Fatalf("Fail after Succeed: expected ErrInvalidState, got %v", err)
	}
	if err := s.Succeed(ctx, j.ID, []byte(`2`)); !errors.Is(err, lanes.ErrInvalidState) {
		t.Fatalf("Succeed twice: expected ErrInvalidState, got %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.State != job.StateSucceeded || string(got.Result) != "1" || got.Error != "" {
		t.Errorf("terminal state corrupted: state=%q result=%s error=%q", got.State, got.Result, got.Error)
	}
	events, _ := s.ListEvents(ctx, j.ID)
	if n := len(events); n != 3 {
		t.Errorf("events = %v, want exactly one terminal event", kinds(events))
	}
}

func TestSucceed_QueuedJobRejected(t *testing.T) {
	s := newStore()
	j := mustCreate(t, s)
	if err := s.Succeed(context.Background(), j.ID, nil); !errors.Is(err, lanes.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Cancellation and waiting
// ──────────────────────────────────────────────────

func TestCancel_Queued(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)

	waited := make(chan *job.Job, 1)
	go func() {
		got, err := s.Wait(ctx, j.ID, 5*time.Second)
		if err != nil {
			t.Errorf("Wait: %v", err)
		}
		waited <- got
	}()

	// Give the waiter a moment to block.
	time.Sleep(20 * time.Millisecond)

	got, err := s.Cancel(ctx, j.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.State != job.StateCancelled || !got.CancelRequested {
		t.Errorf("after cancel: state=%q flag=%v", got.State, got.CancelRequested)
	}

	select {
	case w := <-waited:
		if w == nil || w.State != job.StateCancelled {
			t.Errorf("waiter saw %+v", w)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released by cancel")
	}

	if err := s.SetRunning(ctx, j.ID); !errors.Is(err, lanes.ErrInvalidState) {
		t.Errorf("SetRunning after cancel: expected ErrInvalidState, got %v", err)
	}
}

func TestCancel_RunningOnlySetsFlag(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)
	_ = s.SetRunning(ctx, j.ID)

	got, err := s.Cancel(ctx, j.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.State != job.StateRunning {
		t.Errorf("state = %q, want running", got.State)
	}
	if !got.CancelRequested {
		t.Error("expected cancel flag set")
	}

	events, _ := s.ListEvents(ctx, j.ID)
	if len(events) != 2 {
		t.Errorf("cancel of running job emitted events: %v", kinds(events))
	}
}

func TestCancel_NotFound(t *testing.T) {
	s := newStore()
	_, err := s.Cancel(context.Background(), id.NewJobID())
	if !errors.Is(err, lanes.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestWait_Timeout(t *testing.T) {
	s := newStore()
	j := mustCreate(t, s)

	start := time.Now()
	_, err := s.Wait(context.Background(), j.ID, 30*time.Millisecond)
	if !errors.Is(err, lanes.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("Wait returned before the timeout")
	}
}

func TestWait_AlreadyTerminal(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)
	_, _ = s.Cancel(ctx, j.ID)

	got, err := s.Wait(ctx, j.ID, time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got.State != job.StateCancelled {
		t.Errorf("state = %q", got.State)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	s := newStore()
	j := mustCreate(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Wait(ctx, j.ID, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWait_ReleasedBySucceed(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)
	_ = s.SetRunning(ctx, j.ID)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.Succeed(ctx, j.ID, []byte(`"ok"`))
	}()

	got, err := s.Wait(ctx, j.ID, 2*time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got.State != job.StateSucceeded {
		t.Errorf("state = %q", got.State)
	}
}

// ──────────────────────────────────────────────────
// History and subscriptions
// ──────────────────────────────────────────────────

func TestHistoryCap(t *testing.T) {
	const limit = 10
	s := newStore(memory.WithMaxEvents(limit))
	ctx := context.Background()
	j := mustCreate(t, s)
	_ = s.SetRunning(ctx, j.ID)

	// queued + started already emitted; emit enough progress to reach limit+5.
	for i := range limit + 3 {
		if err := s.SetProgress(ctx, j.ID, i, limit+3, "step"); err != nil {
			t.Fatalf("SetProgress: %v", err)
		}
	}

	events, _ := s.ListEvents(ctx, j.ID)
	if len(events) != limit {
		t.Fatalf("len(events) = %d, want %d", len(events), limit)
	}
	const emitted = limit + 5
	for i, e := range events {
		want := uint64(emitted - limit + 1 + i)
		if e.Seq != want {
			t.Errorf("events[%d].Seq = %d, want %d", i, e.Seq, want)
		}
	}

	_ = s.Fail(ctx, j.ID, "boom")
	events, _ = s.ListEvents(ctx, j.ID)
	if len(events) != limit {
		t.Fatalf("after terminal len(events) = %d, want %d", len(events), limit)
	}
	if last := events[len(events)-1]; last.Kind != job.EventFailed {
		t.Errorf("last event = %q, want failed", last.Kind)
	}
}

func TestHistoryCap_TerminalSurvivesTinyCap(t *testing.T) {
	s := newStore(memory.WithMaxEvents(1))
	ctx := context.Background()
	j := mustCreate(t, s)
	_ = s.SetRunning(ctx, j.ID)
	_ = s.SetProgress(ctx, j.ID, 1, 1, "")
	_ = s.Succeed(ctx, j.ID, nil)

	events, _ := s.ListEvents(ctx, j.ID)
	if len(events) != 1 || events[0].Kind != job.EventCompleted {
		t.Fatalf("events = %v, want [completed]", kinds(events))
	}
}

func TestTwoSubscribersSeeSameSequence(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)

	a, err := s.Subscribe(ctx, j.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	b, _ := s.Subscribe(ctx, j.ID)

	_ = s.SetRunning(ctx, j.ID)
	for i := 1; i <= 5; i++ {
		_ = s.SetProgress(ctx, j.ID, i, 5, "step")
	}
	_ = s.Succeed(ctx, j.ID, []byte(`{}`))

	collect := func(sub *job.Subscription) []uint64 {
		var out []uint64
		for evt := range sub.C() {
			out = append(out, evt.Seq)
		}
		return out
	}
	seqA, seqB := collect(a), collect(b)

	if len(seqA) != 7 {
		t.Fatalf("subscriber A got %d events, want 7", len(seqA))
	}
	if len(seqA) != len(seqB) {
		t.Fatalf("A=%v B=%v", seqA, seqB)
	}
	for i := range seqA {
		if seqA[i] != seqB[i] {
			t.Errorf("position %d: A=%d B=%d", i, seqA[i], seqB[i])
		}
	}
}

func TestSlowSubscriberDropsOnlyItsOwnEvents(t *testing.T) {
	s := newStore(memory.WithSubscriberBuffer(2))
	ctx := context.Background()
	j := mustCreate(t, s)
	_ = s.SetRunning(ctx, j.ID)

	fast, _ := s.Subscribe(ctx, j.ID)
	slow, _ := s.Subscribe(ctx, j.ID)

	received := 0
	for i := 1; i <= 5; i++ {
		if err := s.SetProgress(ctx, j.ID, i, 5, ""); err != nil {
			t.Fatalf("SetProgress blocked or failed: %v", err)
		}
		<-fast.C()
		received++
	}

	if received != 5 {
		t.Errorf("fast subscriber received %d, want 5", received)
	}
	if fast.Dropped() != 0 {
		t.Errorf("fast subscriber dropped %d", fast.Dropped())
	}
	if slow.Dropped() != 3 {
		t.Errorf("slow subscriber dropped %d, want 3", slow.Dropped())
	}
}

func TestSubscribeWithHistory(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)
	_ = s.SetRunning(ctx, j.ID)

	hist, sub, err := s.SubscribeWithHistory(ctx, j.ID)
	if err != nil {
		t.Fatalf("SubscribeWithHistory: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history = %v", kinds(hist))
	}

	_ = s.SetProgress(ctx, j.ID, 1, 2, "")
	evt := <-sub.C()
	if evt.Seq != hist[len(hist)-1].Seq+1 {
		t.Errorf("first live seq = %d, want %d", evt.Seq, hist[len(hist)-1].Seq+1)
	}
	s.Unsubscribe(j.ID, sub)
	if s.SubscriberCount(j.ID) != 0 {
		t.Error("subscription not removed")
	}
}

func TestSubscribe_TerminalJobIsClosed(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)
	_, _ = s.Cancel(ctx, j.ID)

	sub, err := s.Subscribe(ctx, j.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, ok := <-sub.C(); ok {
		t.Error("expected closed channel for terminal job")
	}
}

func TestUnsubscribe_Twice(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)
	sub, _ := s.Subscribe(ctx, j.ID)

	s.Unsubscribe(j.ID, sub)
	s.Unsubscribe(j.ID, sub)
	s.Unsubscribe(id.NewJobID(), sub)

	if err := s.SetRunning(ctx, j.ID); err != nil {
		t.Fatalf("emit after unsubscribe: %v", err)
	}
}

func TestConcurrentEmitAndSubscribe(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	j := mustCreate(t, s)
	_ = s.SetRunning(ctx, j.ID)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				_ = s.SetProgress(ctx, j.ID, i, 50, "")
			}
		}()
	}
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				sub, err := s.Subscribe(ctx, j.ID)
				if err != nil {
					t.Errorf("Subscribe: %v", err)
					return
				}
				s.Unsubscribe(j.ID, sub)
			}
		}()
	}
	wg.Wait()
}

// ──────────────────────────────────────────────────
// Eviction
// ──────────────────────────────────────────────────

func TestCleanupExpired_Boundaries(t *testing.T) {
	clock := newFakeClock()
	s := newStore(memory.WithTTL(time.Hour), memory.WithClock(clock.Now))
	ctx := context.Background()

	done := mustCreate(t, s)
	_, _ = s.Cancel(ctx, done.ID)
	pending := mustCreate(t, s)

	clock.Advance(time.Hour)
	n, err := s.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if n != 0 {
		t.Fatalf("evicted %d jobs at exactly ttl, want 0", n)
	}
	if _, err := s.GetJob(ctx, done.ID); err != nil {
		t.Fatalf("job within ttl evicted: %v", err)
	}

	clock.Advance(time.Second)
	n, _ = s.CleanupExpired(ctx)
	if n != 1 {
		t.Fatalf("evicted %d jobs past ttl, want 1", n)
	}
	if _, err := s.GetJob(ctx, done.ID); !errors.Is(err, lanes.ErrJobNotFound) {
		t.Errorf("expected evicted job to be gone, got %v", err)
	}

	clock.Advance(100 * time.Hour)
	_, _ = s.CleanupExpired(ctx)
	if _, err := s.GetJob(ctx, pending.ID); err != nil {
		t.Errorf("non-terminal job evicted: %v", err)
	}
}

func TestCleanupExpired_ClosesSubscriptions(t *testing.T) {
	clock := newFakeClock()
	s := newStore(memory.WithTTL(time.Minute), memory.WithClock(clock.Now))
	ctx := context.Background()

	j := mustCreate(t, s)
	_ = s.SetRunning(ctx, j.ID)
	sub, _ := s.Subscribe(ctx, j.ID)
	_ = s.Fail(ctx, j.ID, "x")

	clock.Advance(2 * time.Minute)
	if n, _ := s.CleanupExpired(ctx); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}

	// Drain: failed event, then closed.
	for range sub.C() {
	}
	if !sub.Closed() {
		t.Error("subscription not closed on eviction")
	}
}

// ──────────────────────────────────────────────────
// Emitter
// ──────────────────────────────────────────────────

type recordingEmitter struct {
	mu      sync.Mutex
	events  []job.EventKind
	evicted int
}

func (e *recordingEmitter) EmitJobEvent(_ context.Context, _ *job.Job, evt *job.Event) {
	e.mu.Lock()
	e.events = append(e.events, evt.Kind)
	e.mu.Unlock()
}

func (e *recordingEmitter) EmitJobsEvicted(_ context.Context, count int) {
	e.mu.Lock()
	e.evicted += count
	e.mu.Unlock()
}

func TestEmitterNotified(t *testing.T) {
	clock := newFakeClock()
	em := &recordingEmitter{}
	s := newStore(memory.WithEmitter(em), memory.WithClock(clock.Now), memory.WithTTL(time.Second))
	ctx := context.Background()

	j := mustCreate(t, s)
	_ = s.SetRunning(ctx, j.ID)
	_ = s.SetProgress(ctx, j.ID, 1, 1, "")
	result, _ := json.Marshal(map[string]string{"ok": "yes"})
	_ = s.Succeed(ctx, j.ID, result)
	clock.Advance(2 * time.Second)
	_, _ = s.CleanupExpired(ctx)

	em.mu.Lock()
	defer em.mu.Unlock()
	want := []job.EventKind{job.EventQueued, job.EventStarted, job.EventProgress, job.EventCompleted}
	if len(em.events) != len(want) {
		t.Fatalf("emitted %v, want %v", em.events, want)
	}
	for i := range want {
		if em.events[i] != want[i] {
			t.Errorf("emitted[%d] = %q, want %q", i, em.events[i], want[i])
		}
	}
	if em.evicted != 1 {
		t.Errorf("evicted = %d, want 1", em.evicted)
	}
}

func TestListJobs_NewestFirstOnTies(t *testing.T) {
	clock := newFakeClock()
	s := newStore(memory.WithClock(clock.Now))

	// Same timestamp: creation order still decides.
	first := mustCreate(t, s)
	second := mustCreate(t, s)

	all, err := s.ListJobs(context.Background(), job.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID.String() != second.ID.String() || all[1].ID.String() != first.ID.String() {
		t.Fatalf("order = %v, want %s then %s", all, second.ID, first.ID)
	}
}

func TestListAndCount(t *testing.T) {
	clock := newFakeClock()
	s := newStore(memory.WithClock(clock.Now))
	ctx := context.Background()

	a := mustCreate(t, s)
	clock.Advance(time.Millisecond)
	b, _ := s.CreateJob(ctx, job.LaneMeshGen, nil)
	clock.Advance(time.Millisecond)
	c := mustCreate(t, s)
	_, _ = s.Cancel(ctx, a.ID)

	all, _ := s.ListJobs(ctx, job.ListOpts{})
	if len(all) != 3 {
		t.Fatalf("ListJobs returned %d jobs, want 3", len(all))
	}
	for i, want := range []*job.Job{c, b, a} {
		if all[i].ID.String() != want.ID.String() {
			t.Errorf("all[%d] = %s, want %s (newest first)", i, all[i].ID, want.ID)
		}
	}

	mesh, _ := s.ListJobs(ctx, job.ListOpts{Lane: job.LaneMeshGen})
	if len(mesh) != 1 || mesh[0].ID.String() != b.ID.String() {
		t.Errorf("lane filter returned %d jobs", len(mesh))
	}

	page, _ := s.ListJobs(ctx, job.ListOpts{Offset: 1, Limit: 1})
	if len(page) != 1 || page[0].ID.String() != b.ID.String() {
		t.Errorf("pagination returned %d jobs", len(page))
	}

	n, _ := s.CountJobs(ctx, job.CountOpts{State: job.StateQueued})
	if n != 2 {
		t.Errorf("queued count = %d, want 2", n)
	}
	n, _ = s.CountJobs(ctx, job.CountOpts{Lane: job.LaneImageEdit, State: job.StateCancelled})
	if n != 1 {
		t.Errorf("cancelled image_edit count = %d, want 1", n)
	}
}

type seqEmitter struct {
	mu    sync.Mutex
	seqs  []uint64
	delay time.Duration
	hook  func(*job.Job)
}

func (e *seqEmitter) EmitJobEvent(_ context.Context, j *job.Job, evt *job.Event) {
	if e.hook != nil {
		e.hook(j)
	}
	time.Sleep(e.delay)
	e.mu.Lock()
	e.seqs = append(e.seqs, evt.Seq)
	e.mu.Unlock()
}

func (e *seqEmitter) EmitJobsEvicted(context.Context, int) {}

func TestEmitterSeesEmissionOrderUnderConcurrency(t *testing.T) {
	em := &seqEmitter{delay: 200 * time.Microsecond}
	s := newStore(memory.WithEmitter(em))
	ctx := context.Background()

	j := mustCreate(t, s)
	if err := s.SetRunning(ctx, j.ID); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 10 {
				_ = s.SetProgress(ctx, j.ID, w*10+i, 80, "")
			}
		}()
	}
	wg.Wait()
	if err := s.Succeed(ctx, j.ID, nil); err != nil {
		t.Fatal(err)
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	// queued + started + 80 progress + completed
	if len(em.seqs) != 83 {
		t.Fatalf("emitted %d events, want 83", len(em.seqs))
	}
	for i, seq := range em.seqs {
		if seq != uint64(i+1) {
			t.Fatalf("emitted[%d] has seq %d, want %d", i, seq, i+1)
		}
	}
}

func TestEmitterMayCallBackIntoStore(t *testing.T) {
	em := &seqEmitter{}
	s := newStore(memory.WithEmitter(em))
	em.hook = func(j *job.Job) {
		if _, err := s.GetJob(context.Background(), j.ID); err != nil {
			t.Errorf("GetJob from hook: %v", err)
		}
	}
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		j, err := s.CreateJob(ctx, job.LaneImageEdit, nil)
		if err != nil {
			t.Errorf("CreateJob: %v", err)
			return
		}
		_ = s.SetRunning(ctx, j.ID)
		_ = s.Succeed(ctx, j.ID, nil)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("store deadlocked on a re-entrant emitter")
	}
}
