package job_test

import (
	"testing"
	"time"

	"github.com/tavlicon/lanes/id"
	"github.com/tavlicon/lanes/job"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to job.State
		want     bool
	}{
		{job.StateQueued, job.StateRunning, true},
		{job.StateQueued, job.StateCancelled, true},
		{job.StateQueued, job.StateFailed, true},
		{job.StateQueued, job.StateSucceeded, false},
		{job.StateRunning, job.StateSucceeded, true},
		{job.StateRunning, job.StateFailed, true},
		{job.StateRunning, job.StateCancelled, false},
		{job.StateRunning, job.StateQueued, false},
		{job.StateSucceeded, job.StateFailed, false},
		{job.StateFailed, job.StateSucceeded, false},
		{job.StateCancelled, job.StateRunning, false},
	}
	for _, tt := range tests {
		if got := job.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []job.State{job.StateSucceeded, job.StateFailed, job.StateCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []job.State{job.StateQueued, job.StateRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestNewProgress(t *testing.T) {
	p := job.NewProgress(5, 20, "denoise")
	if p.Percent != 25 {
		t.Errorf("percent = %v, want 25", p.Percent)
	}
	if p := job.NewProgress(7, 0, ""); p.Percent != 0 {
		t.Errorf("zero total percent = %v, want 0", p.Percent)
	}
	if p := job.NewProgress(1, -3, ""); p.Percent != 0 {
		t.Errorf("negative total percent = %v, want 0", p.Percent)
	}
}

func TestParseLane(t *testing.T) {
	for _, l := range job.Lanes() {
		got, err := job.ParseLane(string(l))
		if err != nil || got != l {
			t.Errorf("ParseLane(%q) = %q, %v", l, got, err)
		}
	}
	if _, err := job.ParseLane("video"); err == nil {
		t.Error("expected error for unknown lane")
	}
}

func TestClone(t *testing.T) {
	now := time.Now()
	j := &job.Job{State: job.StateRunning, StartedAt: &now}
	c := j.Clone()
	*c.StartedAt = now.Add(time.Hour)
	if !j.StartedAt.Equal(now) {
		t.Error("clone shares StartedAt with original")
	}
}

func TestElapsed(t *testing.T) {
	start := time.Now()
	end := start.Add(1500 * time.Millisecond)
	j := &job.Job{StartedAt: &start, EndedAt: &end}
	if j.Elapsed() != 1500*time.Millisecond {
		t.Errorf("elapsed = %v", j.Elapsed())
	}
	if (&job.Job{}).Elapsed() != 0 {
		t.Error("unstarted job should have zero elapsed")
	}
}

func TestSubscription_DropsWhenFull(t *testing.T) {
	sub := job.NewSubscription(id.NewJobID(), 1)
	if !sub.Send(&job.Event{Seq: 1}) {
		t.Fatal("first send should succeed")
	}
	if sub.Send(&job.Event{Seq: 2}) {
		t.Fatal("second send should be dropped")
	}
	if sub.Delivered() != 1 || sub.Dropped() != 1 {
		t.Errorf("delivered=%d dropped=%d", sub.Delivered(), sub.Dropped())
	}

	sub.Close()
	sub.Close()
	if sub.Send(&job.Event{Seq: 3}) {
		t.Error("send after close should fail")
	}
	if !sub.Closed() {
		t.Error("expected closed")
	}
}
