package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		if _, err := newLogger(level); err != nil {
			t.Errorf("newLogger(%q): %v", level, err)
		}
	}
	if _, err := newLogger("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestServeFlags(t *testing.T) {
	root := newRootCmd()
	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if err := serve.ParseFlags([]string{"--addr", ":9000", "--queue-capacity", "3", "--lwp=false"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if got, _ := serve.Flags().GetString("addr"); got != ":9000" {
		t.Errorf("addr = %q", got)
	}
	if got, _ := serve.Flags().GetInt("queue-capacity"); got != 3 {
		t.Errorf("queue-capacity = %d", got)
	}
	if got, _ := serve.Flags().GetBool("lwp"); got {
		t.Error("lwp should be disabled")
	}
}

func TestNewServer_InvalidSweepSchedule(t *testing.T) {
	opts := defaultServeOptions()
	opts.outputDir = t.TempDir()
	opts.sweepSchedule = "not a schedule"
	if _, err := newServer(opts, testLogger()); err == nil {
		t.Fatal("expected error for invalid sweep schedule")
	}
}

func TestServer_ImageEditServesArtifact(t *testing.T) {
	opts := defaultServeOptions()
	opts.outputDir = t.TempDir()
	opts.stepDelay = time.Millisecond

	srv, err := newServer(opts, testLogger())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	ctx := context.Background()
	if err := srv.eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ts := httptest.NewServer(srv.handler)
	t.Cleanup(func() {
		ts.Close()
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		_ = srv.eng.Stop(stopCtx)
	})

	body, _ := json.Marshal(map[string]any{
		"image": []byte("source image"),
		"params": map[string]any{
			"positive_prompt": "a watercolor fox",
			"steps":           4,
			"denoise":         0.5,
		},
	})
	resp, err := http.Post(ts.URL+"/v1/jobs/image_edit", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var submitted struct {
		JobID string `json:"job_id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&submitted)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || submitted.JobID == "" {
		t.Fatalf("submit status = %d, job_id = %q", resp.StatusCode, submitted.JobID)
	}

	resp, err = http.Get(ts.URL + "/v1/jobs/" + submitted.JobID + "/wait?timeout=5s")
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	var finished struct {
		Status string `json:"status"`
		Result struct {
			ImageURL string `json:"image_url"`
		} `json:"result"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&finished)
	resp.Body.Close()
	if finished.Status != "succeeded" {
		t.Fatalf("status = %q, want succeeded", finished.Status)
	}
	if finished.Result.ImageURL == "" {
		t.Fatal("expected image_url in result")
	}

	resp, err = http.Get(ts.URL + finished.Result.ImageURL)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("artifact status = %d, want 200", resp.StatusCode)
	}
}

func TestServer_HealthBeforeStart(t *testing.T) {
	opts := defaultServeOptions()
	opts.outputDir = t.TempDir()
	opts.enableLWP = false

	srv, err := newServer(opts, testLogger())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	ts := httptest.NewServer(srv.handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("health status = %d, want 503", resp.StatusCode)
	}
}

func TestNewServer_AuditExtension(t *testing.T) {
	opts := defaultServeOptions()
	opts.outputDir = t.TempDir()
	opts.audit = true

	srv, err := newServer(opts, testLogger())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	var names []string
	for _, e := range srv.eng.Extensions().Extensions() {
		names = append(names, e.Name())
	}
	found := false
	for _, n := range names {
		if n == "audit-hook" {
			found = true
		}
	}
	if !found {
		t.Errorf("extensions = %v, want audit-hook registered", names)
	}
}
