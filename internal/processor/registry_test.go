package processor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitStarted(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for conversion to start")
		return ""
	}
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

func TestSubmit_SameVideoRunsSerially(t *testing.T) {
	env := newTestEnv("v1")
	env.conv.gate = make(chan struct{})
	env.conv.started = make(chan string, 4)

	first, err := env.reg.Submit(context.Background(), "v1", "src")
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	waitStarted(t, env.conv.started)

	second, err := env.reg.Submit(context.Background(), "v1", "src")
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}

	select {
	case <-env.conv.started:
		t.Fatal("second run started while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	env.conv.gate <- struct{}{}
	if res := waitResult(t, first); res.Err != nil {
		t.Fatalf("first run: %v", res.Err)
	}
	waitStarted(t, env.conv.started)
	env.conv.gate <- struct{}{}
	if res := waitResult(t, second); res.Err != nil {
		t.Fatalf("second run: %v", res.Err)
	}

	env.reg.Close()
	if got := env.conv.maxActive.Load(); got != 1 {
		t.Errorf("max concurrent conversions = %d, want 1", got)
	}
	if len(env.gw.transcripts) != 2 {
		t.Errorf("transcripts = %d, want 2", len(env.gw.transcripts))
	}
}

func TestSubmit_DifferentVideosRunInParallel(t *testing.T) {
	env := newTestEnv("v1", "v2")
	env.conv.gate = make(chan struct{})
	env.conv.started = make(chan string, 4)

	r1, err := env.reg.Submit(context.Background(), "v1", "src")
	if err != nil {
		t.Fatal(err)
	}
	r2, err := env.reg.Submit(context.Background(), "v2", "src")
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{
		waitStarted(t, env.conv.started): true,
		waitStarted(t, env.conv.started): true,
	}
	if !seen["v1"] || !seen["v2"] {
		t.Errorf("started = %v, want both videos", seen)
	}
	if n := env.reg.Active(); n != 2 {
		t.Errorf("Active = %d, want 2", n)
	}

	close(env.conv.gate)
	waitResult(t, r1)
	waitResult(t, r2)
	env.reg.Close()

	if got := env.conv.maxActive.Load(); got != 2 {
		t.Errorf("max concurrent conversions = %d, want 2", got)
	}
	if n := env.reg.Active(); n != 0 {
		t.Errorf("Active after drain = %d, want 0", n)
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	env := newTestEnv("v1")
	env.reg.opts.QueueSize = 1
	env.conv.gate = make(chan struct{})
	env.conv.started = make(chan string, 4)

	first, err := env.reg.Submit(context.Background(), "v1", "src")
	if err != nil {
		t.Fatal(err)
	}
	waitStarted(t, env.conv.started)

	// The inbox is empty again once the first run is taken; one more fits.
	queued, err := env.reg.Submit(context.Background(), "v1", "src")
	if err != nil {
		t.Fatalf("queued submit: %v", err)
	}
	if _, err := env.reg.Submit(context.Background(), "v1", "src"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}

	close(env.conv.gate)
	waitResult(t, first)
	waitResult(t, queued)
	env.reg.Close()
}

func TestSubmit_EmptyVideoID(t *testing.T) {
	env := newTestEnv()
	defer env.reg.Close()

	if _, err := env.reg.Submit(context.Background(), "", "src"); err == nil {
		t.Error("expected error for empty video id")
	}
}

func TestSubmit_AfterClose(t *testing.T) {
	env := newTestEnv("v1")
	env.reg.Close()

	if _, err := env.reg.Submit(context.Background(), "v1", "src"); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestProcessVideo_CallerCancelDoesNotStopRun(t *testing.T) {
	env := newTestEnv("v1")
	env.conv.gate = make(chan struct{})
	env.conv.started = make(chan string, 1)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := env.reg.ProcessVideo(ctx, "v1", "src")
		errc <- err
	}()

	waitStarted(t, env.conv.started)
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ProcessVideo did not return after cancel")
	}

	close(env.conv.gate)
	env.reg.Close()

	job, err := env.reg.Status(context.Background(), "v1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != StatusCompleted {
		t.Errorf("job status = %q, want completed", job.Status)
	}
}

func TestStatus_ReportsProcessingWhileInFlight(t *testing.T) {
	env := newTestEnv("v1")
	env.conv.gate = make(chan struct{})
	env.conv.started = make(chan string, 1)

	reply, err := env.reg.Submit(context.Background(), "v1", "src")
	if err != nil {
		t.Fatal(err)
	}
	waitStarted(t, env.conv.started)

	job, err := env.reg.Status(context.Background(), "v1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != StatusProcessing || job.StartedAt == nil {
		t.Errorf("job = %+v, want processing", job)
	}

	close(env.conv.gate)
	waitResult(t, reply)
	env.reg.Close()
}
