package supervisor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

const helperEnv = "CRAFTLAUNCH_SUPERVISOR_HELPER"

// TestMain lets the test binary double as the supervised game.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "":
		os.Exit(m.Run())
	case "chatty":
		fmt.Fprintln(os.Stdout, "\x1b[32mSetting user: alice\x1b[0m")
		fmt.Fprintln(os.Stdout, "")
		fmt.Fprintln(os.Stderr, "warning on stderr")
		fmt.Fprint(os.Stdout, "no trailing newline")
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "crashed")
		os.Exit(3)
	case "sleep":
		fmt.Fprintln(os.Stdout, "ready")
		time.Sleep(time.Minute)
		os.Exit(0)
	default:
		os.Exit(2)
	}
}

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) sink(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func helperSpec(mode string, sink func(string), guard *Guard) Spec {
	return Spec{
		Path:  os.Args[0],
		Args:  []string{"-test.run=^$"},
		Env:   append(os.Environ(), helperEnv+"="+mode),
		Sink:  sink,
		Guard: guard,
	}
}

func TestStartRelaysOutputAndReleasesGuard(t *testing.T) {
	guard := &Guard{}
	if !guard.TryAcquire() {
		t.Fatal("fresh guard already held")
	}
	out := &collector{}
	h, err := Start(context.Background(), helperSpec("chatty", out.sink, guard))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.PID() <= 0 {
		t.Fatalf("unexpected pid %d", h.PID())
	}
	if err := h.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if guard.Held() {
		t.Fatal("guard still held after exit")
	}
	if h.ExitCode() != 0 {
		t.Fatalf("exit code = %d", h.ExitCode())
	}

	lines := out.snapshot()
	want := map[string]bool{
		"Setting user: alice": false,
		"warning on stderr":   false,
		"no trailing newline": false,
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			t.Fatalf("blank line relayed: %q", lines)
		}
		if strings.Contains(line, "\x1b[") {
			t.Fatalf("escape sequence leaked: %q", line)
		}
		if _, ok := want[line]; ok {
			want[line] = true
		}
	}
	for line, seen := range want {
		if !seen {
			t.Fatalf("missing relayed line %q in %q", line, lines)
		}
	}
	if lines[len(lines)-1] != "[Launch] Game closed." {
		t.Fatalf("closing line must come last, got %q", lines)
	}
}

func TestNonZeroExitIsReported(t *testing.T) {
	out := &collector{}
	h, err := Start(context.Background(), helperSpec("fail", out.sink, nil))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.Wait(); err == nil {
		t.Fatal("expected exit error")
	}
	if h.ExitCode() != 3 {
		t.Fatalf("exit code = %d, want 3", h.ExitCode())
	}
	lines := out.snapshot()
	if lines[len(lines)-1] != "[Warn] Game exited with code 3." {
		t.Fatalf("unexpected tail %q", lines)
	}
}

func TestGuardHeldWhileProcessAlive(t *testing.T) {
	guard := &Guard{}
	guard.TryAcquire()
	out := &collector{}
	h, err := Start(context.Background(), helperSpec("sleep", out.sink, guard))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(10 * time.Second)
	for len(out.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !guard.Held() || guard.TryAcquire() {
		t.Fatal("guard must stay held while the game runs")
	}
	select {
	case <-h.Done():
		t.Fatal("process finished early")
	default:
	}
	if err := h.Stop(2 * time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if guard.Held() {
		t.Fatal("guard still held after Stop")
	}
	if err := h.Stop(time.Second); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestContextCancelKillsProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h, err := Start(ctx, helperSpec("sleep", nil, nil))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process survived context cancellation")
	}
}

func TestStartMissingExecutable(t *testing.T) {
	guard := &Guard{}
	guard.TryAcquire()
	spec := Spec{Path: "/definitely/not/here/java", Guard: guard}
	if _, err := Start(context.Background(), spec); err == nil {
		t.Fatal("expected start error")
	}
	if !guard.Held() {
		t.Fatal("Start must leave the guard to its caller on failure")
	}
}

func TestGuardConcurrentAcquire(t *testing.T) {
	guard := &Guard{}
	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if guard.TryAcquire() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("%d goroutines acquired the guard", wins)
	}
}
