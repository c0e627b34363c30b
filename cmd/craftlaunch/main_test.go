package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/craftlaunch/internal/config"
)

const helperEnv = "CRAFTLAUNCH_MAIN_HELPER"

// TestMain lets the test binary stand in for the game runtime.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "":
		os.Exit(m.Run())
	case "ok":
		fmt.Println("game running")
		os.Exit(0)
	case "crash":
		fmt.Fprintln(os.Stderr, "game crashed")
		os.Exit(3)
	default:
		os.Exit(2)
	}
}

// installVersion prepares a root whose runtime is this test binary.
func installVersion(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	runtime, err := filepath.Abs(os.Args[0])
	if err != nil {
		t.Fatal(err)
	}
	settings := fmt.Sprintf("version: 1\ndefault_version: \"1.20.4\"\njava:\n  path: %q\n", runtime)
	if err := os.WriteFile(filepath.Join(root, config.FileName), []byte(settings), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		t.Fatal(err)
	}
	layout := cfg.Layout("1.21")
	if err := os.MkdirAll(layout.VersionDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.ManifestPath, []byte(`{"mainClass": "Main", "libraries": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.MainArchive, []byte("client"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestRunListInitialisesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".minecraft")
	if err := os.MkdirAll(filepath.Join(root, "versions", "1.21"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := run([]string{"--root", root, "--list"}); err != nil {
		t.Fatalf("run --list: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, config.FileName)); err != nil {
		t.Fatalf("settings file not created: %v", err)
	}
}

func TestRunHeadlessNeedsUsername(t *testing.T) {
	root := t.TempDir()
	if err := run([]string{"--root", root, "--headless", "-v", "1.21"}); err == nil {
		t.Fatal("expected error without --username")
	}
}

func TestRunHeadlessSucceedsWhenGameExitsCleanly(t *testing.T) {
	t.Setenv(helperEnv, "ok")
	root := installVersion(t)
	if err := run([]string{"--root", root, "--headless", "-v", "1.21", "-u", "alice"}); err != nil {
		t.Fatalf("run --headless: %v", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultVersion() != "1.21" {
		t.Fatalf("launched version not remembered: %s", cfg.DefaultVersion())
	}
}

func TestRunHeadlessReportsGameExitCode(t *testing.T) {
	t.Setenv(helperEnv, "crash")
	root := installVersion(t)
	err := run([]string{"--root", root, "--headless", "-v", "1.21", "-u", "alice"})
	if err == nil {
		t.Fatal("expected an error for a non-zero game exit")
	}
	if !strings.Contains(err.Error(), "code 3") {
		t.Fatalf("exit code missing from %q", err)
	}
	if !strings.Contains(err.Error(), filepath.Join(root, "logs", "launcher.log")) {
		t.Fatalf("log location missing from %q", err)
	}
}

func TestRunHeadlessLaunchFailureNamesLog(t *testing.T) {
	root := t.TempDir()
	err := run([]string{"--root", root, "--headless", "-v", "missing", "-u", "alice"})
	if err == nil {
		t.Fatal("expected launch failure for an uninstalled version")
	}
	if !strings.Contains(err.Error(), "launcher.log") {
		t.Fatalf("log location missing from %q", err)
	}
}

func TestRunRejectsStrayArguments(t *testing.T) {
	if err := run([]string{"--root", t.TempDir(), "extra"}); err == nil {
		t.Fatal("expected error for positional argument")
	}
}
