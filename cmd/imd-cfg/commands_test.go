package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rackops/imdcfg/internal/config"
	"github.com/rackops/imdcfg/internal/version"
)

func execute(t *testing.T, args ...string) (string, *app, error) {
	t.Helper()
	a := newApp()
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), a, err
}

func TestVersionCommand(t *testing.T) {
	// A missing settings file would fail loadSettings; version must not care.
	out, _, err := execute(t, "version", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	want := "imd-cfg " + version.Version + " (commit: " + version.Commit + ")"
	if !strings.Contains(out, want) {
		t.Errorf("version output = %q, want %q", out, want)
	}
}

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	path := config.HistoryPath(dir)
	now := time.Now()
	for i, host := range []string{"rack-a1", "rack-b1", "rack-a2"} {
		rec := config.DeviceRecord{
			Hostname:     host,
			IP:           "192.168.123.123",
			ConfiguredAt: now.Add(time.Duration(i) * time.Minute),
			Complete:     true,
		}
		if err := config.AppendHistory(path, rec); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}

	out, _, err := execute(t, "history", "--config-dir", dir, "--limit", "2")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "rack-a2") || !strings.Contains(out, "rack-b1") {
		t.Errorf("history output missing newest entries:\n%s", out)
	}
	if strings.Contains(out, "rack-a1") {
		t.Errorf("history --limit 2 showed the oldest entry:\n%s", out)
	}
}

func TestHistoryCommandEmpty(t *testing.T) {
	out, _, err := execute(t, "history", "--config-dir", t.TempDir())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No IMDs have been configured") {
		t.Errorf("history output = %q", out)
	}
}

func TestFlagsOverrideSettings(t *testing.T) {
	dir := t.TempDir()
	_, a, err := execute(t, "history",
		"--config-dir", dir,
		"--ip", "10.1.2.3",
		"--retries", "7",
		"--retry-delay", "250ms",
		"--encrypt-state=false",
		"--spinner", "circle",
		"--quiet")
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	s := a.settings
	if s.IP != "10.1.2.3" {
		t.Errorf("IP = %q, want 10.1.2.3", s.IP)
	}
	if s.Retries != 7 {
		t.Errorf("Retries = %d, want 7", s.Retries)
	}
	if s.RetryDelay != 250*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 250ms", s.RetryDelay)
	}
	if s.EncryptTempFile {
		t.Error("EncryptTempFile = true, want false")
	}
	if s.Spinner != "circle" {
		t.Errorf("Spinner = %q, want circle", s.Spinner)
	}
	if !s.Quiet {
		t.Error("Quiet = false, want true")
	}
	if s.ConfigDir != dir {
		t.Errorf("ConfigDir = %q, want %q", s.ConfigDir, dir)
	}
}

func TestInvalidSettingsFail(t *testing.T) {
	_, _, err := execute(t, "history", "--config-dir", t.TempDir(), "--retries", "-1")
	if err == nil {
		t.Fatal("expected an error for negative retries")
	}
	if exitCode(err) != ExitFailure {
		t.Errorf("exitCode = %d, want %d", exitCode(err), ExitFailure)
	}
}
