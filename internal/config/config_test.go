package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgnsrekt/tv_overlay/internal/overlay"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:8190" {
		t.Fatalf("BindAddr = %q; want 127.0.0.1:8190", cfg.BindAddr)
	}
	if cfg.Renderer != RendererVirtual {
		t.Fatalf("Renderer = %q; want %q", cfg.Renderer, RendererVirtual)
	}
	if cfg.PollInterval != 100*time.Millisecond || cfg.FrameInterval != 16*time.Millisecond {
		t.Fatalf("intervals = %v/%v; want 100ms/16ms", cfg.PollInterval, cfg.FrameInterval)
	}
	if cfg.MaxHistory != 50 || cfg.HitPadding != 36 {
		t.Fatalf("MaxHistory/HitPadding = %d/%v; want 50/36", cfg.MaxHistory, cfg.HitPadding)
	}
	if cfg.PendingApplyTimeout != 5*time.Second {
		t.Fatalf("PendingApplyTimeout = %v; want 5s", cfg.PendingApplyTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OVERLAY_RENDERER", "CDP")
	t.Setenv("OVERLAY_CDP_PORT", "9333")
	t.Setenv("OVERLAY_POLL_INTERVAL", "250ms")
	t.Setenv("OVERLAY_PENDING_APPLY_TIMEOUT", "1d")
	t.Setenv("OVERLAY_EVAL_TIMEOUT_MS", "10")
	t.Setenv("OVERLAY_SNAP_TO_BARS", "true")
	t.Setenv("OVERLAY_MAX_HISTORY", "oops")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Renderer != RendererCDP || cfg.CDPURL() != "http://127.0.0.1:9333" {
		t.Fatalf("renderer = %q at %q", cfg.Renderer, cfg.CDPURL())
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("PollInterval = %v; want 250ms", cfg.PollInterval)
	}
	if cfg.PendingApplyTimeout != 24*time.Hour {
		t.Fatalf("PendingApplyTimeout = %v; want 24h", cfg.PendingApplyTimeout)
	}
	if cfg.EvalTimeout != time.Second {
		t.Fatalf("EvalTimeout = %v; want clamped to 1s", cfg.EvalTimeout)
	}
	if !cfg.SnapToBars {
		t.Fatalf("SnapToBars = false; want true")
	}
	if cfg.MaxHistory != 50 {
		t.Fatalf("MaxHistory = %d; want default for malformed value", cfg.MaxHistory)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OVERLAY_DEFAULT_SYMBOL=DSEBD:GP\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("OVERLAY_DEFAULT_SYMBOL", "")
	os.Unsetenv("OVERLAY_DEFAULT_SYMBOL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultSymbol != "DSEBD:GP" {
		t.Fatalf("DefaultSymbol = %q; want DSEBD:GP", cfg.DefaultSymbol)
	}
}

func TestLoadRejectsUnknownRenderer(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OVERLAY_RENDERER", "canvas")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil; want error for unknown renderer")
	}
}

func TestLoadStyles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "styles.yaml")
	body := "styles:\n  hline:\n    line:\n      color: \"#ff9800\"\n      size: 2\n  rectangle:\n    fill:\n      color: \"rgba(33,150,243,0.2)\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	styles, err := LoadStyles(path)
	if err != nil {
		t.Fatalf("LoadStyles() error = %v", err)
	}
	if got := styles[overlay.TypeHLine].Line; got == nil || got.Color != "#ff9800" || got.Size != 2 {
		t.Fatalf("hline line = %+v", got)
	}
	if got := styles[overlay.TypeRectangle].Fill; got == nil || got.Color != "rgba(33,150,243,0.2)" {
		t.Fatalf("rectangle fill = %+v", got)
	}
}

func TestLoadStylesUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "styles.yaml")
	if err := os.WriteFile(path, []byte("styles:\n  spiral:\n    line: {color: red}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStyles(path); err == nil {
		t.Fatalf("LoadStyles() error = nil; want unknown type error")
	}
	if styles, err := LoadStyles(""); err != nil || styles != nil {
		t.Fatalf("LoadStyles(\"\") = %v, %v; want nil, nil", styles, err)
	}
}
