package projectcfg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Function != "main" {
		t.Fatalf("default function %q, want main", cfg.Function)
	}
}

func TestLoadFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marginc.yaml")
	content := `
image: build/app.mgb
function: start
vm:
  max_frames: 128
  disable_cache: true
host:
  store_path: state.db
  rpc_target: localhost:50051
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Image != "build/app.mgb" || cfg.Function != "start" {
		t.Fatalf("entry fields mangled: %+v", cfg)
	}
	if cfg.VM.MaxFrames != 128 || !cfg.VM.DisableCache {
		t.Fatalf("vm tuning mangled: %+v", cfg.VM)
	}
	if cfg.Host.StorePath != "state.db" || cfg.Host.RPCTarget != "localhost:50051" {
		t.Fatalf("host config mangled: %+v", cfg.Host)
	}
}

func TestLoadRejectsNegativeFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marginc.yaml")
	if err := os.WriteFile(path, []byte("vm:\n  max_frames: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("negative max_frames accepted")
	}
}
