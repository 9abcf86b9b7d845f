package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Pyramid.TileSize != 256 {
		t.Errorf("Expected default tile size 256, got %d", cfg.Pyramid.TileSize)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Expected default addr :8080, got %q", cfg.Server.Addr)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptiff.yaml")
	data := []byte(`
engine:
  workers: 3
  bigTIFF: true
pyramid:
  tileSize: 512
server:
  readTimeout: 2s
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Engine.Workers != 3 || !cfg.Engine.BigTIFF {
		t.Errorf("Engine section not applied: %+v", cfg.Engine)
	}
	if cfg.Pyramid.TileSize != 512 {
		t.Errorf("Expected tile size 512, got %d", cfg.Pyramid.TileSize)
	}
	if cfg.Server.ReadTimeout != 2*time.Second {
		t.Errorf("Expected read timeout 2s, got %v", cfg.Server.ReadTimeout)
	}
	// untouched keys keep their defaults
	if cfg.Engine.TileCacheSize != 256 {
		t.Errorf("Expected default cache size 256, got %d", cfg.Engine.TileCacheSize)
	}
}

func TestLoadConfigRejectsBadTileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptiff.yaml")
	if err := os.WriteFile(path, []byte("pyramid:\n  tileSize: 100\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for tile size 100")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ptiff.yaml")
	cfg := DefaultConfig()
	cfg.Pyramid.TileSize = 128
	cfg.Output.Verbose = true

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Pyramid.TileSize != 128 || !loaded.Output.Verbose {
		t.Errorf("Round trip lost values: %+v", loaded)
	}
}
