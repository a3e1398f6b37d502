package slam

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestDefaultConfigPassesValidation(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate cleanly, got %v", err)
	}
}

func TestLoadConfigMissingFileFails(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadConfigMalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "tracker: [this is not a mapping")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected malformed YAML to fail to parse")
	}
}

func TestLoadConfigOverridesDefaultsAndKeepsRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "orchestrator:\n  worker_pool_size: 2\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Orchestrator.WorkerPoolSize != 2 {
		t.Fatalf("expected override to take effect, got %d", cfg.Orchestrator.WorkerPoolSize)
	}
	if cfg.Orchestrator.MinBootstrapPlanes != 3 {
		t.Fatalf("expected untouched field to keep its default, got %d", cfg.Orchestrator.MinBootstrapPlanes)
	}
}

func TestValidateRejectsNonPositiveRequiredFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracker.RansacIterations = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a non-positive ransac_iterations to fail validation")
	}
}

func TestToTrackerConfigCarriesAssociationAndICPSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Association.DirThresholdDeg = 7
	tc := cfg.ToTrackerConfig()
	if tc.Association.DirThresholdDeg != 7 {
		t.Fatalf("expected ToTrackerConfig to carry association overrides, got %v", tc.Association.DirThresholdDeg)
	}
	if tc.ICP.MaxIterations != cfg.Tracker.ICPIterations {
		t.Fatalf("expected ICP iteration count to carry through, got %d", tc.ICP.MaxIterations)
	}
}

func TestSaveConfigThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.yaml")
	cfg := DefaultConfig()
	cfg.Output.OutputDir = "custom-output"

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Output.OutputDir != "custom-output" {
		t.Fatalf("expected round-tripped output_dir, got %q", loaded.Output.OutputDir)
	}
}
