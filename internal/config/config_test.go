package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitialize_DefaultsApplyWithoutAConfigFile(t *testing.T) {
	dir := t.TempDir()
	restoreWd := chdir(t, dir)
	defer restoreWd()

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if got := GetString("policy.mode"); got != "EvidenceGated" {
		t.Errorf("expected default policy.mode=EvidenceGated, got %q", got)
	}
	if got := GetInt("emission.module-parallelism"); got != 1 {
		t.Errorf("expected default emission.module-parallelism=1, got %d", got)
	}
	if ValueSource("policy.mode") != SourceDefault {
		t.Errorf("expected SourceDefault, got %v", ValueSource("policy.mode"))
	}
}

func TestInitialize_ProjectConfigFileOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, ".ssdtbuild")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := "[emission]\nmodule-parallelism = 4\n"
	if err := os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	restoreWd := chdir(t, dir)
	defer restoreWd()

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if got := GetInt("emission.module-parallelism"); got != 4 {
		t.Errorf("expected config file to override default to 4, got %d", got)
	}
	if ValueSource("emission.module-parallelism") != SourceConfigFile {
		t.Errorf("expected SourceConfigFile, got %v", ValueSource("emission.module-parallelism"))
	}
}

func TestInitialize_EnvVarOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, ".ssdtbuild")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := "[emission]\nmodule-parallelism = 4\n"
	if err := os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	restoreWd := chdir(t, dir)
	defer restoreWd()

	t.Setenv("SSDTBUILD_EMISSION_MODULE_PARALLELISM", "8")

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := GetInt("emission.module-parallelism"); got != 8 {
		t.Errorf("expected env var to win, got %d", got)
	}
	if ValueSource("emission.module-parallelism") != SourceEnvVar {
		t.Errorf("expected SourceEnvVar, got %v", ValueSource("emission.module-parallelism"))
	}
}

func TestLoadLocalConfig_MissingFileReturnsZeroValue(t *testing.T) {
	lf, err := LoadLocalConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lf.ModelPath != "" {
		t.Errorf("expected zero-value LocalFile, got %+v", lf)
	}
}

func TestLoadLocalConfig_ReadsModelPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.toml")
	if err := os.WriteFile(path, []byte(`model-path = "model.json"`+"\n"), 0o644); err != nil {
		t.Fatalf("write local config: %v", err)
	}

	lf, err := LoadLocalConfig(path)
	if err != nil {
		t.Fatalf("LoadLocalConfig: %v", err)
	}
	if lf.ModelPath != "model.json" {
		t.Errorf("expected model-path=model.json, got %q", lf.ModelPath)
	}
}

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	return func() { _ = os.Chdir(old) }
}
