// Package config layers this tool's configuration exactly as spec §4.4's
// toggle precedence requires: default < configuration file < environment <
// CLI override. It mirrors the corpus's dual-path pattern — a viper
// singleton for the bulk of the surface, plus a small direct-TOML reader
// for the narrow pre-init reads a command needs before viper is set up.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

const configFileName = "config.toml"

var v *viper.Viper

// Source names where a configuration value's effective value came from.
type Source string

const (
	SourceDefault    Source = "default"
	SourceConfigFile Source = "config_file"
	SourceEnvVar     Source = "env_var"
	SourceOverride   Source = "override"
)

// Initialize sets up the viper singleton: discovers a project/user/home
// config.toml, binds environment variables, and registers every toggle's
// default. Call once at process startup.
func Initialize() error {
	return InitializeWithOverride("")
}

// InitializeWithOverride behaves like Initialize, except overridePath (when
// non-empty, e.g. from a --config flag) is used verbatim instead of the
// three-tier project/user/home discovery.
func InitializeWithOverride(overridePath string) error {
	v = viper.New()
	v.SetConfigType("toml")

	configFileSet := false

	if overridePath != "" {
		v.SetConfigFile(overridePath)
		configFileSet = true
	}

	if !configFileSet {
		if cwd, err := os.Getwd(); err == nil {
			for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
				candidate := filepath.Join(dir, ".ssdtbuild", configFileName)
				if _, statErr := os.Stat(candidate); statErr == nil {
					v.SetConfigFile(candidate)
					configFileSet = true
					break
				}
			}
		}
	}
	if !configFileSet {
		if dir, err := os.UserConfigDir(); err == nil {
			candidate := filepath.Join(dir, "ssdtbuild", configFileName)
			if _, statErr := os.Stat(candidate); statErr == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
			}
		}
	}
	if !configFileSet {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".ssdtbuild", configFileName)
			if _, statErr := os.Stat(candidate); statErr == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("SSDTBUILD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config.load.failed: %w", err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("policy.mode", "EvidenceGated")
	v.SetDefault("policy.null-budget.default", 0.0)
	v.SetDefault("toggles.nullability.enabled", true)
	v.SetDefault("toggles.uniqueness.enabled", true)
	v.SetDefault("toggles.foreign-key.enabled", true)
	v.SetDefault("toggles.uniqueness.composite-enforced", false)

	v.SetDefault("cache.root", ".ssdtbuild/cache")
	v.SetDefault("cache.max-age", "168h")
	v.SetDefault("cache.max-entries", 50)
	v.SetDefault("cache.refresh", false)

	v.SetDefault("emission.module-parallelism", 1)
	v.SetDefault("emission.group-by-module", true)
	v.SetDefault("emission.emit-master-file", false)
	v.SetDefault("emission.synchronization-mode", "NonDestructive")
	v.SetDefault("emission.layout", "per-table")

	v.SetDefault("apply.enabled", false)
	v.SetDefault("apply.apply-safe-script", true)
	v.SetDefault("apply.apply-static-seeds", true)
	v.SetDefault("apply.command-timeout-seconds", 30)
	v.SetDefault("apply.max-batch-size-bytes", 0)

	v.SetDefault("watch.debounce", "500ms")
	v.SetDefault("uat-users.predicate", "OSUSR_*_USER")
}

// GetString, GetBool, GetInt, GetDuration read one key through the layered
// viper singleton. Each returns the zero value if Initialize was not called.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

func GetFloat64(key string) float64 {
	if v == nil {
		return 0
	}
	return v.GetFloat64(key)
}

func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a key at the override layer (a CLI flag value).
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}

// ValueSource reports which layer a key's effective value came from
// (override wins are tracked by the caller via Set, since viper itself
// does not distinguish a Set() call from a flag binding).
func ValueSource(key string) Source {
	if v == nil {
		return SourceDefault
	}
	envKey := "SSDTBUILD_" + strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(key, "-", "_"), ".", "_"))
	if os.Getenv(envKey) != "" {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}

// LocalFile is the shape of a directly-read config.toml, for the narrow
// pre-viper-init reads a command needs (e.g. resolving a relative --model
// path against the project root before Initialize runs).
type LocalFile struct {
	ModelPath   string `toml:"model-path"`
	ProfilePath string `toml:"profile-path"`
	OutputDir   string `toml:"output-dir"`
}

// LoadLocalConfig reads path directly with BurntSushi/toml, bypassing
// viper entirely. Returns a zero LocalFile if path does not exist.
func LoadLocalConfig(path string) (LocalFile, error) {
	var lf LocalFile
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return lf, nil
	}
	if _, err := toml.DecodeFile(path, &lf); err != nil {
		return lf, fmt.Errorf("config.local.load.failed: %w", err)
	}
	return lf, nil
}
