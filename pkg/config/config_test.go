package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chuyangliu/lsmkv/pkg/logging"
	"github.com/chuyangliu/lsmkv/pkg/store"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if !assert.NoError(t, cfg.Validate()) {
		panic(nil)
	}
	if !assert.Equal(t, store.KVLen(64*1024*1024), cfg.Budget()) {
		panic(nil)
	}
	if !assert.Equal(t, logging.LevelInfo, cfg.ParsedLogLevel()) {
		panic(nil)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lsmkv.yaml")
	raw := []byte("root_dir: /var/lib/lsmkv\nmem_buffer_bytes: 1048576\nlog_level: debug\n")
	if err := os.WriteFile(path, raw, 0644); !assert.NoError(t, err) {
		panic(nil)
	}

	cfg, err := Load(path)
	if !assert.NoError(t, err) {
		panic(nil)
	}
	if !assert.Equal(t, "/var/lib/lsmkv", cfg.RootDir) {
		panic(nil)
	}
	if !assert.Equal(t, store.KVLen(1048576), cfg.Budget()) {
		panic(nil)
	}
	if !assert.Equal(t, logging.LevelDebug, cfg.ParsedLogLevel()) {
		panic(nil)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lsmkv.yaml")
	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0644); !assert.NoError(t, err) {
		panic(nil)
	}

	cfg, err := Load(path)
	if !assert.NoError(t, err) {
		panic(nil)
	}
	if !assert.Equal(t, Default().RootDir, cfg.RootDir) {
		panic(nil)
	}
	if !assert.Equal(t, logging.LevelWarn, cfg.ParsedLogLevel()) {
		panic(nil)
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()

	// Missing file.
	if _, err := Load(filepath.Join(dir, "absent.yaml")); !assert.Error(t, err) {
		panic(nil)
	}

	// Bad YAML.
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte(":\n\t-"), 0644); !assert.NoError(t, err) {
		panic(nil)
	}
	if _, err := Load(bad); !assert.Error(t, err) {
		panic(nil)
	}

	// Invalid values.
	zero := filepath.Join(dir, "zero.yaml")
	if err := os.WriteFile(zero, []byte("mem_buffer_bytes: 0\n"), 0644); !assert.NoError(t, err) {
		panic(nil)
	}
	if _, err := Load(zero); !assert.Error(t, err) {
		panic(nil)
	}

	level := filepath.Join(dir, "level.yaml")
	if err := os.WriteFile(level, []byte("log_level: loud\n"), 0644); !assert.NoError(t, err) {
		panic(nil)
	}
	if _, err := Load(level); !assert.Error(t, err) {
		panic(nil)
	}
}
