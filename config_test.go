package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5000, cfg.ControlPort)
	assert.Equal(t, 5005, cfg.FilePort)
	assert.Equal(t, ":memory:", cfg.DBPath)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, "host: 192.168.1.10\ncontrol_port: 6000\ndb: /var/lib/hub.db\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.10", cfg.Host)
	assert.Equal(t, 6000, cfg.ControlPort)
	assert.Equal(t, "/var/lib/hub.db", cfg.DBPath)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5001, cfg.VideoPort)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "controll_port: 6000\n")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsDuplicatePorts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VideoPort = cfg.ControlPort
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AudioPort = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.FilePort = 70000
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyHost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = ""
	assert.Error(t, cfg.Validate())
}

func TestConfigAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	assert.Equal(t, "127.0.0.1:5000", cfg.addr(cfg.ControlPort))
}
