package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "server:\n  node_id: node-1\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "node-1", cfg.Server.NodeID)
	assert.Equal(t, 50052, cfg.Server.Port)
	assert.EqualValues(t, 1000, cfg.Sequencer.Delta)
	assert.EqualValues(t, 255, cfg.SSN.HotThreshold)
	assert.Equal(t, "/dev/shm/txlog", cfg.TxLog.Dir)
	assert.Equal(t, 16, cfg.Validator.PoolSize)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadConfig_RejectsMissingNodeID(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 50052\n")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_EnvOverridesWinOverDefaults(t *testing.T) {
	path := writeConfigFile(t, "server:\n  node_id: node-1\n")

	t.Setenv("SEQUENCER_DELTA", "2500")
	t.Setenv("HOT_THRESHOLD", "128")
	t.Setenv("TXLOG_DIR", "/tmp/custom-txlog")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.EqualValues(t, 2500, cfg.Sequencer.Delta)
	assert.EqualValues(t, 128, cfg.SSN.HotThreshold)
	assert.Equal(t, "/tmp/custom-txlog", cfg.TxLog.Dir)
}

func TestLoadConfig_ExplicitValuesSurviveDefaulting(t *testing.T) {
	path := writeConfigFile(t, "server:\n  node_id: node-1\n  port: 7000\nssn:\n  hot_threshold: 42\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.EqualValues(t, 42, cfg.SSN.HotThreshold)
}

func TestLoadConfig_MissingFileReturnsError(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestValidate_RejectsOutOfRangePort(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{NodeID: "node-1", Port: 70000},
		SSN:    SSNConfig{HotThreshold: 1},
		TxLog:  TxLogConfig{Dir: "/tmp/txlog"},
	}
	assert.Error(t, cfg.Validate())
}
