// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetDefaults_FillsDocumentedValues(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Database = ":memory:"
	cfg.SetDefaults()

	require.Equal(t, 2, cfg.Worker.MinClusterSize)
	require.Equal(t, 2, cfg.Worker.MinMatchingTraces)
	require.Equal(t, 3, cfg.Worker.MinSegmentWords)
	require.Equal(t, 1000, cfg.Worker.DefaultMaxOutputTokens)
	require.Equal(t, 1000, cfg.Queue.Capacity)
	require.Equal(t, 1000, cfg.Queue.PollTimeoutMS)
	require.Equal(t, 5000, cfg.Queue.ShutdownTimeoutMS)
	require.Equal(t, 8090, cfg.Server.Port)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Database = ":memory:"
	cfg.SetDefaults()
	cfg.Worker.MinClusterSize = 0
	require.Error(t, cfg.Validate())
}

func TestValidate_AuthRequiresSecretWhenEnabled(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Database = ":memory:"
	cfg.Auth.Enabled = true
	cfg.SetDefaults()
	require.Error(t, cfg.Validate())

	cfg.Auth.Secret = "shh"
	require.NoError(t, cfg.Validate())
}

func TestLoad_ExpandsEnvVarsAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  database: ${TRACEPIPELINE_TEST_DB:-./traces.db}
worker:
  min_cluster_size: 5
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "./traces.db", cfg.Database.Database)
	require.Equal(t, 5, cfg.Worker.MinClusterSize)
	require.Equal(t, 2, cfg.Worker.MinMatchingTraces)
}

func TestLoad_EnvVarOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  database: ${TRACEPIPELINE_TEST_DB:-./traces.db}
`), 0644))

	t.Setenv("TRACEPIPELINE_TEST_DB", "/tmp/override.db")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/override.db", cfg.Database.Database)
}

func TestStorageConfig_ConvertsFields(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Driver = "postgres"
	cfg.Database.Host = "db.internal"
	cfg.Database.Database = "traces"
	cfg.SetDefaults()

	sc := cfg.StorageConfig()
	require.Equal(t, "postgres", sc.Driver)
	require.Equal(t, "db.internal", sc.Host)
	require.Equal(t, 5432, sc.Port)
}

func TestAuthValidator_NilWhenDisabled(t *testing.T) {
	cfg := &Config{}
	require.Nil(t, cfg.AuthValidator())
}

func TestRateLimiter_NilWhenDisabled(t *testing.T) {
	cfg := &Config{}
	rl, err := cfg.RateLimiter()
	require.NoError(t, err)
	require.Nil(t, rl)
}
