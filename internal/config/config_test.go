package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
store:
  driver: leveldb
  path: /tmp/cfs
auth:
  jwt_secret: s3cret
task:
  interval: 15
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "leveldb", cfg.Store.Driver)
	assert.Equal(t, "/tmp/cfs", cfg.Store.Path)
	assert.Equal(t, 15, cfg.Task.Interval)
	assert.Equal(t, 50, cfg.Task.BatchSize)
	assert.Equal(t, 30, cfg.Task.RetryBase)
	assert.Equal(t, 3600, cfg.Task.RetryMax)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Chain.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: from-file\n")
	t.Setenv("CFS_AUTH_JWT_SECRET", "from-env")
	t.Setenv("CFS_STORE_DRIVER", "memory")
	t.Setenv("CFS_DATABASE_PORT", "6543")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 6543, cfg.Database.Port)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing secret", "store:\n  driver: memory\n"},
		{"unknown driver", "store:\n  driver: mysql\nauth:\n  jwt_secret: x\n"},
		{"chain without rpc", "auth:\n  jwt_secret: x\nchain:\n  enabled: true\n"},
		{"zero interval", "auth:\n  jwt_secret: x\ntask:\n  interval: 0\n"},
		{"retry cap below base", "auth:\n  jwt_secret: x\ntask:\n  retry_base: 60\n  retry_max: 10\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "cf", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=cf sslmode=disable", d.DSN())
}
