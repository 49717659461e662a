package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/blob"
)

var allVars = []string{
	"LATTICE_DRIVER", "LATTICE_SQLITE_PATH", "LATTICE_POSTGRES_DSN", "LATTICE_CITUS",
	"LATTICE_MAX_CONNS", "LATTICE_CATALOG", "LATTICE_LOG_LEVEL", "LATTICE_BLOB_DRIVER",
	"LATTICE_BLOB_S3_BUCKET", "LATTICE_BLOB_S3_REGION", "LATTICE_BLOB_S3_ENDPOINT",
	"LATTICE_BLOB_S3_PATH_STYLE", "LATTICE_EXPIRATION_INTERVAL", "LATTICE_EXPIRATION_WORKERS",
	"LATTICE_METRICS_ADDR",
}

// clearEnv unsets every LATTICE_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allVars {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", c.Driver)
	assert.Equal(t, "lattice.db", c.SQLitePath)
	assert.Equal(t, slog.LevelInfo, c.LogLevel)
	assert.Equal(t, "us-east-1", c.S3Region)
	assert.Equal(t, time.Hour, c.ExpirationInterval)
	assert.Equal(t, 4, c.ExpirationWorkers)
	assert.Empty(t, c.BlobDriver)
	require.NoError(t, c.Validate())
	assert.Equal(t, "lattice.db", c.DSN())
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LATTICE_DRIVER", "postgres")
	t.Setenv("LATTICE_POSTGRES_DSN", "postgres://localhost/lattice")
	t.Setenv("LATTICE_CITUS", "true")
	t.Setenv("LATTICE_LOG_LEVEL", "debug")
	t.Setenv("LATTICE_EXPIRATION_INTERVAL", "15m")
	t.Setenv("LATTICE_BLOB_DRIVER", "s3")
	t.Setenv("LATTICE_BLOB_S3_BUCKET", "values")
	t.Setenv("LATTICE_BLOB_S3_PATH_STYLE", "true")

	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "postgres://localhost/lattice", c.DSN())
	assert.True(t, c.Citus)
	assert.Equal(t, slog.LevelDebug, c.LogLevel)
	assert.Equal(t, 15*time.Minute, c.ExpirationInterval)

	opts := c.StoreOptions(nil)
	assert.Equal(t, "postgres", opts.Driver)
	assert.True(t, opts.Citus)

	bc := c.BlobConfig()
	assert.Equal(t, blob.DriverS3, bc.Driver)
	assert.Equal(t, "values", bc.S3Bucket)
	assert.True(t, bc.S3PathStyle)
}

func TestLoad_DotenvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LATTICE_SQLITE_PATH=/data/from-file.db\nLATTICE_EXPIRATION_WORKERS=9\n"), 0o600))
	t.Setenv("LATTICE_EXPIRATION_WORKERS", "2")
	t.Cleanup(func() { os.Unsetenv("LATTICE_SQLITE_PATH") })

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/from-file.db", c.SQLitePath)
	assert.Equal(t, 2, c.ExpirationWorkers)
}

func TestLoad_MalformedValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("LATTICE_EXPIRATION_INTERVAL", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{Driver: "sqlite", SQLitePath: "x.db", ExpirationInterval: time.Minute, ExpirationWorkers: 1}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Driver = "oracle" }},
		{"postgres without dsn", func(c *Config) { c.Driver = "postgres" }},
		{"citus on sqlite", func(c *Config) { c.Citus = true }},
		{"s3 without bucket", func(c *Config) { c.BlobDriver = "s3" }},
		{"unknown blob driver", func(c *Config) { c.BlobDriver = "tape" }},
		{"zero interval", func(c *Config) { c.ExpirationInterval = 0 }},
		{"zero workers", func(c *Config) { c.ExpirationWorkers = 0 }},
	}

	require.NoError(t, valid.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_NoFiles(t *testing.T) {
	clearEnv(t)
	t.Setenv("LATTICE_SQLITE_PATH", "/tmp/only-env.db")
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/only-env.db", c.DSN())
}
