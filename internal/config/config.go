// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/roach88/lattice/internal/blob"
	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/store"
)

// Prefix is the environment variable prefix.
const Prefix = "lattice"

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every LATTICE_* setting.
type Config struct {
	Driver      string `envconfig:"DRIVER" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"lattice.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN"`
	Citus       bool   `envconfig:"CITUS" default:"false"`
	MaxConns    int    `envconfig:"MAX_CONNS" default:"16"`
	Catalog     string `envconfig:"CATALOG"`

	LogLevel slog.Level `envconfig:"LOG_LEVEL" default:"info"`

	BlobDriver  string `envconfig:"BLOB_DRIVER"`
	S3Bucket    string `envconfig:"BLOB_S3_BUCKET"`
	S3Region    string `envconfig:"BLOB_S3_REGION" default:"us-east-1"`
	S3Endpoint  string `envconfig:"BLOB_S3_ENDPOINT"`
	S3PathStyle bool   `envconfig:"BLOB_S3_PATH_STYLE" default:"false"`

	ExpirationInterval time.Duration `envconfig:"EXPIRATION_INTERVAL" default:"1h"`
	ExpirationWorkers  int           `envconfig:"EXPIRATION_WORKERS" default:"4"`
	MetricsAddr        string        `envconfig:"METRICS_ADDR"`
}

// Load reads the optional dotenv files into the process environment and
// decodes the LATTICE_* variables. Variables already set take precedence
// over dotenv values. Missing files are ignored.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return c, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	switch c.Driver {
	case querysql.SQLiteName:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite driver requires LATTICE_SQLITE_PATH"))
		}
	case querysql.PostgresName:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres driver requires LATTICE_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q", c.Driver))
	}
	if c.Citus && c.Driver != querysql.PostgresName {
		errs = append(errs, errors.New("citus requires the postgres driver"))
	}
	switch blob.Driver(c.BlobDriver) {
	case "", blob.DriverMemory:
	case blob.DriverS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("s3 blob driver requires LATTICE_BLOB_S3_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.BlobDriver))
	}
	if c.ExpirationInterval <= 0 {
		errs = append(errs, fmt.Errorf("expiration interval must be positive, got %s", c.ExpirationInterval))
	}
	if c.ExpirationWorkers <= 0 {
		errs = append(errs, fmt.Errorf("expiration workers must be positive, got %d", c.ExpirationWorkers))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// DSN returns the connection string of the selected driver.
func (c Config) DSN() string {
	if c.Driver == querysql.PostgresName {
		return c.PostgresDSN
	}
	return c.SQLitePath
}

// StoreOptions returns the database options for store.Open.
func (c Config) StoreOptions(logger *slog.Logger) store.Options {
	return store.Options{
		Driver:       c.Driver,
		DSN:          c.DSN(),
		Citus:        c.Citus,
		MaxOpenConns: c.MaxConns,
		Logger:       logger,
	}
}

// BlobConfig returns the binary offload settings for blob.Open.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver:      blob.Driver(c.BlobDriver),
		S3Bucket:    c.S3Bucket,
		S3Region:    c.S3Region,
		S3Endpoint:  c.S3Endpoint,
		S3PathStyle: c.S3PathStyle,
	}
}
