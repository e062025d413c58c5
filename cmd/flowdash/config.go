package main

import (
	"time"

	"github.com/tinytelemetry/flowdash/internal/model"
)

const (
	defaultDataDir            = model.DefaultDataDir
	defaultMaxLoadRows        = model.DefaultMaxLoadRows
	defaultMaxViewRows        = model.DefaultMaxViewRows
	defaultSampleSeed         = model.DefaultSampleSeed
	defaultBindHost           = "127.0.0.1"
	defaultAPIPort            = 8050
	defaultQueryTimeout       = model.DefaultQueryTimeout
	defaultMaxConcurrentReads = 8
	defaultS3Region           = "us-east-1"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	DataDir            string        `mapstructure:"data-dir"`
	DatasetURL         string        `mapstructure:"dataset-url"`
	S3Endpoint         string        `mapstructure:"s3-endpoint"`
	S3Region           string        `mapstructure:"s3-region"`
	S3AccessKey        string        `mapstructure:"s3-access-key"`
	S3SecretKey        string        `mapstructure:"s3-secret-key"`
	S3SessionToken     string        `mapstructure:"s3-session-token"`
	S3UseSSL           bool          `mapstructure:"s3-use-ssl"`
	CacheDir           string        `mapstructure:"cache-dir"`
	DBPath             string        `mapstructure:"db-path"`
	MaxLoadRows        int           `mapstructure:"max-load-rows"`
	MaxViewRows        int           `mapstructure:"max-view-rows"`
	SampleSeed         int64         `mapstructure:"sample-seed"`
	ZeroFillHours      bool          `mapstructure:"zero-fill-hours"`
	APIEnabled         bool          `mapstructure:"api-enabled"`
	APIPort            int           `mapstructure:"api-port"`
	APIAddr            string        `mapstructure:"api-addr"`
	QueryTimeout       time.Duration `mapstructure:"query-timeout"`
	MaxConcurrentReads int           `mapstructure:"max-concurrent-queries"`
	SocketPath         string        `mapstructure:"socket-path"`
	LogFile            string        `mapstructure:"log-file"`
	ConfigPath         string        `mapstructure:"-"` // not from config file
}
