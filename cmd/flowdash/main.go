package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/flowdash/internal/socketrpc"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var showVersion bool
	var exp exportOptions

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/flowdash/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.StringVar(&exp.ViewPath, "export", "", "compute one view and write it to this .json/.yaml[.zst] file, then exit")
	flag.StringVar(&exp.FlowsPath, "export-flows", "", "write the loaded flow table to this .parquet/.csv file, then exit")
	flag.StringVar(&exp.Selection.Protocol, "protocol", "", "protocol filter for -export")
	flag.StringVar(&exp.Selection.SourceIP, "ip", "", "source IP for -export")
	flag.Func("min", "minimum flow duration for -export (default: smallest observed)", func(v string) error {
		lo, err := strconv.ParseFloat(v, 64)
		exp.Selection = exp.Selection.WithMin(lo)
		return err
	})
	flag.Func("max", "maximum flow duration for -export (default: largest observed)", func(v string) error {
		hi, err := strconv.ParseFloat(v, 64)
		exp.Selection = exp.Selection.WithMax(hi)
		return err
	})
	flag.Parse()

	if showVersion {
		fmt.Printf("flowdash - Flow Analytics Service\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if exp.enabled() {
		err = runExport(cfg, exp)
	} else {
		err = runServer(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("FLOWDASH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("data-dir", defaultDataDir)
	v.SetDefault("dataset-url", "")
	v.SetDefault("s3-endpoint", "")
	v.SetDefault("s3-region", defaultS3Region)
	v.SetDefault("s3-access-key", "")
	v.SetDefault("s3-secret-key", "")
	v.SetDefault("s3-session-token", "")
	v.SetDefault("s3-use-ssl", true)
	v.SetDefault("cache-dir", filepath.Join(home, ".cache", "flowdash"))
	v.SetDefault("db-path", "")
	v.SetDefault("max-load-rows", defaultMaxLoadRows)
	v.SetDefault("max-view-rows", defaultMaxViewRows)
	v.SetDefault("sample-seed", defaultSampleSeed)
	v.SetDefault("zero-fill-hours", false)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("api-addr", "")
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("max-concurrent-queries", defaultMaxConcurrentReads)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("log-file", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "flowdash", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, statErr := os.Stat(cfg.ConfigPath); statErr != nil {
		cfg.ConfigPath = ""
	}

	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.MaxLoadRows <= 0 {
		return cfg, fmt.Errorf("invalid max-load-rows: %d", cfg.MaxLoadRows)
	}
	if cfg.MaxViewRows <= 0 {
		return cfg, fmt.Errorf("invalid max-view-rows: %d", cfg.MaxViewRows)
	}
	if cfg.QueryTimeout <= 0 {
		return cfg, fmt.Errorf("invalid query-timeout: %s", cfg.QueryTimeout)
	}

	cfg.DataDir = expandHome(home, cfg.DataDir)
	cfg.CacheDir = expandHome(home, cfg.CacheDir)
	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.SocketPath = expandHome(home, cfg.SocketPath)
	cfg.LogFile = expandHome(home, cfg.LogFile)

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
