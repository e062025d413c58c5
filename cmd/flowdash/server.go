package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/flowdash/internal/dashboard"
	"github.com/tinytelemetry/flowdash/internal/datasource"
	"github.com/tinytelemetry/flowdash/internal/duckdb"
	"github.com/tinytelemetry/flowdash/internal/httpserver"
	"github.com/tinytelemetry/flowdash/internal/metrics"
	"github.com/tinytelemetry/flowdash/internal/model"
	"github.com/tinytelemetry/flowdash/internal/socketrpc"
)

// dataset is the loaded flow table and its description.
type dataset struct {
	store *duckdb.Store
	info  *model.DatasetInfo
	load  *duckdb.LoadResult
	dir   string
}

// openDataset resolves the data directory, opens the store and loads the
// flow files. A failed load leaves an empty flow table and is not fatal.
func openDataset(ctx context.Context, cfg appConfig) (*dataset, error) {
	dir := cfg.DataDir
	source := dir
	if cfg.DatasetURL != "" {
		fetcher, err := datasource.NewFetcher(datasource.S3Config{
			URL:          cfg.DatasetURL,
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			SessionToken: cfg.S3SessionToken,
			UseSSL:       cfg.S3UseSSL,
			CacheDir:     cfg.CacheDir,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure dataset source: %w", err)
		}
		fetched, files, err := fetcher.Fetch(ctx)
		if err != nil {
			log.Printf("datasource: fetch %s failed: %v", cfg.DatasetURL, err)
			fetched = fetcher.Dir()
		} else {
			log.Printf("datasource: %d files from %s in %s", len(files), cfg.DatasetURL, fetched)
		}
		dir, source = fetched, cfg.DatasetURL
	}

	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	store.SetMaxConcurrentQueries(cfg.MaxConcurrentReads)

	res, err := store.LoadDataset(ctx, dir, duckdb.LoadOptions{
		MaxRows: cfg.MaxLoadRows,
		Seed:    cfg.SampleSeed,
		Source:  source,
	})
	if err != nil {
		log.Printf("duckdb: dataset load from %s failed, serving an empty table: %v", dir, err)
	}

	info, err := store.DatasetInfo()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to describe dataset: %w", err)
	}
	return &dataset{store: store, info: info, load: res, dir: dir}, nil
}

func newEngine(cfg appConfig, ds *dataset) *dashboard.Engine {
	return dashboard.NewEngine(ds.store, ds.info, dashboard.Options{
		MaxRows:       cfg.MaxViewRows,
		Seed:          cfg.SampleSeed,
		ZeroFillHours: cfg.ZeroFillHours,
	})
}

// runServer loads the dataset and serves views over HTTP and the unix socket.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger(cfg.LogFile)
	defer cleanupLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ds, err := openDataset(ctx, cfg)
	if err != nil {
		return err
	}
	defer ds.store.Close()

	recorder := metrics.NewRecorder()
	var parseWarnings int64
	if ds.load != nil {
		parseWarnings = ds.load.ParseWarnings
	}
	recorder.SetDataset(ds.info.Rows, parseWarnings)

	engine := newEngine(cfg, ds).WithObserver(recorder)

	// Start HTTP API server if enabled
	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, ds.store, engine, recorder)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	// Start socket RPC server for TUI IPC
	sockServer := socketrpc.NewServer(cfg.SocketPath, engine, ds.store)
	if err := sockServer.Start(); err != nil {
		log.Printf("Warning: failed to start socket server: %v", err)
	} else {
		defer sockServer.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	printStartupBanner(cfg, ds)

	g, gctx := errgroup.WithContext(ctx)

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}

	signal.Stop(sigCh)
	return nil
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func configureRuntimeLogger(logFile string) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	logPath := logFile
	if logPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.SetOutput(os.Stderr)
			return func() {}
		}
		logPath = filepath.Join(home, ".local", "state", "flowdash", "flowdash.log")
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

func printStartupBanner(cfg appConfig, ds *dataset) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")
	cross := red.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╦  ╔═╗╦ ╦╔╦╗╔═╗╔═╗╦ ╦
    ╠╣ ║  ║ ║║║║ ║║╠═╣╚═╗╠═╣
    ╚  ╩═╝╚═╝╚╩╝═╩╝╩ ╩╚═╝╩ ╩`)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	// Gateway
	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")

	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", check, cyan.Render(shortenPath(cfg.SocketPath))))
	lines = append(lines, "")

	// Dataset
	lines = append(lines, bold.Render("    Dataset"))
	lines = append(lines, "")

	source := shortenPath(ds.dir)
	if cfg.DatasetURL != "" {
		source = cfg.DatasetURL
	}
	status := check
	if ds.info.Rows == 0 {
		status = cross
	}
	lines = append(lines, fmt.Sprintf("    %s  Source         %s", status, dim.Render(source)))
	lines = append(lines, fmt.Sprintf("    %s  Flows          %s", status, dim.Render(fmt.Sprintf("%d", ds.info.Rows))))
	if ds.load != nil {
		lines = append(lines, fmt.Sprintf("    %s  Files          %s", check, dim.Render(fmt.Sprintf("%d", len(ds.load.Files)))))
		if ds.load.ParseWarnings > 0 {
			lines = append(lines, fmt.Sprintf("    %s  Bad Timestamps %s", yellow.Render("●"), dim.Render(fmt.Sprintf("%d", ds.load.ParseWarnings))))
		}
	}
	lines = append(lines, fmt.Sprintf("    %s  Protocols      %s", check, dim.Render(strings.Join(ds.info.Protocols, ", "))))
	if cfg.DBPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Storage        %s", check, dim.Render(shortenPath(cfg.DBPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Storage        %s", dot, dim.Render("in-memory")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
