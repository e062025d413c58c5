package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/tinytelemetry/flowdash/internal/socketrpc"
	"github.com/tinytelemetry/flowdash/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var (
		configPath  string
		socketPath  string
		debugLog    string
		timeout     time.Duration
		noRefresh   bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/flowdash/config.yml)")
	flag.StringVar(&socketPath, "socket", "", "override socket path to connect to the flowdash service")
	flag.StringVar(&debugLog, "debug-log", "", "write client logs to this file")
	flag.DurationVar(&timeout, "timeout", 0, "override the per-view request timeout")
	flag.BoolVar(&noRefresh, "no-refresh", false, "do not compute the default view on start")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("flowdash-tui - terminal dashboard for flowdash\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if socketPath != "" {
		cfg.SocketPath = socketPath
	}
	if timeout > 0 {
		cfg.QueryTimeout = timeout
	}
	if noRefresh {
		cfg.RefreshOnStart = false
	}

	if err := runTUI(cfg, debugLog); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(cfg cliConfig, debugLog string) error {
	// The alt screen owns the terminal, so logs go to a file or nowhere.
	if debugLog != "" {
		f, err := tea.LogToFile(debugLog, "flowdash-tui")
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	client, err := socketrpc.Dial(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("cannot connect to flowdash at %s: %w\nStart the service first: flowdash -config <file>", cfg.SocketPath, err)
	}
	defer client.Close()

	info, err := client.DatasetInfo()
	if err != nil {
		return fmt.Errorf("flowdash at %s did not answer: %w", cfg.SocketPath, err)
	}
	log.Printf("tui: connected to %s, %d flows loaded", cfg.SocketPath, info.Rows)

	app := tui.NewApp(
		tui.NewDashboardModel(client, cfg.QueryTimeout, cfg.RefreshOnStart),
		tui.NewDatasetPage(client),
	)
	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
			return fmt.Errorf("the dashboard needs an interactive terminal")
		}
		return fmt.Errorf("run dashboard: %w", err)
	}
	return nil
}
