package main

import (
	"context"
	"fmt"

	"github.com/tinytelemetry/flowdash/internal/export"
	"github.com/tinytelemetry/flowdash/internal/model"
)

// exportOptions holds the one-shot export flags.
type exportOptions struct {
	ViewPath  string
	FlowsPath string
	Selection model.Selection
}

func (o exportOptions) enabled() bool {
	return o.ViewPath != "" || o.FlowsPath != ""
}

// runExport loads the dataset, writes the requested files and returns.
func runExport(cfg appConfig, opts exportOptions) error {
	cleanupLogger := configureRuntimeLogger(cfg.LogFile)
	defer cleanupLogger()

	if opts.ViewPath != "" {
		if _, err := export.ParseTarget(opts.ViewPath); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*cfg.QueryTimeout)
	defer cancel()

	ds, err := openDataset(ctx, cfg)
	if err != nil {
		return err
	}
	defer ds.store.Close()

	if opts.FlowsPath != "" {
		n, err := ds.store.ExportFlows(ctx, opts.FlowsPath)
		if err != nil {
			return fmt.Errorf("export flows: %w", err)
		}
		fmt.Printf("wrote %d flows to %s\n", n, opts.FlowsPath)
	}

	if opts.ViewPath != "" {
		view, err := newEngine(cfg, ds).ComputeView(ctx, opts.Selection)
		if err != nil {
			return fmt.Errorf("compute view: %w", err)
		}
		if err := export.WriteView(opts.ViewPath, view); err != nil {
			return fmt.Errorf("export view: %w", err)
		}
		fmt.Printf("wrote view (%d of %d matched flows, %d charts) to %s\n",
			view.Rows, view.Matched, len(view.Charts), opts.ViewPath)
	}
	return nil
}
