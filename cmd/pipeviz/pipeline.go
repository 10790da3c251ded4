package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bgricker/pipeviz/internal/config"
	"github.com/bgricker/pipeviz/internal/diagram"
	"github.com/bgricker/pipeviz/internal/discovery"
	"github.com/bgricker/pipeviz/internal/engine"
	"github.com/bgricker/pipeviz/internal/filter"
	"github.com/bgricker/pipeviz/internal/logging"
	"github.com/bgricker/pipeviz/internal/output"
	"github.com/bgricker/pipeviz/internal/report"
)

// session bundles the resolved configuration for one command invocation.
type session struct {
	cfg    config.Config
	root   string
	logger *zap.Logger
}

func loadSession(cmd *cobra.Command, args []string) (session, error) {
	root, err := os.Getwd()
	if err != nil {
		return session{}, fmt.Errorf("determine working directory: %w", err)
	}

	var cfg config.Config
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.LoadFile(path, true)
	} else {
		cfg, err = config.Load(root)
	}
	if err != nil {
		return session{}, err
	}

	flags, err := gatherFlags(cmd)
	if err != nil {
		return session{}, err
	}
	flags.Paths = config.SliceFlag{Values: args}
	config.ApplyFlags(&cfg, flags)
	if err := cfg.Validate(); err != nil {
		return session{}, err
	}

	logger, err := logging.New(logging.Config{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return session{}, err
	}
	return session{cfg: cfg, root: root, logger: logger}, nil
}

func (s session) engineOptions() (engine.Options, error) {
	criteria, err := filter.CompileCriteria(s.cfg.Jobs, s.cfg.OnlySteps, s.cfg.SkipSteps)
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		FormatHint: s.cfg.FormatHint,
		MaxBytes:   s.cfg.MaxBytes,
		MaxNodes:   s.cfg.MaxNodes,
		Diagram:    diagram.Kind(s.cfg.Diagram),
		Filter:     criteria,
		Logger:     s.logger,
	}, nil
}

func (s session) discover() ([]string, error) {
	paths, err := discovery.Pipelines(s.root, s.cfg.Paths)
	if err != nil {
		if errors.Is(err, discovery.ErrNoPipelines) {
			return nil, fmt.Errorf("no pipeline definitions found; pass files as arguments")
		}
		return nil, err
	}
	return paths, nil
}

// parseAll parses paths concurrently. Items keep the order of paths; a parse
// failure is recorded on its item while read errors abort the whole run.
func (s session) parseAll(ctx context.Context, paths []string) ([]output.Item, error) {
	opts, err := s.engineOptions()
	if err != nil {
		return nil, err
	}

	items := make([]output.Item, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			full := path
			if !filepath.IsAbs(full) {
				full = filepath.Join(s.root, path)
			}
			content, err := os.ReadFile(full)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			res, err := engine.ParsePipeline(string(content), filepath.ToSlash(path), opts)
			if err != nil {
				s.logger.Warn("pipeline failed to parse", zap.String("path", path), zap.Error(err))
			}
			items[i] = output.Item{Path: path, Result: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// collect discovers and parses the pipelines for the current invocation.
func (s session) collect(ctx context.Context) ([]output.Item, report.Summary, error) {
	paths, err := s.discover()
	if err != nil {
		return nil, report.Summary{}, err
	}
	start := time.Now()
	items, err := s.parseAll(ctx, paths)
	if err != nil {
		return nil, report.Summary{}, err
	}
	entries := make([]report.Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, item.Entry())
	}
	return items, report.Summarize(entries, time.Since(start)), nil
}

func failureError(summary report.Summary) error {
	if summary.ExitCode == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d pipelines failed to parse", summary.Failed, summary.TotalPipelines)
}
