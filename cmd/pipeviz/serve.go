package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bgricker/pipeviz/internal/diagram"
	"github.com/bgricker/pipeviz/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline API over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "listen address (default 127.0.0.1:8080)")
	cmd.Flags().Int("cache-size", 0, "number of parsed pipelines kept for node lookups")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd, nil)
	if err != nil {
		return err
	}
	defer s.logger.Sync() //nolint:errcheck

	srv, err := server.New(server.Config{
		Addr:           s.cfg.Serve.Addr,
		MaxBytes:       s.cfg.MaxBytes,
		MaxNodes:       s.cfg.MaxNodes,
		CacheSize:      s.cfg.Serve.CacheSize,
		AllowedOrigins: s.cfg.Serve.AllowedOrigins,
		Diagram:        diagram.Kind(s.cfg.Diagram),
	}, s.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
