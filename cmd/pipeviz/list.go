package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgricker/pipeviz/internal/config"
	"github.com/bgricker/pipeviz/internal/output"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [files...]",
		Short: "List pipeline stages, jobs and steps",
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd, args)
	if err != nil {
		return err
	}
	defer s.logger.Sync() //nolint:errcheck

	items, summary, err := s.collect(cmd.Context())
	if err != nil {
		return err
	}

	switch s.cfg.Format {
	case config.FormatPretty:
		renderer := output.NewPretty(cmd.OutOrStdout())
		if err := renderer.RenderList(items); err != nil {
			return err
		}
		if err := renderer.RenderSummary(summary); err != nil {
			return err
		}
	case config.FormatJSON:
		if err := output.NewJSON(cmd.OutOrStdout()).Render(output.NewReport(items, summary, false)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported format %q", s.cfg.Format)
	}

	return failureError(summary)
}
