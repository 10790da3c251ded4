package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgricker/pipeviz/internal/config"
	"github.com/bgricker/pipeviz/internal/output"
)

func newRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render [files...]",
		Short: "Print the diagram of each pipeline",
		RunE:  runRender,
	}
}

func runRender(cmd *cobra.Command, args []string) error {
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
		if err := output.NewPretty(cmd.OutOrStdout()).RenderDiagrams(items); err != nil {
			return err
		}
	case config.FormatJSON:
		if err := output.NewJSON(cmd.OutOrStdout()).Render(output.NewReport(items, summary, true)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported format %q", s.cfg.Format)
	}

	return failureError(summary)
}
