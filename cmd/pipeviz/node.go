package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bgricker/pipeviz/internal/config"
	"github.com/bgricker/pipeviz/internal/graph"
	"github.com/bgricker/pipeviz/internal/output"
)

func newNodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "node <file> <node-id>",
		Short: "Show the steps behind a diagram node",
		Args:  cobra.ExactArgs(2),
		RunE:  runNode,
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd, args[:1])
	if err != nil {
		return err
	}
	defer s.logger.Sync() //nolint:errcheck

	paths, err := s.discover()
	if err != nil {
		return err
	}
	items, err := s.parseAll(cmd.Context(), paths[:1])
	if err != nil {
		return err
	}
	item := items[0]
	if item.Err != nil {
		return item.Err
	}

	id := args[1]
	detail, err := item.Result.NodeDetails.Lookup(id)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return fmt.Errorf("%w; known ids: %s", err, strings.Join(item.Result.NodeDetails.IDs(), ", "))
		}
		return err
	}

	switch s.cfg.Format {
	case config.FormatPretty:
		return output.NewPretty(cmd.OutOrStdout()).RenderNode(id, detail)
	case config.FormatJSON:
		return output.NewJSON(cmd.OutOrStdout()).RenderNode(id, detail)
	default:
		return fmt.Errorf("unsupported format %q", s.cfg.Format)
	}
}
