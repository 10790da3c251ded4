package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pipeviz",
		Short:         "Pipeviz turns CI/CD pipeline definitions into diagrams",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	persistent := cmd.PersistentFlags()
	persistent.String("config", "", "config file (default .pipeviz.yml in the working directory)")
	persistent.String("format-hint", "", "skip detection and parse as this format (jenkins|github|gitlab)")
	persistent.Int("max-bytes", 0, "reject definitions larger than this many bytes")
	persistent.Int("max-nodes", 0, "reject graphs with more nodes than this")
	persistent.String("format", "pretty", "output format (pretty|json)")
	persistent.String("diagram", "mermaid", "diagram syntax (mermaid|dot)")
	persistent.StringArray("job", nil, "job filter (repeatable)")
	persistent.StringArray("only-step", nil, "include only matching steps")
	persistent.StringArray("skip-step", nil, "exclude matching steps")
	persistent.String("log-level", "", "log level (debug|info|warn|error)")
	persistent.String("log-file", "", "also write JSON logs to this file, rotated by size")

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newNodeCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}
