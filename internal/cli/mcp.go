package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/signet/internal/extract"
	"github.com/mvp-joe/signet/internal/mcp"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for debug signature comparison",
		Long: `Start the Model Context Protocol (MCP) server that lets coding assistants
check whether binaries, symbol files and packages come from the same build.

The MCP server:
- Provides the compare_debug_signatures tool
- Reads inputs with the scan and cache settings from the configuration
- Communicates via stdio (standard MCP transport)

Example:
  signet mcp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root.configFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			// stdout carries the protocol, so no progress output
			engine, err := newEngine(cfg, &extract.NoOpProgressReporter{}, root.logger)
			if err != nil {
				return err
			}
			defer engine.Close()

			server, err := mcp.NewServer(engine, Version, root.logger)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			// Serve (blocks until shutdown)
			if err := server.Serve(cmd.Context()); err != nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		},
	}
}
