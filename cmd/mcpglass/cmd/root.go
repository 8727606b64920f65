// Package cmd provides the CLI commands for mcpglass.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpglass/mcpglass/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcpglass",
	Short: "mcpglass - MCP Inspector broker",
	Long: `mcpglass is a local broker for debugging Model Context Protocol (MCP)
servers. It opens sessions against upstream servers over stdio, SSE, or
streamable HTTP, relays JSON-RPC frames, and streams everything it observes
(messages, stderr, fetch traces, transport death) to inspector clients over
a single server-sent-events channel.

Quick start:
  1. Run: mcpglass start
  2. Point the inspector UI at the printed address and token.

Configuration:
  Config is loaded from mcpglass.yaml in the current directory or
  $HOME/.mcpglass/.

  Environment variables can override config values with the MCPGLASS_ prefix.
  Example: MCPGLASS_SERVER_ADDR=127.0.0.1:7000

  The MCP Inspector variables (MCP_INSPECTOR_API_TOKEN, MCP_STORAGE_DIR,
  MCP_INITIAL_*, DANGEROUSLY_OMIT_AUTH) are honored and take precedence.

Commands:
  start       Start the broker
  token       Generate an API token
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcpglass.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
