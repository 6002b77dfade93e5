package main

import (
	"context"

	"github.com/spf13/cobra"

	"repoinvest/internal/logging"
	mcpserver "repoinvest/internal/mcp"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing investigation decisions,
the step cache, prompt version extraction and report assembly as tools.

The server monitors for parent process death and shuts down when its client
goes away.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	srv := mcpserver.NewServer(newEngine(st), newAssembler())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mcpserver.WatchStdin(ctx, nil, cancel)

	logging.New("mcp").Info("starting repoinvest MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
