package main

import (
	"github.com/spf13/cobra"
)

const serverName = "mcp-server-qdrant"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           serverName,
		Short:         "MCP server that stores and finds information in a vector database",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
	root.PersistentFlags().StringP("config", "c", "", "path to an optional config file; the environment wins over it")

	root.AddCommand(
		newServeCmd(),
		newCacheCmd(),
		newVersionCmd(),
	)
	return root
}
