package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	cmd := &cobra.Command{
		Use:           "docbot",
		Short:         "WhatsApp document assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running the bare binary starts the server.
		RunE: serve.RunE,
	}
	cmd.Flags().AddFlagSet(serve.Flags())
	cmd.AddCommand(serve)
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "docbot %s\n", version)
		},
	}
}
