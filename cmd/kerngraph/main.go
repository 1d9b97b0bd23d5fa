// Package main provides the entry point for the kerngraph CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kerngraph/kerngraph/cmd/kerngraph/commands"
	"github.com/kerngraph/kerngraph/pkg/observability"
)

var (
	verbose    bool
	configPath string
)

func main() {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version

	providers, err := observability.Init(obsCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: initializing observability: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if shutdownErr := providers.Shutdown(context.Background()); shutdownErr != nil {
			fmt.Fprintf(os.Stderr, "Error: shutting down observability: %v\n", shutdownErr)
		}
	}()

	commands.SetLogger(providers.Logger)

	rootCmd := &cobra.Command{
		Use:   "kerngraph",
		Short: "kerngraph - a GPU kernel transformation-tree fusion tool",
		Long: `kerngraph fuses elementwise transformations onto a computation's
array and scalar arguments and renders the resulting GPU kernel source.

Commands:
  render           Fuse a computation's transformation tree and print kernel source
  vsize            Map a virtual N-D launch grid onto device-legal launch sizes
  list-transforms  List the builtin transformations available to connection specs`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(commands.NewRenderCommand(&configPath))
	rootCmd.AddCommand(commands.NewVSizeCommand(&configPath))
	rootCmd.AddCommand(commands.NewListTransformsCommand())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// version is set at build time via -ldflags.
var version = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "kerngraph %s\n", version)
		},
	}
}
