package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/credhub/cmd/credhub/commands"
	"github.com/systmms/credhub/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	app := commands.NewApp()

	rootCmd := &cobra.Command{
		Use:   "credhub",
		Short: "Typed, scoped credential store with hierarchical resolution",
		Long: `credhub stores typed credentials (passwords, tokens, keys,
certificates) encrypted at rest, partitions them into domains, and
resolves them through a hierarchy of folder, item and user scopes.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			app.ConfigFile = configFile
			app.Logger = logging.New(debug, noColor)
			app.NonInteractive = nonInteractive
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "credhub.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Non-interactive mode")

	rootCmd.AddCommand(
		commands.NewResolveStoreCommand(app),
		commands.NewLookupCommand(app),
		commands.NewCredentialsCommand(app),
		commands.NewDomainsCommand(app),
		commands.NewRedactCommand(app),
		commands.NewFingerprintCommand(app),
	)

	return rootCmd.Execute()
}
