package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with all subcommands attached.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags),
		createProbeCommand(),
		createDiscoverCommand(),
		createStatusCommand(),
		createVersionCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "duelr",
		Short: "Referee a series of games between two chess engines",
		Long: `Duelr launches two HTTP-controlled chess engines, relays moves between
them, referees every game and reports the running tally.

Examples:
  duelr run --engine1=engine.jar --engine2-dir=target --games=10
  duelr run --config=duelr.toml
  duelr probe --url=http://localhost:8080
  duelr discover --dir=target
  duelr status --api-url=http://127.0.0.1:8090`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML/YAML/JSON config file (optional)")
	return root
}
