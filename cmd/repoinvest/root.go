// repoinvest decides which repositories need a fresh investigation, reuses
// cached step output and assembles per-repository reports.
//
// Usage:
//
//	repoinvest decide --repo=<name> --commit=<sha> --branch=<name> [--prompts=<cfg>]
//	repoinvest scan --workspace=<file> --prompts=<cfg> [--parallel=N] [--markdown]
//	repoinvest run --workspace=<file> --prompts=<cfg> --results-dir=<dir> --out-dir=<dir>
//	repoinvest cache check|save ...
//	repoinvest versions --prompts=<cfg>
//	repoinvest assemble --prompts=<cfg> --results-dir=<dir> --repo=<name>
//	repoinvest serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"repoinvest/internal/assembly"
	"repoinvest/internal/logging"
	"repoinvest/internal/store"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel  string
	logFormat string
	db        string
	backend   string
	hardGate  string
}

var rootCmd = &cobra.Command{
	Use:   "repoinvest",
	Short: "Incremental repository investigations with cached analysis steps",
	Long: "repoinvest decides whether a repository changed since its last investigation,\n" +
		"reuses cached step output keyed by repository, step, commit and prompt version,\n" +
		"and assembles the per-repository report.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level, err := logging.ParseLevel(rootFlags.logLevel)
		if err != nil {
			return err
		}
		format, err := logging.ParseFormat(rootFlags.logFormat)
		if err != nil {
			return err
		}
		logging.Init(level, format, cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&rootFlags.db, "db", "", "Store location (default $"+store.EnvDBPath+", else "+store.DefaultDBPath+")")
	pf.StringVar(&rootFlags.backend, "backend", string(store.BackendSQLite), "Store backend: sqlite, badger or memory")
	pf.StringVar(&rootFlags.hardGate, "hard-gate", assembly.DefaultHardGate, "Section whose absence fails assembly")

	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(assembleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
