package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/auditq/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "auditq",
	Short: "Privacy-preserving question answering over audit findings",
	Long: `auditq answers natural language questions about audit findings.
Literal lookups are served straight from the record store; analytical
questions are sent to an LLM with personal data pseudonymized, and the
answer is restored before it reaches you.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
