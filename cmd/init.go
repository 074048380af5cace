package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/auditq/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize auditq configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to choose LLM providers, the record store and pseudonym retention, and writes a .auditq.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
