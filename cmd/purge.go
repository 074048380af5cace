package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/auditq/internal/pseudonym"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete pseudonym mappings",
	Long:  `Deletes expired pseudonym mappings, or every mapping of one session with --session.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		session, _ := cmd.Flags().GetString("session")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDatabase(ctx, cfg)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		set, err := loadRules(cfg)
		if err != nil {
			return err
		}
		detector, err := pseudonym.NewDetector(set.Pseudonym)
		if err != nil {
			return err
		}
		svc := pseudonym.NewService(pseudonym.NewSQLStore(database), detector,
			pseudonym.WithRetention(cfg.Pseudonym.Retention))

		var n int64
		if session != "" {
			n, err = svc.DeleteSession(ctx, session)
		} else {
			n, err = svc.Purge(ctx)
		}
		if err != nil {
			return fmt.Errorf("purging mappings: %w", err)
		}

		fmt.Printf("Deleted %d mapping(s).\n", n)
		return nil
	},
}

func init() {
	purgeCmd.Flags().String("session", "", "delete all mappings of this session instead of expired ones")
	rootCmd.AddCommand(purgeCmd)
}
