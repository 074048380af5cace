package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/auditq/internal/router"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about audit findings",
	Long:  `Classifies the question, lists matching findings and, for analytical questions, asks the configured LLM with personal data pseudonymized.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().String("session", "", "session id; pseudonyms stay stable across questions in a session")
	askCmd.Flags().Bool("json", false, "output the full result as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	session, _ := cmd.Flags().GetString("session")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.router.Handle(ctx, router.Request{
		Query:     strings.Join(args, " "),
		SessionID: session,
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	printResult(res)
	return nil
}

func printResult(res *router.Result) {
	fmt.Printf("Route: %s (confidence %.2f)\n", res.RouteType, res.Decision.Confidence)
	for _, n := range res.Notices {
		fmt.Printf("Notice: %s\n", n.Message)
	}
	if res.Listing != "" {
		fmt.Printf("\n%s\n", res.Listing)
	}
	if res.Narrative != "" {
		fmt.Printf("\n%s\n", res.Narrative)
	}
}
