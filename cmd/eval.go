package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/auditq/internal/classifier"
	"github.com/ziadkadry99/auditq/internal/evaluation"
	"github.com/ziadkadry99/auditq/internal/extractor"
	"github.com/ziadkadry99/auditq/internal/llm"
	"github.com/ziadkadry99/auditq/internal/masking"
	"github.com/ziadkadry99/auditq/internal/progress"
)

var evalCmd = &cobra.Command{
	Use:   "eval [cases.yaml]",
	Short: "Score routing and filter extraction against labelled questions",
	Long: `Runs each labelled question through masking, classification and filter
extraction and reports per-case results and route accuracy. No findings are
read. With --with-model, extraction also consults the configured LLM.`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().Bool("with-model", false, "use model-assisted extraction")
	evalCmd.Flags().Bool("json", false, "output the report as JSON")
	evalCmd.Flags().Float64("min-accuracy", 0, "fail when route accuracy is below this fraction")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	withModel, _ := cmd.Flags().GetBool("with-model")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	minAccuracy, _ := cmd.Flags().GetFloat64("min-accuracy")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cases, err := evaluation.LoadCases(args[0])
	if err != nil {
		return err
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}
	set, err := loadRules(cfg)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	masker, err := masking.New(set.Masking)
	if err != nil {
		return fmt.Errorf("building masker: %w", err)
	}
	cls, err := classifier.New(set.Classifier)
	if err != nil {
		return fmt.Errorf("building classifier: %w", err)
	}

	var provider llm.Provider
	if withModel {
		chain, err := llm.FromConfig(cfg, logger)
		if err != nil {
			return fmt.Errorf("--with-model needs a provider: %w", err)
		}
		provider = chain
	}
	ext, err := extractor.New(registry, provider, logger)
	if err != nil {
		return fmt.Errorf("building extractor: %w", err)
	}

	runner := evaluation.NewRunner(masker, cls, ext, evaluation.Options{
		WithModel: withModel,
		Reporter:  progress.NewReporter("Evaluating"),
		Logger:    logger,
	})
	report, err := runner.Run(context.Background(), cases)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		report.Write(os.Stdout)
	}

	if report.RouteAccuracy() < minAccuracy {
		return fmt.Errorf("route accuracy %.1f%% is below %.1f%%", report.RouteAccuracy()*100, minAccuracy*100)
	}
	return nil
}
