package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/auditq/internal/pseudonym"
	"github.com/ziadkadry99/auditq/internal/server"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the auditq HTTP API",
	Long:  `Starts the auditq HTTP server with the query API, WebSocket chat, route audit trail and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		// Graceful shutdown.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = serverPort
		}

		srv := server.New(server.Config{
			Port:           port,
			AllowAll:       cfg.Server.AllowAll,
			RequestTimeout: cfg.Timeouts.RecordStore + 3*cfg.Timeouts.LLM,
		}, server.Deps{
			Pipeline: a.router,
			Findings: a.findings,
			Sessions: a.pseudonyms,
			Registry: a.registry,
			Audit:    a.audit,
			Logger:   logger,
		})

		janitor := pseudonym.NewJanitor(a.pseudonyms, cfg.Pseudonym.PurgeInterval, logger)
		go janitor.Run(ctx)

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("shutdown", zap.Error(err))
			}
		}()

		fmt.Fprintf(os.Stderr, "auditq server v%s starting on port %d\n", Version, port)
		fmt.Fprintf(os.Stderr, "  Store: %s\n", cfg.Database.Driver)
		fmt.Fprintf(os.Stderr, "  Extraction: %s\n", cfg.Extraction)

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Port to listen on (overrides server.port)")
	rootCmd.AddCommand(serverCmd)
}
