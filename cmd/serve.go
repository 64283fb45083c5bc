package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/relgraph/internal/api"
	"github.com/sells-group/relgraph/internal/enrich"
)

var (
	servePort     int
	serveSchedule string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API, optionally running scheduled enrichment",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := initSearch(ctx, env); err != nil {
			return err
		}

		schedule := serveSchedule
		if schedule == "" {
			schedule = cfg.Enrich.Schedule
		}
		if schedule != "" {
			if err := initEnrichment(env); err != nil {
				return err
			}
			c, err := startScheduler(ctx, schedule, env.Orchestrator)
			if err != nil {
				return err
			}
			defer func() { <-c.Stop().Done() }()
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.NewRouter(env.Search, env.Store, api.Options{AllowedOrigins: cfg.Server.AllowedOrigins}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.String("schedule", schedule))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// runner is the part of the orchestrator the scheduler drives.
type runner interface {
	Run(ctx context.Context, opts enrich.Options) (*enrich.RunSummary, error)
}

// startScheduler runs incremental enrichment on a cron schedule. Overlapping
// ticks are skipped.
func startScheduler(ctx context.Context, spec string, r runner) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		summary, err := r.Run(ctx, enrich.Options{Mode: enrich.ModeIncremental})
		if err != nil {
			zap.L().Error("scheduled enrichment failed", zap.Error(err))
			return
		}
		zap.L().Info("scheduled enrichment complete",
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
		)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "invalid schedule %q", spec)
	}
	c.Start()
	return c, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveSchedule, "schedule", "", "cron expression for incremental enrichment (default from config)")
	rootCmd.AddCommand(serveCmd)
}
