package main

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

	"github.com/newtron-network/newtnet/pkg/metrics"
	"github.com/newtron-network/newtnet/pkg/util"
)

func newServeCmd() *cobra.Command {
	var pollInterval time.Duration
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Drain the journal continuously",
		Long: `Serve runs drain passes until interrupted.

A pass that applied actions is followed immediately by another; an idle pass
waits for the poll interval. SIGINT or SIGTERM finishes the running action,
closes the switch sessions and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := app.settings
			if !cmd.Flags().Changed("poll-interval") {
				pollInterval = s.Daemon.PollInterval
			}
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = s.Daemon.MetricsAddr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := newEnv(ctx, s)
			if err != nil {
				return err
			}
			defer e.close()

			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					util.Infof("Serving metrics on %s", metricsAddr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						util.Errorf("metrics server: %v", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				go metrics.NewCollector(e.store, s.Daemon.CollectInterval).Run(ctx)
			}

			if err := e.processor.Run(ctx, pollInterval); err != nil {
				return fmt.Errorf("drain loop stopped: %w", err)
			}
			util.Infof("Shutting down")
			return nil
		},
	}

	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "Wait between idle passes (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for /metrics (default from config)")
	return cmd
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

func newDrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Run one drain pass",
		Long: `Drain applies every pending action once and exits.

The pass does nothing when another pass holds the drain lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := newEnv(ctx, app.settings)
			if err != nil {
				return err
			}
			defer e.close()

			worked, err := e.processor.Drain(ctx)
			if err != nil {
				return err
			}
			if worked {
				fmt.Println("Processed pending actions")
			} else {
				fmt.Println("Nothing to do")
			}
			return nil
		},
	}
}
