package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/c360studio/bpmnforge/llm"
	"github.com/c360studio/bpmnforge/pipeline"
	"github.com/c360studio/bpmnforge/service"
)

func serveCmd(configPath *string) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve generation requests over NATS",
		Long: `serve connects to NATS and answers JSON generation requests on the
configured subject (default bpmn.generate). Prometheus metrics are
exposed on the metrics address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := llm.NewClient(cfg.Endpoints())
			if err != nil {
				return err
			}

			conn, err := nats.Connect(cfg.NATS.URL,
				nats.Name(appName),
				nats.MaxReconnects(-1),
				nats.ReconnectWait(time.Second))
			if err != nil {
				return fmt.Errorf("connect to NATS at %s: %w", cfg.NATS.URL, err)
			}
			defer conn.Close()

			registry := prometheus.NewRegistry()
			controller := pipeline.NewController(
				pipeline.WithMetrics(pipeline.NewMetrics(registry)))

			svc, err := service.New(conn, cfg.NATS.Subject, client,
				service.Defaults{
					QualityTarget: cfg.Pipeline.QualityTarget,
					MaxIterations: cfg.Pipeline.MaxIterations,
					TimeBudget:    cfg.Pipeline.TimeBudget,
				},
				service.WithController(controller))
			if err != nil {
				return err
			}

			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer func() {
				if err := svc.Stop(); err != nil {
					slog.Warn("Failed to drain subscription", "error", err)
				}
			}()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, "ok")
			})

			server := &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("Metrics server failed", "error", err)
				}
			}()

			slog.Info("Serving",
				"subject", cfg.NATS.Subject,
				"nats", cfg.NATS.URL,
				"metrics", metricsAddr)

			<-ctx.Done()
			return server.Close()
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Listen address for /metrics and /healthz")

	return cmd
}
