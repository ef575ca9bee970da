package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hublink/pkg/monitor"
)

func serveCmd() *cobra.Command {
	var (
		httpAddr string
		grpcAddr string
		ping     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the link monitor with metrics and health endpoints",
		Long: `Keep a hub link open: sweep per-user limits in the background, poll the
hub on every check interval and expose /metrics, /health and the gRPC
health service.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if cmd.Flags().Changed("http") {
				a.cfg.Monitor.HTTPAddress = httpAddr
			}
			if cmd.Flags().Changed("grpc") {
				a.cfg.Monitor.GRPCAddress = grpcAddr
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			a.users.Start(ctx)

			hm := monitor.NewHealthMonitor(monitor.Options{
				Metrics:       a.metrics,
				Warnings:      a.client,
				Global:        a.global,
				Users:         a.users,
				Logger:        a.logger,
				CheckInterval: a.cfg.CheckInterval(),
			})
			hm.Start()
			defer hm.Stop()

			srv, err := monitor.StartServer(a.cfg.Monitor.HTTPAddress, a.cfg.Monitor.GRPCAddress, hm, a.registry, a.logger)
			if err != nil {
				return err
			}

			if ping {
				go pingLoop(ctx, a, a.cfg.CheckInterval())
			}

			fmt.Printf("hublink monitoring %s (http %s, grpc %s)\n",
				a.client.BaseURL(), orDash(srv.HTTPAddr()), orDash(srv.GRPCAddr()))

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan

			a.logger.Info("Shutting down")
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address for /metrics and /health (overrides config)")
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "gRPC health listen address (overrides config)")
	cmd.Flags().BoolVar(&ping, "ping", true, "poll network stats on every check interval")
	return cmd
}

// pingLoop keeps traffic flowing through the client so request metrics and
// auth warnings stay current.
func pingLoop(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := a.client.GetNetworkStats(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("Hub ping failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
