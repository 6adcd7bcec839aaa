// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qlnotebook/cli/internal/config"
	"qlnotebook/cli/internal/engine/remote"
	"qlnotebook/cli/internal/metrics"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

var (
	serveAddr        string
	serveMetricsAddr string
	serveTLSCert     string
	serveTLSKey      string
)

// serveCmd exposes the configured local engine to remote qlnb hosts.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured engine over gRPC",
	Long: `The serve command exposes the configured PostgreSQL or SQLite engine to other
qlnb hosts ('qlnb connect --remote ADDR'). Callers must present the token in
QLNB_SERVE_TOKEN when it is set. --metrics-addr serves Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Engine == config.EngineRemote {
			return errors.New("serve needs a local engine; run 'qlnb connect' or 'qlnb connect --sqlite PATH'")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		oe, err := openEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer oe.close()

		var opts []grpc.ServerOption
		if serveTLSCert != "" || serveTLSKey != "" {
			creds, err := credentials.NewServerTLSFromFile(serveTLSCert, serveTLSKey)
			if err != nil {
				return err
			}
			opts = append(opts, grpc.Creds(creds))
		}
		g := grpc.NewServer(opts...)
		srv := &remote.Server{Engine: oe.engine, Token: os.Getenv("QLNB_SERVE_TOKEN"), Logger: logger}
		srv.Register(g)

		lis, err := net.Listen("tcp", serveAddr)
		if err != nil {
			return err
		}

		var metricsSrv *http.Server
		if serveMetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			metricsSrv = &http.Server{Addr: serveMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server stopped", "error", err)
				}
			}()
		}

		errc := make(chan error, 1)
		go func() { errc <- g.Serve(lis) }()
		pterm.Info.Printf("serving %s engine (%s) on %s\n", cfg.Engine, oe.database, lis.Addr())
		if srv.Token == "" {
			pterm.Warning.Println("QLNB_SERVE_TOKEN is not set; any caller can run queries")
		}

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		logger.Info("shutting down")
		g.GracefulStop()
		if metricsSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(sctx)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:7443", "gRPC listen address")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	serveCmd.Flags().StringVar(&serveTLSCert, "tls-cert", "", "TLS certificate file")
	serveCmd.Flags().StringVar(&serveTLSKey, "tls-key", "", "TLS key file")
}
