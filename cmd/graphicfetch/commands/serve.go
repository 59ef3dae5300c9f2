package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-graphicfetch/pkg/graphicservice"
	"github.com/spf13/cobra"
)

var (
	servePort            string
	serveShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve cached graphics over HTTP",
	Long: `serve starts an HTTP server exposing:

  GET /graphic?url=URL[&base=BASE]  the decoded image as PNG or GIF
  GET /healthz                      liveness probe
  GET /metrics                      Prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen address, overrides server.http_port")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown deadline")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Error during cleanup.")
		}
	}()

	l, err := a.graphicLoader()
	if err != nil {
		return err
	}
	defer l.Close()

	port := a.cfg.Server.HTTPPort
	if servePort != "" {
		port = servePort
	}
	svc := graphicservice.New(l, port, a.registry, a.logger)
	if err := svc.Start(); err != nil {
		return err
	}
	a.logger.Info().Str("port", svc.GetHTTPPort()).Msg("Service started.")

	<-ctx.Done()
	a.logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer cancel()
	return svc.Shutdown(shutdownCtx)
}
