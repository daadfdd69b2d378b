package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the agent and serve the control API",
	Long: `Connect to the agent and serve the local control API until interrupted.

Endpoints:
  GET  /health
  GET  /session
  POST /session/messages    {"text": "..."}
  POST /session/audio       WAV or raw PCM16LE body
  POST /session/reset
  POST /session/reconnect
  GET  /recordings          (when recordings are enabled)`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	logger := rt.Logger()

	rt.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.Run()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("control api error", zap.Error(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	if runErr != nil {
		return fmt.Errorf("serve: %w", runErr)
	}
	return nil
}
