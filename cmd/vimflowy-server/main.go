package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/vimflowy/vimflowy/internal/config"
	"github.com/vimflowy/vimflowy/internal/server"
	"github.com/vimflowy/vimflowy/internal/syncserver"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(getEnv("VIMFLOWY_LOG_LEVEL", "info")); err == nil {
		logger.SetLevel(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdout, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
}

// run resolves args and serves until ctx is done. Asking for help and
// missing build output both end the process cleanly without a server.
func run(ctx context.Context, args []string, stdout io.Writer, logger *logrus.Logger) error {
	cfg, err := config.Resolve(args)
	if err != nil {
		var missing *config.MissingAssetsError
		switch {
		case errors.Is(err, config.ErrHelp):
			fmt.Fprint(stdout, config.Usage())
			return nil
		case errors.As(err, &missing):
			logger.Info(missing.Error())
			return nil
		default:
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	if t, ok := cfg.Transport.(config.TLSTerminated); ok {
		logger.WithFields(logrus.Fields{
			"ssl_key":  t.KeyFile,
			"ssl_cert": t.CertFile,
		}).Info("TLS enabled")
	}

	srv, err := server.New(cfg, syncserver.NewFactory(logger), logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
