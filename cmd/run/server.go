package run

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ILikePlayingGames/Hindenburg/config"
	"github.com/ILikePlayingGames/Hindenburg/server"
	"github.com/ILikePlayingGames/Hindenburg/server/operator"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Start server",
		Args:  cobra.NoArgs,
		RunE:  runServer,
	}
)

func runServer(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "server-cmd").Logger()

	logger.Info().Str("config", configFile).Msg("loading configuration")
	cfg, err := config.LoadServerConfig(configFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	srv := server.New(cfg)

	if !noConsole {
		console := operator.NewConsole(srv, os.Stdout, log.Logger)
		go func() {
			if err := console.Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("operator console stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Msg("starting hindenburg server")
		if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
