package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/yz4230/selfupdate/internal/server"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the update API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		injector, appCfg, err := newInjector()
		if err != nil {
			return err
		}
		defer func() { _ = injector.Shutdown() }()

		addr := appCfg.HTTP.Addr
		if serveFlags.addr != "" {
			addr = serveFlags.addr
		}
		cfg := &server.Config{Addr: addr, Token: appCfg.HTTP.Token, Logger: log.Logger, Injector: injector}
		srv := server.New(cfg)
		chSignal := make(chan os.Signal, 1)
		signal.Notify(chSignal, os.Interrupt, syscall.SIGTERM)

		chErr := make(chan error, 1)
		wg := &sync.WaitGroup{}
		wg.Go(func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				chErr <- err
			}
		})

		select {
		case sig := <-chSignal:
			cfg.Logger.Info().Str("signal", sig.String()).Msg("shutting down server...")
		case err := <-chErr:
			cfg.Logger.Error().Err(err).Msg("server error")
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			cfg.Logger.Error().Err(err).Msg("error during server shutdown")
		}

		wg.Wait()
		cfg.Logger.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveFlags.addr, "addr", "a", "", "Address to listen on (overrides http.addr)")
}
