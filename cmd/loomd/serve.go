package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/loomchat/realtime/config"
	"github.com/loomchat/realtime/server"
	"github.com/loomchat/realtime/src/bridge"
	"github.com/loomchat/realtime/src/bus"
	"github.com/loomchat/realtime/src/event"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the realtime delivery server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides LOOM_LISTEN_ADDR)")
	return cmd
}

func serve(cfg *config.Config) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	b := bus.New(logger)
	go b.Run()
	defer b.Stop()

	br := bridge.New(cfg.Bridge, cfg.Redis, logger)
	forwardToBus(br, b, logger)
	br.OnError(func(ee bridge.ErrorEvent) {
		if event.IsCode(ee.Err, event.CodeParseError) {
			logger.Error().Err(ee.Err).Str("topic", ee.Topic).Msg("dropped unparseable notification")
		}
	})

	// A dead notification source at boot is not fatal: delivery of
	// client-initiated events still works, and the bridge keeps retrying
	// once it has connected at least one time.
	if err := br.Start(); err != nil {
		logger.Warn().Err(err).Msg("notification bridge unavailable, serving without store events")
	}
	defer br.Stop()

	srv := server.New(cfg, b, br, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(cfg.ListenAddr) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		return srv.Shutdown()
	}
}

// forwardToBus publishes every decoded store notification onto the bus, the
// bridge's normal downstream.
func forwardToBus(br *bridge.Bridge, b *bus.Bus, logger zerolog.Logger) {
	for _, topic := range bridge.Topics() {
		br.OnEvent(topic, func(ev event.ChannelEvent) {
			if err := b.Emit(ev); err != nil {
				logger.Error().Err(err).Str("type", string(ev.Type)).Msg("bus emit failed")
			}
		})
	}
}
