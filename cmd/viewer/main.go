package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Broadcast/internal/adapters/rtc"
	"github.com/dkeye/Broadcast/internal/adapters/surface"
	"github.com/dkeye/Broadcast/internal/adapters/wsclient"
	"github.com/dkeye/Broadcast/internal/app/viewer"
	"github.com/dkeye/Broadcast/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fs := config.Flags("viewer")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("bad flags")
	}
	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	opts := rtc.OptionsFromConfig(cfg.WebRTC)
	opts.LoggerFactory = rtc.NewLoggerFactory(log.Logger)
	transport, err := rtc.NewTransport(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc transport")
	}

	channel, err := wsclient.Dial(ctx, cfg.Signal.URL, wsclient.Options{PingPeriod: cfg.PingPeriod})
	if err != nil {
		log.Fatal().Err(err).Msg("signaling connect")
	}

	surf := surface.NewViewer()
	ctl := viewer.New(transport, channel, surf, cfg.Room())
	channel.OnMessage(ctl.Handle)
	channel.OnClose(ctl.OnChannelClosed)
	channel.Start()

	if err := ctl.Start(ctx); err != nil {
		log.Error().Err(err).Msg("viewer did not start")
		os.Exit(1)
	}
	log.Info().Str("room", string(cfg.Room())).Msg("watching")

	select {
	case <-ctx.Done():
		log.Info().Msg("stopping viewer")
	case err := <-surf.Errors():
		log.Error().Err(err).Msg("viewer ended")
	}
	ctl.Stop()
	log.Info().Int64("packets", surf.Packets()).Msg("viewer exited")
}
