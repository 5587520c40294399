// Command overtoned is the Overtone daemon: it aggregates now-playing
// state from the configured sources and serves the surface pages and
// the broadcast bus over HTTP/WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"overtone/internal/config"
	"overtone/internal/logging"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the config file")
	writeConfig := flag.Bool("write-config", false, "write a default config file and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.WriteDefault(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("wrote", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Supply(cfg, log),
		providers(),
		fx.Invoke(registerHooks),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Error("daemon failed to start", zap.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("shutting down")

	if err := app.Stop(context.Background()); err != nil {
		log.Error("shutdown failed", zap.Error(err))
		os.Exit(1)
	}
}
