// Command favoritesctl keeps a local copy of the favorites list in sync with
// the favorites server.
//
//	favoritesctl [flags] login user1@miuandes.cl
//	favoritesctl add Punta Arenas
//	favoritesctl          # interactive shell
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/patric-chuzhbe/favsync/internal/client/cli"
	"github.com/patric-chuzhbe/favsync/internal/client/config"
	"github.com/patric-chuzhbe/favsync/internal/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, args, err := config.New()
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		return err
	}

	runErr := app.Execute(ctx, args)
	closeErr := app.Close(context.Background())

	return errors.Join(runErr, closeErr)
}
