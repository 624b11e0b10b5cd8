package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hbomb79/Verto/internal/api"
	"github.com/hbomb79/Verto/internal/database"
	"github.com/hbomb79/Verto/internal/event"
	"github.com/hbomb79/Verto/internal/history"
	"github.com/hbomb79/Verto/pkg/logger"
	"github.com/spf13/cobra"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST gateway and activity websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return serve(signalCtx, ctx)
		},
	}
}

func serve(parentCtx context.Context, cmdCtx *commandContext) error {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}

	events := event.New()
	converter, store, err := cmdCtx.newConverter(events)
	if err != nil {
		return err
	}

	if cfg.History.Enabled {
		db := database.New()
		if err := db.Connect(ctx, cfg.History.Database); err != nil {
			return fmt.Errorf("failed to connect to history database: %w", err)
		}
		defer db.Close()

		converter.WithHistory(db, history.NewStore())
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := store.Watch(ctx); err != nil {
			log.Emit(logger.WARNING, "Preferences will not be reloaded automatically: %v\n", err)
		}
	}()

	err = api.NewRestGateway(&cfg.Rest, converter, events).Run(ctx)
	cancel()

	wg.Wait()
	return err
}
