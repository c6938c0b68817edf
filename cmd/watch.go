// File: cmd/watch.go
package cmd

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/lancet/internal/gateway"
	"github.com/xkilldash9x/lancet/internal/observability"
	"github.com/xkilldash9x/lancet/internal/screenshot"
	"github.com/xkilldash9x/lancet/internal/state"
	"github.com/xkilldash9x/lancet/internal/ui"
)

// runWatch wires the pipeline (socket -> store -> feed -> display) and
// runs it until the display exits or ctx is canceled.
func runWatch(ctx context.Context) error {
	logger := observability.GetLogger()

	store := state.NewStore(logger)
	client := gateway.NewClient(cfg.Gateway, store, logger)
	fetcher := screenshot.NewFetcher(cfg.ScreenshotBase(), cfg.Screenshot, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := client.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		defer cancel()
		if headless {
			follower := ui.NewHeadless(store, client, cfg.UI.StreamTailLimit, os.Stdout, logger)
			err := follower.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		err := ui.Run(ctx, ui.NewModel(store, client, fetcher, cfg.UI, logger))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := group.Wait(); err != nil {
		logger.Error("Watch pipeline failed.", zap.Error(err))
		return err
	}
	logger.Info("Watch finished.")
	return nil
}
