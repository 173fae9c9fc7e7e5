package internal

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/iris/config"
	"github.com/vadiminshakov/iris/internal/events"
	"github.com/vadiminshakov/iris/internal/web"
)

// Run starts a watcher per configured bot and the dashboard, if enabled,
// and blocks until ctx is cancelled or one of them fails.
func Run(ctx context.Context, app config.App, logger *zap.Logger) error {
	broadcaster := events.NewTransactionBroadcaster(256)

	bots := make([]*Bot, 0, len(app.Bots))
	defer func() {
		for _, b := range bots {
			if err := b.Close(); err != nil {
				logger.Warn("Failed to close bot", zap.String("bot", b.Watcher.Name()), zap.Error(err))
			}
		}
	}()

	for _, conf := range app.Bots {
		b, err := NewBot(conf, broadcaster, logger)
		if err != nil {
			return err
		}
		bots = append(bots, b)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bots {
		g.Go(func() error {
			return b.Watcher.Run(gctx, logger)
		})
	}

	if app.Web.Addr != "" {
		sources := make([]web.Bot, 0, len(bots))
		for _, b := range bots {
			sources = append(sources, web.Bot{Name: b.Watcher.Name(), Journal: b.Journal, Balance: b.Watcher})
		}
		srv := web.NewServer(app.Web.Addr, sources, broadcaster, logger)

		g.Go(func() error {
			var err error
			if len(app.Web.Domains) > 0 {
				logger.Info("Starting dashboard with automatic TLS", zap.String("addr", app.Web.Addr), zap.Strings("domains", app.Web.Domains))
				err = srv.StartWithAutoTLS(gctx, app.Web.Domains, app.Web.CertCacheDir)
			} else {
				logger.Info("Starting dashboard", zap.String("addr", app.Web.Addr))
				err = srv.Start(gctx)
			}
			return errors.Wrap(err, "dashboard")
		})
	}

	return g.Wait()
}
