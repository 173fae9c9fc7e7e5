package internal

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/iris/config"
	"github.com/vadiminshakov/iris/internal/storage/journal"
	"github.com/vadiminshakov/iris/pkg/iris"
)

// NewClient creates an API client for the configured bot.
func NewClient(conf config.Config, logger *zap.Logger) (*iris.Client, error) {
	client, err := iris.NewClient(conf.Client(), iris.WithLogger(logger.With(zap.String("bot", conf.Name))))
	if err != nil {
		return nil, errors.Wrapf(err, "create client for bot %s", conf.Name)
	}
	return client, nil
}

// Bot bundles a watcher with the resources it owns.
type Bot struct {
	Watcher *Watcher
	Journal *journal.WALStore
	client  *iris.Client
}

// Close releases the client and the journal.
func (b *Bot) Close() error {
	var err error
	if b.client != nil {
		err = b.client.Close()
	}
	if b.Journal != nil {
		if jerr := b.Journal.Close(); jerr != nil && err == nil {
			err = jerr
		}
	}
	return err
}

// NewBot opens the bot's journal and wires a watcher around a fresh client.
func NewBot(conf config.Config, publisher transactionPublisher, logger *zap.Logger) (*Bot, error) {
	client, err := NewClient(conf, logger)
	if err != nil {
		return nil, err
	}

	store, err := journal.NewWALStore(conf.JournalDir)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "open journal for bot %s", conf.Name)
	}

	return &Bot{
		Watcher: NewWatcher(conf, client, store, publisher),
		Journal: store,
		client:  client,
	}, nil
}
