package internal

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/iris/config"
	"github.com/vadiminshakov/iris/internal/events"
	"github.com/vadiminshakov/iris/pkg/iris"
)

type BotClient interface {
	Balance(ctx context.Context) (iris.Balance, error)
	Track(ctx context.Context, consumer iris.Consumer, opts ...iris.TrackOption) error
}

type transactionJournal interface {
	Save(entry iris.HistoryEntry) error
}

type transactionPublisher interface {
	Publish(tx events.Transaction)
}

// Watcher tracks incoming transactions of a single bot
type Watcher struct {
	Config    config.Config
	client    BotClient
	journal   transactionJournal
	publisher transactionPublisher
	runID     string
}

// NewWatcher creates a watcher; journal and publisher are optional
func NewWatcher(conf config.Config, client BotClient, journal transactionJournal, publisher transactionPublisher) *Watcher {
	return &Watcher{
		Config:    conf,
		client:    client,
		journal:   journal,
		publisher: publisher,
		runID:     uuid.NewString(),
	}
}

// Name returns the configured bot name.
func (w *Watcher) Name() string { return w.Config.Name }

// RunID identifies this watcher run in logs.
func (w *Watcher) RunID() string { return w.runID }

// Balance fetches the bot's current balance.
func (w *Watcher) Balance(ctx context.Context) (iris.Balance, error) {
	return w.client.Balance(ctx)
}

// Run tracks transactions until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, logger *zap.Logger) error {
	logger = logger.With(zap.String("bot", w.Config.Name), zap.String("run_id", w.runID))

	if balance, err := w.client.Balance(ctx); err != nil {
		if errors.Is(err, iris.ErrAuthorization) {
			return errors.Wrap(err, "failed to fetch starting balance")
		}
		logger.Warn("Failed to fetch starting balance", zap.Error(err))
	} else {
		logger.Info("Starting transaction watcher",
			zap.String("sweets", balance.Sweets().String()),
			zap.String("donate_score", balance.DonateScore().String()),
			zap.Duration("poll_interval", w.Config.PollInterval))
	}

	opts := []iris.TrackOption{
		iris.WithTrackerLogger(logger),
		iris.WithStateObserver(func(from, to iris.State) {
			logger.Debug("Tracker state changed", zap.Stringer("from", from), zap.Stringer("to", to))
		}),
	}
	if w.Config.StartCursor != nil {
		opts = append(opts, iris.WithStartCursor(*w.Config.StartCursor))
	}

	if err := w.client.Track(ctx, iris.ConsumerFunc(func(entry iris.HistoryEntry) error {
		return w.handle(logger, entry)
	}), opts...); err != nil {
		return errors.Wrap(err, "transaction tracking failed")
	}

	logger.Info("Context done, stopping transaction watcher")
	return nil
}

func (w *Watcher) handle(logger *zap.Logger, entry iris.HistoryEntry) error {
	if w.journal != nil {
		if err := w.journal.Save(entry); err != nil {
			return errors.Wrapf(err, "journal transaction %d", entry.ID)
		}
	}
	if w.publisher != nil {
		w.publisher.Publish(events.Transaction{Bot: w.Config.Name, Entry: entry})
	}

	fields := []zap.Field{
		zap.Int64("id", entry.ID),
		zap.String("type", string(entry.OperationType)),
		zap.String("amount", entry.Amount.String()),
		zap.String("balance", entry.BalanceAfter.String()),
		zap.Int64("counterparty", entry.CounterpartyUserID),
		zap.Time("date", entry.Time()),
	}
	if commission, ok := entry.Detail.Commission(); ok {
		fields = append(fields, zap.String("commission", commission.String()))
	}
	logger.Info("Transaction received", fields...)

	return nil
}
