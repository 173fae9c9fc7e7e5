package iris

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/iris/pkg/retrier"
)

const defaultInitRetries = 3

// ErrNoConsumer is returned by Run when the tracker was created without a consumer.
var ErrNoConsumer = errors.New("tracker has no consumer")

// State is a tracker state.
type State int32

const (
	StateInitializing State = iota
	StatePolling
	StateDelivering
	StateBackingOff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StatePolling:
		return "polling"
	case StateDelivering:
		return "delivering"
	case StateBackingOff:
		return "backing_off"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// HistorySource is what the tracker polls. *Client implements it.
type HistorySource interface {
	History(ctx context.Context, opts ...HistoryOption) ([]HistoryEntry, error)
}

// Consumer receives tracked transactions. It is either a ConsumerFunc or an AsyncConsumerFunc.
type Consumer interface {
	consume(ctx context.Context, entry HistoryEntry) error
}

// ConsumerFunc handles an entry and returns once it is done.
type ConsumerFunc func(entry HistoryEntry) error

func (f ConsumerFunc) consume(_ context.Context, entry HistoryEntry) (err error) {
	defer recoverConsumer(entry, &err)
	return f(entry)
}

// AsyncConsumerFunc starts handling an entry and returns a channel yielding the outcome.
// The tracker waits on the channel before moving to the next entry; a closed channel means success.
type AsyncConsumerFunc func(ctx context.Context, entry HistoryEntry) <-chan error

func (f AsyncConsumerFunc) consume(ctx context.Context, entry HistoryEntry) (err error) {
	defer recoverConsumer(entry, &err)

	done := f(ctx, entry)
	if done == nil {
		return nil
	}

	select {
	case err = <-done:
		return err
	case <-ctx.Done():
		select {
		case err = <-done:
			return err
		default:
			return ctx.Err()
		}
	}
}

func hasConsumer(c Consumer) bool {
	switch f := c.(type) {
	case nil:
		return false
	case ConsumerFunc:
		return f != nil
	case AsyncConsumerFunc:
		return f != nil
	default:
		return true
	}
}

func recoverConsumer(entry HistoryEntry, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("consumer panicked on transaction %d: %v", entry.ID, r)
	}
}

// TrackOption configures a Tracker.
type TrackOption func(*trackOptions)

type trackOptions struct {
	pollInterval   time.Duration
	reconnectDelay time.Duration
	startCursor    *int64
	initRetries    int
	logger         *zap.Logger
	observer       func(from, to State)
}

// WithPollInterval sets the pause taken when no new transactions are available.
func WithPollInterval(d time.Duration) TrackOption {
	return func(o *trackOptions) { o.pollInterval = d }
}

// WithReconnectDelay sets the pause taken after a failed poll or delivery.
func WithReconnectDelay(d time.Duration) TrackOption {
	return func(o *trackOptions) { o.reconnectDelay = d }
}

// WithStartCursor makes the tracker deliver transactions with ids above id
// instead of starting after the latest one.
func WithStartCursor(id int64) TrackOption {
	return func(o *trackOptions) { o.startCursor = &id }
}

// WithInitRetries bounds the retries of the initial cursor lookup.
func WithInitRetries(n int) TrackOption {
	return func(o *trackOptions) { o.initRetries = n }
}

// WithTrackerLogger sets the logger failures are reported to.
func WithTrackerLogger(l *zap.Logger) TrackOption {
	return func(o *trackOptions) { o.logger = l }
}

// WithStateObserver registers a hook called on every state transition.
func WithStateObserver(fn func(from, to State)) TrackOption {
	return func(o *trackOptions) { o.observer = fn }
}

// Tracker polls the history for new transactions and hands them to a consumer in id order.
// A Tracker must not be run from several goroutines at once.
type Tracker struct {
	source   HistorySource
	consumer Consumer
	opts     trackOptions

	cursor  atomic.Int64
	state   atomic.Int32
	pending []HistoryEntry
}

// NewTracker creates a tracker reading from source.
func NewTracker(source HistorySource, consumer Consumer, opts ...TrackOption) *Tracker {
	o := trackOptions{
		pollInterval:   DefaultPollInterval,
		reconnectDelay: DefaultReconnectDelay,
		initRetries:    defaultInitRetries,
		logger:         zap.L(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	return &Tracker{source: source, consumer: consumer, opts: o}
}

// Cursor returns the id of the last delivered (or skipped at start) transaction.
func (t *Tracker) Cursor() int64 { return t.cursor.Load() }

// State returns the current state.
func (t *Tracker) State() State { return State(t.state.Load()) }

// Run tracks transactions until ctx is cancelled, then returns nil.
// It returns an error only when there is no consumer or the starting cursor cannot be determined.
// Failures while polling or delivering are logged and retried after the reconnect delay.
func (t *Tracker) Run(ctx context.Context) error {
	if !hasConsumer(t.consumer) {
		t.transition(StateStopped)
		return ErrNoConsumer
	}

	t.transition(StateInitializing)
	if err := t.initialize(ctx); err != nil {
		if ctx.Err() != nil {
			return t.stop()
		}
		t.transition(StateStopped)
		return errors.Wrap(err, "failed to initialize transaction cursor")
	}

	t.opts.logger.Info("transaction tracking started", zap.Int64("cursor", t.Cursor()))
	t.transition(StatePolling)

	for {
		if ctx.Err() != nil {
			return t.stop()
		}

		var err error
		switch t.State() {
		case StatePolling:
			err = t.poll(ctx)
		case StateDelivering:
			err = t.deliver(ctx)
		case StateBackingOff:
			err = t.backOff(ctx)
		}

		if err != nil {
			if ctx.Err() != nil {
				return t.stop()
			}
			t.opts.logger.Error("transaction tracking failed",
				zap.Error(err),
				zap.Int64("cursor", t.Cursor()),
				zap.Duration("retry_in", t.opts.reconnectDelay))
			t.transition(StateBackingOff)
		}
	}
}

func (t *Tracker) initialize(ctx context.Context) error {
	t.pending = nil
	if t.opts.startCursor != nil {
		t.cursor.Store(*t.opts.startCursor)
		return nil
	}

	r := retrier.New(
		retrier.WithFixedInterval(t.opts.reconnectDelay),
		retrier.WithMaxRetries(t.opts.initRetries),
		retrier.WithRetryIf(retryable),
	)
	latest, err := retrier.DoWithData(r, ctx, func(ctx context.Context) ([]HistoryEntry, error) {
		return t.source.History(ctx, WithLimit(1))
	})
	if err != nil {
		return err
	}

	var cursor int64
	if len(latest) > 0 {
		cursor = latest[0].ID
	}
	t.cursor.Store(cursor)

	return nil
}

func (t *Tracker) poll(ctx context.Context) error {
	entries, err := t.source.History(ctx, WithOffset(t.Cursor()+1))
	if err != nil {
		return errors.Wrap(err, "poll history")
	}

	if len(entries) == 0 {
		return retrier.Sleep(ctx, t.opts.pollInterval)
	}

	t.pending = entries
	t.transition(StateDelivering)
	return nil
}

func (t *Tracker) deliver(ctx context.Context) error {
	for len(t.pending) > 0 {
		entry := t.pending[0]
		if err := t.consumer.consume(ctx, entry); err != nil {
			t.pending = nil
			return errors.Wrapf(err, "deliver transaction %d", entry.ID)
		}
		t.cursor.Store(entry.ID)
		t.pending = t.pending[1:]
	}

	t.transition(StatePolling)
	return nil
}

func (t *Tracker) backOff(ctx context.Context) error {
	if err := retrier.Sleep(ctx, t.opts.reconnectDelay); err != nil {
		return err
	}
	t.transition(StatePolling)
	return nil
}

func (t *Tracker) stop() error {
	t.pending = nil
	t.transition(StateStopped)
	t.opts.logger.Info("transaction tracking stopped", zap.Int64("cursor", t.Cursor()))
	return nil
}

func (t *Tracker) transition(to State) {
	from := State(t.state.Swap(int32(to)))
	if from != to && t.opts.observer != nil {
		t.opts.observer(from, to)
	}
}

// retryable reports whether repeating the request may help.
func retryable(err error) bool {
	switch KindOf(err) {
	case KindAuthorization, KindInvalidRequest:
		return false
	default:
		return true
	}
}
