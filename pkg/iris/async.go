package iris

import (
	"context"
	"net/http"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Future is the pending result of an AsyncClient call.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func goFuture[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn()
	}()
	return f
}

func failedFuture[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await waits for the result. If ctx ends first it returns ctx.Err(); the call keeps running
// under the context it was started with.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AsyncClient is the non-blocking IRIS API client: calls return a Future right away.
// The HTTP session is created by Connect and released by Close; calls made without a
// session fail immediately.
type AsyncClient struct {
	cfg  Config
	opts clientOptions

	mu         sync.RWMutex
	httpClient *http.Client
	ops        *operations
}

// NewAsyncClient creates a client without connecting it.
func NewAsyncClient(cfg Config, opts ...Option) (*AsyncClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &AsyncClient{cfg: cfg.withDefaults(), opts: buildOptions(opts)}, nil
}

// WithAsyncClient connects a client, runs fn and closes the client when fn returns or panics.
func WithAsyncClient(ctx context.Context, cfg Config, fn func(ctx context.Context, c *AsyncClient) error, opts ...Option) error {
	c, err := NewAsyncClient(cfg, opts...)
	if err != nil {
		return err
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

// Connect opens the HTTP session. Connecting a connected client is a no-op.
func (c *AsyncClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &APIError{Kind: KindGeneric, Message: "connect cancelled", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ops != nil {
		return nil
	}

	c.httpClient = newHTTPClient(c.cfg, c.opts.httpClient)
	c.ops = &operations{req: newExecutor(c.cfg, c.httpClient, c.opts.logger)}
	c.opts.logger.Debug("iris session opened", zap.String("bot_id", c.cfg.BotID))

	return nil
}

// Close releases the HTTP session. Calls issued afterwards fail until Connect is called again.
func (c *AsyncClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ops == nil {
		return nil
	}

	c.httpClient.CloseIdleConnections()
	c.httpClient = nil
	c.ops = nil
	c.opts.logger.Debug("iris session closed", zap.String("bot_id", c.cfg.BotID))

	return nil
}

// Connected reports whether the session is open.
func (c *AsyncClient) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ops != nil
}

func (c *AsyncClient) session() (*operations, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ops == nil {
		return nil, newAPIError(KindGeneric, "session is not initialized: call Connect first")
	}
	return c.ops, nil
}

// Balance fetches the bot balance.
func (c *AsyncClient) Balance(ctx context.Context) *Future[Balance] {
	ops, err := c.session()
	if err != nil {
		return failedFuture[Balance](err)
	}
	return goFuture(func() (Balance, error) { return ops.balance(ctx) })
}

// Transfer gives amount sweets to the recipient, see Client.Transfer.
func (c *AsyncClient) Transfer(ctx context.Context, amount decimal.Decimal, recipientID int64, comment string) *Future[bool] {
	ops, err := c.session()
	if err != nil {
		return failedFuture[bool](err)
	}
	return goFuture(func() (bool, error) { return ops.transfer(ctx, amount, recipientID, comment) })
}

// History fetches history entries matching opts.
func (c *AsyncClient) History(ctx context.Context, opts ...HistoryOption) *Future[[]HistoryEntry] {
	ops, err := c.session()
	if err != nil {
		return failedFuture[[]HistoryEntry](err)
	}
	return goFuture(func() ([]HistoryEntry, error) { return ops.history(ctx, opts...) })
}

// Transaction looks up a transaction by scanning the whole history, see Client.Transaction.
func (c *AsyncClient) Transaction(ctx context.Context, id int64) *Future[HistoryEntry] {
	ops, err := c.session()
	if err != nil {
		return failedFuture[HistoryEntry](err)
	}
	return goFuture(func() (HistoryEntry, error) { return ops.transaction(ctx, id) })
}

// sessionSource polls through whatever session is open at the time of each poll.
type sessionSource struct {
	c *AsyncClient
}

func (s sessionSource) History(ctx context.Context, opts ...HistoryOption) ([]HistoryEntry, error) {
	ops, err := s.c.session()
	if err != nil {
		return nil, err
	}
	return ops.history(ctx, opts...)
}

// Tracking is a tracker running in its own goroutine.
type Tracking struct {
	tracker *Tracker
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Track starts delivering new transactions to consumer in the background.
// Stop the returned handle (or cancel ctx) to end it; stopping never counts as a failure.
func (c *AsyncClient) Track(ctx context.Context, consumer Consumer, opts ...TrackOption) *Tracking {
	base := []TrackOption{
		WithPollInterval(c.cfg.PollInterval),
		WithReconnectDelay(c.cfg.ReconnectDelay),
		WithTrackerLogger(c.opts.logger),
	}
	tracker := NewTracker(sessionSource{c: c}, consumer, append(base, opts...)...)

	ctx, cancel := context.WithCancel(ctx)
	t := &Tracking{tracker: tracker, cancel: cancel, done: make(chan struct{})}

	if _, err := c.session(); err != nil {
		cancel()
		t.err = err
		close(t.done)
		return t
	}

	go func() {
		defer close(t.done)
		defer cancel()
		t.err = tracker.Run(ctx)
	}()

	return t
}

// Stop cancels the tracker and waits for it to exit.
func (t *Tracking) Stop() error {
	t.cancel()
	return t.Wait()
}

// Wait blocks until the tracker exits and returns its error; nil after a stop.
func (t *Tracking) Wait() error {
	<-t.done
	return t.err
}

// Done is closed when the tracker has exited.
func (t *Tracking) Done() <-chan struct{} { return t.done }

// Cursor returns the id of the last delivered transaction.
func (t *Tracking) Cursor() int64 { return t.tracker.Cursor() }

// State returns the tracker state.
func (t *Tracking) State() State { return t.tracker.State() }
