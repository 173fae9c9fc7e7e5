package iris

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Option configures a Client or an AsyncClient.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// WithHTTPClient makes the client use hc. Its Timeout is replaced by Config.Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithLogger sets the logger. The default is zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

func buildOptions(opts []Option) clientOptions {
	o := clientOptions{logger: zap.L()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

func newHTTPClient(cfg Config, base *http.Client) *http.Client {
	if base == nil {
		return &http.Client{Timeout: cfg.Timeout}
	}
	hc := *base
	hc.Timeout = cfg.Timeout
	return &hc
}

// Client is the blocking IRIS API client. Every call returns when the request is done.
// A Client is safe for concurrent use; a Tracker started by Track is not shared.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	ops        operations
}

// NewClient creates a client and its HTTP session.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	o := buildOptions(opts)

	hc := newHTTPClient(cfg, o.httpClient)
	return &Client{
		cfg:        cfg,
		httpClient: hc,
		logger:     o.logger,
		ops:        operations{req: newExecutor(cfg, hc, o.logger)},
	}, nil
}

// Config returns the effective configuration with defaults applied.
func (c *Client) Config() Config { return c.cfg }

// Balance returns the bot balance.
func (c *Client) Balance(ctx context.Context) (Balance, error) {
	return c.ops.balance(ctx)
}

// Transfer gives amount sweets to the recipient. It returns true only when the server
// confirmed the transfer; otherwise the error says why (*NotEnoughFundsError for an
// insufficient balance).
func (c *Client) Transfer(ctx context.Context, amount decimal.Decimal, recipientID int64, comment string) (bool, error) {
	return c.ops.transfer(ctx, amount, recipientID, comment)
}

// History returns history entries matching opts.
func (c *Client) History(ctx context.Context, opts ...HistoryOption) ([]HistoryEntry, error) {
	return c.ops.history(ctx, opts...)
}

// Transaction looks up a transaction by id. It downloads the whole unfiltered history on every
// call and assumes the server returns it in one page.
func (c *Client) Transaction(ctx context.Context, id int64) (HistoryEntry, error) {
	return c.ops.transaction(ctx, id)
}

// Track delivers new transactions to consumer until ctx is cancelled, blocking the caller.
// Poll interval, reconnect delay and logger default to the client configuration.
func (c *Client) Track(ctx context.Context, consumer Consumer, opts ...TrackOption) error {
	return c.NewTracker(consumer, opts...).Run(ctx)
}

// NewTracker creates a tracker over this client without starting it.
func (c *Client) NewTracker(consumer Consumer, opts ...TrackOption) *Tracker {
	base := []TrackOption{
		WithPollInterval(c.cfg.PollInterval),
		WithReconnectDelay(c.cfg.ReconnectDelay),
		WithTrackerLogger(c.logger),
	}
	return NewTracker(c, consumer, append(base, opts...)...)
}

// Close releases idle connections of the session.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
