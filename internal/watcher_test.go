package internal

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/iris/config"
	"github.com/vadiminshakov/iris/internal/events"
	"github.com/vadiminshakov/iris/internal/storage/journal"
	"github.com/vadiminshakov/iris/pkg/iris"
)

// fakeHistory serves a fixed history, honouring offset and limit.
type fakeHistory struct {
	mu      sync.Mutex
	entries []iris.HistoryEntry
	polls   int
}

func (f *fakeHistory) polled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls > 0
}

func (f *fakeHistory) add(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, iris.HistoryEntry{
		ID:            id,
		TimestampMs:   1700000000000,
		Amount:        decimal.NewFromInt(id),
		BalanceAfter:  decimal.NewFromInt(1000 + id),
		OperationType: iris.OperationTake,
	})
}

func (f *fakeHistory) History(_ context.Context, opts ...iris.HistoryOption) ([]iris.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := url.Values{}
	for _, opt := range opts {
		opt(q)
	}

	if !q.Has("offset") {
		if len(f.entries) == 0 {
			return nil, nil
		}
		return f.entries[len(f.entries)-1:], nil
	}

	f.polls++
	offset, err := strconv.ParseInt(q.Get("offset"), 10, 64)
	if err != nil {
		return nil, err
	}
	var out []iris.HistoryEntry
	for _, e := range f.entries {
		if e.ID >= offset {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeClient struct {
	history    *fakeHistory
	balanceErr error
}

func (c *fakeClient) Balance(context.Context) (iris.Balance, error) {
	if c.balanceErr != nil {
		return iris.Balance{}, c.balanceErr
	}
	return iris.NewBalance(decimal.NewFromInt(10), decimal.Zero, nil), nil
}

func (c *fakeClient) Track(ctx context.Context, consumer iris.Consumer, opts ...iris.TrackOption) error {
	opts = append([]iris.TrackOption{
		iris.WithPollInterval(time.Millisecond),
		iris.WithReconnectDelay(time.Millisecond),
	}, opts...)
	return iris.NewTracker(c.history, consumer, opts...).Run(ctx)
}

type failingJournal struct {
	mu       sync.Mutex
	failures int
	saved    []int64
}

func (j *failingJournal) Save(entry iris.HistoryEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failures > 0 {
		j.failures--
		return errors.New("disk full")
	}
	j.saved = append(j.saved, entry.ID)
	return nil
}

func (j *failingJournal) ids() []int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]int64(nil), j.saved...)
}

func TestWatcher_JournalsAndPublishes(t *testing.T) {
	history := &fakeHistory{}
	history.add(1)

	store, err := journal.NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	broadcaster := events.NewTransactionBroadcaster(8)
	sub := broadcaster.Subscribe()

	w := NewWatcher(config.Config{Name: "main"}, &fakeClient{history: history}, store, broadcaster)
	assert.Equal(t, "main", w.Name())
	assert.NotEmpty(t, w.RunID())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, zap.NewNop()) }()

	// id 1 existed before start and must be skipped
	require.Eventually(t, history.polled, 2*time.Second, time.Millisecond)
	history.add(2)
	history.add(3)

	for _, want := range []int64{2, 3} {
		select {
		case tx := <-sub:
			assert.Equal(t, "main", tx.Bot)
			assert.Equal(t, want, tx.Entry.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("transaction %d was not published", want)
		}
	}

	cancel()
	require.NoError(t, <-done)

	records, err := store.EntriesAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[0].Entry.ID)
	assert.Equal(t, int64(3), records[1].Entry.ID)
}

func TestWatcher_StartCursor(t *testing.T) {
	history := &fakeHistory{}
	history.add(1)
	history.add(2)

	j := &failingJournal{}
	start := int64(0)
	w := NewWatcher(config.Config{Name: "main", StartCursor: &start}, &fakeClient{history: history}, j, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx, zap.NewNop()) }()

	require.Eventually(t, func() bool { return len(j.ids()) == 2 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []int64{1, 2}, j.ids())
}

func TestWatcher_RetriesFailedJournalWrite(t *testing.T) {
	history := &fakeHistory{}

	j := &failingJournal{failures: 2}
	start := int64(0)
	w := NewWatcher(config.Config{Name: "main", StartCursor: &start}, &fakeClient{history: history}, j, nil)
	history.add(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx, zap.NewNop()) }()

	require.Eventually(t, func() bool { return len(j.ids()) == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []int64{1}, j.ids())
}

func TestWatcher_StartingBalance(t *testing.T) {
	t.Run("authorization failure stops the watcher", func(t *testing.T) {
		client := &fakeClient{history: &fakeHistory{}, balanceErr: errors.Wrap(iris.ErrAuthorization, "balance")}
		w := NewWatcher(config.Config{Name: "main"}, client, nil, nil)

		err := w.Run(context.Background(), zap.NewNop())
		assert.ErrorIs(t, err, iris.ErrAuthorization)
	})

	t.Run("transient failure is logged", func(t *testing.T) {
		client := &fakeClient{history: &fakeHistory{}, balanceErr: errors.Wrap(iris.ErrRateLimit, "balance")}
		w := NewWatcher(config.Config{Name: "main"}, client, nil, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		assert.NoError(t, w.Run(ctx, zap.NewNop()))
	})
}
