package web

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/iris/internal/events"
	"github.com/vadiminshakov/iris/internal/storage/journal"
	"github.com/vadiminshakov/iris/pkg/iris"
)

type fakeJournal struct {
	mu      sync.Mutex
	records []journal.Record
	err     error
}

func (f *fakeJournal) add(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, journal.Record{
		Index: uint64(len(f.records) + 1),
		Entry: iris.HistoryEntry{ID: id, Amount: decimal.NewFromInt(id), OperationType: iris.OperationTake},
	})
}

func (f *fakeJournal) EntriesAfter(index uint64) ([]journal.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []journal.Record
	for _, r := range f.records {
		if r.Index > index {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeBalance struct {
	balance iris.Balance
	err     error
}

func (f fakeBalance) Balance(context.Context) (iris.Balance, error) { return f.balance, f.err }

func newTestServer(t *testing.T, bots []Bot, sub transactionSubscriber) *httptest.Server {
	t.Helper()
	s := NewServer("", bots, sub, zap.NewNop())
	s.pollEvery = 10 * time.Millisecond
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestServer_Index(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp, err = http.Get(srv.URL + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Balance(t *testing.T) {
	srv := newTestServer(t, []Bot{
		{Name: "main", Balance: fakeBalance{balance: iris.NewBalance(decimal.RequireFromString("12.5"), decimal.NewFromInt(3), nil)}},
		{Name: "broken", Balance: fakeBalance{err: errors.Wrap(iris.ErrRateLimit, "balance")}},
		{Name: "none"},
	}, nil)

	resp, err := http.Get(srv.URL + "/balance")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var views []balanceView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 3)

	assert.Equal(t, balanceView{Bot: "main", Sweets: "12.5", DonateScore: "3", Available: "12.5"}, views[0])
	assert.Equal(t, "broken", views[1].Bot)
	assert.NotEmpty(t, views[1].Error)
	assert.Equal(t, "balance not available", views[2].Error)
}

func TestServer_TransactionStream(t *testing.T) {
	main := &fakeJournal{}
	main.add(1)
	other := &fakeJournal{}
	other.add(50)

	srv := newTestServer(t, []Bot{{Name: "main", Journal: main}, {Name: "other", Journal: other}}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/transactions/stream?bot=main", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() events.Transaction {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var tx events.Transaction
				require.NoError(t, json.Unmarshal([]byte(data), &tx))
				return tx
			}
		}
	}

	tx := next()
	assert.Equal(t, "main", tx.Bot)
	assert.Equal(t, int64(1), tx.Entry.ID)

	main.add(2)
	tx = next()
	assert.Equal(t, int64(2), tx.Entry.ID)
}

func TestServer_TransactionStreamLoadFailure(t *testing.T) {
	good := &fakeJournal{}
	good.add(1)
	broken := &fakeJournal{err: errors.New("corrupted segment")}

	srv := newTestServer(t, []Bot{{Name: "good", Journal: good}, {Name: "broken", Journal: broken}}, nil)

	resp, err := http.Get(srv.URL + "/transactions/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: transaction\n")
	assert.True(t, strings.HasSuffix(string(body), "event: error\ndata: failed to load transactions\n\n"), "body %q", body)
}

func TestServer_TransactionStreamUnavailable(t *testing.T) {
	srv := newTestServer(t, []Bot{{Name: "main"}}, nil)

	resp, err := http.Get(srv.URL + "/transactions/stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_TransactionWebSocket(t *testing.T) {
	broadcaster := events.NewTransactionBroadcaster(8)
	srv := newTestServer(t, nil, broadcaster)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/transactions/ws?bot=main"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return broadcaster.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	broadcaster.Publish(events.Transaction{Bot: "other", Entry: iris.HistoryEntry{ID: 1}})
	broadcaster.Publish(events.Transaction{Bot: "main", Entry: iris.HistoryEntry{ID: 2, OperationType: iris.OperationGive}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var tx events.Transaction
	require.NoError(t, conn.ReadJSON(&tx))
	assert.Equal(t, "main", tx.Bot)
	assert.Equal(t, int64(2), tx.Entry.ID)
	assert.Equal(t, iris.OperationGive, tx.Entry.OperationType)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return broadcaster.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestServer_TransactionWebSocketUnavailable(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp, err := http.Get(srv.URL + "/transactions/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_AutoTLSRequiresDomains(t *testing.T) {
	s := NewServer(":0", nil, nil, nil)
	assert.Error(t, s.StartWithAutoTLS(context.Background(), nil, ""))
}
