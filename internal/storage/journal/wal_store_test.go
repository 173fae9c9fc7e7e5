package journal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/iris/pkg/iris"
)

func entry(id int64) iris.HistoryEntry {
	sweets := decimal.RequireFromString("1.5")
	return iris.HistoryEntry{
		ID:                 id,
		TimestampMs:        1700000000000 + id,
		Amount:             decimal.NewFromInt(id),
		BalanceAfter:       decimal.NewFromInt(100 + id),
		CounterpartyUserID: 7,
		OperationType:      iris.OperationTake,
		Detail:             iris.NewTransactionDetail(nil, &sweets, nil),
	}
}

func TestWALStore_SaveAndRead(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, uint64(0), store.CurrentIndex())

	for id := int64(10); id <= 12; id++ {
		require.NoError(t, store.Save(entry(id)))
	}
	assert.Equal(t, uint64(3), store.CurrentIndex())

	records, err := store.EntriesAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, uint64(i+1), r.Index)
		assert.Equal(t, int64(10+i), r.Entry.ID)
		assert.True(t, r.Entry.Amount.Equal(decimal.NewFromInt(int64(10+i))))
		got, ok := r.Entry.Detail.SweetsDelta()
		require.True(t, ok)
		assert.Equal(t, "1.5", got.String())
	}

	records, err = store.EntriesAfter(2)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(12), records[0].Entry.ID)

	records, err = store.EntriesAfter(3)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestWALStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(entry(1)))
	require.NoError(t, store.Save(entry(2)))
	require.NoError(t, store.Close())

	store, err = NewWALStore(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, uint64(2), store.CurrentIndex())
	require.NoError(t, store.Save(entry(3)))

	records, err := store.EntriesAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(3), records[2].Entry.ID)
}

func TestWALStore_Validation(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	assert.Error(t, store.Save(iris.HistoryEntry{}))

	var nilStore *WALStore
	assert.Error(t, nilStore.Save(entry(1)))
	_, err = nilStore.EntriesAfter(0)
	assert.Error(t, err)
	assert.Equal(t, uint64(0), nilStore.CurrentIndex())
	assert.Error(t, nilStore.Close())
}
