package events

import (
	"sync"

	"github.com/vadiminshakov/iris/pkg/iris"
)

// Transaction is a tracked history entry tagged with the bot that received it.
type Transaction struct {
	Bot   string            `json:"bot"`
	Entry iris.HistoryEntry `json:"entry"`
}

// TransactionBroadcaster fans out transactions to all subscribers via buffered channels.
type TransactionBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan Transaction]struct{}
	buffer int
}

// NewTransactionBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewTransactionBroadcaster(buffer int) *TransactionBroadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &TransactionBroadcaster{
		subs:   make(map[chan Transaction]struct{}),
		buffer: buffer,
	}
}

// Publish sends the transaction to all subscribers, dropping if a reader is slow.
func (b *TransactionBroadcaster) Publish(tx Transaction) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- tx:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives transactions until Unsubscribe is called.
func (b *TransactionBroadcaster) Subscribe() chan Transaction {
	ch := make(chan Transaction, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *TransactionBroadcaster) Unsubscribe(ch chan Transaction) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of active subscribers.
func (b *TransactionBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
