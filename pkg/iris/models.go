package iris

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// OperationType is the kind of a history entry as reported by the server.
type OperationType string

const (
	OperationGive OperationType = "give"
	OperationTake OperationType = "take"
)

// Balance is the bot wallet state. It is immutable; build it with NewBalance.
type Balance struct {
	sweets      decimal.Decimal
	donateScore decimal.Decimal
	available   decimal.Decimal
}

// NewBalance builds a Balance. A nil available means the whole sweets balance is available.
func NewBalance(sweets, donateScore decimal.Decimal, available *decimal.Decimal) Balance {
	b := Balance{sweets: sweets, donateScore: donateScore, available: sweets}
	if available != nil {
		b.available = *available
	}
	return b
}

func (b Balance) Sweets() decimal.Decimal      { return b.sweets }
func (b Balance) DonateScore() decimal.Decimal { return b.donateScore }
func (b Balance) Available() decimal.Decimal   { return b.available }

func (b Balance) MarshalJSON() ([]byte, error) {
	return json.Marshal(balancePayload{Sweets: &b.sweets, DonateScore: &b.donateScore, Available: &b.available})
}

// UnmarshalJSON decodes the wire form; a missing available defaults to sweets.
func (b *Balance) UnmarshalJSON(data []byte) error {
	var p balancePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var sweets, donateScore decimal.Decimal
	if p.Sweets != nil {
		sweets = *p.Sweets
	}
	if p.DonateScore != nil {
		donateScore = *p.DonateScore
	}
	*b = NewBalance(sweets, donateScore, p.Available)
	return nil
}

// TransactionDetail holds the sparse per-operation details of a history entry.
// Only the fields relevant to the operation type are populated by the server.
type TransactionDetail struct {
	donateScore    int64
	hasDonateScore bool
	sweets         decimal.Decimal
	hasSweets      bool
	commission     decimal.Decimal
	hasCommission  bool
}

// NewTransactionDetail builds a detail record, nil arguments stay unset.
func NewTransactionDetail(donateScoreDelta *int64, sweetsDelta, commission *decimal.Decimal) TransactionDetail {
	var d TransactionDetail
	if donateScoreDelta != nil {
		d.donateScore, d.hasDonateScore = *donateScoreDelta, true
	}
	if sweetsDelta != nil {
		d.sweets, d.hasSweets = *sweetsDelta, true
	}
	if commission != nil {
		d.commission, d.hasCommission = *commission, true
	}
	return d
}

func (d TransactionDetail) DonateScoreDelta() (int64, bool)      { return d.donateScore, d.hasDonateScore }
func (d TransactionDetail) SweetsDelta() (decimal.Decimal, bool) { return d.sweets, d.hasSweets }
func (d TransactionDetail) Commission() (decimal.Decimal, bool)  { return d.commission, d.hasCommission }
func (d TransactionDetail) IsEmpty() bool                        { return !d.hasDonateScore && !d.hasSweets && !d.hasCommission }

type transactionDetailJSON struct {
	DonateScore *int64           `json:"donateScore,omitempty"`
	Sweets      *decimal.Decimal `json:"sweets,omitempty"`
	Commission  *decimal.Decimal `json:"commission,omitempty"`
}

func (d TransactionDetail) MarshalJSON() ([]byte, error) {
	var w transactionDetailJSON
	if d.hasDonateScore {
		w.DonateScore = &d.donateScore
	}
	if d.hasSweets {
		w.Sweets = &d.sweets
	}
	if d.hasCommission {
		w.Commission = &d.commission
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts an object; null, an empty array or any other non-object shape
// decodes as an empty detail.
func (d *TransactionDetail) UnmarshalJSON(data []byte) error {
	var w transactionDetailJSON
	if err := json.Unmarshal(data, &w); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "" {
			*d = TransactionDetail{}
			return nil
		}
		return err
	}
	*d = NewTransactionDetail(w.DonateScore, w.Sweets, w.Commission)
	return nil
}

// HistoryEntry is one transaction of the bot history. Ids are assigned by the server in
// creation order, so they grow with the history offset.
type HistoryEntry struct {
	ID                 int64             `json:"id"`
	TimestampMs        int64             `json:"date"`
	Amount             decimal.Decimal   `json:"amount"` // negative for outbound transfers
	BalanceAfter       decimal.Decimal   `json:"balance"`
	CounterpartyUserID int64             `json:"to_user_id"`
	OperationType      OperationType     `json:"type"`
	Detail             TransactionDetail `json:"info"`
}

// Time returns the wall-clock time of the transaction.
func (e HistoryEntry) Time() time.Time {
	return time.UnixMilli(e.TimestampMs)
}

// Outbound reports whether the entry moved sweets away from the bot.
func (e HistoryEntry) Outbound() bool {
	return e.Amount.IsNegative()
}
