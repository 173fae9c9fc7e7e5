package iris

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	endpointBalance = "balance"
	endpointGive    = "give_sweets"
	endpointHistory = "history"

	resultOK = "ok"

	// insufficient balance is reported as code 0 with this phrase in the description
	notEnoughFundsCode   = 0
	notEnoughFundsPhrase = "Not enough sweets"
)

// operations maps raw payloads of the remote API to typed results.
// Both runtime variants share it.
type operations struct {
	req requester
}

type balancePayload struct {
	Sweets      *decimal.Decimal `json:"sweets"`
	DonateScore *decimal.Decimal `json:"donate_score"`
	Available   *decimal.Decimal `json:"available"`
}

func (o operations) balance(ctx context.Context) (Balance, error) {
	raw, err := o.req.get(ctx, endpointBalance, nil)
	if err != nil {
		return Balance{}, err
	}

	var p balancePayload
	if err := decode(endpointBalance, raw, &p); err != nil {
		return Balance{}, err
	}
	if p.Sweets == nil || p.DonateScore == nil {
		return Balance{}, newAPIError(KindGeneric, "balance response lacks sweets or donate_score")
	}

	return NewBalance(*p.Sweets, *p.DonateScore, p.Available), nil
}

type transferPayload struct {
	Result string          `json:"result"`
	Error  json.RawMessage `json:"error"`
}

type errorPayload struct {
	Code        *int   `json:"code"`
	Description string `json:"description"`
}

func (o operations) transfer(ctx context.Context, amount decimal.Decimal, recipientID int64, comment string) (bool, error) {
	params := url.Values{}
	params.Set("sweets", amount.String())
	params.Set("user_id", strconv.FormatInt(recipientID, 10))
	params.Set("comment", comment)

	raw, err := o.req.get(ctx, endpointGive, params)
	if err != nil {
		return false, err
	}

	var p transferPayload
	if err := json.Unmarshal(raw, &p); err == nil && p.Result == resultOK {
		return true, nil
	}

	if len(p.Error) > 0 {
		var ep errorPayload
		if err := json.Unmarshal(p.Error, &ep); err == nil &&
			ep.Code != nil && *ep.Code == notEnoughFundsCode &&
			strings.Contains(ep.Description, notEnoughFundsPhrase) {
			return false, &NotEnoughFundsError{Required: amount}
		}
	}

	apiErr := newAPIError(KindGeneric, fmt.Sprintf("transfer failed: %s", raw))
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err == nil {
		apiErr.Payload = payload
	}
	return false, apiErr
}

// HistoryOption narrows a history query. Unset options are not sent.
type HistoryOption func(url.Values)

// WithOffset returns entries starting at the given history offset.
func WithOffset(offset int64) HistoryOption {
	return func(v url.Values) { v.Set("offset", strconv.FormatInt(offset, 10)) }
}

// WithLimit caps the number of returned entries.
func WithLimit(limit int) HistoryOption {
	return func(v url.Values) { v.Set("limit", strconv.Itoa(limit)) }
}

// WithUserID keeps entries with the given counterparty.
func WithUserID(userID int64) HistoryOption {
	return func(v url.Values) { v.Set("user_id", strconv.FormatInt(userID, 10)) }
}

// WithType keeps entries of the given operation type.
func WithType(t OperationType) HistoryOption {
	return func(v url.Values) { v.Set("type", string(t)) }
}

func (o operations) history(ctx context.Context, opts ...HistoryOption) ([]HistoryEntry, error) {
	params := url.Values{}
	for _, opt := range opts {
		opt(params)
	}

	raw, err := o.req.get(ctx, endpointHistory, params)
	if err != nil {
		return nil, err
	}

	var entries []HistoryEntry
	if err := decode(endpointHistory, raw, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}

	return entries, nil
}

// transaction scans the full unfiltered history, so it costs one history download per call.
func (o operations) transaction(ctx context.Context, id int64) (HistoryEntry, error) {
	entries, err := o.history(ctx)
	if err != nil {
		return HistoryEntry{}, err
	}

	for _, entry := range entries {
		if entry.ID == id {
			return entry, nil
		}
	}

	return HistoryEntry{}, newAPIError(KindTransactionNotFound, fmt.Sprintf("transaction %d not found", id))
}
