package iris

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind classifies an API failure. Kinds never overlap: every error returned by the
// client belongs to exactly one of them.
type Kind int

const (
	// KindGeneric covers transport failures, unexpected statuses and payloads of unknown shape.
	KindGeneric Kind = iota
	// KindAuthorization means the bot credentials were rejected.
	KindAuthorization
	// KindRateLimit means the request volume was throttled.
	KindRateLimit
	// KindInvalidRequest means the server refused the request parameters.
	KindInvalidRequest
	// KindNotEnoughFunds means a transfer exceeded the bot balance.
	KindNotEnoughFunds
	// KindTransactionNotFound means a lookup by id matched no history entry.
	KindTransactionNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindRateLimit:
		return "rate limit"
	case KindInvalidRequest:
		return "invalid request"
	case KindNotEnoughFunds:
		return "not enough funds"
	case KindTransactionNotFound:
		return "transaction not found"
	default:
		return "api"
	}
}

// Sentinels for errors.Is. ErrAPI is the root: every error produced by the client matches it.
var (
	ErrAPI                 = &APIError{Kind: KindGeneric}
	ErrAuthorization       = &APIError{Kind: KindAuthorization}
	ErrRateLimit           = &APIError{Kind: KindRateLimit}
	ErrInvalidRequest      = &APIError{Kind: KindInvalidRequest}
	ErrNotEnoughFunds      = &APIError{Kind: KindNotEnoughFunds}
	ErrTransactionNotFound = &APIError{Kind: KindTransactionNotFound}
)

// APIError is the error type returned by every client operation except an insufficient
// balance transfer, which returns *NotEnoughFundsError.
type APIError struct {
	Kind       Kind
	Message    string
	StatusCode int            // HTTP status when the server answered, 0 otherwise
	Payload    map[string]any // raw payload of a rejected response, for diagnostics
	Err        error          // underlying cause, if any
}

func newAPIError(kind Kind, msg string) *APIError {
	return &APIError{Kind: kind, Message: msg}
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.Err != nil {
		return fmt.Sprintf("iris: %s: %v", msg, e.Err)
	}
	return "iris: " + msg
}

func (e *APIError) Unwrap() error { return e.Err }

// Is matches the sentinel of the same kind, and ErrAPI for any kind.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	if t == ErrAPI {
		return true
	}
	return t.Message == "" && t.Kind == e.Kind
}

// NotEnoughFundsError is returned by Transfer when the server reports an insufficient balance.
type NotEnoughFundsError struct {
	Required  decimal.Decimal
	Available *decimal.Decimal
}

func (e *NotEnoughFundsError) Error() string {
	if e.Available != nil {
		return fmt.Sprintf("iris: not enough sweets: required %s, available %s", e.Required, e.Available)
	}
	return fmt.Sprintf("iris: not enough sweets: required %s", e.Required)
}

func (e *NotEnoughFundsError) Is(target error) bool {
	return target == ErrNotEnoughFunds || target == ErrAPI
}

// KindOf reports the kind of err. Errors that did not come from the client are KindGeneric.
func KindOf(err error) Kind {
	for err != nil {
		switch e := err.(type) {
		case *APIError:
			return e.Kind
		case *NotEnoughFundsError:
			return KindNotEnoughFunds
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return KindGeneric
		}
		err = u.Unwrap()
	}
	return KindGeneric
}
