package iris

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// requester performs a single authenticated GET and returns the raw JSON payload.
type requester interface {
	get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error)
}

type executor struct {
	baseURL    string
	botID      string
	token      string
	userAgent  string
	httpClient *http.Client
	logger     *zap.Logger
}

func newExecutor(cfg Config, httpClient *http.Client, logger *zap.Logger) *executor {
	return &executor{
		baseURL:    cfg.BaseURL,
		botID:      cfg.BotID,
		token:      cfg.Token,
		userAgent:  "iris-go/" + cfg.BotID,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (e *executor) endpointURL(endpoint string) string {
	return fmt.Sprintf("%s/%s_%s/%s", e.baseURL, e.botID, e.token, endpoint)
}

func (e *executor) get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	target := e.endpointURL(endpoint)
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &APIError{Kind: KindGeneric, Message: "failed to create request", Err: stripURL(err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &APIError{Kind: KindGeneric, Message: "request cancelled", Err: ctxErr}
		}
		return nil, &APIError{Kind: KindGeneric, Message: "network error", Err: stripURL(err)}
	}
	defer resp.Body.Close()

	e.logger.Debug("iris request done",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode))

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, &APIError{Kind: KindAuthorization, Message: "invalid credentials", StatusCode: resp.StatusCode}
	case http.StatusTooManyRequests:
		return nil, &APIError{Kind: KindRateLimit, Message: "rate limit exceeded", StatusCode: resp.StatusCode}
	case http.StatusBadRequest:
		return nil, &APIError{Kind: KindInvalidRequest, Message: "invalid request parameters", StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindGeneric, Message: "failed to read response body", StatusCode: resp.StatusCode, Err: stripURL(err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Kind:       KindGeneric,
			Message:    fmt.Sprintf("%s returned status %d", endpoint, resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	if !json.Valid(body) {
		return nil, &APIError{
			Kind:       KindGeneric,
			Message:    fmt.Sprintf("%s returned a non-JSON body", endpoint),
			StatusCode: resp.StatusCode,
		}
	}

	return body, nil
}

// stripURL drops the request URL from transport errors, it embeds the secret token.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return errors.Wrap(urlErr.Err, urlErr.Op)
	}
	return err
}

func decode(endpoint string, raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Kind: KindGeneric, Message: "failed to decode " + endpoint + " response", Err: err}
	}
	return nil
}
