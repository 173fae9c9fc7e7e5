package iris

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultBaseURL        = "https://iris-tg.ru/api"
	DefaultTimeout        = 10 * time.Second
	DefaultReconnectDelay = 5 * time.Second
	DefaultPollInterval   = 1 * time.Second
)

// Config configures a client. Zero-valued optional fields take the documented defaults.
type Config struct {
	BotID string // required
	Token string // required

	BaseURL        string        // DefaultBaseURL
	Timeout        time.Duration // DefaultTimeout, applies to every request
	ReconnectDelay time.Duration // DefaultReconnectDelay, tracker pause after a failure
	PollInterval   time.Duration // DefaultPollInterval, tracker pause when nothing is new
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

func (c Config) validate() error {
	if c.BotID == "" {
		return errors.New("bot id is required")
	}
	if c.Token == "" {
		return errors.New("token is required")
	}
	return nil
}
