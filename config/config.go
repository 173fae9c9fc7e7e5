package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/iris/pkg/iris"
)

const (
	// TokenEnv is read when a bot has no token in the config.
	TokenEnv = "IRIS_TOKEN"

	DefaultJournalDir = "./wal/journal"
)

// Config describes one bot to watch.
type Config struct {
	Name           string
	BotID          string
	Token          string
	BaseURL        string
	Timeout        time.Duration
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	StartCursor    *int64
	JournalDir     string
}

// Client returns the library configuration for the bot.
func (c Config) Client() iris.Config {
	return iris.Config{
		BotID:          c.BotID,
		Token:          c.Token,
		BaseURL:        c.BaseURL,
		Timeout:        c.Timeout,
		PollInterval:   c.PollInterval,
		ReconnectDelay: c.ReconnectDelay,
	}
}

// WebConfig configures the dashboard. An empty Addr disables it.
type WebConfig struct {
	Addr         string
	Domains      []string
	CertCacheDir string
}

// App is the whole application configuration.
type App struct {
	Bots []Config
	Web  WebConfig
}

// Bot returns the bot with the given name, or the only bot when name is empty.
func (a App) Bot(name string) (Config, error) {
	if name == "" {
		if len(a.Bots) != 1 {
			return Config{}, fmt.Errorf("%d bots configured, pick one with --bot", len(a.Bots))
		}
		return a.Bots[0], nil
	}
	for _, b := range a.Bots {
		if b.Name == name {
			return b, nil
		}
	}
	return Config{}, fmt.Errorf("bot %q is not configured", name)
}

type ConfigTmp struct {
	Name           string        `yaml:"name"`
	BotID          string        `yaml:"bot_id"`
	Token          string        `yaml:"token,omitempty"`
	TokenEnv       string        `yaml:"token_env,omitempty"`
	BaseURL        string        `yaml:"base_url,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	PollInterval   time.Duration `yaml:"poll_interval,omitempty"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay,omitempty"`
	StartCursorStr string        `yaml:"start_cursor,omitempty"`
	JournalDir     string        `yaml:"journal_dir,omitempty"`
}

type WebTmp struct {
	Addr         string   `yaml:"addr,omitempty"`
	Domains      []string `yaml:"domains,omitempty"`
	CertCacheDir string   `yaml:"cert_cache_dir,omitempty"`
}

type FileTmp struct {
	Bots []ConfigTmp `yaml:"bots"`
	Web  WebTmp      `yaml:"web,omitempty"`
}

// Flags are the command line options shared by all commands.
type Flags struct {
	path           *string
	botID          *string
	baseURL        *string
	timeout        *time.Duration
	pollInterval   *time.Duration
	reconnectDelay *time.Duration
	startCursor    *string
	journalDir     *string
	webAddr        *string
}

// Register adds the configuration flags to fs.
func Register(fs *flag.FlagSet) *Flags {
	return &Flags{
		path:           fs.String("config", "", "path to yaml config"),
		botID:          fs.String("botid", "", "bot id, used when no --config is given"),
		baseURL:        fs.String("baseurl", iris.DefaultBaseURL, "API base url"),
		timeout:        fs.Duration("timeout", iris.DefaultTimeout, "request timeout"),
		pollInterval:   fs.Duration("pollinterval", iris.DefaultPollInterval, "history poll interval"),
		reconnectDelay: fs.Duration("reconnectdelay", iris.DefaultReconnectDelay, "pause after a failed poll"),
		startCursor:    fs.String("startcursor", "", "deliver transactions with ids above this one"),
		journalDir:     fs.String("journal", DefaultJournalDir, "transaction journal directory"),
		webAddr:        fs.String("web", "", "dashboard listen address, e.g. :8080"),
	}
}

// Load reads the yaml file when --config is set, otherwise builds a single bot from flags.
// Call it after the flag set is parsed.
func (f *Flags) Load() (App, error) {
	if *f.path != "" {
		return Load(*f.path)
	}

	bot, err := f.fromCLI()
	if err != nil {
		return App{}, err
	}
	return App{Bots: []Config{bot}, Web: WebConfig{Addr: *f.webAddr}}, nil
}

func (f *Flags) fromCLI() (Config, error) {
	if *f.botID == "" {
		return Config{}, errors.New("either --config or --botid must be provided")
	}
	token := os.Getenv(TokenEnv)
	if token == "" {
		return Config{}, fmt.Errorf("%s environment variable must be set", TokenEnv)
	}

	startCursor, err := parseCursor(*f.startCursor)
	if err != nil {
		return Config{}, fmt.Errorf("invalid --startcursor provided, --startcursor=%s", *f.startCursor)
	}

	return Config{
		Name:           *f.botID,
		BotID:          *f.botID,
		Token:          token,
		BaseURL:        *f.baseURL,
		Timeout:        *f.timeout,
		PollInterval:   *f.pollInterval,
		ReconnectDelay: *f.reconnectDelay,
		StartCursor:    startCursor,
		JournalDir:     *f.journalDir,
	}, nil
}

// Load parses a yaml config file.
func Load(path string) (App, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return App{}, errors.Wrap(err, "read config")
	}
	return Parse(f)
}

// Parse parses yaml config contents.
func Parse(data []byte) (App, error) {
	var file FileTmp
	if err := yaml.Unmarshal(data, &file); err != nil {
		return App{}, errors.Wrap(err, "parse yaml config")
	}
	if len(file.Bots) == 0 {
		return App{}, errors.New("no bots in yaml config")
	}

	app := App{
		Web: WebConfig{
			Addr:         file.Web.Addr,
			Domains:      file.Web.Domains,
			CertCacheDir: file.Web.CertCacheDir,
		},
	}

	names := make(map[string]struct{}, len(file.Bots))
	for i, c := range file.Bots {
		if c.BotID == "" {
			return App{}, fmt.Errorf("bot #%d: 'bot_id' param is required in yaml config", i+1)
		}

		token := c.Token
		if token == "" {
			env := c.TokenEnv
			if env == "" {
				env = TokenEnv
			}
			token = os.Getenv(env)
		}
		if token == "" {
			return App{}, fmt.Errorf("bot %s: no 'token' in yaml config and token env is empty", c.BotID)
		}

		startCursor, err := parseCursor(c.StartCursorStr)
		if err != nil {
			return App{}, fmt.Errorf("incorrect 'start_cursor' param in yaml config (must be an integer), error: %w", err)
		}

		name := c.Name
		if name == "" {
			name = c.BotID
		}
		if _, dup := names[name]; dup {
			return App{}, fmt.Errorf("duplicate bot name %q in yaml config", name)
		}
		names[name] = struct{}{}

		journalDir := c.JournalDir
		if journalDir == "" {
			journalDir = DefaultJournalDir + "/" + sanitize(name)
		}

		app.Bots = append(app.Bots, Config{
			Name:           name,
			BotID:          c.BotID,
			Token:          token,
			BaseURL:        c.BaseURL,
			Timeout:        c.Timeout,
			PollInterval:   c.PollInterval,
			ReconnectDelay: c.ReconnectDelay,
			StartCursor:    startCursor,
			JournalDir:     journalDir,
		})
	}

	return app, nil
}

// Marshal renders bots and web settings as yaml, the inverse of Parse.
func Marshal(bots []ConfigTmp, web WebTmp) ([]byte, error) {
	return yaml.Marshal(FileTmp{Bots: bots, Web: web})
}

func parseCursor(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	if v < 0 {
		return nil, fmt.Errorf("negative cursor %d", v)
	}
	return &v, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
