package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/vadiminshakov/iris/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

const (
	tokenInline = "inline"
	tokenEnv    = "env"
)

// answers collects wizard input.
type answers struct {
	name              string
	botID             string
	tokenMode         string
	token             string
	tokenEnv          string
	pollIntervalStr   string
	reconnectDelayStr string
	startCursor       string
	webAddr           string
}

func defaultAnswers() answers {
	return answers{
		name:              "main",
		tokenMode:         tokenEnv,
		tokenEnv:          config.TokenEnv,
		pollIntervalStr:   "1s",
		reconnectDelayStr: "5s",
	}
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) error {
	a := defaultAnswers()

	screen := func(step string) {
		fmt.Print("\033[H\033[2J")
		fmt.Println(headerStyle.Render("IRIS CONFIG WIZARD"))
		fmt.Println(stepStyle.Render(step))
	}

	// step 1: bot
	screen("STEP 1: BOT")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Credentials are issued by the bot economy admin panel.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot name").
				Description("Used in logs and on the dashboard").
				Value(&a.name).
				Validate(validateName),
			huh.NewInput().
				Title("Bot ID").
				Value(&a.botID).
				Validate(validateBotID),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: token
	screen("STEP 2: TOKEN")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should the token be read from?").
				Options(
					huh.NewOption("Environment variable", tokenEnv),
					huh.NewOption("Config file", tokenInline),
				).
				Value(&a.tokenMode),
		),
	).Run()
	if err != nil {
		return err
	}

	if a.tokenMode == tokenInline {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Bot token").
					EchoMode(huh.EchoModePassword).
					Value(&a.token).
					Validate(notEmpty("token")),
			),
		).Run()
	} else {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Token environment variable").
					Value(&a.tokenEnv).
					Validate(notEmpty("variable name")),
			),
		).Run()
	}
	if err != nil {
		return err
	}

	// step 3: timing
	screen("STEP 3: TIMING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Poll interval").
				Description("Pause between history checks when nothing is new (e.g. 1s)").
				Value(&a.pollIntervalStr).
				Validate(validateDuration),
			huh.NewInput().
				Title("Reconnect delay").
				Description("Pause after a failed request (e.g. 5s)").
				Value(&a.reconnectDelayStr).
				Validate(validateDuration),
			huh.NewInput().
				Title("Start after transaction id").
				Description("Leave empty to deliver only transactions made from now on").
				Value(&a.startCursor).
				Validate(validateCursor),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 4: dashboard
	screen("STEP 4: DASHBOARD")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Dashboard address").
				Description("Leave empty to disable (e.g. :8080)").
				Value(&a.webAddr),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	screen("FINAL CONFIRMATION")
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(a.summary()))

	var confirm bool
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	data, err := a.render()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", path)))
	return nil
}

func (a answers) summary() string {
	token := "$" + a.tokenEnv
	if a.tokenMode == tokenInline {
		token = "stored in config"
	}
	web := a.webAddr
	if web == "" {
		web = "disabled"
	}
	return fmt.Sprintf(
		"Bot: %s (%s)\nToken: %s\nPoll interval: %s\nReconnect delay: %s\nDashboard: %s\n",
		a.name, a.botID, token, a.pollIntervalStr, a.reconnectDelayStr, web,
	)
}

// render builds the yaml config from the answers.
func (a answers) render() ([]byte, error) {
	pollInterval, err := time.ParseDuration(a.pollIntervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid poll interval: %w", err)
	}
	reconnectDelay, err := time.ParseDuration(a.reconnectDelayStr)
	if err != nil {
		return nil, fmt.Errorf("invalid reconnect delay: %w", err)
	}

	bot := config.ConfigTmp{
		Name:           strings.TrimSpace(a.name),
		BotID:          strings.TrimSpace(a.botID),
		PollInterval:   pollInterval,
		ReconnectDelay: reconnectDelay,
		StartCursorStr: strings.TrimSpace(a.startCursor),
	}
	if a.tokenMode == tokenInline {
		bot.Token = a.token
	} else if a.tokenEnv != config.TokenEnv {
		bot.TokenEnv = a.tokenEnv
	}

	data, err := config.Marshal([]config.ConfigTmp{bot}, config.WebTmp{Addr: strings.TrimSpace(a.webAddr)})
	if err != nil {
		return nil, fmt.Errorf("failed to generate yaml: %w", err)
	}
	return data, nil
}

func notEmpty(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", what)
		}
		return nil
	}
}

func validateName(s string) error {
	return notEmpty("name")(s)
}

func validateBotID(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("bot id cannot be empty")
	}
	if strings.ContainsAny(s, "/_ ") {
		return fmt.Errorf("bot id must not contain '/', '_' or spaces")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration like 1s or 500ms")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateCursor(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}
