// Command iris watches bot-economy accounts and talks to the IRIS bot API.
//
// Usage:
//
//	iris [run] --config iris.yaml      track incoming transactions
//	iris balance --botid 123           print the current balance
//	iris give --botid 123 --to 42 --amount 1.5 --comment "thanks"
//	iris history --botid 123 --limit 10 --type take
//	iris tx --botid 123 --id 9001      look up a single transaction
//	iris setup --out iris.yaml         interactive config wizard
//
// Without --config the bot token is read from the IRIS_TOKEN environment variable.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/iris/config"
	"github.com/vadiminshakov/iris/internal"
	"github.com/vadiminshakov/iris/internal/setup"
	"github.com/vadiminshakov/iris/pkg/iris"
)

var (
	giveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#d7263d"))
	takeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#1b9aaa"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9c9c9c", Dark: "#6c6c6c"})
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := "run", os.Args[1:]
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	if err := dispatch(ctx, cmd, args, logger); err != nil {
		logger.Fatal("command failed", zap.String("command", cmd), zap.Error(err))
	}
}

func dispatch(ctx context.Context, cmd string, args []string, logger *zap.Logger) error {
	switch cmd {
	case "run":
		return runWatch(ctx, args, logger)
	case "balance":
		return runBalance(ctx, args, logger)
	case "give":
		return runGive(ctx, args, logger)
	case "history":
		return runHistory(ctx, args, logger)
	case "tx":
		return runTransaction(ctx, args, logger)
	case "setup":
		return runSetup(args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runWatch(ctx context.Context, args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cf := config.Register(fs)
	_ = fs.Parse(args)

	app, err := cf.Load()
	if err != nil {
		return err
	}

	logger.Info("Starting watchers", zap.Int("bots", len(app.Bots)))
	return internal.Run(ctx, app, logger)
}

// botFlags parses the shared flags plus --bot and returns the selected bot.
func botFlags(fs *flag.FlagSet, args []string) (config.Config, error) {
	cf := config.Register(fs)
	name := fs.String("bot", "", "bot name from the config file")
	_ = fs.Parse(args)

	app, err := cf.Load()
	if err != nil {
		return config.Config{}, err
	}
	return app.Bot(*name)
}

func runBalance(ctx context.Context, args []string, logger *zap.Logger) error {
	conf, err := botFlags(flag.NewFlagSet("balance", flag.ExitOnError), args)
	if err != nil {
		return err
	}

	client, err := internal.NewClient(conf, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	balance, err := client.Balance(ctx)
	if err != nil {
		return err
	}
	return printJSON(balance)
}

func runGive(ctx context.Context, args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("give", flag.ExitOnError)
	to := fs.Int64("to", 0, "recipient user id")
	amountStr := fs.String("amount", "", "amount of sweets")
	comment := fs.String("comment", "", "transfer comment")
	conf, err := botFlags(fs, args)
	if err != nil {
		return err
	}

	if *to <= 0 {
		return errors.New("--to must be a positive user id")
	}
	amount, err := decimal.NewFromString(*amountStr)
	if err != nil || !amount.IsPositive() {
		return fmt.Errorf("invalid --amount provided, --amount=%s", *amountStr)
	}

	return iris.WithAsyncClient(ctx, conf.Client(), func(ctx context.Context, c *iris.AsyncClient) error {
		ok, err := c.Transfer(ctx, amount, *to, *comment).Await(ctx)
		if err != nil {
			var short *iris.NotEnoughFundsError
			if errors.As(err, &short) {
				logger.Warn("Not enough sweets for transfer", zap.String("required", short.Required.String()))
			}
			return err
		}

		logger.Info("Transfer completed", zap.Bool("ok", ok), zap.Int64("to", *to), zap.String("amount", amount.String()))
		return printJSON(map[string]any{"ok": ok})
	}, iris.WithLogger(logger))
}

func runHistory(ctx context.Context, args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	offset := fs.Int64("offset", -1, "first history offset to return")
	limit := fs.Int("limit", 0, "max number of entries")
	userID := fs.Int64("user", 0, "counterparty user id")
	opType := fs.String("type", "", "operation type: give or take")
	asJSON := fs.Bool("json", false, "print raw json")
	conf, err := botFlags(fs, args)
	if err != nil {
		return err
	}

	var opts []iris.HistoryOption
	if *offset >= 0 {
		opts = append(opts, iris.WithOffset(*offset))
	}
	if *limit > 0 {
		opts = append(opts, iris.WithLimit(*limit))
	}
	if *userID > 0 {
		opts = append(opts, iris.WithUserID(*userID))
	}
	switch iris.OperationType(*opType) {
	case "":
	case iris.OperationGive, iris.OperationTake:
		opts = append(opts, iris.WithType(iris.OperationType(*opType)))
	default:
		return fmt.Errorf("invalid --type provided, --type=%s", *opType)
	}

	client, err := internal.NewClient(conf, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	entries, err := client.History(ctx, opts...)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(entries)
	}

	for _, e := range entries {
		fmt.Println(formatEntry(e))
	}
	return nil
}

func runTransaction(ctx context.Context, args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("tx", flag.ExitOnError)
	id := fs.Int64("id", 0, "transaction id")
	conf, err := botFlags(fs, args)
	if err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("--id must be a positive transaction id")
	}

	client, err := internal.NewClient(conf, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	entry, err := client.Transaction(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(entry)
}

func runSetup(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	out := fs.String("out", "iris.yaml", "where to write the config")
	_ = fs.Parse(args)

	return setup.RunTUI(*out)
}

func formatEntry(e iris.HistoryEntry) string {
	sign, style := "+", takeStyle
	if e.Outbound() {
		sign, style = "-", giveStyle
	}
	line := fmt.Sprintf("#%d %s %s%s user=%d balance=%s",
		e.ID, e.Time().Format("2006-01-02 15:04:05"), sign, e.Amount.String(), e.CounterpartyUserID, e.BalanceAfter.String())
	if commission, ok := e.Detail.Commission(); ok {
		line += dimStyle.Render(" commission=" + commission.String())
	}
	return style.Render(line)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
