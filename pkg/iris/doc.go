// Package iris provides a client for the IRIS bot-economy API.
//
// A bot is identified by its id and secret token, both embedded in the path of every
// request. The client reads the bot balance, transfers sweets to users, reads the
// transaction history and tracks new transactions as they appear.
//
// # Basic Usage
//
//	client, err := iris.NewClient(iris.Config{
//	    BotID: "123456",
//	    Token: "secret",
//	})
//
//	balance, err := client.Balance(ctx)
//
//	ok, err := client.Transfer(ctx, decimal.NewFromInt(10), 987654, "reward")
//
// # Tracking
//
// Track polls the history and calls the consumer for every new transaction, in id order.
// It runs until ctx is cancelled, recovering from failures on its own:
//
//	err := client.Track(ctx, iris.ConsumerFunc(func(tx iris.HistoryEntry) error {
//	    log.Printf("new transaction %d: %s", tx.ID, tx.Amount)
//	    return nil
//	}))
//
// AsyncClient offers the same operations returning futures, with an explicit
// Connect/Close session (see WithAsyncClient) and background tracking.
//
// # Error Handling
//
// Every failure is an *APIError of one Kind, or a *NotEnoughFundsError for transfers
// exceeding the balance. Use errors.Is with the sentinels:
//
//	_, err := client.Transfer(ctx, amount, userID, "")
//	switch {
//	case errors.Is(err, iris.ErrNotEnoughFunds):
//	    // top up first
//	case errors.Is(err, iris.ErrRateLimit):
//	    // slow down
//	}
package iris
