package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/iris/internal/events"
	"github.com/vadiminshakov/iris/internal/storage/journal"
	"github.com/vadiminshakov/iris/pkg/iris"
)

const (
	journalPollInterval = 2 * time.Second
	heartbeatInterval   = 30 * time.Second
	wsWriteTimeout      = 10 * time.Second
	wsPongTimeout       = 60 * time.Second
)

type journalReader interface {
	EntriesAfter(index uint64) ([]journal.Record, error)
}

type balanceReader interface {
	Balance(ctx context.Context) (iris.Balance, error)
}

type transactionSubscriber interface {
	Subscribe() chan events.Transaction
	Unsubscribe(ch chan events.Transaction)
}

// Bot is a watched bot exposed on the dashboard.
type Bot struct {
	Name    string
	Journal journalReader
	Balance balanceReader
}

// Server exposes HTTP endpoints serving the HTML UI, balances and transaction streams.
type Server struct {
	Addr       string
	Bots       []Bot
	Subscriber transactionSubscriber
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	pollEvery  time.Duration
	heartbeat  time.Duration
}

// NewServer creates a new web server instance.
func NewServer(addr string, bots []Bot, subscriber transactionSubscriber, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Addr:       addr,
		Bots:       bots,
		Subscriber: subscriber,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pollEvery: journalPollInterval,
		heartbeat: heartbeatInterval,
	}
}

// Handler returns the dashboard routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/balance", s.handleBalance)
	mux.HandleFunc("/transactions/stream", s.handleTransactionStream)
	mux.HandleFunc("/transactions/ws", s.handleTransactionWS)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via ACME.
// It also starts an HTTP server on port 80 to handle ACME HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("http (acme) server shutdown error", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("https server shutdown error", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http (acme) server error", zap.Error(err))
		}
	}()

	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

type balanceView struct {
	Bot         string `json:"bot"`
	Sweets      string `json:"sweets,omitempty"`
	DonateScore string `json:"donate_score,omitempty"`
	Available   string `json:"available,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	views := make([]balanceView, 0, len(s.Bots))
	for _, bot := range s.Bots {
		view := balanceView{Bot: bot.Name}
		if bot.Balance == nil {
			view.Error = "balance not available"
			views = append(views, view)
			continue
		}

		b, err := bot.Balance.Balance(r.Context())
		if err != nil {
			s.logger.Warn("balance request failed", zap.String("bot", bot.Name), zap.Error(err))
			view.Error = err.Error()
		} else {
			view.Sweets = b.Sweets().String()
			view.DonateScore = b.DonateScore().String()
			view.Available = b.Available().String()
		}
		views = append(views, view)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		s.logger.Warn("balance encode failed", zap.Error(err))
	}
}

func (s *Server) handleTransactionStream(w http.ResponseWriter, r *http.Request) {
	bots := s.selectBots(r.URL.Query().Get("bot"))
	if len(bots) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "transaction journal not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(s.pollEvery)
	defer pollTicker.Stop()

	lastIndex := make(map[string]uint64, len(bots))
	sendTransactions := func() error {
		for _, bot := range bots {
			records, err := bot.Journal.EntriesAfter(lastIndex[bot.Name])
			if err != nil {
				return err
			}
			for _, record := range records {
				payload, err := json.Marshal(events.Transaction{Bot: bot.Name, Entry: record.Entry})
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "event: transaction\n")
				fmt.Fprintf(w, "id: %s-%d\n", bot.Name, record.Index)
				fmt.Fprintf(w, "data: %s\n\n", payload)
				lastIndex[bot.Name] = record.Index
			}
		}
		flusher.Flush()
		return nil
	}

	// frames may already be written, so failures are reported in-stream
	if err := sendTransactions(); err != nil {
		s.logger.Error("transaction stream initial load", zap.Error(err))
		fmt.Fprintf(w, "event: error\n")
		fmt.Fprintf(w, "data: failed to load transactions\n\n")
		flusher.Flush()
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendTransactions(); err != nil {
				s.logger.Warn("transaction stream poll err", zap.Error(err))
			}
		}
	}
}

func (s *Server) selectBots(name string) []Bot {
	bots := make([]Bot, 0, len(s.Bots))
	for _, bot := range s.Bots {
		if bot.Journal == nil || (name != "" && bot.Name != name) {
			continue
		}
		bots = append(bots, bot)
	}
	return bots
}

func (s *Server) handleTransactionWS(w http.ResponseWriter, r *http.Request) {
	if s.Subscriber == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "live transactions not available")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := s.Subscriber.Subscribe()
	defer s.Subscriber.Unsubscribe(sub)

	closed := make(chan struct{})
	go s.readPump(conn, closed)

	ping := time.NewTicker(s.heartbeat)
	defer ping.Stop()

	filter := r.URL.Query().Get("bot")
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case tx, ok := <-sub:
			if !ok {
				return
			}
			if filter != "" && tx.Bot != filter {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(tx); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed, and signals when the peer goes away.
func (s *Server) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}
	}
}
