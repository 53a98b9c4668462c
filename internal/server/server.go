// Package server is the realtime gateway: a websocket hub that fans round,
// draw and notification events out to every client and turns inbound
// commands into calls on the round manager, the draw session and the ticket
// service. It also serves the REST admin API.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/lox/bingohall/internal/bingo"
	"github.com/lox/bingohall/internal/draw"
	"github.com/lox/bingohall/internal/metrics"
	"github.com/lox/bingohall/internal/notify"
	"github.com/lox/bingohall/internal/round"
	"github.com/lox/bingohall/internal/tickets"
)

// Rounds is the round manager as seen by clients.
type Rounds interface {
	Snapshot() round.State
	PurchaseColumns(ctx context.Context, columns bingo.Columns) error
	ReleaseColumns(ctx context.Context, columns bingo.Columns) error
	SetTimer(ctx context.Context, minutes float64) error
	StopRound(ctx context.Context) error
	ResumeRound(ctx context.Context) error
	DeclareWinner(ctx context.Context, column int, endedAt *time.Time) error
	SetSoldOutInterval(ctx context.Context, d time.Duration) error
	SoldOutInterval() time.Duration
	ForceStartNextGame(ctx context.Context) error
}

// Draws controls the manual draw session.
type Draws interface {
	Start()
	PauseResume()
	State() draw.State
}

// Notifications computes the badge counts.
type Notifications interface {
	Counts(ctx context.Context) notify.Counts
}

// Tickets is the ticket workflow behind the REST API.
type Tickets interface {
	Create(ctx context.Context, in tickets.NewTicket) (bingo.Ticket, error)
	UpdateStatus(ctx context.Context, id int64, status bingo.TicketStatus) (bingo.Ticket, error)
	RegisterWinner(ctx context.Context, claim tickets.WinnerClaim) (bingo.WinnerRecord, error)
	RecordDraw(ctx context.Context, entry bingo.DrawHistoryEntry) (bingo.DrawHistoryEntry, error)
	VerifyDraw(ctx context.Context, id int64) (bingo.DrawHistoryEntry, error)
	CreateResult(ctx context.Context, roundID int64, column int) (bingo.Result, error)
	PublishResult(ctx context.Context, id int64) (bingo.Result, error)
}

// Services are the collaborators commands are dispatched to. Any of them may
// be nil; the matching commands then report service_unavailable.
type Services struct {
	Rounds        Rounds
	Draw          Draws
	Notifications Notifications
	Tickets       Tickets
}

const (
	defaultSendBuffer = 256
	defaultRateLimit  = 10
	defaultRateBurst  = 20
)

// Option configures a Server.
type Option func(*Server)

// WithMetrics records connections and events on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRateLimit sets the per-connection inbound command rate.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.rateLimit = rate.Limit(perSecond)
		s.rateBurst = burst
	}
}

// WithSendBuffer sets how many outbound messages a client may lag behind
// before it is dropped.
func WithSendBuffer(n int) Option {
	return func(s *Server) { s.sendBuffer = n }
}

// Server represents the WebSocket server
type Server struct {
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	logger      *log.Logger
	metrics     *metrics.Collector
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc

	svcMu sync.RWMutex
	svc   Services

	rateLimit  rate.Limit
	rateBurst  int
	sendBuffer int
}

// NewServer creates a new WebSocket server
func NewServer(logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		upgrader: websocket.Upgrader{
			// Admin consoles and the ticket page are served from other origins.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		logger:      logger.WithPrefix("server"),
		ctx:         ctx,
		cancel:      cancel,
		rateLimit:   defaultRateLimit,
		rateBurst:   defaultRateBurst,
		sendBuffer:  defaultSendBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach sets the services commands are dispatched to. The round manager
// needs the server as its publisher, so services arrive after construction.
func (s *Server) Attach(svc Services) {
	s.svcMu.Lock()
	defer s.svcMu.Unlock()
	s.svc = svc
}

func (s *Server) services() Services {
	s.svcMu.RLock()
	defer s.svcMu.RUnlock()
	return s.svc
}

// ListenAndServe serves the gateway on addr until ctx is cancelled, then
// closes every client and drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting WebSocket server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Stop()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	s.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the WebSocket server
func (s *Server) Stop() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.connections {
		_ = conn.Close()
	}
}

func (s *Server) addConnection(c *Connection) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[c] = true
	s.metrics.ConnectionOpened()
	return len(s.connections)
}

func (s *Server) removeConnection(c *Connection) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[c]; ok {
		delete(s.connections, c)
		s.metrics.ConnectionClosed()
	}
	return len(s.connections)
}

// ConnectionCount returns the number of connected clients.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := newConnection(conn, s)
	total := s.addConnection(client)
	s.logger.Info("Client connected", "conn", client.ID(), "remote", r.RemoteAddr, "total", total)

	client.Start()
	s.greet(client)

	go func() {
		<-client.Done()
		total := s.removeConnection(client)
		s.logger.Info("Client disconnected", "conn", client.ID(), "total", total)
	}()
}

// Broadcast sends an event to every client. It never blocks.
func (s *Server) Broadcast(event string, payload any) {
	s.broadcast("", event, payload)
}

// BroadcastTo sends an event to the clients that joined room.
func (s *Server) BroadcastTo(room, event string, payload any) {
	s.broadcast(room, event, payload)
}

func (s *Server) broadcast(room, event string, payload any) {
	msg, err := NewMessage(MessageType(event), payload)
	if err != nil {
		s.logger.Error("Failed to encode event", "event", event, "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for conn := range s.connections {
		if room != "" && !conn.InRoom(room) {
			continue
		}
		if err := conn.SendMessage(msg); err == nil {
			count++
		}
	}
	s.logger.Debug("Broadcast", "event", event, "room", room, "recipients", count)
}
