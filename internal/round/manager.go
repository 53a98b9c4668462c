// Package round owns the lifecycle of the single current round: column
// purchases, the sold-out countdown, admin timer control and winner
// declaration.
package round

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/shopspring/decimal"

	"github.com/lox/bingohall/internal/bingo"
	"github.com/lox/bingohall/internal/metrics"
	"github.com/lox/bingohall/internal/store"
)

const (
	DefaultRoundDuration    = 60 * time.Minute
	DefaultSoldOutDelay     = 10 * time.Minute
	DefaultWinnerResetDelay = 5 * time.Second
	DefaultQueryTimeout     = 5 * time.Second

	// MinSoldOutDelay is the shortest countdown an admin may configure.
	MinSoldOutDelay = time.Second

	soldOutTick = time.Second
	retryDelay  = 30 * time.Second
)

// DefaultJackpot is the prize a round's revenue must cover.
var DefaultJackpot = decimal.NewFromInt(2000)

// Publisher delivers an event to every connected client. Broadcast must not
// block; the manager calls it with its lock held to keep events ordered.
type Publisher interface {
	Broadcast(event string, payload any)
}

// Notifier recomputes and pushes the pending-work counts.
type Notifier interface {
	Refresh(ctx context.Context)
}

// Store is the persistence the manager mirrors its state into.
type Store interface {
	store.Rounds
	store.Ledger
}

// Config wires a Manager. Zero durations and amounts take the defaults.
type Config struct {
	Store            Store
	Publisher        Publisher
	Notifier         Notifier
	Clock            quartz.Clock
	Logger           *log.Logger
	Metrics          *metrics.Collector
	RoundDuration    time.Duration
	SoldOutDelay     time.Duration
	WinnerResetDelay time.Duration
	QueryTimeout     time.Duration
	Jackpot          decimal.Decimal
}

// Manager is the single authority over the current round. The in-memory
// state is authoritative; store writes mirror it and a failed write is
// logged without undoing the mutation.
type Manager struct {
	mu sync.Mutex

	store    Store
	pub      Publisher
	notifier Notifier
	clock    quartz.Clock
	logger   *log.Logger
	metrics  *metrics.Collector

	roundDuration time.Duration
	soldOutDelay  time.Duration
	winnerDelay   time.Duration
	queryTimeout  time.Duration
	jackpot       decimal.Decimal

	state runtime

	roundTimer   *Timer
	soldOutTimer *Timer
	winnerTimer  *Timer
	closed       bool
}

// NewManager creates a manager with no round. Call Start to create the first one.
func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.RoundDuration <= 0 {
		cfg.RoundDuration = DefaultRoundDuration
	}
	if cfg.SoldOutDelay <= 0 {
		cfg.SoldOutDelay = DefaultSoldOutDelay
	}
	if cfg.WinnerResetDelay <= 0 {
		cfg.WinnerResetDelay = DefaultWinnerResetDelay
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.Jackpot.IsZero() {
		cfg.Jackpot = DefaultJackpot
	}

	return &Manager{
		store:         cfg.Store,
		pub:           cfg.Publisher,
		notifier:      cfg.Notifier,
		clock:         cfg.Clock,
		logger:        cfg.Logger.WithPrefix("round"),
		metrics:       cfg.Metrics,
		roundDuration: cfg.RoundDuration,
		soldOutDelay:  cfg.SoldOutDelay,
		winnerDelay:   cfg.WinnerResetDelay,
		queryTimeout:  cfg.QueryTimeout,
		jackpot:       cfg.Jackpot,
		state:         runtime{columns: bingo.Columns{}},
		roundTimer:    newTimer(cfg.Clock, "round"),
		soldOutTimer:  newTimer(cfg.Clock, "sold-out"),
		winnerTimer:   newTimer(cfg.Clock, "winner-reset"),
	}
}

// Start creates the first round.
func (m *Manager) Start(ctx context.Context) error {
	return m.ResetRound(ctx, ReasonStartup)
}

// Close cancels every pending timer. The manager rejects nothing afterwards
// but its timers never fire again.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.roundTimer.Cancel()
	m.soldOutTimer.Cancel()
	m.winnerTimer.Cancel()
}

// Snapshot returns the current round state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.snapshot()
}

// CurrentRound returns the id and status of the current round.
func (m *Manager) CurrentRound() (int64, bingo.RoundStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.roundID, m.state.status, m.state.roundID != 0
}

// ResetRound finalizes any active round and replaces the runtime state with
// a fresh round.
func (m *Manager) ResetRound(ctx context.Context, reason string) error {
	m.mu.Lock()
	err := m.resetLocked(ctx, reason)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.refresh(ctx)
	return nil
}

func (m *Manager) resetLocked(ctx context.Context, reason string) error {
	now := m.clock.Now()
	wctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()

	if m.state.roundID != 0 && m.state.status == bingo.RoundStopped {
		if err := m.store.UpdateRoundStatus(wctx, m.state.roundID, bingo.RoundFinalized, &now); err != nil {
			m.logger.Warn("Failed to finalize stopped round", "round", m.state.roundID, "error", err)
		}
	}
	if err := m.store.FinalizeActiveRounds(wctx, now); err != nil {
		return fmt.Errorf("finalize active rounds: %w", err)
	}
	r, err := m.store.CreateRound(wctx, now)
	if err != nil {
		return fmt.Errorf("create round: %w", err)
	}

	m.roundTimer.Cancel()
	m.soldOutTimer.Cancel()

	deadline := now.Add(m.roundDuration)
	m.state = runtime{
		roundID:   r.ID,
		status:    bingo.RoundActive,
		columns:   bingo.Columns{},
		nextReset: &deadline,
	}
	m.armRoundTimerLocked()

	m.metrics.RecordRoundReset(reason)
	m.metrics.SetPurchasedColumns(0)
	m.logger.Info("Round started", "round", r.ID, "reason", reason, "deadline", deadline.Format(time.TimeOnly))
	m.publish(EventReset, m.state.snapshot())
	return nil
}

// PurchaseColumns adds columns to the current round. Purchasing a column
// twice is harmless. Reaching every column starts the sold-out countdown.
func (m *Manager) PurchaseColumns(ctx context.Context, columns bingo.Columns) error {
	if err := validColumns(columns); err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.mutableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.state.soldOut {
		m.mu.Unlock()
		return bingo.ErrRoundSoldOut
	}

	merged := m.state.columns.Union(columns)
	changed := merged.Len() != m.state.columns.Len()
	m.state.columns = merged
	if changed {
		m.mirrorColumnsLocked(ctx)
	}

	soldOut := merged.Full()
	if soldOut {
		m.soldOutLocked()
	} else {
		m.publish(EventBoardUpdate, m.state.snapshot())
	}
	m.mu.Unlock()

	if soldOut {
		m.refresh(ctx)
	}
	return nil
}

// ReleaseColumns removes columns from the current round. Releasing a sold
// out round below every column cancels the countdown and restores the time
// that was left when it sold out.
func (m *Manager) ReleaseColumns(ctx context.Context, columns bingo.Columns) error {
	if err := validColumns(columns); err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.mutableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}

	remaining := m.state.columns.Without(columns)
	changed := remaining.Len() != m.state.columns.Len()
	m.state.columns = remaining
	if changed {
		m.mirrorColumnsLocked(ctx)
	}

	if m.state.soldOut && !remaining.Full() {
		m.state.soldOut = false
		m.soldOutTimer.Cancel()
		d := m.roundDuration
		if m.state.remaining != nil && *m.state.remaining > 0 {
			d = *m.state.remaining
		}
		if m.state.status == bingo.RoundActive {
			deadline := m.clock.Now().Add(d)
			m.state.nextReset = &deadline
			m.armRoundTimerLocked()
		} else {
			m.state.restore = &d
		}
		m.logger.Info("Round no longer sold out", "round", m.state.roundID, "columns", remaining.Len())
	}
	m.publish(EventBoardUpdate, m.state.snapshot())
	m.mu.Unlock()

	m.refresh(ctx)
	return nil
}

// soldOutLocked snapshots the time left on the round and starts the
// sold-out countdown. A stopped round keeps no countdown until resumed.
func (m *Manager) soldOutLocked() {
	now := m.clock.Now()
	m.state.remaining = nil
	m.state.restore = nil
	if m.state.nextReset != nil {
		left := max(m.state.nextReset.Sub(now), 0)
		m.state.remaining = &left
	}
	m.state.soldOut = true
	m.roundTimer.Cancel()

	if m.state.status == bingo.RoundActive {
		m.armSoldOutLocked(now)
	}
	m.logger.Info("Round sold out", "round", m.state.roundID, "delay", m.soldOutDelay)
	m.publish(EventSoldOutCountdown, m.state.snapshot())
}

func (m *Manager) armSoldOutLocked(now time.Time) {
	deadline := now.Add(m.soldOutDelay)
	m.state.nextReset = &deadline
	m.soldOutTimer.Every(soldOutTick, m.onSoldOutTick)
}

func (m *Manager) onSoldOutTick(token uint64) {
	m.mu.Lock()
	if m.closed || !m.soldOutTimer.Current(token) {
		m.mu.Unlock()
		return
	}
	if m.state.nextReset == nil || m.clock.Now().Before(*m.state.nextReset) {
		m.mu.Unlock()
		return
	}
	// A failed reset leaves the ticker armed so the next tick retries.
	err := m.resetLocked(context.Background(), ReasonSoldOut)
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("Sold-out reset failed", "error", err)
		return
	}
	m.refresh(context.Background())
}

func (m *Manager) armRoundTimerLocked() {
	if m.state.nextReset == nil {
		m.roundTimer.Cancel()
		return
	}
	d := max(m.state.nextReset.Sub(m.clock.Now()), 0)
	m.roundTimer.After(d, m.onRoundTimer)
}

func (m *Manager) onRoundTimer(token uint64) {
	m.mu.Lock()
	if m.closed || !m.roundTimer.Current(token) {
		m.mu.Unlock()
		return
	}
	m.roundTimer.release(token)
	if m.state.soldOut || m.state.status != bingo.RoundActive {
		m.mu.Unlock()
		return
	}
	err := m.resetLocked(context.Background(), ReasonTimer)
	if err != nil {
		m.roundTimer.After(retryDelay, m.onRoundTimer)
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("Round timer reset failed", "error", err, "retry", retryDelay)
		return
	}
	m.refresh(context.Background())
}

// SetTimer moves the reset deadline to minutes from now. A sold-out round's
// countdown reads the same deadline.
func (m *Manager) SetTimer(ctx context.Context, minutes float64) error {
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) || minutes <= 0 {
		return fmt.Errorf("%w: timer minutes must be positive, got %v", bingo.ErrInvalidDuration, minutes)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.mutableLocked(); err != nil {
		return err
	}

	deadline := m.clock.Now().Add(time.Duration(minutes * float64(time.Minute)))
	m.state.nextReset = &deadline
	if !m.state.soldOut && m.state.status == bingo.RoundActive {
		m.armRoundTimerLocked()
	}
	m.logger.Info("Round timer set", "round", m.state.roundID, "minutes", minutes)
	m.publish(EventBoardUpdate, m.state.snapshot())
	return nil
}

// StopRound pauses the round: the deadline is cleared and no countdown fires
// until ResumeRound.
func (m *Manager) StopRound(ctx context.Context) error {
	m.mu.Lock()
	if err := m.mutableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}

	now := m.clock.Now()
	m.mirrorStatusLocked(ctx, bingo.RoundStopped, &now)
	m.state.status = bingo.RoundStopped
	m.state.nextReset = nil
	m.roundTimer.Cancel()
	m.soldOutTimer.Cancel()

	m.logger.Info("Round stopped", "round", m.state.roundID)
	m.publish(EventStopped, StoppedPayload{PurchasedColumns: m.state.columns.Ints()})
	m.mu.Unlock()

	m.refresh(ctx)
	return nil
}

// ResumeRound reactivates the round. A missing or past deadline is replaced
// with a fresh one: the time that was left when a stopped round was released
// below sold out, else the full round duration. A round that is still sold
// out gets the sold-out delay rather than a full round duration, so the
// sold-out countdown always governs a sold-out round.
func (m *Manager) ResumeRound(ctx context.Context) error {
	m.mu.Lock()
	if err := m.mutableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}

	m.mirrorStatusLocked(ctx, bingo.RoundActive, nil)
	m.state.status = bingo.RoundActive

	now := m.clock.Now()
	expired := m.state.nextReset == nil || !m.state.nextReset.After(now)
	switch {
	case m.state.soldOut && expired:
		m.armSoldOutLocked(now)
	case m.state.soldOut:
		m.soldOutTimer.Every(soldOutTick, m.onSoldOutTick)
	default:
		if expired {
			d := m.roundDuration
			if m.state.restore != nil {
				d = *m.state.restore
			}
			deadline := now.Add(d)
			m.state.nextReset = &deadline
		}
		m.armRoundTimerLocked()
	}
	m.state.restore = nil

	m.logger.Info("Round resumed", "round", m.state.roundID, "sold_out", m.state.soldOut)
	m.publish(EventBoardUpdate, m.state.snapshot())
	m.mu.Unlock()

	m.refresh(ctx)
	return nil
}

// DeclareWinner finalizes the round with the winning column once its
// confirmed revenue covers the jackpot, then starts a new round after a
// short delay. A shortfall is reported to admins and leaves the round open.
func (m *Manager) DeclareWinner(ctx context.Context, column int, endedAt *time.Time) error {
	if column < bingo.MinColumn || column > bingo.MaxColumn {
		return fmt.Errorf("%w: winning column %d", bingo.ErrInvalidColumns, column)
	}

	m.mu.Lock()
	if err := m.mutableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	roundID := m.state.roundID

	wctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()

	revenue, err := m.store.RoundRevenue(wctx, roundID)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("round revenue: %w", err)
	}
	if revenue.LessThan(m.jackpot) {
		msg := fmt.Sprintf("cannot declare a winner: revenue %s does not cover the jackpot of %s",
			revenue.StringFixed(2), m.jackpot.String())
		m.publish(EventAdminError, AdminErrorPayload{Message: msg})
		m.mu.Unlock()
		m.logger.Warn("Winner rejected", "round", roundID, "revenue", revenue, "jackpot", m.jackpot)
		return fmt.Errorf("%w: revenue %s, jackpot %s", bingo.ErrInsufficientRevenue, revenue, m.jackpot)
	}

	now := m.clock.Now()
	end := now
	if endedAt != nil {
		end = *endedAt
	}
	profit := decimal.Max(revenue.Sub(m.jackpot), decimal.Zero)
	if err := m.store.InsertProfit(wctx, bingo.ProfitRecord{RoundID: roundID, Profit: profit, CreatedAt: now}); err != nil {
		m.logger.Error("Failed to store profit", "round", roundID, "error", err)
	}
	if err := m.store.FinalizeRound(wctx, roundID, column, end); err != nil {
		m.logger.Error("Failed to finalize round", "round", roundID, "error", err)
	}

	m.state.status = bingo.RoundFinalized
	m.roundTimer.Cancel()
	m.soldOutTimer.Cancel()
	resetAt := now.Add(m.winnerDelay)
	m.state.nextReset = &resetAt

	m.logger.Info("Winner declared", "round", roundID, "column", column, "revenue", revenue, "profit", profit)
	m.publish(EventWinnerDeclared, WinnerPayload{Winner: column})
	m.publish(EventDashboardUpdate, struct{}{})

	m.winnerTimer.After(m.winnerDelay, func(token uint64) {
		m.onWinnerReset(token, roundID)
	})
	m.mu.Unlock()

	m.refresh(ctx)
	return nil
}

func (m *Manager) onWinnerReset(token uint64, roundID int64) {
	m.mu.Lock()
	if m.closed || !m.winnerTimer.Current(token) {
		m.mu.Unlock()
		return
	}
	m.winnerTimer.release(token)
	if m.state.roundID != roundID {
		// Already replaced, e.g. by a forced start.
		m.mu.Unlock()
		return
	}
	err := m.resetLocked(context.Background(), ReasonWinner)
	if err != nil {
		m.roundTimer.After(retryDelay, m.onRoundTimer)
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("Post-winner reset failed", "round", roundID, "error", err)
		return
	}
	m.refresh(context.Background())
}

// SetSoldOutInterval changes the sold-out countdown length. A countdown that
// is already running is moved to the new delay from now.
func (m *Manager) SetSoldOutInterval(ctx context.Context, d time.Duration) error {
	if d < MinSoldOutDelay {
		return fmt.Errorf("%w: sold-out interval must be at least %s, got %s", bingo.ErrInvalidDuration, MinSoldOutDelay, d)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.soldOutDelay = d
	m.logger.Info("Sold-out interval set", "interval", d)

	if m.state.soldOut && m.soldOutTimer.Armed() {
		deadline := m.clock.Now().Add(d)
		m.state.nextReset = &deadline
		m.publish(EventSoldOutCountdown, m.state.snapshot())
	}
	return nil
}

// SoldOutInterval returns the configured sold-out countdown length.
func (m *Manager) SoldOutInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.soldOutDelay
}

// ForceStartNextGame cancels any countdown and starts a new round now.
func (m *Manager) ForceStartNextGame(ctx context.Context) error {
	m.mu.Lock()
	err := m.resetLocked(ctx, ReasonForced)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.refresh(ctx)
	return nil
}

func (m *Manager) mutableLocked() error {
	if m.state.roundID == 0 {
		return bingo.ErrNoActiveRound
	}
	if m.state.status == bingo.RoundFinalized {
		return bingo.ErrRoundFinalized
	}
	return nil
}

func (m *Manager) mirrorColumnsLocked(ctx context.Context) {
	m.metrics.SetPurchasedColumns(m.state.columns.Len())
	wctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()
	if err := m.store.UpdateRoundColumns(wctx, m.state.roundID, m.state.columns); err != nil {
		m.logger.Error("Failed to persist purchased columns", "round", m.state.roundID, "error", err)
	}
}

func (m *Manager) mirrorStatusLocked(ctx context.Context, status bingo.RoundStatus, endedAt *time.Time) {
	wctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()
	if err := m.store.UpdateRoundStatus(wctx, m.state.roundID, status, endedAt); err != nil {
		m.logger.Error("Failed to persist round status", "round", m.state.roundID, "status", status, "error", err)
	}
}

func (m *Manager) publish(event string, payload any) {
	if m.pub != nil {
		m.pub.Broadcast(event, payload)
	}
}

func (m *Manager) refresh(ctx context.Context) {
	if m.notifier != nil {
		m.notifier.Refresh(ctx)
	}
}

func validColumns(columns bingo.Columns) error {
	for _, c := range columns {
		if c < bingo.MinColumn || c > bingo.MaxColumn {
			return fmt.Errorf("%w: column %d out of range", bingo.ErrInvalidColumns, c)
		}
	}
	return nil
}
