// Package memory is an in-process store used in development mode and tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lox/bingohall/internal/bingo"
	"github.com/lox/bingohall/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	nextID  int64
	rounds  map[int64]bingo.Round
	tickets map[int64]bingo.Ticket
	profits []bingo.ProfitRecord
	winners map[int64]bingo.WinnerRecord
	results map[int64]bingo.Result
	draws   map[int64]bingo.DrawHistoryEntry
}

// New returns an empty store.
func New() *Store {
	return &Store{
		rounds:  make(map[int64]bingo.Round),
		tickets: make(map[int64]bingo.Ticket),
		winners: make(map[int64]bingo.WinnerRecord),
		results: make(map[int64]bingo.Result),
		draws:   make(map[int64]bingo.DrawHistoryEntry),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// --- Rounds ---------------------------------------------------------------

func (s *Store) FinalizeActiveRounds(_ context.Context, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.rounds {
		if r.Status == bingo.RoundActive {
			r.Status = bingo.RoundFinalized
			at := endedAt
			r.EndedAt = &at
			s.rounds[id] = r
		}
	}
	return nil
}

func (s *Store) CreateRound(_ context.Context, createdAt time.Time) (bingo.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := bingo.Round{
		ID:               s.id(),
		Status:           bingo.RoundActive,
		PurchasedColumns: bingo.Columns{},
		CreatedAt:        createdAt,
	}
	s.rounds[r.ID] = r
	return r, nil
}

func (s *Store) GetRound(_ context.Context, id int64) (bingo.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rounds[id]
	if !ok {
		return bingo.Round{}, bingo.ErrNotFound
	}
	return cloneRound(r), nil
}

func (s *Store) LatestActiveRound(_ context.Context) (bingo.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		latest bingo.Round
		found  bool
	)
	for _, r := range s.rounds {
		if r.Status != bingo.RoundActive {
			continue
		}
		if !found || r.CreatedAt.After(latest.CreatedAt) || (r.CreatedAt.Equal(latest.CreatedAt) && r.ID > latest.ID) {
			latest, found = r, true
		}
	}
	if !found {
		return bingo.Round{}, bingo.ErrNotFound
	}
	return cloneRound(latest), nil
}

func (s *Store) UpdateRoundColumns(_ context.Context, id int64, columns bingo.Columns) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return bingo.ErrNotFound
	}
	r.PurchasedColumns = bingo.NewColumns(columns...)
	s.rounds[id] = r
	return nil
}

func (s *Store) UpdateRoundStatus(_ context.Context, id int64, status bingo.RoundStatus, endedAt *time.Time) error {
	if !status.Valid() {
		return bingo.ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return bingo.ErrNotFound
	}
	r.Status = status
	r.EndedAt = copyTime(endedAt)
	s.rounds[id] = r
	return nil
}

func (s *Store) FinalizeRound(_ context.Context, id int64, winningColumn int, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return bingo.ErrNotFound
	}
	col := winningColumn
	r.Status = bingo.RoundFinalized
	r.WinningColumn = &col
	r.EndedAt = &endedAt
	s.rounds[id] = r
	return nil
}

func (s *Store) CountRoundsByStatus(_ context.Context, status bingo.RoundStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.rounds {
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

// --- Ledger ---------------------------------------------------------------

func (s *Store) RoundRevenue(_ context.Context, roundID int64) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, t := range s.tickets {
		if t.RoundID != nil && *t.RoundID == roundID && t.Status.Confirmed() {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

func (s *Store) InsertProfit(_ context.Context, rec bingo.ProfitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profits = append(s.profits, rec)
	return nil
}

// Profits returns the stored profit records in insertion order.
func (s *Store) Profits() []bingo.ProfitRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.profits)
}

// --- Tickets --------------------------------------------------------------

func (s *Store) GetTicket(_ context.Context, id int64) (bingo.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return bingo.Ticket{}, bingo.ErrNotFound
	}
	return cloneTicket(t), nil
}

func (s *Store) UpdateTicketStatus(_ context.Context, id int64, status bingo.TicketStatus) (bingo.Ticket, error) {
	if !status.Valid() {
		return bingo.Ticket{}, bingo.ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return bingo.Ticket{}, bingo.ErrNotFound
	}
	t.Status = status
	s.tickets[id] = t
	return cloneTicket(t), nil
}

func (s *Store) CountTicketsByStatus(_ context.Context, status bingo.TicketStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tickets {
		if t.Status == status {
			n++
		}
	}
	return n, nil
}

// WithTicketTx holds the store lock for the whole transaction. Inserts are
// staged and only become visible when fn returns nil.
func (s *Store) WithTicketTx(ctx context.Context, fn func(tx store.TicketTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &ticketTx{s: s}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, t := range tx.pending {
		s.tickets[t.ID] = t
	}
	return nil
}

type ticketTx struct {
	s       *Store
	pending []bingo.Ticket
}

func (tx *ticketTx) TicketByReference(_ context.Context, reference string) (bingo.Ticket, error) {
	for _, t := range tx.pending {
		if t.PaymentReference == reference {
			return cloneTicket(t), nil
		}
	}
	for _, t := range tx.s.tickets {
		if t.PaymentReference == reference {
			return cloneTicket(t), nil
		}
	}
	return bingo.Ticket{}, bingo.ErrNotFound
}

func (tx *ticketTx) InsertTicket(_ context.Context, t bingo.Ticket) (bingo.Ticket, error) {
	t.ID = tx.s.id()
	t.Columns = bingo.NewColumns(t.Columns...)
	tx.pending = append(tx.pending, t)
	return cloneTicket(t), nil
}

// --- Winners --------------------------------------------------------------

func (s *Store) WinnerFor(_ context.Context, roundID int64, column int) (bingo.WinnerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.winners {
		if w.RoundID == roundID && w.Column == column {
			return w, nil
		}
	}
	return bingo.WinnerRecord{}, bingo.ErrNotFound
}

func (s *Store) InsertWinner(_ context.Context, w bingo.WinnerRecord) (bingo.WinnerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.winners {
		if existing.RoundID == w.RoundID && existing.Column == w.Column {
			return bingo.WinnerRecord{}, bingo.ErrWinnerAlreadyClaimed
		}
	}
	w.ID = s.id()
	s.winners[w.ID] = w
	return w, nil
}

// --- Results --------------------------------------------------------------

func (s *Store) InsertResult(_ context.Context, r bingo.Result) (bingo.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	if r.Status == "" {
		r.Status = bingo.ResultDraft
	}
	s.results[r.ID] = r
	return r, nil
}

func (s *Store) SetResultStatus(_ context.Context, id int64, status bingo.ResultStatus) (bingo.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	if !ok {
		return bingo.Result{}, bingo.ErrNotFound
	}
	r.Status = status
	s.results[id] = r
	return r, nil
}

func (s *Store) PublishedResult(_ context.Context, roundID int64, column int) (bingo.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.results {
		if r.RoundID == roundID && r.Column == column && r.Status == bingo.ResultPublished {
			return r, nil
		}
	}
	return bingo.Result{}, bingo.ErrNotFound
}

func (s *Store) CountResultsByStatus(_ context.Context, status bingo.ResultStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.results {
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

// --- Draws ----------------------------------------------------------------

func (s *Store) InsertDraw(_ context.Context, e bingo.DrawHistoryEntry) (bingo.DrawHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.id()
	if e.State == "" {
		e.State = bingo.DrawPending
	}
	e.Pattern = slices.Clone(e.Pattern)
	e.Numbers = slices.Clone(e.Numbers)
	s.draws[e.ID] = e
	return e, nil
}

func (s *Store) SetDrawState(_ context.Context, id int64, state bingo.DrawState) (bingo.DrawHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.draws[id]
	if !ok {
		return bingo.DrawHistoryEntry{}, bingo.ErrNotFound
	}
	e.State = state
	s.draws[id] = e
	return e, nil
}

func (s *Store) CountDrawsByState(_ context.Context, state bingo.DrawState) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.draws {
		if e.State == state {
			n++
		}
	}
	return n, nil
}

func cloneRound(r bingo.Round) bingo.Round {
	r.PurchasedColumns = bingo.NewColumns(r.PurchasedColumns...)
	r.EndedAt = copyTime(r.EndedAt)
	if r.WinningColumn != nil {
		c := *r.WinningColumn
		r.WinningColumn = &c
	}
	return r
}

func cloneTicket(t bingo.Ticket) bingo.Ticket {
	t.Columns = bingo.NewColumns(t.Columns...)
	return t
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
