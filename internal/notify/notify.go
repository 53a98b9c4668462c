// Package notify computes the pending-work badges shown on the admin console.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/bingohall/internal/bingo"
	"github.com/lox/bingohall/internal/metrics"
)

// EventUpdate carries a Counts snapshot to every client.
const EventUpdate = "notifications_update"

// Counts is one snapshot of pending work per workflow stage.
type Counts struct {
	// Pagos is tickets awaiting payment confirmation.
	Pagos int `json:"pagos"`
	// Tickets is paid tickets awaiting printing.
	Tickets int `json:"tickets"`
	// Juegos is stopped rounds plus one when the active round is sold out.
	Juegos int `json:"juegos"`
	// Sorteos is manual draws awaiting verification.
	Sorteos int `json:"sorteos"`
	// Resultados is results still in draft.
	Resultados int `json:"resultados"`
}

// Source answers the count queries.
type Source interface {
	CountTicketsByStatus(ctx context.Context, status bingo.TicketStatus) (int, error)
	CountRoundsByStatus(ctx context.Context, status bingo.RoundStatus) (int, error)
	LatestActiveRound(ctx context.Context) (bingo.Round, error)
	CountDrawsByState(ctx context.Context, state bingo.DrawState) (int, error)
	CountResultsByStatus(ctx context.Context, status bingo.ResultStatus) (int, error)
}

// Publisher delivers an event to every connected client.
type Publisher interface {
	Broadcast(event string, payload any)
}

// Aggregator runs the count queries concurrently. A failing query counts as
// zero; the aggregate itself never fails.
type Aggregator struct {
	src     Source
	pub     Publisher
	logger  *log.Logger
	metrics *metrics.Collector
	timeout time.Duration
}

// NewAggregator creates an aggregator. pub may be nil when only Counts is used.
func NewAggregator(src Source, pub Publisher, logger *log.Logger, m *metrics.Collector, timeout time.Duration) *Aggregator {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Aggregator{
		src:     src,
		pub:     pub,
		logger:  logger.WithPrefix("notify"),
		metrics: m,
		timeout: timeout,
	}
}

// Counts returns a best-effort snapshot.
func (a *Aggregator) Counts(ctx context.Context) Counts {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		c        Counts
		stopped  int
		soldOut  int
		pendings = []struct {
			name  string
			dst   *int
			query func(context.Context) (int, error)
		}{
			{"pagos", &c.Pagos, func(ctx context.Context) (int, error) {
				return a.src.CountTicketsByStatus(ctx, bingo.TicketPending)
			}},
			{"tickets", &c.Tickets, func(ctx context.Context) (int, error) {
				return a.src.CountTicketsByStatus(ctx, bingo.TicketPaid)
			}},
			{"juegos", &stopped, func(ctx context.Context) (int, error) {
				return a.src.CountRoundsByStatus(ctx, bingo.RoundStopped)
			}},
			{"sold_out", &soldOut, a.activeSoldOut},
			{"sorteos", &c.Sorteos, func(ctx context.Context) (int, error) {
				return a.src.CountDrawsByState(ctx, bingo.DrawPending)
			}},
			{"resultados", &c.Resultados, func(ctx context.Context) (int, error) {
				return a.src.CountResultsByStatus(ctx, bingo.ResultDraft)
			}},
		}
	)

	var g errgroup.Group
	for _, p := range pendings {
		g.Go(func() error {
			n, err := p.query(ctx)
			if err != nil {
				a.metrics.RecordQueryError(p.name)
				a.logger.Warn("Notification count failed", "count", p.name, "error", err)
				n = 0
			}
			*p.dst = n
			return nil
		})
	}
	_ = g.Wait()

	// Not deduplicated: a stopped round that is also sold out counts once per reason.
	c.Juegos = stopped + soldOut
	return c
}

func (a *Aggregator) activeSoldOut(ctx context.Context) (int, error) {
	r, err := a.src.LatestActiveRound(ctx)
	if errors.Is(err, bingo.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if r.SoldOut() {
		return 1, nil
	}
	return 0, nil
}

// Refresh recomputes the counts and broadcasts them.
func (a *Aggregator) Refresh(ctx context.Context) {
	c := a.Counts(ctx)
	a.logger.Debug("Notifications updated", "pagos", c.Pagos, "tickets", c.Tickets, "juegos", c.Juegos, "sorteos", c.Sorteos, "resultados", c.Resultados)
	if a.pub != nil {
		a.pub.Broadcast(EventUpdate, c)
	}
}
