// Package store declares the persistence contracts the bingo hall reads and
// writes. Implementations return bingo.ErrNotFound for missing rows.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lox/bingohall/internal/bingo"
)

// Rounds persists the round lifecycle.
type Rounds interface {
	// FinalizeActiveRounds marks every active round finalized.
	FinalizeActiveRounds(ctx context.Context, endedAt time.Time) error
	CreateRound(ctx context.Context, createdAt time.Time) (bingo.Round, error)
	GetRound(ctx context.Context, id int64) (bingo.Round, error)
	// LatestActiveRound returns the most recently created active round.
	LatestActiveRound(ctx context.Context) (bingo.Round, error)
	UpdateRoundColumns(ctx context.Context, id int64, columns bingo.Columns) error
	UpdateRoundStatus(ctx context.Context, id int64, status bingo.RoundStatus, endedAt *time.Time) error
	FinalizeRound(ctx context.Context, id int64, winningColumn int, endedAt time.Time) error
	CountRoundsByStatus(ctx context.Context, status bingo.RoundStatus) (int, error)
}

// Ledger answers revenue questions and stores round profits.
type Ledger interface {
	// RoundRevenue sums the amounts of paid and printed tickets of a round.
	RoundRevenue(ctx context.Context, roundID int64) (decimal.Decimal, error)
	InsertProfit(ctx context.Context, rec bingo.ProfitRecord) error
}

// TicketTx is the view of the ticket table inside a transaction.
type TicketTx interface {
	TicketByReference(ctx context.Context, reference string) (bingo.Ticket, error)
	InsertTicket(ctx context.Context, t bingo.Ticket) (bingo.Ticket, error)
}

// Tickets persists tickets.
type Tickets interface {
	GetTicket(ctx context.Context, id int64) (bingo.Ticket, error)
	UpdateTicketStatus(ctx context.Context, id int64, status bingo.TicketStatus) (bingo.Ticket, error)
	CountTicketsByStatus(ctx context.Context, status bingo.TicketStatus) (int, error)
	// WithTicketTx runs fn in a transaction that is rolled back when fn
	// returns an error and committed otherwise.
	WithTicketTx(ctx context.Context, fn func(tx TicketTx) error) error
}

// Winners persists paid-out prizes.
type Winners interface {
	WinnerFor(ctx context.Context, roundID int64, column int) (bingo.WinnerRecord, error)
	InsertWinner(ctx context.Context, w bingo.WinnerRecord) (bingo.WinnerRecord, error)
}

// Results persists official results.
type Results interface {
	InsertResult(ctx context.Context, r bingo.Result) (bingo.Result, error)
	SetResultStatus(ctx context.Context, id int64, status bingo.ResultStatus) (bingo.Result, error)
	PublishedResult(ctx context.Context, roundID int64, column int) (bingo.Result, error)
	CountResultsByStatus(ctx context.Context, status bingo.ResultStatus) (int, error)
}

// Draws persists the manual draw history.
type Draws interface {
	InsertDraw(ctx context.Context, e bingo.DrawHistoryEntry) (bingo.DrawHistoryEntry, error)
	SetDrawState(ctx context.Context, id int64, state bingo.DrawState) (bingo.DrawHistoryEntry, error)
	CountDrawsByState(ctx context.Context, state bingo.DrawState) (int, error)
}

// Store is the full persistence surface.
type Store interface {
	Rounds
	Ledger
	Tickets
	Winners
	Results
	Draws
	Close() error
}
