package round

import (
	"time"

	"github.com/lox/bingohall/internal/bingo"
)

// Events published by the manager.
const (
	EventBoardUpdate      = "update_board"
	EventSoldOutCountdown = "game_sold_out_countdown"
	EventReset            = "game_reset"
	EventStopped          = "game_stopped"
	EventWinnerDeclared   = "game_winner_declared"
	EventDashboardUpdate  = "dashboard_update"
	EventAdminError       = "admin_error"
)

// Reasons a round is replaced by a new one.
const (
	ReasonStartup = "startup"
	ReasonTimer   = "timer"
	ReasonSoldOut = "sold_out"
	ReasonWinner  = "winner"
	ReasonForced  = "forced"
)

// State is the snapshot of the current round sent to clients. Timestamps are
// epoch milliseconds; a nil NextResetTimestamp means the countdown is stopped.
type State struct {
	CurrentGameID              *int64            `json:"currentGameId"`
	Status                     bingo.RoundStatus `json:"status,omitempty"`
	PurchasedColumns           []int             `json:"purchasedColumns"`
	NextResetTimestamp         *int64            `json:"nextResetTimestamp"`
	IsSoldOut                  bool              `json:"isSoldOut"`
	RemainingTimeBeforeSoldOut *int64            `json:"remainingTimeBeforeSoldOut"`
}

// NextReset returns the reset deadline, if any.
func (s State) NextReset() (time.Time, bool) {
	if s.NextResetTimestamp == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*s.NextResetTimestamp), true
}

// StoppedPayload is sent with EventStopped.
type StoppedPayload struct {
	PurchasedColumns   []int  `json:"purchasedColumns"`
	NextResetTimestamp *int64 `json:"nextResetTimestamp"`
}

// WinnerPayload is sent with EventWinnerDeclared.
type WinnerPayload struct {
	Winner int `json:"winner"`
}

// AdminErrorPayload is sent with EventAdminError.
type AdminErrorPayload struct {
	Message string `json:"message"`
}

// runtime is the process-local mirror of the current round.
type runtime struct {
	roundID   int64
	status    bingo.RoundStatus
	columns   bingo.Columns
	soldOut   bool
	nextReset *time.Time
	// remaining is the countdown left when the round sold out.
	remaining *time.Duration
	// restore is the remaining time to resume with after a stopped round
	// was released below sold out.
	restore *time.Duration
}

func (r runtime) snapshot() State {
	s := State{
		Status:           r.status,
		PurchasedColumns: r.columns.Ints(),
		IsSoldOut:        r.soldOut,
	}
	if r.roundID != 0 {
		id := r.roundID
		s.CurrentGameID = &id
	}
	if r.nextReset != nil {
		ms := r.nextReset.UnixMilli()
		s.NextResetTimestamp = &ms
	}
	if r.remaining != nil {
		ms := r.remaining.Milliseconds()
		s.RemainingTimeBeforeSoldOut = &ms
	}
	return s
}
