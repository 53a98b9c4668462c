// Package tickets handles ticket sales, payment confirmation, prize claims
// and the admin records around them. It feeds confirmed purchases into the
// round manager and keeps the notification badges current.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/bingohall/internal/bingo"
	"github.com/lox/bingohall/internal/store"
)

// Events published by the service.
const (
	EventTicketStatus = "ticket_status_updated"
	EventWinners      = "ganadores_updated"
	EventDrawHistory  = "admin_sorteo_history_update"
	EventResults      = "resultados_updated"
	EventDashboard    = "dashboard_update"
	ticketRoomPrefix  = "ticket_"
)

// TicketRoom is the room a client joins to follow one ticket.
func TicketRoom(id int64) string {
	return ticketRoomPrefix + strconv.FormatInt(id, 10)
}

// Store is the persistence the service needs.
type Store interface {
	store.Tickets
	store.Winners
	store.Results
	store.Draws
	LatestActiveRound(ctx context.Context) (bingo.Round, error)
}

// Rounds is the part of the round manager the service drives.
type Rounds interface {
	CurrentRound() (int64, bingo.RoundStatus, bool)
	PurchaseColumns(ctx context.Context, columns bingo.Columns) error
}

// Publisher delivers events to every client or to one room.
type Publisher interface {
	Broadcast(event string, payload any)
	BroadcastTo(room, event string, payload any)
}

// Notifier recomputes the notification badges.
type Notifier interface {
	Refresh(ctx context.Context)
}

// Config wires a Service.
type Config struct {
	Store     Store
	Rounds    Rounds
	Publisher Publisher
	Notifier  Notifier
	Clock     quartz.Clock
	Logger    *log.Logger
	Pricing   bingo.Pricing
}

// Service implements the ticket workflows.
type Service struct {
	store    Store
	rounds   Rounds
	pub      Publisher
	notifier Notifier
	clock    quartz.Clock
	logger   *log.Logger
	pricing  bingo.Pricing
}

// NewService creates a service. A zero Pricing uses bingo.DefaultPricing.
func NewService(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Pricing.ColumnPrice.IsZero() {
		cfg.Pricing = bingo.DefaultPricing()
	}
	return &Service{
		store:    cfg.Store,
		rounds:   cfg.Rounds,
		pub:      cfg.Publisher,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		logger:   cfg.Logger.WithPrefix("tickets"),
		pricing:  cfg.Pricing,
	}
}

// NewTicket is a purchase request.
type NewTicket struct {
	Columns          []int              `json:"columns"`
	Username         string             `json:"username"`
	UserID           *int64             `json:"user_id,omitempty"`
	PaymentMethod    string             `json:"payment_method"`
	PaymentReference string             `json:"payment_reference,omitempty"`
	PaymentBank      string             `json:"payment_bank,omitempty"`
	Status           bingo.TicketStatus `json:"status,omitempty"`
	RoundID          *int64             `json:"game_id,omitempty"`
}

// Create validates and stores a ticket. The duplicate reference check and
// the insert share one transaction.
func (s *Service) Create(ctx context.Context, in NewTicket) (bingo.Ticket, error) {
	columns, err := bingo.ParseColumns(in.Columns)
	if err != nil {
		return bingo.Ticket{}, err
	}
	if len(columns) != len(in.Columns) {
		return bingo.Ticket{}, fmt.Errorf("%w: duplicate column", bingo.ErrInvalidColumns)
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return bingo.Ticket{}, fmt.Errorf("%w: username", bingo.ErrMissingField)
	}
	status := in.Status
	if status == "" {
		status = bingo.TicketPending
	}
	if !status.Valid() {
		return bingo.Ticket{}, fmt.Errorf("%w: %q", bingo.ErrInvalidStatus, status)
	}

	roundID := in.RoundID
	if roundID == nil {
		active, err := s.store.LatestActiveRound(ctx)
		switch {
		case err == nil:
			roundID = &active.ID
		case errors.Is(err, bingo.ErrNotFound):
		default:
			return bingo.Ticket{}, fmt.Errorf("resolve active round: %w", err)
		}
	}

	amount, discount := s.pricing.Quote(columns)
	reference := strings.TrimSpace(in.PaymentReference)
	ticket := bingo.Ticket{
		UserID:           in.UserID,
		Username:         username,
		Columns:          columns,
		PaymentMethod:    in.PaymentMethod,
		PaymentReference: reference,
		PaymentBank:      strings.TrimSpace(in.PaymentBank),
		Amount:           amount,
		Discount:         discount,
		Status:           status,
		RoundID:          roundID,
		CreatedAt:        s.clock.Now(),
	}

	var created bingo.Ticket
	err = s.store.WithTicketTx(ctx, func(tx store.TicketTx) error {
		if in.PaymentMethod == bingo.PaymentMobile && reference != "" {
			_, err := tx.TicketByReference(ctx, reference)
			if err == nil {
				return bingo.ErrDuplicateReference
			}
			if !errors.Is(err, bingo.ErrNotFound) {
				return err
			}
		}
		var err error
		created, err = tx.InsertTicket(ctx, ticket)
		return err
	})
	if err != nil {
		return bingo.Ticket{}, err
	}

	s.logger.Info("Ticket created", "ticket", created.ID, "user", created.Username, "columns", created.Columns, "amount", created.Amount)
	s.notifier.Refresh(ctx)
	if created.Status == bingo.TicketPaid {
		s.purchase(ctx, created)
	}
	s.pub.Broadcast(EventDashboard, struct{}{})
	return created, nil
}

// StatusUpdate is the payload of ticket_status_updated.
type StatusUpdate struct {
	ID     int64              `json:"id"`
	Status bingo.TicketStatus `json:"status"`
}

// UpdateStatus moves a ticket to status. Paying a ticket marks its columns
// purchased on the current round.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status bingo.TicketStatus) (bingo.Ticket, error) {
	if !status.Valid() {
		return bingo.Ticket{}, fmt.Errorf("%w: %q", bingo.ErrInvalidStatus, status)
	}
	ticket, err := s.store.UpdateTicketStatus(ctx, id, status)
	if err != nil {
		return bingo.Ticket{}, err
	}
	s.logger.Info("Ticket status updated", "ticket", id, "status", status)

	s.notifier.Refresh(ctx)
	if status == bingo.TicketPaid {
		s.purchase(ctx, ticket)
	}
	if status.Notifies() {
		s.pub.BroadcastTo(TicketRoom(id), EventTicketStatus, StatusUpdate{ID: id, Status: status})
	}
	s.pub.Broadcast(EventDashboard, struct{}{})
	return ticket, nil
}

// purchase marks a paid ticket's columns on the current round. Tickets of an
// older round are left alone.
func (s *Service) purchase(ctx context.Context, t bingo.Ticket) {
	current, _, ok := s.rounds.CurrentRound()
	if !ok {
		s.logger.Warn("Paid ticket without a current round", "ticket", t.ID)
		return
	}
	if t.RoundID != nil && *t.RoundID != current {
		s.logger.Debug("Paid ticket belongs to another round", "ticket", t.ID, "round", *t.RoundID, "current", current)
		return
	}
	if err := s.rounds.PurchaseColumns(ctx, t.Columns); err != nil {
		s.logger.Warn("Could not mark columns purchased", "ticket", t.ID, "columns", t.Columns, "error", err)
	}
}

// WinnerClaim asks to pay out a prize.
type WinnerClaim struct {
	Name     string    `json:"nombre_ganador"`
	RoundID  int64     `json:"id_partida"`
	Column   int       `json:"columna_ganadora"`
	TicketID int64     `json:"ticket_id"`
	At       time.Time `json:"fecha"`
}

// RegisterWinner records a prize after checking the claim against the
// published result, the ticket and earlier claims.
func (s *Service) RegisterWinner(ctx context.Context, claim WinnerClaim) (bingo.WinnerRecord, error) {
	if strings.TrimSpace(claim.Name) == "" {
		return bingo.WinnerRecord{}, fmt.Errorf("%w: nombre_ganador", bingo.ErrMissingField)
	}
	if _, err := s.store.PublishedResult(ctx, claim.RoundID, claim.Column); err != nil {
		if errors.Is(err, bingo.ErrNotFound) {
			return bingo.WinnerRecord{}, bingo.ErrResultNotOfficial
		}
		return bingo.WinnerRecord{}, err
	}

	ticket, err := s.store.GetTicket(ctx, claim.TicketID)
	if err != nil {
		return bingo.WinnerRecord{}, err
	}
	if ticket.RoundID == nil || *ticket.RoundID != claim.RoundID || !ticket.Columns.Contains(claim.Column) {
		return bingo.WinnerRecord{}, bingo.ErrColumnNotPurchased
	}
	if !ticket.Status.Confirmed() {
		return bingo.WinnerRecord{}, bingo.ErrTicketNotEligible
	}

	_, err = s.store.WinnerFor(ctx, claim.RoundID, claim.Column)
	if err == nil {
		return bingo.WinnerRecord{}, bingo.ErrWinnerAlreadyClaimed
	}
	if !errors.Is(err, bingo.ErrNotFound) {
		return bingo.WinnerRecord{}, err
	}

	at := claim.At
	if at.IsZero() {
		at = s.clock.Now()
	}
	rec, err := s.store.InsertWinner(ctx, bingo.WinnerRecord{
		Name:      strings.TrimSpace(claim.Name),
		RoundID:   claim.RoundID,
		Column:    claim.Column,
		Timestamp: at,
	})
	if err != nil {
		return bingo.WinnerRecord{}, err
	}

	s.logger.Info("Winner registered", "round", rec.RoundID, "column", rec.Column, "name", rec.Name)
	s.pub.Broadcast(EventWinners, rec)
	return rec, nil
}

// RecordDraw stores a finished manual draw awaiting verification.
func (s *Service) RecordDraw(ctx context.Context, entry bingo.DrawHistoryEntry) (bingo.DrawHistoryEntry, error) {
	entry.State = bingo.DrawPending
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.clock.Now()
	}
	saved, err := s.store.InsertDraw(ctx, entry)
	if err != nil {
		return bingo.DrawHistoryEntry{}, err
	}
	s.logger.Info("Draw recorded", "draw", saved.ID, "pattern", saved.Pattern, "by", saved.PerformedBy)
	s.pub.Broadcast(EventDrawHistory, saved)
	s.notifier.Refresh(ctx)
	return saved, nil
}

// VerifyDraw marks a recorded draw as checked.
func (s *Service) VerifyDraw(ctx context.Context, id int64) (bingo.DrawHistoryEntry, error) {
	entry, err := s.store.SetDrawState(ctx, id, bingo.DrawVerified)
	if err != nil {
		return bingo.DrawHistoryEntry{}, err
	}
	s.pub.Broadcast(EventDrawHistory, entry)
	s.notifier.Refresh(ctx)
	return entry, nil
}

// CreateResult stores a draft official result.
func (s *Service) CreateResult(ctx context.Context, roundID int64, column int) (bingo.Result, error) {
	if column < bingo.MinColumn || column > bingo.MaxColumn {
		return bingo.Result{}, fmt.Errorf("%w: column %d", bingo.ErrInvalidColumns, column)
	}
	res, err := s.store.InsertResult(ctx, bingo.Result{
		RoundID: roundID,
		Column:  column,
		Status:  bingo.ResultDraft,
		Date:    s.clock.Now(),
	})
	if err != nil {
		return bingo.Result{}, err
	}
	s.resultChanged(ctx, res)
	return res, nil
}

// PublishResult makes a draft result official.
func (s *Service) PublishResult(ctx context.Context, id int64) (bingo.Result, error) {
	res, err := s.store.SetResultStatus(ctx, id, bingo.ResultPublished)
	if err != nil {
		return bingo.Result{}, err
	}
	s.logger.Info("Result published", "round", res.RoundID, "column", res.Column)
	s.resultChanged(ctx, res)
	return res, nil
}

func (s *Service) resultChanged(ctx context.Context, res bingo.Result) {
	s.pub.Broadcast(EventResults, res)
	s.notifier.Refresh(ctx)
	s.pub.Broadcast(EventDashboard, struct{}{})
}
