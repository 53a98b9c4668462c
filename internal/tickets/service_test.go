package tickets

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/bingohall/internal/bingo"
	"github.com/lox/bingohall/internal/round"
	"github.com/lox/bingohall/internal/store"
	"github.com/lox/bingohall/internal/store/memory"
	"github.com/lox/bingohall/internal/testutil"
)

type sent struct {
	room    string
	event   string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []sent
}

func (p *recordingPublisher) Broadcast(event string, payload any) {
	p.BroadcastTo("", event, payload)
}

func (p *recordingPublisher) BroadcastTo(room, event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, sent{room: room, event: event, payload: payload})
}

func (p *recordingPublisher) find(event string) []sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []sent
	for _, e := range p.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNotifier) Refresh(context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type fixture struct {
	ctx   context.Context
	store *memory.Store
	rm    *round.Manager
	svc   *Service
	pub   *recordingPublisher
	notes *countingNotifier
	clk   *quartz.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   testutil.Context(t),
		store: memory.New(),
		pub:   &recordingPublisher{},
		notes: &countingNotifier{},
		clk:   quartz.NewMock(t),
	}
	f.rm = round.NewManager(round.Config{
		Store:     f.store,
		Publisher: f.pub,
		Clock:     f.clk,
		Logger:    log.New(io.Discard),
	})
	t.Cleanup(f.rm.Close)
	require.NoError(t, f.rm.Start(f.ctx))

	f.svc = NewService(Config{
		Store:     f.store,
		Rounds:    f.rm,
		Publisher: f.pub,
		Notifier:  f.notes,
		Clock:     f.clk,
		Logger:    log.New(io.Discard),
	})
	return f
}

func (f *fixture) roundID(t *testing.T) int64 {
	t.Helper()
	id, _, ok := f.rm.CurrentRound()
	require.True(t, ok)
	return id
}

func TestCreatePendingTicket(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ticket, err := f.svc.Create(f.ctx, NewTicket{
		Columns:       []int{5, 1, 3, 2, 4},
		Username:      " ana ",
		PaymentMethod: "Efectivo",
	})
	require.NoError(t, err)

	assert.Equal(t, "ana", ticket.Username)
	assert.Equal(t, bingo.TicketPending, ticket.Status)
	assert.Equal(t, bingo.Columns{1, 2, 3, 4, 5}, ticket.Columns)
	assert.True(t, ticket.Amount.Equal(decimal.NewFromInt(960)), "got %s", ticket.Amount)
	require.NotNil(t, ticket.RoundID)
	assert.Equal(t, f.roundID(t), *ticket.RoundID)

	assert.Empty(t, f.rm.Snapshot().PurchasedColumns, "pending tickets do not reserve columns")
	assert.Equal(t, 1, f.notes.count())
	assert.Len(t, f.pub.find(EventDashboard), 1)
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name string
		in   NewTicket
		want error
	}{
		{name: "no columns", in: NewTicket{Username: "ana"}, want: bingo.ErrInvalidColumns},
		{name: "out of range", in: NewTicket{Username: "ana", Columns: []int{16}}, want: bingo.ErrInvalidColumns},
		{name: "duplicate column", in: NewTicket{Username: "ana", Columns: []int{2, 2}}, want: bingo.ErrInvalidColumns},
		{name: "bad status", in: NewTicket{Username: "ana", Columns: []int{2}, Status: "cancelado"}, want: bingo.ErrInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(f.ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.svc.Create(f.ctx, NewTicket{Columns: []int{1}, Username: "  "})
	assert.ErrorIs(t, err, bingo.ErrMissingField)
	assert.Equal(t, 0, f.notes.count())
}

func TestCreateRejectsDuplicateMobileReference(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	in := NewTicket{
		Columns:          []int{1},
		Username:         "ana",
		PaymentMethod:    bingo.PaymentMobile,
		PaymentReference: "0412-555",
	}
	_, err := f.svc.Create(f.ctx, in)
	require.NoError(t, err)

	in.Username = "luis"
	_, err = f.svc.Create(f.ctx, in)
	assert.ErrorIs(t, err, bingo.ErrDuplicateReference)

	pending, err := f.store.CountTicketsByStatus(f.ctx, bingo.TicketPending)
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "the rejected ticket is rolled back")

	in.PaymentMethod = "Transferencia"
	_, err = f.svc.Create(f.ctx, in)
	assert.NoError(t, err, "only mobile payments require unique references")
}

func TestCreatePaidTicketPurchasesColumns(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.Create(f.ctx, NewTicket{Columns: []int{4, 9}, Username: "ana", Status: bingo.TicketPaid})
	require.NoError(t, err)

	assert.Equal(t, []int{4, 9}, f.rm.Snapshot().PurchasedColumns)
}

func TestUpdateStatusPaid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ticket, err := f.svc.Create(f.ctx, NewTicket{Columns: []int{7}, Username: "ana"})
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(f.ctx, ticket.ID, bingo.TicketPaid)
	require.NoError(t, err)
	assert.Equal(t, bingo.TicketPaid, updated.Status)
	assert.Equal(t, []int{7}, f.rm.Snapshot().PurchasedColumns)

	notices := f.pub.find(EventTicketStatus)
	require.Len(t, notices, 1)
	assert.Equal(t, TicketRoom(ticket.ID), notices[0].room)
	assert.Equal(t, StatusUpdate{ID: ticket.ID, Status: bingo.TicketPaid}, notices[0].payload)
}

func TestUpdateStatusPendingIsNotPushedToTicketRoom(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ticket, err := f.svc.Create(f.ctx, NewTicket{Columns: []int{7}, Username: "ana"})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(f.ctx, ticket.ID, bingo.TicketPending)
	require.NoError(t, err)
	assert.Empty(t, f.pub.find(EventTicketStatus))

	_, err = f.svc.UpdateStatus(f.ctx, 9999, bingo.TicketPaid)
	assert.ErrorIs(t, err, bingo.ErrNotFound)
}

func TestPaidTicketOfOldRoundLeavesBoardAlone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ticket, err := f.svc.Create(f.ctx, NewTicket{Columns: []int{3}, Username: "ana"})
	require.NoError(t, err)
	require.NoError(t, f.rm.ForceStartNextGame(f.ctx))

	_, err = f.svc.UpdateStatus(f.ctx, ticket.ID, bingo.TicketPaid)
	require.NoError(t, err)
	assert.Empty(t, f.rm.Snapshot().PurchasedColumns)
}

func (f *fixture) paidTicket(t *testing.T, roundID int64, columns ...int) bingo.Ticket {
	t.Helper()
	var out bingo.Ticket
	err := f.store.WithTicketTx(f.ctx, func(tx store.TicketTx) error {
		var err error
		out, err = tx.InsertTicket(f.ctx, bingo.Ticket{
			Username: "ana",
			Columns:  bingo.NewColumns(columns...),
			Amount:   decimal.NewFromInt(200),
			Status:   bingo.TicketPaid,
			RoundID:  &roundID,
		})
		return err
	})
	require.NoError(t, err)
	return out
}

func TestRegisterWinner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.roundID(t)
	ticket := f.paidTicket(t, id, 4, 8)

	claim := WinnerClaim{Name: "ana", RoundID: id, Column: 4, TicketID: ticket.ID}

	_, err := f.svc.RegisterWinner(f.ctx, claim)
	assert.ErrorIs(t, err, bingo.ErrResultNotOfficial, "draft or missing results do not count")

	res, err := f.svc.CreateResult(f.ctx, id, 4)
	require.NoError(t, err)
	_, err = f.svc.RegisterWinner(f.ctx, claim)
	assert.ErrorIs(t, err, bingo.ErrResultNotOfficial)

	_, err = f.svc.PublishResult(f.ctx, res.ID)
	require.NoError(t, err)

	rec, err := f.svc.RegisterWinner(f.ctx, claim)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Column)
	assert.Equal(t, f.clk.Now(), rec.Timestamp)
	assert.Len(t, f.pub.find(EventWinners), 1)

	_, err = f.svc.RegisterWinner(f.ctx, claim)
	assert.ErrorIs(t, err, bingo.ErrWinnerAlreadyClaimed)
}

func TestRegisterWinnerChecksTicket(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.roundID(t)

	res, err := f.svc.CreateResult(f.ctx, id, 2)
	require.NoError(t, err)
	_, err = f.svc.PublishResult(f.ctx, res.ID)
	require.NoError(t, err)

	other := f.paidTicket(t, id, 3)
	_, err = f.svc.RegisterWinner(f.ctx, WinnerClaim{Name: "ana", RoundID: id, Column: 2, TicketID: other.ID})
	assert.ErrorIs(t, err, bingo.ErrColumnNotPurchased)

	pending, err := f.svc.Create(f.ctx, NewTicket{Columns: []int{2}, Username: "luis"})
	require.NoError(t, err)
	_, err = f.svc.RegisterWinner(f.ctx, WinnerClaim{Name: "luis", RoundID: id, Column: 2, TicketID: pending.ID})
	assert.ErrorIs(t, err, bingo.ErrTicketNotEligible)

	_, err = f.svc.RegisterWinner(f.ctx, WinnerClaim{Name: "", RoundID: id, Column: 2, TicketID: pending.ID})
	assert.ErrorIs(t, err, bingo.ErrMissingField)
}

func TestResultsNotifyAndCount(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.CreateResult(f.ctx, f.roundID(t), 16)
	assert.ErrorIs(t, err, bingo.ErrInvalidColumns)

	res, err := f.svc.CreateResult(f.ctx, f.roundID(t), 15)
	require.NoError(t, err)
	assert.Equal(t, bingo.ResultDraft, res.Status)

	drafts, err := f.store.CountResultsByStatus(f.ctx, bingo.ResultDraft)
	require.NoError(t, err)
	assert.Equal(t, 1, drafts)

	published, err := f.svc.PublishResult(f.ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, bingo.ResultPublished, published.Status)
	assert.Len(t, f.pub.find(EventResults), 2)

	_, err = f.svc.PublishResult(f.ctx, 9999)
	assert.True(t, errors.Is(err, bingo.ErrNotFound))
}

func TestRecordAndVerifyDraw(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	entry, err := f.svc.RecordDraw(f.ctx, bingo.DrawHistoryEntry{
		Pattern:     []int{1, 2, 3, 4, 5},
		Numbers:     []int{5, 4, 3, 2, 1},
		PerformedBy: "admin",
		State:       bingo.DrawVerified,
	})
	require.NoError(t, err)
	assert.Equal(t, bingo.DrawPending, entry.State, "recorded draws always start pending")
	assert.Equal(t, f.clk.Now(), entry.Timestamp)

	pending, err := f.store.CountDrawsByState(f.ctx, bingo.DrawPending)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	verified, err := f.svc.VerifyDraw(f.ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, bingo.DrawVerified, verified.State)
	assert.Len(t, f.pub.find(EventDrawHistory), 2)

	pending, err = f.store.CountDrawsByState(f.ctx, bingo.DrawPending)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}
