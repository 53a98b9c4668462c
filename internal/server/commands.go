package server

import (
	"context"
	"errors"
	"time"

	"github.com/lox/bingohall/internal/bingo"
	"github.com/lox/bingohall/internal/draw"
	"github.com/lox/bingohall/internal/notify"
	"github.com/lox/bingohall/internal/round"
	"github.com/lox/bingohall/internal/tickets"
)

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type)
	c.server.metrics.RecordEvent(msg.Type.String())

	svc := c.server.services()
	if svc.Rounds == nil {
		c.sendError("service_unavailable", "Game service not available")
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
	defer cancel()

	switch msg.Type {
	case MessageTypeBuyColumns, MessageTypeAdminBlockColumns:
		var data ColumnsData
		if !c.decode(msg, &data) {
			return
		}
		columns, err := bingo.ParseColumns(data.Columns)
		if err != nil {
			c.replyError(err)
			return
		}
		c.replyError(svc.Rounds.PurchaseColumns(ctx, columns))

	case MessageTypeAdminUnblockColumns:
		var data ColumnsData
		if !c.decode(msg, &data) {
			return
		}
		columns, err := bingo.ParseColumns(data.Columns)
		if err != nil {
			c.replyError(err)
			return
		}
		c.replyError(svc.Rounds.ReleaseColumns(ctx, columns))

	case MessageTypeAdminSetTimer:
		var data SetTimerData
		if !c.decode(msg, &data) {
			return
		}
		c.replyError(svc.Rounds.SetTimer(ctx, float64(data.Minutes)))

	case MessageTypeAdminStopGame:
		c.replyError(svc.Rounds.StopRound(ctx))

	case MessageTypeAdminResumeGame:
		c.replyError(svc.Rounds.ResumeRound(ctx))

	case MessageTypeAdminDeclareWinner:
		var data DeclareWinnerData
		if !c.decode(msg, &data) {
			return
		}
		err := svc.Rounds.DeclareWinner(ctx, data.Winner, data.EndedAt)
		if errors.Is(err, bingo.ErrInsufficientRevenue) {
			// Admins already received admin_error.
			return
		}
		c.replyError(err)

	case MessageTypeAdminRequestGameState:
		c.sendEvent(round.EventBoardUpdate, svc.Rounds.Snapshot())

	case MessageTypeAdminSoldOutInterval:
		var data SoldOutIntervalData
		if !c.decode(msg, &data) {
			return
		}
		c.replyError(svc.Rounds.SetSoldOutInterval(ctx, time.Duration(data.IntervalMs)*time.Millisecond))

	case MessageTypeAdminForceStart:
		c.replyError(svc.Rounds.ForceStartNextGame(ctx))

	case MessageTypeSubscribeTicket:
		var data SubscribeTicketData
		if !c.decode(msg, &data) {
			return
		}
		if data.TicketID <= 0 {
			c.sendError("invalid_message", "Ticket id must be positive")
			return
		}
		room := tickets.TicketRoom(data.TicketID)
		c.Join(room)
		c.logger.Info("Subscribed to ticket", "room", room)
		c.sendEvent(MessageTypeSubscribed, SubscribedData{Room: room})

	case MessageTypeDrawStart:
		if svc.Draw == nil {
			c.sendError("service_unavailable", "Draw service not available")
			return
		}
		svc.Draw.Start()

	case MessageTypeDrawPauseResume:
		if svc.Draw == nil {
			c.sendError("service_unavailable", "Draw service not available")
			return
		}
		svc.Draw.PauseResume()

	case MessageTypeDrawRequestState:
		if svc.Draw == nil {
			c.sendError("service_unavailable", "Draw service not available")
			return
		}
		c.sendEvent(draw.EventUpdate, svc.Draw.State())

	default:
		c.sendError("unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

// replyError reports a failed command to its sender. A nil error is ignored.
func (c *Connection) replyError(err error) {
	if err == nil {
		return
	}
	code := errorCode(err)
	if code == "internal_error" {
		c.logger.Error("Command failed", "error", err)
	}
	c.sendError(code, err.Error())
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, bingo.ErrInvalidColumns), errors.Is(err, bingo.ErrInvalidDuration), errors.Is(err, bingo.ErrMissingField):
		return "invalid_request"
	case errors.Is(err, bingo.ErrNoActiveRound):
		return "no_active_round"
	case errors.Is(err, bingo.ErrRoundFinalized):
		return "round_finalized"
	case errors.Is(err, bingo.ErrRoundSoldOut):
		return "sold_out"
	case errors.Is(err, bingo.ErrInsufficientRevenue):
		return "insufficient_revenue"
	default:
		return "internal_error"
	}
}

// greet pushes the current state to a new client: notification counts,
// the round board, then the manual draw.
func (s *Server) greet(c *Connection) {
	svc := s.services()

	if svc.Notifications != nil {
		ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
		counts := svc.Notifications.Counts(ctx)
		cancel()
		c.sendEvent(notify.EventUpdate, counts)
	}
	if svc.Rounds != nil {
		c.sendEvent(round.EventBoardUpdate, svc.Rounds.Snapshot())
	}
	if svc.Draw != nil {
		c.sendEvent(draw.EventUpdate, svc.Draw.State())
	}
}
