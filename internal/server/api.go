package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lox/bingohall/internal/bingo"
	"github.com/lox/bingohall/internal/tickets"
)

const maxBodyBytes = 64 << 10

// Handler returns the HTTP routes: the websocket endpoint, health, metrics
// and the REST admin API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/tickets", s.handleCreateTicket)
		r.Patch("/tickets/{id}/status", s.handleTicketStatus)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/active-game", s.handleActiveGame)
			r.Get("/notifications", s.handleNotifications)
			r.Get("/game-config", s.handleGameConfig)
			r.Post("/game-config/set-sold-out-interval", s.handleSetSoldOutInterval)
			r.Post("/game-config/force-start-next-game", s.handleForceStart)
			r.Post("/ganadores", s.handleRegisterWinner)
			r.Post("/sorteos", s.handleRecordDraw)
			r.Post("/sorteos/{id}/verify", s.handleVerifyDraw)
			r.Post("/resultados", s.handleCreateResult)
			r.Post("/resultados/{id}/publish", s.handlePublishResult)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.ConnectionCount(),
	})
}

func (s *Server) handleActiveGame(w http.ResponseWriter, r *http.Request) {
	svc := s.services()
	if svc.Rounds == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("round manager not available"))
		return
	}
	writeJSON(w, http.StatusOK, svc.Rounds.Snapshot())
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	svc := s.services()
	if svc.Notifications == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("notifications not available"))
		return
	}
	writeJSON(w, http.StatusOK, svc.Notifications.Counts(r.Context()))
}

type gameConfigResponse struct {
	SoldOutIntervalMs int64 `json:"soldOutIntervalMs"`
}

func (s *Server) handleGameConfig(w http.ResponseWriter, r *http.Request) {
	svc := s.services()
	if svc.Rounds == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("round manager not available"))
		return
	}
	writeJSON(w, http.StatusOK, gameConfigResponse{SoldOutIntervalMs: svc.Rounds.SoldOutInterval().Milliseconds()})
}

func (s *Server) handleSetSoldOutInterval(w http.ResponseWriter, r *http.Request) {
	svc := s.services()
	if svc.Rounds == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("round manager not available"))
		return
	}
	var req SoldOutIntervalData
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := svc.Rounds.SetSoldOutInterval(r.Context(), time.Duration(req.IntervalMs)*time.Millisecond); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, gameConfigResponse{SoldOutIntervalMs: svc.Rounds.SoldOutInterval().Milliseconds()})
}

func (s *Server) handleForceStart(w http.ResponseWriter, r *http.Request) {
	svc := s.services()
	if svc.Rounds == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("round manager not available"))
		return
	}
	if err := svc.Rounds.ForceStartNextGame(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, svc.Rounds.Snapshot())
}

func (s *Server) ticketService(w http.ResponseWriter) (Tickets, bool) {
	svc := s.services()
	if svc.Tickets == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("ticket service not available"))
		return nil, false
	}
	return svc.Tickets, true
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.ticketService(w)
	if !ok {
		return
	}
	var req tickets.NewTicket
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ticket, err := svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ticket": ticket})
}

type statusRequest struct {
	Status bingo.TicketStatus `json:"status"`
}

func (s *Server) handleTicketStatus(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.ticketService(w)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ticket, err := svc.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (s *Server) handleRegisterWinner(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.ticketService(w)
	if !ok {
		return
	}
	var req tickets.WinnerClaim
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := svc.RegisterWinner(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleRecordDraw(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.ticketService(w)
	if !ok {
		return
	}
	var req bingo.DrawHistoryEntry
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Numbers) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("numeros_sorteados is required"))
		return
	}
	entry, err := svc.RecordDraw(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleVerifyDraw(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.ticketService(w)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := svc.VerifyDraw(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type resultRequest struct {
	RoundID int64 `json:"id_partida"`
	Column  int   `json:"columna_ganadora"`
}

func (s *Server) handleCreateResult(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.ticketService(w)
	if !ok {
		return
	}
	var req resultRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := svc.CreateResult(r.Context(), req.RoundID, req.Column)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handlePublishResult(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.ticketService(w)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := svc.PublishResult(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, bingo.ErrInvalidColumns),
		errors.Is(err, bingo.ErrInvalidDuration),
		errors.Is(err, bingo.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, bingo.ErrNotFound), errors.Is(err, bingo.ErrNoActiveRound):
		return http.StatusNotFound
	case errors.Is(err, bingo.ErrResultNotOfficial),
		errors.Is(err, bingo.ErrColumnNotPurchased),
		errors.Is(err, bingo.ErrTicketNotEligible),
		errors.Is(err, bingo.ErrInsufficientRevenue):
		return http.StatusForbidden
	case errors.Is(err, bingo.ErrWinnerAlreadyClaimed),
		errors.Is(err, bingo.ErrDuplicateReference),
		errors.Is(err, bingo.ErrRoundFinalized),
		errors.Is(err, bingo.ErrRoundSoldOut):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
