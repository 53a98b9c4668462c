package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/bingohall/internal/bingo"
	"github.com/lox/bingohall/internal/notify"
	"github.com/lox/bingohall/internal/round"
)

func (h *hall) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.http.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h := newHall(t)

	code, body := h.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok","connections":0}`, string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	h := newHall(t)
	conn := h.dial(t)
	readUntil(t, conn, "admin_sorteo_update")

	code, body := h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "connections")
}

func TestActiveGame(t *testing.T) {
	t.Parallel()
	h := newHall(t)

	code, body := h.do(t, http.MethodGet, "/api/admin/active-game", "")
	require.Equal(t, http.StatusOK, code)
	var state round.State
	require.NoError(t, json.Unmarshal(body, &state))
	require.NotNil(t, state.CurrentGameID)
	assert.Equal(t, bingo.RoundActive, state.Status)
}

func TestSoldOutIntervalConfig(t *testing.T) {
	t.Parallel()
	h := newHall(t)

	code, body := h.do(t, http.MethodGet, "/api/admin/game-config", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"soldOutIntervalMs":600000}`, string(body))

	code, _ = h.do(t, http.MethodPost, "/api/admin/game-config/set-sold-out-interval", `{"intervalMs":500}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = h.do(t, http.MethodPost, "/api/admin/game-config/set-sold-out-interval", `{"intervalMs":30000}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"soldOutIntervalMs":30000}`, string(body))
	assert.Equal(t, 30*time.Second, h.rounds.SoldOutInterval())

	code, _ = h.do(t, http.MethodPost, "/api/admin/game-config/set-sold-out-interval", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestForceStartNextGame(t *testing.T) {
	t.Parallel()
	h := newHall(t)
	before := *h.rounds.Snapshot().CurrentGameID

	code, body := h.do(t, http.MethodPost, "/api/admin/game-config/force-start-next-game", "")
	require.Equal(t, http.StatusOK, code)
	var state round.State
	require.NoError(t, json.Unmarshal(body, &state))
	require.NotNil(t, state.CurrentGameID)
	assert.Greater(t, *state.CurrentGameID, before)
}

func TestCreateTicketAndNotifications(t *testing.T) {
	t.Parallel()
	h := newHall(t)

	code, body := h.do(t, http.MethodPost, "/api/tickets",
		`{"columns":[1,2,3,4,5],"username":"luis","payment_method":"Efectivo"}`)
	require.Equal(t, http.StatusCreated, code, string(body))
	var created struct {
		Ticket bingo.Ticket `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, bingo.TicketPending, created.Ticket.Status)
	assert.True(t, decimal.NewFromInt(960).Equal(created.Ticket.Amount), created.Ticket.Amount.String())

	code, body = h.do(t, http.MethodGet, "/api/admin/notifications", "")
	require.Equal(t, http.StatusOK, code)
	var counts notify.Counts
	require.NoError(t, json.Unmarshal(body, &counts))
	assert.Equal(t, 1, counts.Pagos)

	code, _ = h.do(t, http.MethodPost, "/api/tickets", `{"columns":[0],"username":"luis","payment_method":"Efectivo"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTicketStatusErrors(t *testing.T) {
	t.Parallel()
	h := newHall(t)

	code, _ := h.do(t, http.MethodPatch, "/api/tickets/abc/status", `{"status":"pagado"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, http.MethodPatch, "/api/tickets/99/status", `{"status":"pagado"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = h.do(t, http.MethodPatch, "/api/tickets/99/status", `{"status":"regalado"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWinnerRegistrationRequiresPublishedResult(t *testing.T) {
	t.Parallel()
	h := newHall(t)
	roundID := *h.rounds.Snapshot().CurrentGameID

	code, body := h.do(t, http.MethodPost, "/api/tickets",
		`{"columns":[7],"username":"ana","payment_method":"Efectivo","status":"pagado"}`)
	require.Equal(t, http.StatusCreated, code, string(body))
	var created struct {
		Ticket bingo.Ticket `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal(body, &created))

	claim := func() string {
		b, err := json.Marshal(map[string]any{
			"nombre_ganador":   "ana",
			"id_partida":       roundID,
			"columna_ganadora": 7,
			"ticket_id":        created.Ticket.ID,
		})
		require.NoError(t, err)
		return string(b)
	}

	code, _ = h.do(t, http.MethodPost, "/api/admin/ganadores", claim())
	assert.Equal(t, http.StatusForbidden, code, "no official result yet")

	code, body = h.do(t, http.MethodPost, "/api/admin/resultados",
		`{"id_partida":`+jsonNumber(roundID)+`,"columna_ganadora":7}`)
	require.Equal(t, http.StatusCreated, code, string(body))
	var result bingo.Result
	require.NoError(t, json.Unmarshal(body, &result))

	code, _ = h.do(t, http.MethodPost, "/api/admin/resultados/"+jsonNumber(result.ID)+"/publish", "")
	require.Equal(t, http.StatusOK, code)

	code, body = h.do(t, http.MethodPost, "/api/admin/ganadores", claim())
	require.Equal(t, http.StatusCreated, code, string(body))

	code, _ = h.do(t, http.MethodPost, "/api/admin/ganadores", claim())
	assert.Equal(t, http.StatusConflict, code)
}

func TestDrawHistoryEndpoints(t *testing.T) {
	t.Parallel()
	h := newHall(t)

	code, _ := h.do(t, http.MethodPost, "/api/admin/sorteos", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := h.do(t, http.MethodPost, "/api/admin/sorteos", `{"numeros_sorteados":[3,9,12]}`)
	require.Equal(t, http.StatusCreated, code, string(body))
	var entry bingo.DrawHistoryEntry
	require.NoError(t, json.Unmarshal(body, &entry))
	assert.Equal(t, bingo.DrawPending, entry.State)

	code, body = h.do(t, http.MethodPost, "/api/admin/sorteos/"+jsonNumber(entry.ID)+"/verify", "")
	require.Equal(t, http.StatusOK, code, string(body))
	require.NoError(t, json.Unmarshal(body, &entry))
	assert.Equal(t, bingo.DrawVerified, entry.State)

	code, _ = h.do(t, http.MethodPost, "/api/admin/sorteos/404/verify", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want int
	}{
		{bingo.ErrInvalidColumns, http.StatusBadRequest},
		{bingo.ErrNotFound, http.StatusNotFound},
		{bingo.ErrNoActiveRound, http.StatusNotFound},
		{bingo.ErrTicketNotEligible, http.StatusForbidden},
		{bingo.ErrWinnerAlreadyClaimed, http.StatusConflict},
		{bingo.ErrRoundSoldOut, http.StatusConflict},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
