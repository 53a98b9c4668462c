package bingo

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProfitRecord stores what a finalized round earned above the jackpot.
type ProfitRecord struct {
	RoundID   int64           `json:"game_id"`
	Profit    decimal.Decimal `json:"profit"`
	CreatedAt time.Time       `json:"created_at"`
}

// WinnerRecord is a paid-out prize. At most one exists per (RoundID, Column).
type WinnerRecord struct {
	ID        int64     `json:"id"`
	Name      string    `json:"nombre_ganador"`
	RoundID   int64     `json:"id_partida"`
	Column    int       `json:"columna_ganadora"`
	Timestamp time.Time `json:"fecha"`
}

// ResultStatus is the publication state of an official result.
type ResultStatus string

const (
	ResultDraft     ResultStatus = "borrador"
	ResultPublished ResultStatus = "publicado"
)

// Result is the official winning column announced for a round.
type Result struct {
	ID      int64        `json:"id"`
	RoundID int64        `json:"id_partida"`
	Column  int          `json:"columna_ganadora"`
	Status  ResultStatus `json:"status"`
	Date    time.Time    `json:"fecha"`
}

// DrawState is the verification state of a recorded manual draw.
type DrawState string

const (
	DrawPending  DrawState = "pendiente"
	DrawVerified DrawState = "verificado"
)

// DrawHistoryEntry records a finished manual draw for later verification.
type DrawHistoryEntry struct {
	ID          int64     `json:"id"`
	Pattern     []int     `json:"patron_ganador"`
	Numbers     []int     `json:"numeros_sorteados"`
	PerformedBy string    `json:"realizado_por"`
	Timestamp   time.Time `json:"fecha"`
	State       DrawState `json:"estado"`
}
