// Package bingo holds the domain types shared by the round lifecycle, the
// draw engine, the ticket collaborator and the stores.
package bingo

import "time"

// RoundStatus is the persisted lifecycle status of a round.
type RoundStatus string

const (
	RoundActive    RoundStatus = "activo"
	RoundStopped   RoundStatus = "detenido"
	RoundFinalized RoundStatus = "finalizado"
)

// String returns the wire representation of the status.
func (s RoundStatus) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s RoundStatus) Valid() bool {
	switch s {
	case RoundActive, RoundStopped, RoundFinalized:
		return true
	}
	return false
}

// Round is one game instance from creation to finalization.
type Round struct {
	ID               int64       `json:"id"`
	Status           RoundStatus `json:"status"`
	PurchasedColumns Columns     `json:"purchased_columns"`
	WinningColumn    *int        `json:"winner,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	EndedAt          *time.Time  `json:"ended_at,omitempty"`
}

// SoldOut reports whether every column of the round has been purchased.
func (r Round) SoldOut() bool {
	return r.PurchasedColumns.Full()
}
