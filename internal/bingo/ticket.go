package bingo

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketStatus tracks a ticket through payment and printing.
type TicketStatus string

const (
	TicketPending  TicketStatus = "pendiente"
	TicketPaid     TicketStatus = "pagado"
	TicketRejected TicketStatus = "rechazado"
	TicketPrinted  TicketStatus = "impreso"
)

// Valid reports whether s is one of the known ticket statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketPending, TicketPaid, TicketRejected, TicketPrinted:
		return true
	}
	return false
}

// Confirmed reports whether the ticket counts towards round revenue.
func (s TicketStatus) Confirmed() bool {
	return s == TicketPaid || s == TicketPrinted
}

// Notifies reports whether moving to s is pushed to the ticket's subscribers.
func (s TicketStatus) Notifies() bool {
	return s == TicketPaid || s == TicketRejected || s == TicketPrinted
}

// PaymentMobile is the payment method whose references must be unique.
const PaymentMobile = "Pago Móvil"

// Ticket is a purchase of one or more columns of a round.
type Ticket struct {
	ID               int64           `json:"id"`
	UserID           *int64          `json:"user_id,omitempty"`
	Username         string          `json:"username"`
	Columns          Columns         `json:"columns"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	PaymentBank      string          `json:"payment_bank,omitempty"`
	Amount           decimal.Decimal `json:"monto"`
	Discount         decimal.Decimal `json:"discount"`
	Status           TicketStatus    `json:"status"`
	RoundID          *int64          `json:"game_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Pricing computes what a set of columns costs.
type Pricing struct {
	ColumnPrice        decimal.Decimal
	FiveColumnDiscount decimal.Decimal
}

// DefaultPricing returns 200 per column with 40 off a five column ticket.
func DefaultPricing() Pricing {
	return Pricing{
		ColumnPrice:        decimal.NewFromInt(200),
		FiveColumnDiscount: decimal.NewFromInt(40),
	}
}

// Quote returns the amount charged for columns and the discount applied.
func (p Pricing) Quote(columns Columns) (amount, discount decimal.Decimal) {
	gross := p.ColumnPrice.Mul(decimal.NewFromInt(int64(columns.Len())))
	discount = decimal.Zero
	if columns.Len() == 5 {
		discount = p.FiveColumnDiscount
	}
	return gross.Sub(discount), discount
}
