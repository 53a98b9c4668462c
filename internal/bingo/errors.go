package bingo

import "errors"

var (
	ErrInvalidColumns       = errors.New("invalid columns")
	ErrNoActiveRound        = errors.New("no active round")
	ErrRoundFinalized       = errors.New("round already finalized")
	ErrRoundSoldOut         = errors.New("round is sold out")
	ErrInvalidDuration      = errors.New("invalid duration")
	ErrInsufficientRevenue  = errors.New("round revenue does not cover the jackpot")
	ErrWinnerAlreadyClaimed = errors.New("prize already claimed for this round and column")
	ErrResultNotOfficial    = errors.New("column is not an official result for this round")
	ErrColumnNotPurchased   = errors.New("column was not purchased by this ticket")
	ErrTicketNotEligible    = errors.New("ticket is not paid or printed")
	ErrDuplicateReference   = errors.New("payment reference already registered")
	ErrNotFound             = errors.New("not found")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrMissingField         = errors.New("missing required field")
)
