package domain

import "errors"

var (
	// ErrInvalidTransition is returned when a state machine refuses a move.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPaymentNotConfirmed guards transitions that require a paid order.
	ErrPaymentNotConfirmed = errors.New("payment has not been confirmed")
)
