package state

import "errors"

// ErrInsufficientBalance is returned when a transfer or escrow lock would
// overdraw the payer's free balance.
var ErrInsufficientBalance = errors.New("state: insufficient balance")
