package ledger

import "errors"

var (
	ErrNotRegistered       = errors.New("account is not registered")
	ErrAlreadyRegistered   = errors.New("account is already registered")
	ErrInsufficientBalance = errors.New("the account doesn't have enough balance")
	ErrSameAccount         = errors.New("sender and receiver should be different")
	ErrNonPositiveAmount   = errors.New("the amount should be a positive number")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrSupplyOverflow      = errors.New("total supply overflow")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidAccountID    = errors.New("invalid account id")
	ErrInvalidMetadata     = errors.New("invalid metadata")
	ErrNotAvailable        = errors.New("not available")
)
