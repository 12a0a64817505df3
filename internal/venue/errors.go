package venue

import (
	"errors"

	"steptions/internal/fixedpoint"
	"steptions/internal/token"
)

// Error taxonomy. Every failure aborts the whole operation; nothing partially
// commits. Callers match with errors.Is.
var (
	ErrNotInitialized        = errors.New("venue not initialized")
	ErrAlreadyInitialized    = errors.New("venue already initialized")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientLiquidity = errors.New("insufficient unlocked liquidity")
	ErrOptionNotFound        = errors.New("option not found")
	ErrPoolNotFound          = errors.New("pool not found")
	ErrOptionNotActive       = errors.New("option not active")
	ErrOptionExpired         = errors.New("option expired")
	ErrNotOptionOwner        = errors.New("not the option owner")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrPoolNotActive         = errors.New("pool not active")
	ErrPoolAlreadyExists     = errors.New("pool already exists for asset pair")
	ErrInvalidPrice          = errors.New("price feed returned no price")
)

// Kind maps an error to its taxonomy name, used for metrics labels and API
// responses.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, ErrOptionNotFound):
		return "option_not_found"
	case errors.Is(err, ErrPoolNotFound):
		return "pool_not_found"
	case errors.Is(err, ErrOptionNotActive):
		return "option_not_active"
	case errors.Is(err, ErrOptionExpired):
		return "option_expired"
	case errors.Is(err, ErrNotOptionOwner):
		return "not_option_owner"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrPoolNotActive):
		return "pool_not_active"
	case errors.Is(err, ErrPoolAlreadyExists):
		return "pool_already_exists"
	case errors.Is(err, ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, fixedpoint.ErrOverflow):
		return "arithmetic_overflow"
	case errors.Is(err, token.ErrInsufficientBalance):
		return "transfer_failed"
	default:
		return "internal"
	}
}
