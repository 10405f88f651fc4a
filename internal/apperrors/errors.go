package apperrors

import (
	"errors"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountInactive = errors.New("account is inactive or blocked")
	ErrInvalidToken    = errors.New("access token is invalid or expired")
	ErrForbidden       = errors.New("operation is not permitted")

	ErrInvalidAmount       = errors.New("amount must be a non-zero integer")
	ErrBalanceInsufficient = errors.New("insufficient balance")
	ErrLedgerMismatch      = errors.New("balance does not match ledger sum")

	ErrInvalidReward         = errors.New("unknown reward type")
	ErrRequirementNotMet     = errors.New("reward requirement not met")
	ErrOnCooldown            = errors.New("reward is on cooldown")
	ErrDailyLimitReached     = errors.New("daily reward limit reached")
	ErrReferenceLimitReached = errors.New("reward already claimed for this reference")

	ErrCartEmpty           = errors.New("cart is empty")
	ErrInvalidItem         = errors.New("catalog item not found")
	ErrInvalidQuantity     = errors.New("invalid item quantity")
	ErrItemUnavailable     = errors.New("catalog item is unavailable")
	ErrStockInsufficient   = errors.New("insufficient stock")
	ErrReservationConflict = errors.New("stock reservation lost a concurrent update, retry")

	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotCancellable = errors.New("order can not be cancelled")

	ErrSelfReferral        = errors.New("can not apply own referral code")
	ErrAlreadyReferred     = errors.New("referral code already applied")
	ErrInvalidReferralCode = errors.New("referral code not found")
	ErrReferrerInactive    = errors.New("referrer account is inactive")
)

// Stable error codes exposed to clients
// Order matters: the first matched sentinel wins, so wrapping errors go first
var codes = []struct {
	err  error
	code string
}{
	{ErrReservationConflict, "RESERVATION_CONFLICT"},
	{ErrAccountNotFound, "ACCOUNT_NOT_FOUND"},
	{ErrAccountInactive, "ACCOUNT_INACTIVE"},
	{ErrInvalidToken, "UNAUTHORIZED"},
	{ErrForbidden, "FORBIDDEN"},
	{ErrInvalidAmount, "INVALID_AMOUNT"},
	{ErrBalanceInsufficient, "INSUFFICIENT_BALANCE"},
	{ErrLedgerMismatch, "LEDGER_MISMATCH"},
	{ErrInvalidReward, "INVALID_REWARD"},
	{ErrRequirementNotMet, "REQUIREMENT_NOT_MET"},
	{ErrOnCooldown, "ON_COOLDOWN"},
	{ErrDailyLimitReached, "DAILY_LIMIT_REACHED"},
	{ErrReferenceLimitReached, "REFERENCE_LIMIT_REACHED"},
	{ErrCartEmpty, "EMPTY_CART"},
	{ErrInvalidItem, "INVALID_ITEM"},
	{ErrInvalidQuantity, "INVALID_QUANTITY"},
	{ErrItemUnavailable, "ITEM_UNAVAILABLE"},
	{ErrStockInsufficient, "INSUFFICIENT_STOCK"},
	{ErrOrderNotFound, "ORDER_NOT_FOUND"},
	{ErrOrderNotCancellable, "ORDER_NOT_CANCELLABLE"},
	{ErrSelfReferral, "SELF_REFERRAL"},
	{ErrAlreadyReferred, "ALREADY_REFERRED"},
	{ErrInvalidReferralCode, "INVALID_REFERRAL_CODE"},
	{ErrReferrerInactive, "REFERRER_INACTIVE"},
}

const CodeInternal = "INTERNAL"

// Code returns the client facing code of the well known error
// CodeInternal is returned for everything else
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
