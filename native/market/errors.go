package market

import "errors"

// Code classifies engine failures so transport layers can map them onto
// stable wire codes without string matching.
type Code string

const (
	CodeArithmetic            Code = "arithmetic"
	CodeMarketNotListed       Code = "market_not_listed"
	CodeMarketPaused          Code = "market_paused"
	CodeInsufficientLiquidity Code = "insufficient_liquidity"
	CodeInsufficientShortfall Code = "insufficient_shortfall"
	CodeInsufficientCash      Code = "insufficient_cash"
	CodeInsufficientBalance   Code = "insufficient_balance"
	CodeCapExceeded           Code = "cap_exceeded"
	CodePrice                 Code = "price_unavailable"
	CodeTransferFailed        Code = "transfer_failed"
	CodeUnauthorized          Code = "unauthorized"
	CodeRegistryMismatch      Code = "registry_mismatch"
	CodeMembership            Code = "membership"
	CodeInvalidParameter      Code = "invalid_parameter"
	CodeReentrancy            Code = "reentrancy"
	CodeInternal              Code = "internal"
)

// Error is the failure type surfaced by every engine operation. Sentinels
// below are compared with errors.Is; wrapped causes unwrap normally.
type Error struct {
	code Code
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Code returns the classification attached to the error.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

// Is matches sentinels by code and message so variants built with Wrap still
// satisfy errors.Is checks against the bare sentinel.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == other.code && e.msg == other.msg
}

func newError(code Code, msg string) *Error {
	return &Error{code: code, msg: "market engine: " + msg}
}

// Wrap attaches a cause to a sentinel while preserving its classification.
func Wrap(sentinel *Error, cause error) error {
	if sentinel == nil {
		return cause
	}
	if cause == nil {
		return sentinel
	}
	return &Error{code: sentinel.code, msg: sentinel.msg, err: cause}
}

// CodeOf extracts the engine classification from an error chain. Errors that
// did not originate in the engine classify as CodeInternal.
func CodeOf(err error) Code {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Code()
	}
	return CodeInternal
}

var (
	errNilState = newError(CodeInternal, "state not configured")
	errNilBank  = newError(CodeInternal, "token backend not configured")
)

// Arithmetic faults. Operations abort rather than wrap or clamp.
var (
	ErrMathOverflow     = newError(CodeArithmetic, "arithmetic overflow")
	ErrMathUnderflow    = newError(CodeArithmetic, "arithmetic underflow")
	ErrMathDivideByZero = newError(CodeArithmetic, "division by zero")
	ErrRateAbsurd       = newError(CodeArithmetic, "borrow rate exceeds sanity bound")
)

// Listing and pause failures.
var (
	ErrMarketNotListed     = newError(CodeMarketNotListed, "market not listed")
	ErrMarketAlreadyListed = newError(CodeInvalidParameter, "market already listed")
	ErrMintPaused          = newError(CodeMarketPaused, "mint paused")
	ErrBorrowPaused        = newError(CodeMarketPaused, "borrow paused")
	ErrTransferPaused      = newError(CodeMarketPaused, "transfer paused")
	ErrSeizePaused         = newError(CodeMarketPaused, "seize paused")
)

// Balance and liquidity failures.
var (
	ErrInvalidAmount       = newError(CodeInvalidParameter, "amount must be positive")
	ErrInsufficientBalance = newError(CodeInsufficientBalance, "insufficient balance")
	ErrInsufficientCash    = newError(CodeInsufficientCash, "insufficient market cash")
	// ErrInsufficientLiquidity reports that the account's collateral cannot
	// absorb the requested redeem or borrow.
	ErrInsufficientLiquidity = newError(CodeInsufficientLiquidity, "insufficient account liquidity")
	// ErrInsufficientShortfall reports a liquidation attempt against a
	// healthy account.
	ErrInsufficientShortfall = newError(CodeInsufficientShortfall, "account not eligible for liquidation")
	ErrSupplyCapExceeded     = newError(CodeCapExceeded, "supply cap exceeded")
	ErrBorrowCapExceeded     = newError(CodeCapExceeded, "borrow cap exceeded")
)

// Collaborator failures.
var (
	// ErrReentrantCall reports an entry into the books while another
	// operation is still mid flight through a collaborator.
	ErrReentrantCall    = newError(CodeReentrancy, "reentrant call rejected")
	ErrPriceUnavailable = newError(CodePrice, "oracle price unavailable")
	ErrTransferFailed   = newError(CodeTransferFailed, "token transfer failed")
	ErrUnauthorized     = newError(CodeUnauthorized, "caller not authorized")
	// ErrRegistryMismatch guards cross-market settlement between pools that
	// do not share a registry.
	ErrRegistryMismatch = newError(CodeRegistryMismatch, "markets registered under different registries")
)

// Borrow, repay, membership and liquidation failures.
var (
	ErrExitWithDebt      = newError(CodeMembership, "cannot exit market with outstanding debt")
	ErrNoDebtToRepay     = newError(CodeInvalidParameter, "no outstanding debt to repay")
	ErrRepayExceedsDebt  = newError(CodeArithmetic, "repay amount exceeds outstanding debt")
	ErrSelfLiquidation   = newError(CodeInvalidParameter, "borrower cannot liquidate own position")
	ErrTooMuchRepay      = newError(CodeInvalidParameter, "repay amount exceeds close factor limit")
	ErrTooMuchSeize      = newError(CodeInsufficientBalance, "seize amount exceeds collateral balance")
	ErrRepayMaxForbidden = newError(CodeInvalidParameter, "full-repay sentinel not accepted here")
)

// Parameter bound failures raised by admin setters.
var (
	ErrCollateralFactorBounds     = newError(CodeInvalidParameter, "collateral factor above maximum")
	ErrCloseFactorBounds          = newError(CodeInvalidParameter, "close factor outside allowed range")
	ErrLiquidationIncentiveBounds = newError(CodeInvalidParameter, "liquidation incentive outside allowed range")
	ErrReserveFactorBounds        = newError(CodeInvalidParameter, "reserve factor above maximum")
	ErrSeizeShareBounds           = newError(CodeInvalidParameter, "protocol seize share above maximum")
)
