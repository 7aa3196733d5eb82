package market

import (
	"sort"
	"strings"

	"github.com/holiman/uint256"

	"lendcore/crypto"
	nativecommon "lendcore/native/common"
)

const moduleName = "market"

// Access control actions consulted before administrative mutations.
const (
	ActionListMarket     = "market.list"
	ActionSetParams      = "market.params"
	ActionSetPauses      = "market.pause"
	ActionReduceReserves = "market.reserves"
)

type engineState interface {
	GetMarket(symbol string) (*Market, error)
	PutMarket(market *Market) error
	ListMarkets() ([]string, error)
	GetPosition(symbol string, addr crypto.Address) (*AccountPosition, error)
	PutPosition(symbol string, position *AccountPosition) error
	GetMembership(addr crypto.Address) ([]string, error)
	PutMembership(addr crypto.Address, symbols []string) error
}

// PriceSource supplies underlying prices as 1e18 mantissas in the registry's
// pricing unit. Implementations must fail rather than serve stale quotes.
type PriceSource interface {
	GetUnderlyingPrice(symbol string) (*uint256.Int, error)
}

// TokenBackend settles underlying token movements between accounts and pool
// vaults. TransferIn reports the amount actually received so backends that
// take a transfer fee stay consistent with pool accounting.
type TokenBackend interface {
	TransferIn(symbol string, from, vault crypto.Address, amount *uint256.Int) (*uint256.Int, error)
	TransferOut(symbol string, vault, to crypto.Address, amount *uint256.Int) error
}

// AccessController gates administrative operations.
type AccessController interface {
	IsAllowed(addr crypto.Address, action string) bool
}

// Engine orchestrates the state transitions for every listed market: supply
// and borrow accounting, interest accrual, solvency gating and liquidation.
// It is not safe for concurrent use; the owning ledger serializes calls.
type Engine struct {
	state       engineState
	registryID  string
	params      RiskParameters
	oracle      PriceSource
	bank        TokenBackend
	authority   AccessController
	blockHeight uint64
	pauses      nativecommon.PauseView
}

// NewEngine constructs an engine bound to a registry identifier and the
// shared liquidation parameters.
func NewEngine(registryID string, params RiskParameters) *Engine {
	return &Engine{
		registryID: strings.TrimSpace(registryID),
		params:     params.normalize(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOracle wires the price source consulted during solvency checks.
func (e *Engine) SetOracle(oracle PriceSource) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

// SetBank wires the token backend that settles underlying transfers.
func (e *Engine) SetBank(bank TokenBackend) {
	if e == nil {
		return
	}
	e.bank = bank
}

// SetAuthority wires the access controller consulted by admin operations.
func (e *Engine) SetAuthority(authority AccessController) {
	if e == nil {
		return
	}
	e.authority = authority
}

// SetBlockHeight records the block height used when computing accrual deltas.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.blockHeight = height
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// RegistryID returns the registry identifier markets are listed under.
func (e *Engine) RegistryID() string {
	if e == nil {
		return ""
	}
	return e.registryID
}

// Params returns a copy of the registry-wide risk parameters.
func (e *Engine) Params() RiskParameters {
	if e == nil {
		return RiskParameters{}
	}
	return e.params.Clone()
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// CanonicalSymbol returns the uppercase trimmed form markets are keyed by.
func CanonicalSymbol(symbol string) string {
	return normalizeSymbol(symbol)
}

// VaultAddress derives the module account holding a pool's underlying cash.
func VaultAddress(symbol string) crypto.Address {
	return crypto.ModuleAddress("market/vault/" + normalizeSymbol(symbol))
}

// TreasuryAddress is the module account receiving withdrawn reserves by
// default.
func TreasuryAddress() crypto.Address {
	return crypto.ModuleAddress("market/treasury")
}

// AccrueInterest settles pending interest on a single market and persists the
// result. Safe to call repeatedly within a block.
func (e *Engine) AccrueInterest(symbol string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return err
	}
	if err := e.accrueInterest(mkt); err != nil {
		return err
	}
	return e.state.PutMarket(mkt)
}

// accrueInterest advances the market's borrow index and interest totals to
// the engine's block height. The market is mutated in place and must be
// persisted by the caller.
func (e *Engine) accrueInterest(mkt *Market) error {
	if mkt == nil {
		return ErrMarketNotListed
	}
	if e.blockHeight <= mkt.AccrualBlock {
		return nil
	}
	delta := e.blockHeight - mkt.AccrualBlock

	borrowRate, err := mkt.RateModel.BorrowRatePerBlock(mkt.TotalCash, mkt.TotalBorrows, mkt.TotalReserves)
	if err != nil {
		return err
	}
	if borrowRate.Gt(maxBorrowRatePerBlock) {
		return ErrRateAbsurd
	}

	simpleInterestFactor, err := checkedMul(borrowRate, uint256.NewInt(delta))
	if err != nil {
		return err
	}
	interestAccumulated, err := expMul(simpleInterestFactor, mkt.TotalBorrows)
	if err != nil {
		return err
	}
	totalBorrows, err := checkedAdd(mkt.TotalBorrows, interestAccumulated)
	if err != nil {
		return err
	}
	reservesDelta, err := expMul(interestAccumulated, mkt.ReserveFactor)
	if err != nil {
		return err
	}
	totalReserves, err := checkedAdd(mkt.TotalReserves, reservesDelta)
	if err != nil {
		return err
	}
	indexDelta, err := expMul(simpleInterestFactor, mkt.BorrowIndex)
	if err != nil {
		return err
	}
	borrowIndex, err := checkedAdd(mkt.BorrowIndex, indexDelta)
	if err != nil {
		return err
	}

	mkt.TotalBorrows = totalBorrows
	mkt.TotalReserves = totalReserves
	mkt.BorrowIndex = borrowIndex
	mkt.AccrualBlock = e.blockHeight
	return nil
}

// Mint deposits underlying into the pool and credits freshly minted claim
// tokens priced at the post-accrual exchange rate. It returns the minted
// claim tokens and the underlying actually received.
func (e *Engine) Mint(supplier crypto.Address, symbol string, amount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if e.bank == nil {
		return nil, nil, errNilBank
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if isZero(amount) || amount.Eq(RepayMax) {
		return nil, nil, ErrInvalidAmount
	}

	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return nil, nil, err
	}
	if mkt.Pauses.Mint {
		return nil, nil, ErrMintPaused
	}
	if err := e.accrueInterest(mkt); err != nil {
		return nil, nil, err
	}

	exchangeRate, err := mkt.ExchangeRate()
	if err != nil {
		return nil, nil, err
	}
	if !isZero(mkt.SupplyCap) {
		pooled, err := expMul(mkt.TotalSupply, exchangeRate)
		if err != nil {
			return nil, nil, err
		}
		next, err := checkedAdd(pooled, amount)
		if err != nil {
			return nil, nil, err
		}
		if next.Gt(mkt.SupplyCap) {
			return nil, nil, ErrSupplyCapExceeded
		}
	}

	actual, err := e.transferIn(mkt.Symbol, supplier, amount)
	if err != nil {
		return nil, nil, err
	}
	minted, err := expDiv(actual, exchangeRate)
	if err != nil {
		return nil, nil, err
	}

	position, err := e.position(mkt.Symbol, supplier)
	if err != nil {
		return nil, nil, err
	}
	position.ClaimTokens, err = checkedAdd(position.ClaimTokens, minted)
	if err != nil {
		return nil, nil, err
	}
	mkt.TotalSupply, err = checkedAdd(mkt.TotalSupply, minted)
	if err != nil {
		return nil, nil, err
	}
	mkt.TotalCash, err = checkedAdd(mkt.TotalCash, actual)
	if err != nil {
		return nil, nil, err
	}

	if err := e.state.PutPosition(mkt.Symbol, position); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutMarket(mkt); err != nil {
		return nil, nil, err
	}
	return minted, actual, nil
}

// Redeem burns the given claim tokens and releases the corresponding
// underlying at the post-accrual exchange rate. The redeemed underlying is
// returned.
func (e *Engine) Redeem(redeemer crypto.Address, symbol string, claimTokens *uint256.Int) (*uint256.Int, error) {
	_, amount, err := e.redeem(redeemer, symbol, claimTokens, nil)
	return amount, err
}

// RedeemUnderlying releases an exact underlying amount, burning however many
// claim tokens it is currently worth. The burned token count is returned.
func (e *Engine) RedeemUnderlying(redeemer crypto.Address, symbol string, amount *uint256.Int) (*uint256.Int, error) {
	tokens, _, err := e.redeem(redeemer, symbol, nil, amount)
	return tokens, err
}

func (e *Engine) redeem(redeemer crypto.Address, symbol string, tokensIn, amountIn *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if e.bank == nil {
		return nil, nil, errNilBank
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}

	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return nil, nil, err
	}
	if err := e.accrueInterest(mkt); err != nil {
		return nil, nil, err
	}
	// Persist the accrual before the solvency walk below reloads this
	// market from state.
	if err := e.state.PutMarket(mkt); err != nil {
		return nil, nil, err
	}
	exchangeRate, err := mkt.ExchangeRate()
	if err != nil {
		return nil, nil, err
	}

	// Exactly one of tokensIn and amountIn is set. The free leg is derived
	// from the exchange rate, truncating.
	var redeemTokens, redeemAmount *uint256.Int
	switch {
	case tokensIn != nil:
		if isZero(tokensIn) || tokensIn.Eq(RepayMax) {
			return nil, nil, ErrInvalidAmount
		}
		redeemTokens = cloneInt(tokensIn)
		redeemAmount, err = expMul(redeemTokens, exchangeRate)
		if err != nil {
			return nil, nil, err
		}
	case amountIn != nil:
		if isZero(amountIn) || amountIn.Eq(RepayMax) {
			return nil, nil, ErrInvalidAmount
		}
		redeemAmount = cloneInt(amountIn)
		redeemTokens, err = expDiv(redeemAmount, exchangeRate)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, ErrInvalidAmount
	}

	member, err := e.isMember(redeemer, mkt.Symbol)
	if err != nil {
		return nil, nil, err
	}
	if member {
		liquidity, err := e.hypotheticalLiquidity(redeemer, mkt.Symbol, redeemTokens, nil)
		if err != nil {
			return nil, nil, err
		}
		if !isZero(liquidity.Shortfall) {
			return nil, nil, ErrInsufficientLiquidity
		}
	}

	if mkt.TotalCash.Lt(redeemAmount) {
		return nil, nil, ErrInsufficientCash
	}
	position, err := e.position(mkt.Symbol, redeemer)
	if err != nil {
		return nil, nil, err
	}
	if position.ClaimTokens.Lt(redeemTokens) {
		return nil, nil, ErrInsufficientBalance
	}

	position.ClaimTokens, err = checkedSub(position.ClaimTokens, redeemTokens)
	if err != nil {
		return nil, nil, err
	}
	mkt.TotalSupply, err = checkedSub(mkt.TotalSupply, redeemTokens)
	if err != nil {
		return nil, nil, err
	}
	mkt.TotalCash, err = checkedSub(mkt.TotalCash, redeemAmount)
	if err != nil {
		return nil, nil, err
	}

	if err := e.state.PutPosition(mkt.Symbol, position); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutMarket(mkt); err != nil {
		return nil, nil, err
	}
	if err := e.transferOut(mkt.Symbol, redeemer, redeemAmount); err != nil {
		return nil, nil, err
	}
	return redeemTokens, redeemAmount, nil
}

// Borrow draws underlying from the pool against the borrower's collateral.
// The borrower is entered into the market so the new debt is visible to
// subsequent solvency checks.
func (e *Engine) Borrow(borrower crypto.Address, symbol string, amount *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.bank == nil {
		return errNilBank
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if isZero(amount) || amount.Eq(RepayMax) {
		return ErrInvalidAmount
	}

	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return err
	}
	if mkt.Pauses.Borrow {
		return ErrBorrowPaused
	}
	if err := e.accrueInterest(mkt); err != nil {
		return err
	}
	// Persist the accrual before the solvency walk below reloads this
	// market from state.
	if err := e.state.PutMarket(mkt); err != nil {
		return err
	}

	// Borrowing against an unpriceable asset would blind every later
	// solvency check.
	if _, err := e.underlyingPrice(mkt.Symbol); err != nil {
		return err
	}

	if !isZero(mkt.BorrowCap) {
		next, err := checkedAdd(mkt.TotalBorrows, amount)
		if err != nil {
			return err
		}
		if next.Gt(mkt.BorrowCap) {
			return ErrBorrowCapExceeded
		}
	}

	if err := e.enterMarket(borrower, mkt.Symbol); err != nil {
		return err
	}
	liquidity, err := e.hypotheticalLiquidity(borrower, mkt.Symbol, nil, amount)
	if err != nil {
		return err
	}
	if !isZero(liquidity.Shortfall) {
		return ErrInsufficientLiquidity
	}
	if mkt.TotalCash.Lt(amount) {
		return ErrInsufficientCash
	}

	position, err := e.position(mkt.Symbol, borrower)
	if err != nil {
		return err
	}
	borrowBalance, err := mkt.BorrowBalance(position)
	if err != nil {
		return err
	}
	position.BorrowPrincipal, err = checkedAdd(borrowBalance, amount)
	if err != nil {
		return err
	}
	position.BorrowIndexSnapshot = cloneInt(mkt.BorrowIndex)

	mkt.TotalBorrows, err = checkedAdd(mkt.TotalBorrows, amount)
	if err != nil {
		return err
	}
	mkt.TotalCash, err = checkedSub(mkt.TotalCash, amount)
	if err != nil {
		return err
	}

	if err := e.state.PutPosition(mkt.Symbol, position); err != nil {
		return err
	}
	if err := e.state.PutMarket(mkt); err != nil {
		return err
	}
	return e.transferOut(mkt.Symbol, borrower, amount)
}

// Repay settles the caller's own debt. Passing RepayMax settles the full
// outstanding balance; any other amount above the balance fails loudly.
func (e *Engine) Repay(payer crypto.Address, symbol string, amount *uint256.Int) (*uint256.Int, error) {
	return e.repay(payer, payer, symbol, amount, true)
}

// RepayBehalf settles another account's debt with the payer's funds. The
// full-repay sentinel is accepted here as well.
func (e *Engine) RepayBehalf(payer, borrower crypto.Address, symbol string, amount *uint256.Int) (*uint256.Int, error) {
	return e.repay(payer, borrower, symbol, amount, true)
}

func (e *Engine) repay(payer, borrower crypto.Address, symbol string, amount *uint256.Int, allowMax bool) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if isZero(amount) {
		return nil, ErrInvalidAmount
	}

	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return nil, err
	}
	if err := e.accrueInterest(mkt); err != nil {
		return nil, err
	}

	position, err := e.position(mkt.Symbol, borrower)
	if err != nil {
		return nil, err
	}
	borrowBalance, err := mkt.BorrowBalance(position)
	if err != nil {
		return nil, err
	}
	if borrowBalance.IsZero() {
		return nil, ErrNoDebtToRepay
	}

	pay := cloneInt(amount)
	if amount.Eq(RepayMax) {
		if !allowMax {
			return nil, ErrRepayMaxForbidden
		}
		pay = cloneInt(borrowBalance)
	}
	// Overpayment is a caller bug, not a clamp site.
	if pay.Gt(borrowBalance) {
		return nil, ErrRepayExceedsDebt
	}

	actual, err := e.transferIn(mkt.Symbol, payer, pay)
	if err != nil {
		return nil, err
	}

	position.BorrowPrincipal, err = checkedSub(borrowBalance, actual)
	if err != nil {
		return nil, err
	}
	position.BorrowIndexSnapshot = cloneInt(mkt.BorrowIndex)

	mkt.TotalBorrows, err = checkedSub(mkt.TotalBorrows, actual)
	if err != nil {
		return nil, err
	}
	mkt.TotalCash, err = checkedAdd(mkt.TotalCash, actual)
	if err != nil {
		return nil, err
	}

	if err := e.state.PutPosition(mkt.Symbol, position); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(mkt); err != nil {
		return nil, err
	}
	return actual, nil
}

// TransferClaim moves claim tokens between accounts without touching pool
// cash. The sender must stay solvent as if the tokens were redeemed.
func (e *Engine) TransferClaim(from, to crypto.Address, symbol string, tokens *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if isZero(tokens) || tokens.Eq(RepayMax) {
		return ErrInvalidAmount
	}
	if from.Equal(to) {
		return ErrInvalidAmount
	}

	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return err
	}
	if mkt.Pauses.Transfer {
		return ErrTransferPaused
	}

	member, err := e.isMember(from, mkt.Symbol)
	if err != nil {
		return err
	}
	if member {
		liquidity, err := e.hypotheticalLiquidity(from, mkt.Symbol, tokens, nil)
		if err != nil {
			return err
		}
		if !isZero(liquidity.Shortfall) {
			return ErrInsufficientLiquidity
		}
	}

	fromPos, err := e.position(mkt.Symbol, from)
	if err != nil {
		return err
	}
	if fromPos.ClaimTokens.Lt(tokens) {
		return ErrInsufficientBalance
	}
	toPos, err := e.position(mkt.Symbol, to)
	if err != nil {
		return err
	}

	fromPos.ClaimTokens, err = checkedSub(fromPos.ClaimTokens, tokens)
	if err != nil {
		return err
	}
	toPos.ClaimTokens, err = checkedAdd(toPos.ClaimTokens, tokens)
	if err != nil {
		return err
	}

	if err := e.state.PutPosition(mkt.Symbol, fromPos); err != nil {
		return err
	}
	return e.state.PutPosition(mkt.Symbol, toPos)
}

// EnterMarket opts the account into using a market as collateral. Entering
// twice is a no-op.
func (e *Engine) EnterMarket(account crypto.Address, symbol string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return err
	}
	return e.enterMarket(account, mkt.Symbol)
}

// ExitMarket removes a market from the account's collateral set. The exit is
// refused while debt is outstanding in the market or when losing the
// collateral would leave the account short.
func (e *Engine) ExitMarket(account crypto.Address, symbol string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return err
	}

	member, err := e.isMember(account, mkt.Symbol)
	if err != nil {
		return err
	}
	if !member {
		return nil
	}

	position, err := e.position(mkt.Symbol, account)
	if err != nil {
		return err
	}
	borrowBalance, err := mkt.BorrowBalance(position)
	if err != nil {
		return err
	}
	if !borrowBalance.IsZero() {
		return ErrExitWithDebt
	}
	if !isZero(position.ClaimTokens) {
		liquidity, err := e.hypotheticalLiquidity(account, mkt.Symbol, position.ClaimTokens, nil)
		if err != nil {
			return err
		}
		if !isZero(liquidity.Shortfall) {
			return ErrInsufficientLiquidity
		}
	}

	symbols, err := e.membership(account)
	if err != nil {
		return err
	}
	filtered := symbols[:0]
	for _, s := range symbols {
		if s != mkt.Symbol {
			filtered = append(filtered, s)
		}
	}
	return e.state.PutMembership(account, filtered)
}

// GetMarket returns the stored market record without accruing.
func (e *Engine) GetMarket(symbol string) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.ensureMarket(symbol)
}

// Markets returns every listed market sorted by symbol.
func (e *Engine) Markets() ([]*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	symbols, err := e.state.ListMarkets()
	if err != nil {
		return nil, err
	}
	sort.Strings(symbols)
	out := make([]*Market, 0, len(symbols))
	for _, symbol := range symbols {
		mkt, err := e.ensureMarket(symbol)
		if err != nil {
			return nil, err
		}
		out = append(out, mkt)
	}
	return out, nil
}

// Membership returns the symbols the account has entered, sorted.
func (e *Engine) Membership(account crypto.Address) ([]string, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.membership(account)
}

// GetAccountSnapshot reports the account's balances in one market together
// with the stored exchange rate they price at.
func (e *Engine) GetAccountSnapshot(account crypto.Address, symbol string) (*AccountSnapshot, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return nil, err
	}
	position, err := e.position(mkt.Symbol, account)
	if err != nil {
		return nil, err
	}
	borrowBalance, err := mkt.BorrowBalance(position)
	if err != nil {
		return nil, err
	}
	exchangeRate, err := mkt.ExchangeRate()
	if err != nil {
		return nil, err
	}
	return &AccountSnapshot{
		Symbol:        mkt.Symbol,
		ClaimTokens:   cloneInt(position.ClaimTokens),
		BorrowBalance: borrowBalance,
		ExchangeRate:  exchangeRate,
	}, nil
}

// --- internal helpers ---

func (e *Engine) ensureMarket(symbol string) (*Market, error) {
	normalized := normalizeSymbol(symbol)
	if normalized == "" {
		return nil, ErrMarketNotListed
	}
	mkt, err := e.state.GetMarket(normalized)
	if err != nil {
		return nil, err
	}
	if mkt == nil {
		return nil, ErrMarketNotListed
	}
	mkt.normalize()
	return mkt, nil
}

func (e *Engine) position(symbol string, addr crypto.Address) (*AccountPosition, error) {
	position, err := e.state.GetPosition(symbol, addr)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &AccountPosition{Address: addr}
	}
	position.normalize()
	return position, nil
}

func (e *Engine) membership(addr crypto.Address) ([]string, error) {
	symbols, err := e.state.GetMembership(addr)
	if err != nil {
		return nil, err
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (e *Engine) isMember(addr crypto.Address, symbol string) (bool, error) {
	symbols, err := e.membership(addr)
	if err != nil {
		return false, err
	}
	for _, s := range symbols {
		if s == symbol {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) enterMarket(addr crypto.Address, symbol string) error {
	symbols, err := e.membership(addr)
	if err != nil {
		return err
	}
	for _, s := range symbols {
		if s == symbol {
			return nil
		}
	}
	symbols = append(symbols, symbol)
	sort.Strings(symbols)
	return e.state.PutMembership(addr, symbols)
}

func (e *Engine) underlyingPrice(symbol string) (*uint256.Int, error) {
	if e.oracle == nil {
		return nil, ErrPriceUnavailable
	}
	price, err := e.oracle.GetUnderlyingPrice(symbol)
	if err != nil {
		return nil, Wrap(ErrPriceUnavailable, err)
	}
	if isZero(price) {
		return nil, ErrPriceUnavailable
	}
	return price, nil
}

func (e *Engine) transferIn(symbol string, from crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	actual, err := e.bank.TransferIn(symbol, from, VaultAddress(symbol), amount)
	if err != nil {
		return nil, Wrap(ErrTransferFailed, err)
	}
	// Backends may skim a fee but can never credit more than requested, and
	// swallowing the whole amount leaves nothing to account for.
	if actual == nil || actual.IsZero() || actual.Gt(amount) {
		return nil, ErrTransferFailed
	}
	return cloneInt(actual), nil
}

func (e *Engine) transferOut(symbol string, to crypto.Address, amount *uint256.Int) error {
	if err := e.bank.TransferOut(symbol, VaultAddress(symbol), to, amount); err != nil {
		return Wrap(ErrTransferFailed, err)
	}
	return nil
}
