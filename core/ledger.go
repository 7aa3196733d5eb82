package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/core/state"
	"lendcore/crypto"
	"lendcore/native/bank"
	"lendcore/native/market"
	"lendcore/storage"
)

// Action consulted for role grant and revoke operations. Market-level admin
// actions live in the market package.
const ActionManageRoles = "market.roles"

// ErrGenesisApplied rejects a second genesis on a populated store.
var ErrGenesisApplied = errors.New("core: genesis already applied")

// Ledger owns the money-market books: it serializes every state transition,
// stages each one in an overlay so failures roll back cleanly, and publishes
// an event per committed transition. Reads serve the last committed state
// without blocking behind writers.
type Ledger struct {
	db       storage.Database
	registry string
	clock    BlockClock
	log      *slog.Logger

	// opMu serializes mutating operations end to end. inCallout is raised
	// while an operation waits on a collaborator so entries arriving from
	// inside that callout fail fast instead of deadlocking.
	opMu      sync.Mutex
	inCallout atomic.Bool

	// stateMu orders overlay commits against readers: commits take the
	// write side so a view never observes half a transition.
	stateMu sync.RWMutex
	params  market.RiskParameters

	oracle    market.PriceSource
	backend   market.TokenBackend
	authority market.AccessController
	halted    atomic.Bool

	bus *events.Bus
}

// NewLedger opens the books over the given store. Previously persisted
// registry parameters are restored; a fresh store starts from the default
// risk parameters until genesis or governance says otherwise.
func NewLedger(db storage.Database, registry string, clock BlockClock) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("core: storage database required")
	}
	if clock == nil {
		return nil, errors.New("core: block clock required")
	}
	registry = strings.TrimSpace(registry)
	if registry == "" {
		return nil, errors.New("core: registry identifier required")
	}

	l := &Ledger{
		db:       db,
		registry: registry,
		clock:    clock,
		log:      slog.Default(),
		params:   market.DefaultRiskParameters(),
		bus:      events.NewBus(),
	}
	mgr := state.NewManager(db)
	l.authority = state.NewRoleAuthority(mgr)

	stored, err := mgr.GetRiskParameters(registry)
	if err != nil {
		return nil, fmt.Errorf("core: load risk parameters: %w", err)
	}
	if stored != nil {
		l.params = stored.Clone()
	}
	return l, nil
}

// SetOracle wires the price source consulted during solvency checks. Wire
// collaborators before serving traffic; setters are not synchronized against
// in-flight operations.
func (l *Ledger) SetOracle(oracle market.PriceSource) {
	if l == nil {
		return
	}
	l.oracle = oracle
}

// SetTokenBackend replaces the built-in bank with an external settlement
// backend. Passing nil restores the built-in bank. External backends settle
// outside the ledger's overlay, so they must tolerate a commit failing after
// a transfer succeeded.
func (l *Ledger) SetTokenBackend(backend market.TokenBackend) {
	if l == nil {
		return
	}
	l.backend = backend
}

// SetLogger replaces the ledger's logger.
func (l *Ledger) SetLogger(logger *slog.Logger) {
	if l == nil || logger == nil {
		return
	}
	l.log = logger
}

// RegistryID returns the registry identifier the ledger serves.
func (l *Ledger) RegistryID() string {
	if l == nil {
		return ""
	}
	return l.registry
}

// BlockHeight reports the current derived block height.
func (l *Ledger) BlockHeight() uint64 {
	if l == nil || l.clock == nil {
		return 0
	}
	return l.clock.Height()
}

// Halted reports whether the module-wide halt switch is engaged.
func (l *Ledger) Halted() bool {
	if l == nil {
		return false
	}
	return l.halted.Load()
}

// IsPaused implements the pause view consulted by the engine guard.
func (l *Ledger) IsPaused(string) bool {
	return l.Halted()
}

// SubscribeEvents registers a live feed of committed ledger events. The
// cursor names the last sequence already seen; newer events still inside the
// replay window come back as backlog.
func (l *Ledger) SubscribeEvents(ctx context.Context, cursor string) (<-chan events.Envelope, func(), []events.Envelope, error) {
	if l == nil {
		return nil, nil, nil, errors.New("core: ledger not initialised")
	}
	return l.bus.Subscribe(ctx, cursor)
}

// EventSequence reports the sequence of the most recently published event.
func (l *Ledger) EventSequence() uint64 {
	if l == nil {
		return 0
	}
	return l.bus.Sequence()
}

// acquire takes the operation lock. When the lock is held by an operation
// that is currently inside a collaborator callout, the caller is treated as
// a reentrant entry and refused instead of queued: queueing there would
// deadlock the callout's own goroutine and pile everyone else behind an
// external dependency.
func (l *Ledger) acquire() (func(), error) {
	if l.opMu.TryLock() {
		return l.opMu.Unlock, nil
	}
	if l.inCallout.Load() {
		return nil, market.ErrReentrantCall
	}
	l.opMu.Lock()
	return l.opMu.Unlock, nil
}

// calloutOracle raises the ledger's callout flag around price fetches.
type calloutOracle struct {
	flag *atomic.Bool
	src  market.PriceSource
}

func (o calloutOracle) GetUnderlyingPrice(symbol string) (*uint256.Int, error) {
	o.flag.Store(true)
	defer o.flag.Store(false)
	return o.src.GetUnderlyingPrice(symbol)
}

// calloutBackend raises the ledger's callout flag around external transfers.
type calloutBackend struct {
	flag  *atomic.Bool
	inner market.TokenBackend
}

func (b calloutBackend) TransferIn(symbol string, from, vault crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	b.flag.Store(true)
	defer b.flag.Store(false)
	return b.inner.TransferIn(symbol, from, vault, amount)
}

func (b calloutBackend) TransferOut(symbol string, vault, to crypto.Address, amount *uint256.Int) error {
	b.flag.Store(true)
	defer b.flag.Store(false)
	return b.inner.TransferOut(symbol, vault, to, amount)
}

// newEngine builds an engine over the given state for one operation.
func (l *Ledger) newEngine(mgr *state.Manager) *market.Engine {
	eng := market.NewEngine(l.registry, l.params)
	eng.SetState(mgr)
	if l.oracle != nil {
		eng.SetOracle(calloutOracle{flag: &l.inCallout, src: l.oracle})
	}
	if l.backend != nil {
		eng.SetBank(calloutBackend{flag: &l.inCallout, inner: l.backend})
	} else {
		eng.SetBank(bank.NewLedger(mgr))
	}
	eng.SetAuthority(l.authority)
	eng.SetBlockHeight(l.clock.Height())
	eng.SetPauses(l)
	return eng
}

// withWrite runs one mutating operation: stage on an overlay, commit on
// success, discard on failure, then publish the transition's events.
func (l *Ledger) withWrite(fn func(eng *market.Engine, mgr *state.Manager) ([]events.Typed, error)) error {
	if l == nil {
		return errors.New("core: ledger not initialised")
	}
	release, err := l.acquire()
	if err != nil {
		return err
	}
	defer release()

	overlay := state.NewOverlay(l.db)
	mgr := state.NewManager(overlay)
	eng := l.newEngine(mgr)

	evts, err := fn(eng, mgr)
	if err != nil {
		overlay.Discard()
		return err
	}

	l.stateMu.Lock()
	err = overlay.Commit()
	l.stateMu.Unlock()
	if err != nil {
		return fmt.Errorf("core: commit state: %w", err)
	}

	for _, evt := range evts {
		l.bus.Emit(evt)
	}
	return nil
}

// withRead serves a consistent view over the last committed state.
func (l *Ledger) withRead(fn func(eng *market.Engine, mgr *state.Manager) error) error {
	if l == nil {
		return errors.New("core: ledger not initialised")
	}
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()

	mgr := state.NewManager(l.db)
	eng := market.NewEngine(l.registry, l.params)
	eng.SetState(mgr)
	if l.oracle != nil {
		eng.SetOracle(l.oracle)
	}
	eng.SetBlockHeight(l.clock.Height())
	return fn(eng, mgr)
}
