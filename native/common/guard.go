// Package common holds the halt plumbing the market engine shares with
// the ledger. Per-action pauses stay inside the engine; this guard
// covers the registry-wide switch.
package common

import "errors"

// ErrModulePaused aborts an operation whose module sits behind an
// engaged halt switch.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module's operations are halted. The
// ledger implements it over the stored registry halt flag.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the module is halted. A nil view or
// blank module passes, so engines without a wired pause source run
// unguarded.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
