package common

import "errors"

var (
	ErrModulePaused = errors.New("module paused")
	ErrReentrancy   = errors.New("reentrant call")
)

// PauseView exposes the pause state of a named module.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// ReentrancyGuard is a scoped lock around entry points that move value to
// externally controlled addresses before finalizing their own bookkeeping.
// Enter must be paired with a deferred Exit.
type ReentrancyGuard struct {
	entered bool
}

// Enter acquires the guard, failing if the guarded section is already active.
func (g *ReentrancyGuard) Enter() error {
	if g.entered {
		return ErrReentrancy
	}
	g.entered = true
	return nil
}

// Exit releases the guard.
func (g *ReentrancyGuard) Exit() {
	g.entered = false
}
