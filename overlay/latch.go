package overlay

import "sync"

// latch is the global-corruption latch (C7, spec.md §4.7): two sticky
// bits, set only on failed recovery, never cleared for the process
// lifetime.
type latch struct {
	mu         sync.Mutex
	applyFail  bool
	revertFail bool
}

func (l *latch) set() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyFail || l.revertFail
}

func (l *latch) setApplyFail() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyFail = true
}

func (l *latch) setRevertFail() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revertFail = true
}

// State reports the two latch bits, for diagnostics.
func (l *latch) State() (applyFail, revertFail bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyFail, l.revertFail
}
