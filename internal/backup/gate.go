package backup

import "sync"

// Gate gives a restore exclusive ownership of the subsystem. A restore
// destroys and recreates the stores a concurrent backup would be reading, so
// backups are rejected while the gate is held.
type Gate struct {
	mu     sync.Mutex
	active bool
	target string
}

func NewGate() *Gate {
	return &Gate{}
}

// Acquire claims the gate for a restore of target. Only one restore may run
// at a time.
func (g *Gate) Acquire(target string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active {
		return ErrRestoreInProgress
	}
	g.active = true
	g.target = target
	return nil
}

func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
	g.target = ""
}

// ActiveTarget returns the backup name of the in-flight restore, if any.
// Retention cleanup uses it to shield the restore target from deletion.
func (g *Gate) ActiveTarget() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.target, g.active
}
