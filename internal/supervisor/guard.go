package supervisor

import "sync/atomic"

// Guard admits at most one running game per process.
type Guard struct {
	held atomic.Bool
}

// Default is the process-wide guard shared by every launcher that is not
// given its own.
var Default = &Guard{}

// TryAcquire takes the guard, reporting false when it is already held.
func (g *Guard) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

// Release frees the guard.
func (g *Guard) Release() {
	g.held.Store(false)
}

// Held reports whether a launch currently owns the guard.
func (g *Guard) Held() bool {
	return g.held.Load()
}
