package engine

import "sync/atomic"

// guard is a non-blocking mutual exclusion flag. Every mutating engine
// operation must acquire it for its full duration; a second caller gets
// ErrReentrantCall instead of queueing, which keeps external token calls
// from ever interleaving with a half-applied operation.
type guard struct {
	busy atomic.Bool
}

func (g *guard) acquire() error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (g *guard) release() {
	g.busy.Store(false)
}
