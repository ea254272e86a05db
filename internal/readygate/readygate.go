// Package readygate provides the startup and-gate: N stores each signal
// completion once, and a callback fires exactly once when the last of them
// has. Used to hold ingress until every persisted store has finished
// loading.
package readygate

import (
	"sync"
	"sync/atomic"
)

// Gate fires its callback after Done has been called n times. Extra Done
// calls after firing are no-ops.
type Gate struct {
	remaining atomic.Int64
	once      sync.Once
	onReady   func()
}

func New(n int, onReady func()) *Gate {
	g := &Gate{onReady: onReady}
	g.remaining.Store(int64(n))
	if n <= 0 {
		g.fire()
	}
	return g
}

// Done records one signal's completion.
func (g *Gate) Done() {
	if g.remaining.Add(-1) == 0 {
		g.fire()
	}
}

// Ready reports whether the gate has fired.
func (g *Gate) Ready() bool {
	return g.remaining.Load() <= 0
}

func (g *Gate) fire() {
	g.once.Do(func() {
		if g.onReady != nil {
			g.onReady()
		}
	})
}
