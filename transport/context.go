package transport

import (
	"sync"
	"time"

	"github.com/new-neon/sippet/internal/timers"
)

// DefaultIdleTimeout is the duration a ChannelContext with no pins and
// no active transactions waits before its Channel is torn down.
const DefaultIdleTimeout = 32 * time.Second

// channelContext is the network layer's per-destination bookkeeping
// around one Channel: how many callers have pinned it open, which
// transactions are currently using it, and the idle timer that tears
// it down once both drop to zero.
type channelContext struct {
	mu           sync.Mutex
	ch           Channel
	refcount     int
	txns         map[TxID]struct{}
	idleTimer    *timers.Timer
	idleTimeout  time.Duration
	onIdleExpire func()

	// connecting is set while an initial Connect is outstanding, to
	// back the InFlightToSameDestination guard.
	connecting bool
}

func newChannelContext(ch Channel, idleTimeout time.Duration, onIdleExpire func()) *channelContext {
	c := &channelContext{}
	c.init(ch, idleTimeout, onIdleExpire)
	return c
}

// init fills in a channelContext's Channel-dependent fields. Split out
// of newChannelContext so getOrCreateContext can reserve an empty
// *channelContext (marked connecting) under l.mu before the possibly
// slow factory.CreateChannel/Connect calls run, without copying the
// struct's mutex.
func (c *channelContext) init(ch Channel, idleTimeout time.Duration, onIdleExpire func()) {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	c.ch = ch
	c.txns = make(map[TxID]struct{})
	c.idleTimeout = idleTimeout
	c.onIdleExpire = onIdleExpire
}

// endConnecting clears the in-flight flag once Connect has returned,
// successfully or not.
func (c *channelContext) endConnecting() {
	c.mu.Lock()
	c.connecting = false
	c.mu.Unlock()
}

// isConnecting reports whether an initial Connect is still outstanding.
func (c *channelContext) isConnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connecting
}

// pin increments the refcount, cancelling the idle timer on a 0->1
// transition.
func (c *channelContext) pin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refcount++
	if c.refcount == 1 && c.idleTimer != nil {
		c.idleTimer.Stop()
	}
}

// unpin decrements the refcount, arming the idle timer on a 1->0
// transition if no transactions remain.
func (c *channelContext) unpin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refcount > 0 {
		c.refcount--
	}
	c.armIdleIfQuiet()
}

func (c *channelContext) addTx(id TxID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txns[id] = struct{}{}
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
}

func (c *channelContext) removeTx(id TxID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.txns, id)
	c.armIdleIfQuiet()
}

// armIdleIfQuiet starts the idle timer iff refcount==0 and no
// transactions are in flight; caller must hold c.mu.
func (c *channelContext) armIdleIfQuiet() {
	if c.refcount > 0 || len(c.txns) > 0 {
		return
	}
	if c.idleTimer == nil {
		c.idleTimer = timers.AfterFunc(c.idleTimeout, c.onIdleExpire)
		return
	}
	c.idleTimer.Reset(c.idleTimeout)
}

// quiet reports whether it is currently safe to destroy the context:
// no pins and no transactions. The idle timer's state is not checked.
func (c *channelContext) quiet() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refcount == 0 && len(c.txns) == 0
}

func (c *channelContext) txCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.txns)
}
