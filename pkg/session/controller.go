// Package session issues playback session tokens.
//
// Starting a session is the only cancellation primitive: every asynchronous
// unit of work captures the token that was current when it began and checks
// it again after each suspension point before touching shared state.
package session

import (
	"errors"
	"sync"
)

// ErrStaleSession is returned by operations that were handed a superseded token.
// It marks the designed cancellation path and is never shown to users.
var ErrStaleSession = errors.New("session superseded")

// Token identifies one playback session. Tokens grow monotonically; only the
// most recently issued one is current.
type Token uint64

// Controller hands out tokens and answers whether a token is still current.
type Controller struct {
	mu      sync.RWMutex
	current Token
	done    chan struct{}
}

// NewController creates a controller whose current token is zero.
// Zero is never returned by Begin, so it stands for "no session".
func NewController() *Controller {
	return &Controller{done: make(chan struct{})}
}

// Begin invalidates every outstanding token and returns a fresh one.
func (c *Controller) Begin() Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	close(c.done)
	c.done = make(chan struct{})
	c.current++
	return c.current
}

// IsCurrent reports whether t is the latest token.
func (c *Controller) IsCurrent(t Token) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return t != 0 && t == c.current
}

// Current returns the latest token.
func (c *Controller) Current() Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Done returns a channel that is closed once t is superseded.
// For a token that is already stale the returned channel is closed.
func (c *Controller) Done(t Token) <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if t != c.current || t == 0 {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Check returns ErrStaleSession when t is no longer current.
func (c *Controller) Check(t Token) error {
	if !c.IsCurrent(t) {
		return ErrStaleSession
	}
	return nil
}
