package playback

import "sync/atomic"

// Cursor is the index of the page on screen. The render loop reads it on
// every frame, so writers only need to store it for the change to show.
type Cursor struct {
	v atomic.Int64
}

// Load returns the current page index.
func (c *Cursor) Load() int { return int(c.v.Load()) }

// Store moves the cursor to i.
func (c *Cursor) Store(i int) { c.v.Store(int64(i)) }
