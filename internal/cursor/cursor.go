// Package cursor tracks keyboard focus within the derived notification list.
//
// The cursor is positional only: it holds an index and is clamped whenever
// the list changes. It never tries to follow a particular item across
// re-derivations.
package cursor

// Cursor is a focus index into a list of a given length. The zero value is
// an unfocused cursor over an empty list.
type Cursor struct {
	index  int
	length int
}

// New returns a cursor over an empty list.
func New() *Cursor {
	return &Cursor{index: -1}
}

// Index returns the focused position, or -1 when the list is empty.
func (c *Cursor) Index() int {
	if c.length == 0 {
		return -1
	}
	return c.index
}

// Len returns the list length last passed to Reset.
func (c *Cursor) Len() int { return c.length }

// Reset records a new list length and clamps the index into [0, n-1]. When
// the list becomes non-empty after being empty, focus lands on the first
// item.
func (c *Cursor) Reset(n int) {
	c.length = max(n, 0)
	switch {
	case c.length == 0:
		c.index = -1
	case c.index < 0:
		c.index = 0
	case c.index > c.length-1:
		c.index = c.length - 1
	}
}

// MoveDown advances focus by one, stopping at the last item.
func (c *Cursor) MoveDown() {
	if c.length == 0 {
		return
	}
	if c.index < c.length-1 {
		c.index++
	}
}

// MoveUp moves focus back by one, stopping at the first item.
func (c *Cursor) MoveUp() {
	if c.length == 0 {
		return
	}
	if c.index > 0 {
		c.index--
	}
}

// Set focuses i, clamped into range.
func (c *Cursor) Set(i int) {
	if c.length == 0 {
		c.index = -1
		return
	}
	c.index = min(max(i, 0), c.length-1)
}
