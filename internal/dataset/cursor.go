package dataset

// Cursor walks a fixed permutation of a split, wrapping at the end. The
// permutation is never regenerated, so every cycle replays the same order.
// A Cursor is not safe for concurrent use; callers serialize draws.
type Cursor struct {
	order []int
	pos   int
}

// NewCursor starts a cursor at the beginning of order. order must be non-empty.
func NewCursor(order []int) *Cursor {
	return &Cursor{order: order}
}

// Next returns the index under the cursor and advances it by one.
func (c *Cursor) Next() int {
	idx := c.order[c.pos]
	c.pos = (c.pos + 1) % len(c.order)
	return idx
}

// Len is the cycle length.
func (c *Cursor) Len() int { return len(c.order) }

// Position is the offset of the next draw within the cycle.
func (c *Cursor) Position() int { return c.pos }

// Order returns a copy of the permutation.
func (c *Cursor) Order() []int {
	return append([]int(nil), c.order...)
}
