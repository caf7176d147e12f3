package traffic

import "sync"

// Budget caps the number of external lookups allowed per tick.
// A single Budget is shared by every cache view used during one tick.
type Budget struct {
	mu     sync.Mutex
	limit  int
	used   int
	parent *Budget
}

// NewBudget creates a budget allowing limit lookups between resets.
// A negative limit is treated as zero.
func NewBudget(limit int) *Budget {
	if limit < 0 {
		limit = 0
	}
	return &Budget{limit: limit}
}

// Child returns a budget allowing at most limit lookups between its own
// resets. Every lookup it grants is also taken from b, so resetting the
// child never raises the total allowed by b.
func (b *Budget) Child(limit int) *Budget {
	c := NewBudget(limit)
	c.parent = b
	return c
}

// Reset restores the full allowance. The parent of a child budget is left
// untouched.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used = 0
}

// Take consumes one lookup. Returns false when the budget is exhausted.
func (b *Budget) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used >= b.limit {
		return false
	}
	if b.parent != nil && !b.parent.Take() {
		return false
	}
	b.used++
	return true
}

// Remaining returns how many lookups are left.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	left := b.limit - b.used
	b.mu.Unlock()
	if b.parent != nil {
		left = min(left, b.parent.Remaining())
	}
	return left
}
