package intentions

import "sync/atomic"

// Token is a cooperative cancellation flag. A token created from a parent
// reports stopped as soon as any ancestor is stopped.
type Token struct {
	parent  *Token
	stopped atomic.Bool
}

func NewToken(parent *Token) *Token { return &Token{parent: parent} }

func (t *Token) Stop() { t.stopped.Store(true) }

func (t *Token) Stopped() bool {
	for c := t; c != nil; c = c.parent {
		if c.stopped.Load() {
			return true
		}
	}
	return false
}
