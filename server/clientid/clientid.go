// Package clientid allocates the numeric client ids handed out at hello
// time.
package clientid

import "sync/atomic"

// Allocator hands out monotonically increasing ids starting at 1. Each
// registry owns its own sequence so tests do not share state.
type Allocator struct {
	counter atomic.Int32
}

func (a *Allocator) Next() int32 {
	return a.counter.Add(1)
}
