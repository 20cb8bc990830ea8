package state

import "sync"

// Cell holds one displayed result. It has a single writer (its loop) and any
// number of readers. Until the first Set, Get reports the placeholder.
type Cell struct {
	mu          sync.RWMutex
	placeholder string
	value       string
	set         bool
	version     uint64
	watchers    map[int]chan string
	nextID      int
}

func NewCell(placeholder string) *Cell {
	return &Cell{
		placeholder: placeholder,
		watchers:    make(map[int]chan string),
	}
}

// Get returns the current label, or the placeholder if nothing was published.
func (c *Cell) Get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.set {
		return c.placeholder
	}
	return c.value
}

// Published reports whether Set has been called at least once.
func (c *Cell) Published() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set
}

// Version counts Set calls.
func (c *Cell) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Cell) Set(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = v
	c.set = true
	c.version++

	for _, ch := range c.watchers {
		// latest wins: drop the stale pending value
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Watch returns a channel receiving every new value (coalesced if the reader
// falls behind) and a cancel func that closes it.
func (c *Cell) Watch() (<-chan string, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	ch := make(chan string, 1)
	c.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}
