package login

import (
	"sync"

	"github.com/jmagar/cloudie-cli/internal/model"
)

// completion delivers exactly one LoginOutcome. Only the first resolve
// wins; later calls return false and change nothing.
type completion struct {
	mu    sync.Mutex
	taken bool
	ch    chan model.LoginOutcome
	fired chan struct{}
}

func newCompletion() *completion {
	return &completion{
		ch:    make(chan model.LoginOutcome, 1),
		fired: make(chan struct{}),
	}
}

func (c *completion) resolve(o model.LoginOutcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken {
		return false
	}
	c.taken = true
	c.ch <- o
	close(c.fired)
	return true
}

// outcome receives the resolved value. It is read once, by Login.
func (c *completion) outcome() <-chan model.LoginOutcome {
	return c.ch
}

// done is closed once the completion has been resolved.
func (c *completion) done() <-chan struct{} {
	return c.fired
}
