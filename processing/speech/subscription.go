package speech

import (
	"context"
	"sync"
)

// Subscription is the handle of one running Listen. Close stops the stream and
// releases the microphone.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newSubscription(cancel context.CancelFunc) *Subscription {
	return &Subscription{cancel: cancel, done: make(chan struct{})}
}

// Close cancels the stream and waits until the microphone is released.
func (s *Subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// Done is closed once the stream has fully stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Subscription) finish() {
	s.once.Do(func() { close(s.done) })
}
