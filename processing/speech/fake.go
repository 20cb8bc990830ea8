package speech

import (
	"context"
	"sync"
	"time"

	"livesense/internal/models"
)

// FakeRecognizer is a Recognizer driven by Emit. It applies the same
// threshold, noise and suppression filters as the real listener.
type FakeRecognizer struct {
	Labels  []string
	LoadErr error

	mu        sync.Mutex
	loaded    bool
	cb        Callback
	cfg       ListenConfig
	sub       *Subscription
	lastFired time.Time
	listens   int
}

func NewFakeRecognizer(labels ...string) *FakeRecognizer {
	return &FakeRecognizer{Labels: labels}
}

func (f *FakeRecognizer) EnsureModelLoaded(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoadErr != nil {
		return f.LoadErr
	}
	f.loaded = true
	return nil
}

func (f *FakeRecognizer) WordLabels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Labels...)
}

func (f *FakeRecognizer) Listen(ctx context.Context, cb Callback, cfg ListenConfig) (*Subscription, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil && f.sub.active() {
		return nil, ErrAlreadyListening
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel)
	f.sub, f.cb, f.cfg = sub, cb, cfg
	f.listens++

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		f.cb = nil
		f.mu.Unlock()
		sub.finish()
	}()
	return sub, nil
}

// Emit pushes one score vector through the listener filters. It reports
// whether the callback was invoked.
func (f *FakeRecognizer) Emit(scores ...float32) bool {
	f.mu.Lock()
	cb := f.cb
	now := time.Now()
	ok := cb != nil && f.cfg.admit(scores, f.Labels, f.lastFired, now)
	if ok {
		f.lastFired = now
	}
	f.mu.Unlock()

	if ok {
		cb(models.Classification{Scores: scores})
	}
	return ok
}

// Listens counts successful Listen calls.
func (f *FakeRecognizer) Listens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listens
}

func (f *FakeRecognizer) IsListening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub != nil && f.sub.active()
}

func (f *FakeRecognizer) Close() error {
	f.mu.Lock()
	sub := f.sub
	f.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
	return nil
}
