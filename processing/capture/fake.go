package capture

import (
	"context"
	"image"
	"sync"
)

// FakeStreamer replays frames pushed with Push. Like the webcam streamer it
// holds only the newest unread frame.
type FakeStreamer struct {
	stopOnce sync.Once
	pushMu   sync.Mutex

	frameChan chan image.Image
	errChan   chan error

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewFakeStreamer() *FakeStreamer {
	return &FakeStreamer{
		frameChan: make(chan image.Image, 1),
		errChan:   make(chan error, 1),
	}
}

func (f *FakeStreamer) Start() error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *FakeStreamer) Stop() {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
	})
}

func (f *FakeStreamer) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// Push offers img, replacing any frame not yet taken. It never blocks.
func (f *FakeStreamer) Push(img image.Image) {
	f.pushMu.Lock()
	defer f.pushMu.Unlock()
	if f.Stopped() {
		return
	}
	offerLatest(f.frameChan, img)
}

// Fail reports a streaming error and ends the stream.
func (f *FakeStreamer) Fail(err error) {
	select {
	case f.errChan <- err:
	default:
	}
}

func (f *FakeStreamer) FrameChan() <-chan image.Image { return f.frameChan }
func (f *FakeStreamer) ErrorChan() <-chan error       { return f.errChan }

// FakeMediaDevices grants Stream, or fails with Err when it is set.
type FakeMediaDevices struct {
	Stream VideoStreamer
	Err    error

	mu    sync.Mutex
	calls int
}

func (f *FakeMediaDevices) GetUserMedia(ctx context.Context, _ Constraints) (VideoStreamer, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if err := f.Stream.Start(); err != nil {
		return nil, err
	}
	return f.Stream, nil
}

func (f *FakeMediaDevices) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
