package processing

import (
	"context"
	"image"
	"image/color"
	"sync"

	"livesense/internal/models"
)

// FakeDetector returns queued results in order, repeating the last one.
type FakeDetector struct {
	mu      sync.Mutex
	results [][]models.Detection
	errs    []error
	calls   int
	sizes   []image.Point
	corners []color.RGBA
	closed  bool
}

func NewFakeDetector(results ...[]models.Detection) *FakeDetector {
	return &FakeDetector{results: results}
}

// FailAt makes call n (0-based) return err.
func (f *FakeDetector) FailAt(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.errs) <= n {
		f.errs = append(f.errs, nil)
	}
	f.errs[n] = err
}

func (f *FakeDetector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.calls
	f.calls++
	f.sizes = append(f.sizes, img.Bounds().Size())
	origin := img.Bounds().Min
	f.corners = append(f.corners, color.RGBAModel.Convert(img.At(origin.X, origin.Y)).(color.RGBA))

	if n < len(f.errs) && f.errs[n] != nil {
		return nil, f.errs[n]
	}
	if len(f.results) == 0 {
		return nil, nil
	}
	return f.results[min(n, len(f.results)-1)], nil
}

func (f *FakeDetector) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Sizes reports the frame size seen by each call.
func (f *FakeDetector) Sizes() []image.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]image.Point(nil), f.sizes...)
}

// Corners reports the top-left pixel of each frame seen.
func (f *FakeDetector) Corners() []color.RGBA {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]color.RGBA(nil), f.corners...)
}

func (f *FakeDetector) Name() string { return "fake" }

func (f *FakeDetector) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
