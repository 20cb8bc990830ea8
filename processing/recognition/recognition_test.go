package recognition

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"livesense/internal/models"
	"livesense/internal/state"
	"livesense/processing/capture"
	detector "livesense/processing/detector"
	"livesense/processing/speech"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func listenAt(p float32) speech.ListenConfig {
	cfg := speech.DefaultListenConfig()
	cfg.ProbabilityThreshold = p
	return cfg
}

func frame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	return img
}

func TestAudioPublishesTopLabel(t *testing.T) {
	rec := speech.NewFakeRecognizer("yes", "no", "stop")
	cell := state.NewCell(state.AudioPlaceholder)

	sub, err := StartAudio(context.Background(), rec, cell, listenAt(0.7))
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	rec.Emit(0.1, 0.9, 0.05)
	if got := cell.Get(); got != "no" {
		t.Errorf("audio label = %q, want %q", got, "no")
	}
}

func TestAudioBelowThresholdKeepsPlaceholder(t *testing.T) {
	rec := speech.NewFakeRecognizer("on", "off")
	cell := state.NewCell(state.AudioPlaceholder)

	sub, err := StartAudio(context.Background(), rec, cell, listenAt(0.7))
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if rec.Emit(0.5, 0.6) {
		t.Error("callback invoked below threshold")
	}
	if got := cell.Get(); got != state.AudioPlaceholder {
		t.Errorf("audio label = %q, want placeholder", got)
	}
}

func TestAudioTiesPickFirst(t *testing.T) {
	rec := speech.NewFakeRecognizer("a", "b", "c")
	cell := state.NewCell(state.AudioPlaceholder)

	sub, err := StartAudio(context.Background(), rec, cell, listenAt(0))
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	rec.Emit(0.2, 0.4, 0.4)
	if got := cell.Get(); got != "b" {
		t.Errorf("audio label = %q, want %q", got, "b")
	}
}

func TestAudioIgnoresIndexOutsideLabels(t *testing.T) {
	rec := speech.NewFakeRecognizer("yes")
	cell := state.NewCell(state.AudioPlaceholder)

	loop := NewAudioLoop(rec, cell, listenAt(0))
	sub, err := loop.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	rec.Emit(0.1, 0.9)
	if cell.Published() {
		t.Errorf("published %q for out-of-range index", cell.Get())
	}
	if loop.Events() != 0 {
		t.Errorf("events = %d, want 0", loop.Events())
	}
}

func TestAudioStartTwice(t *testing.T) {
	rec := speech.NewFakeRecognizer("yes")
	loop := NewAudioLoop(rec, state.NewCell(""), listenAt(0))

	sub, err := loop.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if _, err := loop.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start err = %v, want ErrAlreadyStarted", err)
	}
	if rec.Listens() != 1 {
		t.Errorf("Listen calls = %d, want 1", rec.Listens())
	}
}

type videoHarness struct {
	stream *capture.FakeStreamer
	media  *capture.FakeMediaDevices
	det    *detector.FakeDetector
	clock  *ManualClock
	cell   *state.Cell
	loop   *VideoLoop

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	done    chan error
}

func newVideoHarness(t *testing.T, det *detector.FakeDetector, opts VideoOptions) *videoHarness {
	t.Helper()
	h := &videoHarness{
		stream: capture.NewFakeStreamer(),
		det:    det,
		clock:  NewManualClock(),
		cell:   state.NewCell(state.VideoPlaceholder),
		done:   make(chan error, 1),
	}
	h.media = &capture.FakeMediaDevices{Stream: h.stream}
	opts.Media = h.media
	opts.Detector = det
	opts.Cell = h.cell
	opts.Clock = h.clock
	h.loop = NewVideoLoop(opts)

	h.ctx, h.cancel = context.WithCancel(context.Background())
	t.Cleanup(h.stop)
	return h
}

func (h *videoHarness) start() {
	h.started = true
	go func() { h.done <- h.loop.Run(h.ctx) }()
}

// begin delivers the first frame and waits for the loop to size its surface.
func (h *videoHarness) begin(t *testing.T, img image.Image) {
	t.Helper()
	h.stream.Push(img)
	waitFor(t, "detecting", func() bool { return h.loop.State() == VideoDetecting })
}

// step pushes a frame and completes one detection cycle.
func (h *videoHarness) step(t *testing.T, img image.Image) {
	t.Helper()
	calls := h.det.Calls()
	h.stream.Push(img)
	if !h.clock.Tick(h.ctx) {
		t.Fatal("loop stopped")
	}
	waitFor(t, "detection cycle", func() bool { return h.det.Calls() > calls })
}

func (h *videoHarness) stop() {
	h.cancel()
	if !h.started {
		return
	}
	h.started = false
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
	}
}

func TestVideoPublishesFirstDetection(t *testing.T) {
	det := detector.NewFakeDetector([]models.Detection{
		{Class: "person", Score: 0.8},
		{Class: "dog", Score: 0.95},
	})
	h := newVideoHarness(t, det, VideoOptions{})
	h.start()

	h.begin(t, frame(32, 24))
	h.step(t, frame(32, 24))

	waitFor(t, "video label", h.cell.Published)
	if got := h.cell.Get(); got != "person" {
		t.Errorf("video label = %q, want %q", got, "person")
	}
	if h.loop.State() != VideoDetecting {
		t.Errorf("state = %v, want detecting", h.loop.State())
	}
}

func TestVideoEmptyDetectionsKeepPreviousLabel(t *testing.T) {
	det := detector.NewFakeDetector(
		[]models.Detection{{Class: "cat", Score: 0.9}},
		nil,
	)
	h := newVideoHarness(t, det, VideoOptions{})
	h.start()

	h.begin(t, frame(16, 16))
	h.step(t, frame(16, 16))
	h.step(t, frame(16, 16))
	h.step(t, frame(16, 16))

	if got := h.cell.Get(); got != "cat" {
		t.Errorf("video label = %q, want %q", got, "cat")
	}
	waitFor(t, "stats", func() bool { return h.loop.Stats().Frames == 3 })
	if s := h.loop.Stats(); s.Detected != 1 {
		t.Errorf("detected = %d, want 1", s.Detected)
	}
}

func TestVideoEmptyDetectionsKeepPlaceholder(t *testing.T) {
	h := newVideoHarness(t, detector.NewFakeDetector(nil), VideoOptions{})
	h.start()

	h.begin(t, frame(8, 8))
	h.step(t, frame(8, 8))

	if got := h.cell.Get(); got != state.VideoPlaceholder {
		t.Errorf("video label = %q, want placeholder", got)
	}
}

func TestVideoDetectionErrorSkipsCycle(t *testing.T) {
	det := detector.NewFakeDetector([]models.Detection{{Class: "car", Score: 0.7}})
	det.FailAt(0, errors.New("inference failed"))
	h := newVideoHarness(t, det, VideoOptions{})
	h.start()

	h.begin(t, frame(8, 8))
	h.step(t, frame(8, 8))
	waitFor(t, "error counted", func() bool { return h.loop.Stats().Errors == 1 })
	if h.cell.Published() {
		t.Errorf("published %q after failed detection", h.cell.Get())
	}

	h.step(t, frame(8, 8))
	waitFor(t, "recovery", h.cell.Published)
	if got := h.cell.Get(); got != "car" {
		t.Errorf("video label = %q, want %q", got, "car")
	}
}

func TestVideoScalesToFirstFrameSize(t *testing.T) {
	det := detector.NewFakeDetector(nil)
	h := newVideoHarness(t, det, VideoOptions{})
	h.start()

	h.begin(t, frame(40, 30))
	h.step(t, frame(80, 60))

	sizes := det.Sizes()
	if len(sizes) != 1 || sizes[0] != (image.Point{40, 30}) {
		t.Errorf("detector saw %v, want surface 40x30", sizes)
	}
}

func TestVideoPreviewOverlay(t *testing.T) {
	det := detector.NewFakeDetector([]models.Detection{{Class: "box", Score: 1, BBox: [4]float32{0, 0, 10, 10}}})

	var mu sync.Mutex
	var previews []image.Image
	h := newVideoHarness(t, det, VideoOptions{
		Overlay: true,
		Preview: func(img image.Image) {
			mu.Lock()
			previews = append(previews, img)
			mu.Unlock()
		},
	})
	h.start()

	h.begin(t, frame(16, 16))
	h.step(t, frame(16, 16))

	waitFor(t, "preview", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(previews) == 1
	})
	mu.Lock()
	got := previews[0].(*image.RGBA).RGBAAt(0, 0)
	mu.Unlock()
	if got != (color.RGBA{0, 255, 0, 255}) {
		t.Errorf("overlay pixel = %v, want green", got)
	}
}

func TestVideoMediaRejected(t *testing.T) {
	det := detector.NewFakeDetector([]models.Detection{{Class: "person"}})
	cell := state.NewCell(state.VideoPlaceholder)
	loop := NewVideoLoop(VideoOptions{
		Media:    &capture.FakeMediaDevices{Err: capture.ErrPermissionDenied},
		Detector: det,
		Cell:     cell,
		Clock:    NewManualClock(),
	})

	err := loop.Run(context.Background())
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("Run err = %v, want ErrPermissionDenied", err)
	}
	if loop.State() != VideoFailed {
		t.Errorf("state = %v, want failed", loop.State())
	}
	if det.Calls() != 0 {
		t.Errorf("detector called %d times", det.Calls())
	}
	if got := cell.Get(); got != state.VideoPlaceholder {
		t.Errorf("video label = %q, want placeholder", got)
	}
}

func TestVideoStreamError(t *testing.T) {
	h := newVideoHarness(t, detector.NewFakeDetector(nil), VideoOptions{})
	h.stream.Fail(errors.New("device unplugged"))

	if err := h.loop.Run(h.ctx); err == nil {
		t.Fatal("Run returned nil after stream error")
	}
	if h.loop.State() != VideoFailed {
		t.Errorf("state = %v, want failed", h.loop.State())
	}
}

func TestVideoCancelBeforeFirstFrame(t *testing.T) {
	h := newVideoHarness(t, detector.NewFakeDetector(nil), VideoOptions{})
	h.start()
	waitFor(t, "capturing", func() bool { return h.loop.State() == VideoCapturing })

	h.cancel()
	h.started = false
	select {
	case err := <-h.done:
		if err != nil {
			t.Errorf("Run err = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !h.stream.Stopped() {
		t.Error("stream not stopped")
	}
	if h.loop.State() != VideoStopped {
		t.Errorf("state = %v, want stopped", h.loop.State())
	}
}

func shade(v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestVideoAnalyzesEachNewFrame(t *testing.T) {
	det := detector.NewFakeDetector(nil)
	h := newVideoHarness(t, det, VideoOptions{})
	h.start()

	h.begin(t, shade(0x10))
	want := []uint8{0x20, 0x30, 0x40, 0x50}
	for _, v := range want {
		h.step(t, shade(v))
	}

	corners := det.Corners()
	if len(corners) != len(want) {
		t.Fatalf("detector called %d times, want %d", len(corners), len(want))
	}
	for i, v := range want {
		if corners[i].R != v {
			t.Errorf("cycle %d saw shade %#x, want %#x", i, corners[i].R, v)
		}
	}
}

func TestVideoAnalyzesNewestOfBurst(t *testing.T) {
	det := detector.NewFakeDetector(nil)
	h := newVideoHarness(t, det, VideoOptions{})
	h.start()

	h.begin(t, shade(0x10))
	h.stream.Push(shade(0x20))
	h.stream.Push(shade(0x30))
	h.step(t, shade(0x40))

	if corners := det.Corners(); len(corners) != 1 || corners[0].R != 0x40 {
		t.Errorf("detector saw %v, want only the newest frame", corners)
	}
}

func TestAudioPublishesUniqueMaximum(t *testing.T) {
	labels := []string{"up", "down", "left", "right"}
	tests := []struct {
		name   string
		scores []float32
		want   string
	}{
		{"first", []float32{0.91, 0.03, 0.03, 0.03}, "up"},
		{"second", []float32{0.1, 0.75, 0.1, 0.05}, "down"},
		{"third", []float32{0.05, 0.05, 0.8, 0.1}, "left"},
		{"last", []float32{0.0, 0.01, 0.02, 0.97}, "right"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := speech.NewFakeRecognizer(labels...)
			cell := state.NewCell(state.AudioPlaceholder)

			sub, err := StartAudio(context.Background(), rec, cell, listenAt(0.7))
			if err != nil {
				t.Fatal(err)
			}
			defer sub.Close()

			rec.Emit(tt.scores...)
			if got := cell.Get(); got != tt.want {
				t.Errorf("audio label = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVideoPublishesFirstRegardlessOfScore(t *testing.T) {
	tests := []struct {
		name string
		dets []models.Detection
		want string
	}{
		{"ascending", []models.Detection{{Class: "cup", Score: 0.3}, {Class: "bottle", Score: 0.6}, {Class: "chair", Score: 0.9}}, "cup"},
		{"descending", []models.Detection{{Class: "tv", Score: 0.9}, {Class: "laptop", Score: 0.5}}, "tv"},
		{"mixed", []models.Detection{{Class: "bird", Score: 0.4}, {Class: "cat", Score: 0.99}, {Class: "dog", Score: 0.1}}, "bird"},
		{"single", []models.Detection{{Class: "clock", Score: 0.2}}, "clock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newVideoHarness(t, detector.NewFakeDetector(tt.dets), VideoOptions{})
			h.start()

			h.begin(t, frame(8, 8))
			h.step(t, frame(8, 8))

			waitFor(t, "video label", h.cell.Published)
			if got := h.cell.Get(); got != tt.want {
				t.Errorf("video label = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVideoCancelWhileDetecting(t *testing.T) {
	h := newVideoHarness(t, detector.NewFakeDetector(nil), VideoOptions{})
	h.start()

	h.begin(t, frame(8, 8))
	h.step(t, frame(8, 8))

	h.cancel()
	h.started = false
	select {
	case err := <-h.done:
		if err != nil {
			t.Errorf("Run err = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.loop.State() != VideoStopped {
		t.Errorf("state = %v, want stopped", h.loop.State())
	}
}
