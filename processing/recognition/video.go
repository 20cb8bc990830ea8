package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"livesense/internal/log"
	"livesense/internal/state"
	"livesense/processing/capture"
	detector "livesense/processing/detector"
)

var ErrStreamEnded = errors.New("video stream ended")

type VideoState int32

const (
	VideoUninitialized VideoState = iota
	VideoCapturing
	VideoDetecting
	VideoFailed
	VideoStopped
)

func (s VideoState) String() string {
	switch s {
	case VideoUninitialized:
		return "uninitialized"
	case VideoCapturing:
		return "capturing"
	case VideoDetecting:
		return "detecting"
	case VideoFailed:
		return "failed"
	case VideoStopped:
		return "stopped"
	}
	return fmt.Sprintf("VideoState(%d)", int32(s))
}

type VideoStats struct {
	Frames   int
	Detected int
	Errors   int
	FPS      uint
	Latency  time.Duration
}

type VideoOptions struct {
	Media    capture.MediaDevices
	Detector detector.Detector
	Cell     *state.Cell
	Clock    FrameClock

	// Overlay draws detection boxes on the preview.
	Overlay bool
	// Preview receives a copy of every analyzed surface.
	Preview func(image.Image)
}

// VideoLoop copies the latest camera frame onto a surface once per clock tick,
// detects objects on it and publishes the first detection's class.
type VideoLoop struct {
	opts  VideoOptions
	state atomic.Int32

	mu            sync.Mutex
	stats         VideoStats
	frameCount    uint
	lastFpsUpdate time.Time
}

func NewVideoLoop(opts VideoOptions) *VideoLoop {
	return &VideoLoop{opts: opts}
}

func (v *VideoLoop) State() VideoState { return VideoState(v.state.Load()) }

func (v *VideoLoop) setState(s VideoState) { v.state.Store(int32(s)) }

func (v *VideoLoop) Stats() VideoStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// Run acquires the camera and loops until ctx is done. A rejected or missing
// camera leaves the loop in VideoFailed and nothing is published. Cancellation
// or the end of the stream leaves it in VideoStopped.
func (v *VideoLoop) Run(ctx context.Context) error {
	stream, err := v.opts.Media.GetUserMedia(ctx, capture.Constraints{Video: true})
	if err != nil {
		if ctx.Err() != nil {
			v.setState(VideoStopped)
			return nil
		}
		v.setState(VideoFailed)
		return fmt.Errorf("acquire camera: %w", err)
	}
	defer stream.Stop()

	v.setState(VideoCapturing)

	latest, err := v.firstFrame(ctx, stream)
	if err != nil {
		if errors.Is(err, ErrStreamEnded) {
			v.setState(VideoStopped)
		}
		return err
	}
	if latest == nil {
		v.setState(VideoStopped)
		return nil
	}

	b := latest.Bounds()
	surface := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	v.setState(VideoDetecting)

	v.mu.Lock()
	v.lastFpsUpdate = time.Now()
	v.mu.Unlock()

	for {
		if err := v.opts.Clock.Next(ctx); err != nil {
			v.setState(VideoStopped)
			return nil
		}

		latest, err = drainFrames(stream, latest)
		if err != nil {
			if errors.Is(err, ErrStreamEnded) {
				v.setState(VideoStopped)
			} else {
				v.setState(VideoFailed)
			}
			return err
		}

		v.cycle(ctx, surface, latest)
	}
}

// firstFrame waits for the stream's first frame, which fixes the surface size.
// It returns a nil frame when ctx ends first.
func (v *VideoLoop) firstFrame(ctx context.Context, stream capture.VideoStreamer) (image.Image, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case err, ok := <-stream.ErrorChan():
			if !ok {
				return nil, ErrStreamEnded
			}
			v.setState(VideoFailed)
			return nil, fmt.Errorf("video stream: %w", err)
		case frame, ok := <-stream.FrameChan():
			if !ok {
				return nil, ErrStreamEnded
			}
			if frame == nil || frame.Bounds().Empty() {
				continue
			}
			return frame, nil
		}
	}
}

// drainFrames returns the most recent frame available without blocking.
func drainFrames(stream capture.VideoStreamer, latest image.Image) (image.Image, error) {
	for {
		select {
		case err, ok := <-stream.ErrorChan():
			if !ok {
				return latest, ErrStreamEnded
			}
			return latest, fmt.Errorf("video stream: %w", err)
		case frame, ok := <-stream.FrameChan():
			if !ok {
				return latest, ErrStreamEnded
			}
			if frame != nil && !frame.Bounds().Empty() {
				latest = frame
			}
		default:
			return latest, nil
		}
	}
}

func (v *VideoLoop) cycle(ctx context.Context, surface *image.RGBA, frame image.Image) {
	start := time.Now()

	drawFrame(surface, frame)

	dets, err := v.opts.Detector.Detect(ctx, surface)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warnf("detection failed: %v", err)
		v.mu.Lock()
		v.stats.Errors++
		v.mu.Unlock()
		return
	}

	if len(dets) > 0 {
		v.opts.Cell.Set(dets[0].Class)
		log.Prediction("video", dets[0].Class, dets[0].Score)
	}

	if v.opts.Preview != nil {
		preview := image.NewRGBA(surface.Bounds())
		copy(preview.Pix, surface.Pix)
		if v.opts.Overlay {
			detector.DrawDetections(preview, dets)
		}
		v.opts.Preview(preview)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats.Frames++
	if len(dets) > 0 {
		v.stats.Detected++
	}
	v.stats.Latency = time.Since(start)
	v.frameCount++
	if time.Since(v.lastFpsUpdate) >= time.Second {
		v.stats.FPS = v.frameCount
		v.frameCount = 0
		v.lastFpsUpdate = time.Now()
	}
}

// drawFrame copies frame onto surface, scaling when the sizes differ.
func drawFrame(surface *image.RGBA, frame image.Image) {
	sb := surface.Bounds()
	fb := frame.Bounds()
	if fb.Size() == sb.Size() {
		draw.Draw(surface, sb, frame, fb.Min, draw.Src)
		return
	}
	scaled := imaging.Resize(frame, sb.Dx(), sb.Dy(), imaging.Linear)
	draw.Draw(surface, sb, scaled, image.Point{}, draw.Src)
}
