package speech

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/spf13/afero"

	"livesense/internal/log"
	"livesense/internal/models"
	"livesense/processing/microphone"
)

const (
	VariantBrowserFFT = "BROWSER_FFT"

	BackgroundNoiseLabel = "_background_noise_"
	UnknownLabel         = "_unknown_"
)

var (
	ErrUnsupportedVariant = errors.New("unsupported recognizer variant")
	ErrAlreadyListening   = errors.New("recognizer is already listening")
)

type Callback func(result models.Classification)

type ListenConfig struct {
	// ProbabilityThreshold suppresses events whose top score is below it.
	ProbabilityThreshold float32
	// OverlapFactor is the share of spectrogram frames reused by the next
	// recognition, in [0, 1).
	OverlapFactor float32
	// SuppressionTime is the minimum gap between delivered events.
	SuppressionTime time.Duration
	// InvokeCallbackOnNoiseAndUnknown delivers events whose top label is
	// background noise or unknown.
	InvokeCallbackOnNoiseAndUnknown bool
	IncludeSpectrogram              bool
}

func DefaultListenConfig() ListenConfig {
	return ListenConfig{OverlapFactor: 0.5}
}

func (c ListenConfig) validate() error {
	if c.ProbabilityThreshold < 0 || c.ProbabilityThreshold > 1 {
		return fmt.Errorf("probability threshold %v outside [0, 1]", c.ProbabilityThreshold)
	}
	if c.OverlapFactor < 0 || c.OverlapFactor >= 1 {
		return fmt.Errorf("overlap factor %v outside [0, 1)", c.OverlapFactor)
	}
	return nil
}

// admit applies the listener filters to one score vector.
func (c ListenConfig) admit(scores []float32, labels []string, lastFired, now time.Time) bool {
	idx := models.ArgMax(scores)
	if idx < 0 || scores[idx] < c.ProbabilityThreshold {
		return false
	}
	if !c.InvokeCallbackOnNoiseAndUnknown && idx < len(labels) {
		if l := labels[idx]; l == BackgroundNoiseLabel || l == UnknownLabel {
			return false
		}
	}
	if c.SuppressionTime > 0 && !lastFired.IsZero() && now.Sub(lastFired) < c.SuppressionTime {
		return false
	}
	return true
}

type Recognizer interface {
	EnsureModelLoaded(ctx context.Context) error
	WordLabels() []string
	Listen(ctx context.Context, cb Callback, cfg ListenConfig) (*Subscription, error)
	IsListening() bool
	Close() error
}

type ScorerFactory func(modelPath string, frames, freq, numLabels int) (Scorer, error)

type Options struct {
	Mic      microphone.Context
	DeviceID string
	Features FeatureParams

	Fs         afero.Fs
	ModelPath  string
	LabelsPath string
	NewScorer  ScorerFactory
}

// BrowserFFT recognizes speech commands from dB spectrogram windows.
type BrowserFFT struct {
	opts Options

	mu     sync.Mutex
	scorer Scorer
	labels []string
	sub    *Subscription
}

func Create(variant string, opts Options) (*BrowserFFT, error) {
	if variant != VariantBrowserFFT {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVariant, variant)
	}
	if opts.Mic == nil {
		return nil, fmt.Errorf("microphone context is nil")
	}
	if err := opts.Features.Validate(); err != nil {
		return nil, err
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.NewScorer == nil {
		opts.NewScorer = NewONNXScorer
	}
	return &BrowserFFT{opts: opts}, nil
}

func (r *BrowserFFT) EnsureModelLoaded(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scorer != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	labels, err := models.LoadLabels(r.opts.Fs, r.opts.LabelsPath)
	if err != nil {
		return err
	}

	p := r.opts.Features
	scorer, err := r.opts.NewScorer(r.opts.ModelPath, p.NumFrames, p.ColumnTruncateLength, len(labels))
	if err != nil {
		return fmt.Errorf("load speech model: %w", err)
	}

	r.labels = labels
	r.scorer = scorer
	return nil
}

func (r *BrowserFFT) WordLabels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.labels...)
}

func (r *BrowserFFT) IsListening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub != nil && r.sub.active()
}

func (r *BrowserFFT) Listen(ctx context.Context, cb Callback, cfg ListenConfig) (*Subscription, error) {
	if cb == nil {
		return nil, fmt.Errorf("listen callback is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := r.EnsureModelLoaded(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil && r.sub.active() {
		return nil, ErrAlreadyListening
	}

	capture, err := r.opts.Mic.NewCapture(r.device(), microphone.CaptureConfig{
		SampleRate: r.opts.Features.SampleRate,
		Channels:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}

	l := newListener(r.opts.Features, cfg, r.labels, r.scorer, cb)
	capture.SetCallback(l.onSamples)
	if err := capture.Start(); err != nil {
		capture.Close()
		return nil, fmt.Errorf("start microphone: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel)
	r.sub = sub

	go l.run(ctx, capture, sub)

	return sub, nil
}

func (r *BrowserFFT) device() *microphone.DeviceInfo {
	if r.opts.DeviceID == "" {
		return nil
	}
	devices, err := r.opts.Mic.Devices()
	if err != nil {
		log.Warnf("listing microphones: %v", err)
		return nil
	}
	d := microphone.FindDevice(devices, r.opts.DeviceID)
	if d == nil {
		log.Warnf("microphone %q not found, using system default", r.opts.DeviceID)
	}
	return d
}

func (r *BrowserFFT) Close() error {
	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()

	if sub != nil {
		sub.Close()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scorer != nil {
		err := r.scorer.Close()
		r.scorer = nil
		return err
	}
	return nil
}

type listener struct {
	params FeatureParams
	cfg    ListenConfig
	labels []string
	scorer Scorer
	cb     Callback
	now    func() time.Time

	// touched only from the capture callback
	extractor *frameExtractor
	pending   []int16

	rows chan []float32
}

func newListener(p FeatureParams, cfg ListenConfig, labels []string, scorer Scorer, cb Callback) *listener {
	return &listener{
		params:    p,
		cfg:       cfg,
		labels:    labels,
		scorer:    scorer,
		cb:        cb,
		now:       time.Now,
		extractor: newFrameExtractor(p),
		rows:      make(chan []float32, 2*p.NumFrames),
	}
}

func (l *listener) onSamples(samples []int16) {
	l.pending = append(l.pending, samples...)
	n := l.params.FFTSize
	for len(l.pending) >= n {
		row := l.extractor.Row(l.pending[:n])
		l.pending = l.pending[n:]
		select {
		case l.rows <- row:
		default:
		}
	}
}

func (l *listener) hopFrames() int {
	hop := int(math.Round(float64(l.params.NumFrames) * float64(1-l.cfg.OverlapFactor)))
	return max(1, hop)
}

func (l *listener) run(ctx context.Context, capture microphone.CaptureDevice, sub *Subscription) {
	defer sub.finish()
	defer func() {
		capture.ClearCallback()
		capture.Stop()
		capture.Close()
	}()

	hop := l.hopFrames()
	frames := make([][]float32, 0, l.params.NumFrames)
	sinceLast := 0
	var lastFired time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case row := <-l.rows:
			if len(frames) == l.params.NumFrames {
				copy(frames, frames[1:])
				frames = frames[:len(frames)-1]
			}
			frames = append(frames, row)
			sinceLast++

			if len(frames) < l.params.NumFrames || sinceLast < hop {
				continue
			}
			sinceLast = 0

			spec := spectrogramFromRows(frames)
			scores, err := l.scorer.Predict(normalize(spec.Data))
			if err != nil {
				log.Warnf("speech inference: %v", err)
				continue
			}

			now := l.now()
			if !l.cfg.admit(scores, l.labels, lastFired, now) {
				continue
			}
			lastFired = now

			result := models.Classification{Scores: scores}
			if l.cfg.IncludeSpectrogram {
				result.Spectrogram = spec
			}
			l.cb(result)
		}
	}
}
