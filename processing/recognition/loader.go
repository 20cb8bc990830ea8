package recognition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"

	"livesense/internal/config"
	"livesense/internal/log"
	detector "livesense/processing/detector"
	"livesense/processing/engine"
	"livesense/processing/microphone"
	"livesense/processing/speech"
)

// Models are the two handles owned by a session.
type Models struct {
	Audio speech.Recognizer
	Video detector.Detector
}

// Loader acquires both models once. Every Load after the first returns the
// same handles, or the same error.
type Loader struct {
	Runtime       func() error
	NewRecognizer func(ctx context.Context) (speech.Recognizer, error)
	NewDetector   func(ctx context.Context) (detector.Detector, error)

	once   sync.Once
	models *Models
	err    error
}

func NewLoader(cfg *config.Config, mic microphone.Context, fs afero.Fs) *Loader {
	s := cfg.Snapshot()
	return &Loader{
		Runtime: func() error { return engine.Ready(s.RuntimeLibrary) },
		NewRecognizer: func(ctx context.Context) (speech.Recognizer, error) {
			return newBrowserFFT(ctx, s.Speech, mic, fs)
		},
		NewDetector: func(ctx context.Context) (detector.Detector, error) {
			return detector.New(ctx, s.Detector, fs)
		},
	}
}

func newBrowserFFT(ctx context.Context, sc config.SpeechConfig, mic microphone.Context, fs afero.Fs) (speech.Recognizer, error) {
	rec, err := speech.Create(sc.Variant, speech.Options{
		Mic:      mic,
		DeviceID: sc.DeviceID,
		Features: speech.FeatureParams{
			SampleRate:           sc.SampleRate,
			FFTSize:              sc.FFTSize,
			NumFrames:            sc.NumFrames,
			ColumnTruncateLength: sc.ColumnTruncateLength,
		},
		Fs:         fs,
		ModelPath:  sc.ModelPath,
		LabelsPath: sc.LabelsPath,
	})
	if err != nil {
		return nil, err
	}
	if err := rec.EnsureModelLoaded(ctx); err != nil {
		rec.Close()
		return nil, err
	}
	return rec, nil
}

func (l *Loader) Load(ctx context.Context) (*Models, error) {
	l.once.Do(func() {
		l.models, l.err = l.load(ctx)
		if l.err != nil {
			log.Errorf("error loading models: %v", l.err)
		}
	})
	return l.models, l.err
}

func (l *Loader) load(ctx context.Context) (*Models, error) {
	start := time.Now()

	if l.Runtime != nil {
		if err := l.Runtime(); err != nil {
			return nil, err
		}
	}

	audio, err := l.NewRecognizer(ctx)
	if err != nil {
		return nil, fmt.Errorf("load speech model: %w", err)
	}

	video, err := l.NewDetector(ctx)
	if err != nil {
		audio.Close()
		return nil, fmt.Errorf("load detection model: %w", err)
	}

	log.ModelsLoaded(speech.VariantBrowserFFT, len(audio.WordLabels()), video.Name(), time.Since(start))
	return &Models{Audio: audio, Video: video}, nil
}

// Close releases the models if they were loaded.
func (l *Loader) Close() error {
	if l.models == nil {
		return nil
	}
	aerr := l.models.Audio.Close()
	verr := l.models.Video.Close()
	if aerr != nil {
		return aerr
	}
	return verr
}
