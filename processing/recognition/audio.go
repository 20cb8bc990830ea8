package recognition

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"livesense/internal/log"
	"livesense/internal/models"
	"livesense/internal/state"
	"livesense/processing/speech"
)

var ErrAlreadyStarted = errors.New("loop already started")

// AudioLoop publishes the top label of every delivered classification.
type AudioLoop struct {
	rec  speech.Recognizer
	cell *state.Cell
	cfg  speech.ListenConfig

	mu      sync.Mutex
	started bool
	labels  []string
	events  atomic.Int64
}

func NewAudioLoop(rec speech.Recognizer, cell *state.Cell, cfg speech.ListenConfig) *AudioLoop {
	return &AudioLoop{rec: rec, cell: cell, cfg: cfg}
}

// StartAudio starts a new audio loop and returns its subscription.
func StartAudio(ctx context.Context, rec speech.Recognizer, cell *state.Cell, cfg speech.ListenConfig) (*speech.Subscription, error) {
	return NewAudioLoop(rec, cell, cfg).Start(ctx)
}

// Start begins listening. It may be called once.
func (a *AudioLoop) Start(ctx context.Context) (*speech.Subscription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return nil, ErrAlreadyStarted
	}

	a.labels = a.rec.WordLabels()
	sub, err := a.rec.Listen(ctx, a.handle, a.cfg)
	if err != nil {
		return nil, err
	}
	a.started = true
	return sub, nil
}

func (a *AudioLoop) handle(result models.Classification) {
	idx := models.ArgMax(result.Scores)
	if idx < 0 || idx >= len(a.labels) {
		log.Warnf("audio: score index %d outside %d labels", idx, len(a.labels))
		return
	}
	label := a.labels[idx]
	a.cell.Set(label)
	a.events.Add(1)
	log.Prediction("audio", label, result.Scores[idx])
}

// Events counts published labels.
func (a *AudioLoop) Events() int { return int(a.events.Load()) }
