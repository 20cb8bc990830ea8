package recognition

import (
	"context"
	"image"
	"sync"

	"livesense/internal/config"
	"livesense/internal/log"
	"livesense/internal/state"
	"livesense/processing/capture"
	"livesense/processing/speech"
)

// Session loads the models and runs both loops until its context ends.
type Session struct {
	Loader  *Loader
	Display *state.Display
	Media   capture.MediaDevices
	Listen  speech.ListenConfig

	// Clock paces the video loop; nil uses a ticker at FPS.
	Clock   FrameClock
	FPS     uint
	Overlay bool
	Preview func(image.Image)

	mu    sync.Mutex
	video *VideoLoop
	audio *AudioLoop
}

func NewSession(cfg *config.Config, loader *Loader, display *state.Display, media capture.MediaDevices) *Session {
	s := cfg.Snapshot()
	return &Session{
		Loader:  loader,
		Display: display,
		Media:   media,
		Listen:  ListenConfigFrom(s.Speech),
		FPS:     s.TargetFPS,
		Overlay: s.DrawBoxes,
	}
}

func ListenConfigFrom(sc config.SpeechConfig) speech.ListenConfig {
	return speech.ListenConfig{
		ProbabilityThreshold:            sc.ProbabilityThreshold,
		OverlapFactor:                   sc.OverlapFactor,
		SuppressionTime:                 config.MillisToDuration(sc.SuppressionTimeMs),
		InvokeCallbackOnNoiseAndUnknown: sc.InvokeCallbackOnNoiseAndUnknown,
	}
}

// Run returns the load error if the models could not be acquired. Otherwise
// it blocks until ctx is done and returns nil once both loops have stopped.
func (s *Session) Run(ctx context.Context) error {
	m, err := s.Loader.Load(ctx)
	if err != nil {
		return err
	}

	audio := NewAudioLoop(m.Audio, s.Display.Audio, s.Listen)
	sub, err := audio.Start(ctx)
	if err != nil {
		log.Errorf("audio loop: %v", err)
	}

	clock := s.Clock
	if clock == nil {
		tc := NewTickerClock(s.FPS)
		defer tc.Stop()
		clock = tc
	}
	video := NewVideoLoop(VideoOptions{
		Media:    s.Media,
		Detector: m.Video,
		Cell:     s.Display.Video,
		Clock:    clock,
		Overlay:  s.Overlay,
		Preview:  s.Preview,
	})

	s.mu.Lock()
	s.audio, s.video = audio, video
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := video.Run(ctx); err != nil {
			log.Warnf("video loop stopped: %v", err)
		}
	}()

	<-ctx.Done()

	if sub != nil {
		sub.Close()
	}
	wg.Wait()

	stats := video.Stats()
	log.VideoStats(log.VideoStatsData{
		Frames:    stats.Frames,
		Detected:  stats.Detected,
		Errors:    stats.Errors,
		FPS:       stats.FPS,
		LatencyMs: float64(stats.Latency.Microseconds()) / 1000,
	})
	log.SessionEnd(audio.Events(), stats.Frames)
	return nil
}

// VideoStats reports the running video loop's statistics.
func (s *Session) VideoStats() VideoStats {
	s.mu.Lock()
	v := s.video
	s.mu.Unlock()
	if v == nil {
		return VideoStats{}
	}
	return v.Stats()
}

// VideoState reports VideoUninitialized until the loop is created.
func (s *Session) VideoState() VideoState {
	s.mu.Lock()
	v := s.video
	s.mu.Unlock()
	if v == nil {
		return VideoUninitialized
	}
	return v.State()
}
