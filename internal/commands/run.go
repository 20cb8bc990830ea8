package commands

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"livesense/internal/config"
	"livesense/internal/log"
	"livesense/internal/state"
	"livesense/internal/tui"
	"livesense/internal/ui"
	"livesense/processing/capture"
	"livesense/processing/engine"
	"livesense/processing/microphone"
	"livesense/processing/recognition"
)

func setupLogging() {
	dir, err := log.ResolveDir(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return
	}
	log.SetDir(dir)
	if err := log.Init(uuid.NewString()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}
}

func openMicrophone() (microphone.Context, error) {
	if wavPath != "" {
		return microphone.NewFileContext(wavPath, true)
	}
	return microphone.NewContext()
}

func runSession(ctx context.Context) error {
	setupLogging()
	defer log.Close()

	fs := afero.NewOsFs()
	cfg, err := config.LoadConfigFile(fs, configPath)
	if err != nil {
		log.Warnf("%v, using defaults", err)
		fmt.Fprintf(os.Stderr, "Warning: %v, using defaults\n", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	mic, err := openMicrophone()
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	defer mic.Close()

	display := state.NewDisplay()
	loader := recognition.NewLoader(cfg, mic, fs)
	defer engine.Shutdown()
	defer loader.Close()

	media := capture.NewMediaDevices(cfg)
	s := cfg.Snapshot()
	log.SessionStart(string(s.ActiveSource), string(s.Detector.Backend))

	if headless {
		return runHeadless(ctx, recognition.NewSession(cfg, loader, display, media), display)
	}

	app := ui.CreateApp(cfg, fs, configPath, display, func(preview func(image.Image)) *recognition.Session {
		session := recognition.NewSession(cfg, loader, display, media)
		session.Preview = preview
		return session
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			app.Quit()
		case <-done:
		}
	}()

	app.Run()
	return nil
}

func statusOf(s *recognition.Session) tui.StatusFunc {
	return func() tui.StatusMsg {
		stats := s.VideoStats()
		return tui.StatusMsg{
			Video:   s.VideoState().String(),
			FPS:     stats.FPS,
			Latency: stats.Latency,
		}
	}
}

func runHeadless(ctx context.Context, session *recognition.Session, display *state.Display) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tui.NewProgram(display, statusOf(session))

	runErr := make(chan error, 1)
	go func() {
		err := session.Run(ctx)
		runErr <- err
		p.Quit()
	}()

	stopForward := make(chan struct{})
	go tui.Forward(p, display, stopForward)

	_, tuiErr := p.Run()
	close(stopForward)
	cancel()

	if err := <-runErr; err != nil {
		return err
	}
	return tuiErr
}
