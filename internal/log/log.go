package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogPath = "LIVESENSE_LOG_PATH"

	diagFileName       = "diagnostics_log.txt"
	predictionFileName = "predictions_log.txt"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	predictionFile *os.File
	logMu          sync.Mutex
	logReady       atomic.Bool
	pid            int
	sessionID      string
	dir            string
)

func ResolveDir(flagPath string) (string, error) {
	// --log-path flag first, then the environment, then the OS default
	for _, p := range []string{flagPath, os.Getenv(EnvLogPath)} {
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) {
			return p, nil
		}
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(wd, p), nil
	}

	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

// Init opens the log files in Dir. Until it succeeds every logging call is a
// no-op.
func Init(session string) error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()
	sessionID = session

	var err error

	diagPath := filepath.Join(dir, diagFileName)
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	predictionPath := filepath.Join(dir, predictionFileName)
	predictionFile, err = os.OpenFile(predictionPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().
		Timestamp().
		Int("pid", pid).
		Str("session", sessionID).
		Logger()

	logReady.Store(true)
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if predictionFile != nil {
		predictionFile.Close()
		predictionFile = nil
	}
	logReady.Store(false)
}

func Info(msg string) {
	if logReady.Load() {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady.Load() {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady.Load() {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady.Load() {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady.Load() {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady.Load() {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func ModelsLoaded(variant string, labels int, detector string, took time.Duration) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Str("variant", variant).
		Int("labels", labels).
		Str("detector", detector).
		Float64("load_ms", float64(took.Microseconds())/1000).
		Msg("models_loaded")
}

// Prediction appends a published label to the predictions log.
func Prediction(stream, label string, score float32) {
	if !logReady.Load() {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if predictionFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%s]\t%s\t%s\t%.3f\n",
		time.Now().Format("2006-01-02 15:04:05"), sessionID, stream, label, score)
	predictionFile.WriteString(line)
}

type VideoStatsData struct {
	Frames    int
	Detected  int
	Errors    int
	FPS       uint
	LatencyMs float64
}

func VideoStats(m VideoStatsData) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Int("frames", m.Frames).
		Int("detected", m.Detected).
		Int("errors", m.Errors).
		Uint("fps", m.FPS).
		Float64("latency_ms", m.LatencyMs).
		Msg("video_stats")
}

func SessionStart(source, detector string) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Str("source", source).
		Str("detector", detector).
		Msg("session_start")
}

func SessionEnd(audioEvents, videoFrames int) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Int("audio_events", audioEvents).
		Int("video_frames", videoFrames).
		Msg("session_end")
}
