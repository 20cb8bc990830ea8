// Package engine owns the process-wide ONNX Runtime environment shared by the
// speech and detection models.
package engine

import (
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var ErrRuntimeMissing = errors.New("onnx runtime unavailable")

var (
	mu    sync.Mutex
	ready bool

	setLibraryPath = func(p string) { ort.SetSharedLibraryPath(p) }
	initialize     = func() error { return ort.InitializeEnvironment() }
	destroy        = func() error { return ort.DestroyEnvironment() }
)

// Ready initializes the runtime once. Later calls are no-ops while the
// environment is up.
func Ready(libPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if ready {
		return nil
	}

	if libPath != "" {
		if _, err := os.Stat(libPath); err != nil {
			return fmt.Errorf("%w: %v", ErrRuntimeMissing, err)
		}
		setLibraryPath(libPath)
	}

	if err := initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrRuntimeMissing, err)
	}

	ready = true
	return nil
}

func IsReady() bool {
	mu.Lock()
	defer mu.Unlock()
	return ready
}

func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()

	if !ready {
		return nil
	}
	ready = false
	return destroy()
}
