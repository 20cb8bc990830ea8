package capture

import (
	"errors"
	"image"
)

var (
	// ErrMediaUnavailable means the host has no usable capture backend or
	// device for the request.
	ErrMediaUnavailable = errors.New("media devices unavailable")
	// ErrPermissionDenied means the device exists but cannot be opened.
	ErrPermissionDenied = errors.New("media permission denied")
)

type VideoStreamer interface {
	Start() error
	Stop()
	FrameChan() <-chan image.Image
	ErrorChan() <-chan error
}

// Constraints selects the kinds of media requested from MediaDevices.
type Constraints struct {
	Video bool
	Audio bool
}
