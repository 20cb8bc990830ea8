package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"livesense/internal/config"
)

// MediaDevices hands out running video streams, the way a host media API
// grants a camera after the permission check.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c Constraints) (VideoStreamer, error)
}

type ffmpegDevices struct {
	cfg *config.Config

	lookPath   func(string) (string, error)
	openDevice func(string) error
	newStream  func(*config.Config) (VideoStreamer, error)
}

func NewMediaDevices(cfg *config.Config) MediaDevices {
	return &ffmpegDevices{
		cfg:        cfg,
		lookPath:   exec.LookPath,
		openDevice: checkDevice,
		newStream:  NewStreamer,
	}
}

func (d *ffmpegDevices) GetUserMedia(ctx context.Context, c Constraints) (VideoStreamer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Video {
		return nil, fmt.Errorf("%w: only video streams can be requested", ErrMediaUnavailable)
	}
	if c.Audio {
		return nil, fmt.Errorf("%w: audio is captured by the speech model", ErrMediaUnavailable)
	}

	if _, err := d.lookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found: %v", ErrMediaUnavailable, err)
	}

	if d.cfg.GetSource() == config.SourceWebcam && runtime.GOOS == "linux" {
		if err := d.openDevice(d.cfg.GetWebcamDevice()); err != nil {
			return nil, err
		}
	}

	stream, err := d.newStream(d.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}

	return stream, nil
}

func checkDevice(path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	switch {
	case err == nil:
		return f.Close()
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	default:
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
}
