package capture

import (
	"fmt"

	"livesense/internal/config"
)

func NewStreamer(t *config.Config) (VideoStreamer, error) {
	switch t.GetSource() {
	case config.SourceWebcam:
		return NewFFmpegWebcam(t.GetWebcamDevice(), t.GetFPS(), t.GetWidth(), t.GetHeight()), nil
	case config.SourceLocal:
		return NewLocalStreamer(t.GetLocalPath(), t.GetFPS(), t.GetWidth(), t.GetHeight())
	default:
		return nil, fmt.Errorf("unknown source: %s", t.GetSource())
	}
}
