package capture

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

const standartFps uint = 30

type LocalFileStreamer struct {
	*ffmpegPipe

	path string

	r_width  uint16
	r_height uint16
}

func NewLocalStreamer(path string, targetFPS uint, scaledWidht int, scaledHeight int) (*LocalFileStreamer, error) {
	w, h, err := videoDimensions(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read video dimensions: %w", err)
	}

	if targetFPS == 0 {
		targetFPS = standartFps
	}

	pipe := newFFmpegPipe(localArgs(path, targetFPS, scaledWidht, scaledHeight), scaledWidht, scaledHeight, 10)
	pipe.pace = time.Second / time.Duration(targetFPS)

	return &LocalFileStreamer{
		ffmpegPipe: pipe,
		path:       path,
		r_width:    w,
		r_height:   h,
	}, nil
}

// SourceSize is the resolution of the file before scaling.
func (ls *LocalFileStreamer) SourceSize() (uint16, uint16) {
	return ls.r_width, ls.r_height
}

func localArgs(path string, fps uint, width, height int) []string {
	args := []string{
		"-i", path,
		"-vf", scaleFilter(fps, width, height, "neighbor"),
	}
	return append(args, rawOutputArgs()...)
}

type streamInfo struct {
	Streams []struct {
		Width  uint16 `json:"width"`
		Height uint16 `json:"height"`
	} `json:"streams"`
}

func videoDimensions(path string) (uint16, uint16, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, 0, err
	}

	return parseStreamInfo(output)
}

func parseStreamInfo(output []byte) (uint16, uint16, error) {
	var data streamInfo
	if err := json.Unmarshal(output, &data); err != nil {
		return 0, 0, err
	}

	if len(data.Streams) == 0 {
		return 0, 0, fmt.Errorf("no video streams found")
	}

	return data.Streams[0].Width, data.Streams[0].Height, nil
}
