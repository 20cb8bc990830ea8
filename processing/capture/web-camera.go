package capture

import (
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
)

type FFmpegWebcamStreamer struct {
	*ffmpegPipe

	deviceName string
}

func NewFFmpegWebcam(deviceName string, targetFps uint, scaledWidht int, scaledHeight int) *FFmpegWebcamStreamer {
	args := webcamArgs(runtime.GOOS, deviceName, targetFps, scaledWidht, scaledHeight)

	pipe := newFFmpegPipe(args, scaledWidht, scaledHeight, 1)
	pipe.keepLatest = true

	return &FFmpegWebcamStreamer{
		ffmpegPipe: pipe,
		deviceName: deviceName,
	}
}

func (ws *FFmpegWebcamStreamer) DeviceName() string { return ws.deviceName }

func webcamArgs(goos, deviceName string, fps uint, width, height int) []string {
	var input []string
	switch goos {
	case "windows":
		input = []string{"-f", "dshow", "-i", fmt.Sprintf("video=%s", deviceName)}
	case "darwin":
		input = []string{"-f", "avfoundation", "-framerate", fmt.Sprint(fps), "-i", deviceName}
	default:
		input = []string{"-f", "v4l2", "-i", deviceName}
	}

	args := append(input, "-vf", scaleFilter(fps, width, height, ""))
	return append(args, rawOutputArgs()...)
}

var dshowVideoDevice = regexp.MustCompile(`"([^"]+)"\s+\(video\)`)

func ListCameras() ([]string, error) {
	switch runtime.GOOS {
	case "windows":
		cmd := exec.Command("ffmpeg", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		cmd.Run()
		return parseDshowDevices(stderr.String()), nil
	case "darwin":
		return []string{"0"}, nil
	default:
		cameras, err := filepath.Glob("/dev/video*")
		if err != nil {
			return nil, err
		}
		sort.Strings(cameras)
		return cameras, nil
	}
}

func parseDshowDevices(output string) []string {
	var cameras []string
	seen := make(map[string]bool)
	for _, m := range dshowVideoDevice.FindAllStringSubmatch(output, -1) {
		name := m[1]
		if name != "dummy" && !seen[name] {
			cameras = append(cameras, name)
			seen[name] = true
		}
	}
	return cameras
}
