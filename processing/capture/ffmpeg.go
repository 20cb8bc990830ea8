package capture

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"
	"time"
)

const bytesPerPixel = 4

// ffmpegPipe runs ffmpeg with rawvideo rgba output on stdout and slices the
// byte stream into frames.
type ffmpegPipe struct {
	stopOnce sync.Once

	args   []string
	width  int
	height int

	// pace throttles reads to one frame per interval; zero reads as fast as
	// ffmpeg produces.
	pace time.Duration
	// keepLatest replaces an unread frame with the newer one.
	keepLatest bool

	cmd       *exec.Cmd
	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
}

func newFFmpegPipe(args []string, width, height int, frameBuffer int) *ffmpegPipe {
	return &ffmpegPipe{
		args:      args,
		width:     width,
		height:    height,
		frameChan: make(chan image.Image, frameBuffer),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
	}
}

func (p *ffmpegPipe) Start() error {
	p.cmd = exec.Command("ffmpeg", p.args...)

	var stderr bytes.Buffer
	p.cmd.Stderr = &stderr

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w. Details: %s", err, stderr.String())
	}

	go p.readLoop(stdout)

	return nil
}

func (p *ffmpegPipe) readLoop(stdout io.ReadCloser) {
	defer close(p.frameChan)
	defer close(p.errChan)
	defer stdout.Close()
	defer p.stopCmdOut()

	frameSize := p.width * p.height * bytesPerPixel
	buffer := make([]byte, frameSize)

	var tick <-chan time.Time
	if p.pace > 0 {
		ticker := time.NewTicker(p.pace)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-p.stopChan:
				return
			case <-tick:
			}
		} else {
			select {
			case <-p.stopChan:
				return
			default:
			}
		}

		if _, err := io.ReadFull(stdout, buffer); err != nil {
			select {
			case <-p.stopChan:
			default:
				p.errChan <- fmt.Errorf("read error: %v", err)
			}
			return
		}

		img := rgbaFromBytes(buffer, p.width, p.height)

		if p.keepLatest {
			offerLatest(p.frameChan, img)
			continue
		}

		select {
		case p.frameChan <- img:
		case <-p.stopChan:
			return
		}
	}
}

// offerLatest sends img without blocking, evicting a stale unread frame first.
// ch must be buffered and img's sender must be its only writer.
func offerLatest(ch chan image.Image, img image.Image) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- img:
	default:
	}
}

func rgbaFromBytes(buffer []byte, width, height int) *image.RGBA {
	pixelData := make([]byte, len(buffer))
	copy(pixelData, buffer)

	return &image.RGBA{
		Pix:    pixelData,
		Stride: width * bytesPerPixel,
		Rect:   image.Rect(0, 0, width, height),
	}
}

func (p *ffmpegPipe) stopCmdOut() {
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
		p.cmd.Wait()
	}
}

func (p *ffmpegPipe) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.stopCmdOut()
	})
}

func (p *ffmpegPipe) FrameChan() <-chan image.Image { return p.frameChan }
func (p *ffmpegPipe) ErrorChan() <-chan error       { return p.errChan }

func scaleFilter(fps uint, width, height int, flags string) string {
	f := fmt.Sprintf("fps=%d,scale=%d:%d", fps, width, height)
	if flags != "" {
		f += ":flags=" + flags
	}
	return f
}

func rawOutputArgs() []string {
	return []string{
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	}
}
