package capture

import (
	"context"
	"errors"
	"image"
	"slices"
	"testing"

	"livesense/internal/config"
)

func TestWebcamArgs(t *testing.T) {
	for _, tt := range []struct {
		goos  string
		input []string
	}{
		{"linux", []string{"-f", "v4l2", "-i", "/dev/video0"}},
		{"windows", []string{"-f", "dshow", "-i", "video=/dev/video0"}},
	} {
		t.Run(tt.goos, func(t *testing.T) {
			args := webcamArgs(tt.goos, "/dev/video0", 24, 640, 480)
			if !slices.Equal(args[:len(tt.input)], tt.input) {
				t.Errorf("input args = %v, want %v", args[:len(tt.input)], tt.input)
			}
			if !slices.Contains(args, "fps=24,scale=640:480") {
				t.Errorf("missing scale filter in %v", args)
			}
			if args[len(args)-1] != "-" {
				t.Errorf("expected stdout output, got %v", args)
			}
		})
	}
}

func TestLocalArgs(t *testing.T) {
	args := localArgs("clip.mp4", 10, 320, 240)
	if !slices.Contains(args, "fps=10,scale=320:240:flags=neighbor") {
		t.Errorf("missing scale filter in %v", args)
	}
}

func TestParseStreamInfo(t *testing.T) {
	w, h, err := parseStreamInfo([]byte(`{"streams":[{"width":1920,"height":1080}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if w != 1920 || h != 1080 {
		t.Errorf("got %dx%d, want 1920x1080", w, h)
	}

	if _, _, err := parseStreamInfo([]byte(`{"streams":[]}`)); err == nil {
		t.Error("expected error for no streams")
	}
}

func TestParseDshowDevices(t *testing.T) {
	out := `[dshow @ 0x1] "USB Camera" (video)
[dshow @ 0x1] "Microphone" (audio)
[dshow @ 0x1] "USB Camera" (video)
[dshow @ 0x1] "OBS Virtual Camera" (video)`
	got := parseDshowDevices(out)
	want := []string{"USB Camera", "OBS Virtual Camera"}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRGBAFromBytesCopies(t *testing.T) {
	buf := make([]byte, 2*2*bytesPerPixel)
	buf[0] = 200
	img := rgbaFromBytes(buf, 2, 2)
	buf[0] = 1

	if img.Pix[0] != 200 {
		t.Error("frame must not alias the read buffer")
	}
	if img.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func newTestDevices(cfg *config.Config) *ffmpegDevices {
	fake := NewFakeStreamer()
	return &ffmpegDevices{
		cfg:        cfg,
		lookPath:   func(string) (string, error) { return "/usr/bin/ffmpeg", nil },
		openDevice: func(string) error { return nil },
		newStream:  func(*config.Config) (VideoStreamer, error) { return fake, nil },
	}
}

func TestGetUserMedia(t *testing.T) {
	d := newTestDevices(config.NewDefaultConfig())

	stream, err := d.GetUserMedia(context.Background(), Constraints{Video: true})
	if err != nil {
		t.Fatalf("GetUserMedia: %v", err)
	}
	if fake := stream.(*FakeStreamer); !fake.started {
		t.Error("stream should be started")
	}
}

func TestGetUserMediaFailures(t *testing.T) {
	t.Run("no ffmpeg", func(t *testing.T) {
		d := newTestDevices(config.NewDefaultConfig())
		d.lookPath = func(string) (string, error) { return "", errors.New("not found") }
		_, err := d.GetUserMedia(context.Background(), Constraints{Video: true})
		if !errors.Is(err, ErrMediaUnavailable) {
			t.Errorf("err = %v, want ErrMediaUnavailable", err)
		}
	})

	t.Run("audio only", func(t *testing.T) {
		d := newTestDevices(config.NewDefaultConfig())
		_, err := d.GetUserMedia(context.Background(), Constraints{Audio: true})
		if !errors.Is(err, ErrMediaUnavailable) {
			t.Errorf("err = %v, want ErrMediaUnavailable", err)
		}
	})

	t.Run("stream error", func(t *testing.T) {
		d := newTestDevices(config.NewDefaultConfig())
		d.newStream = func(*config.Config) (VideoStreamer, error) { return nil, errors.New("open failed") }
		_, err := d.GetUserMedia(context.Background(), Constraints{Video: true})
		if !errors.Is(err, ErrMediaUnavailable) {
			t.Errorf("err = %v, want ErrMediaUnavailable", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		d := newTestDevices(config.NewDefaultConfig())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := d.GetUserMedia(ctx, Constraints{Video: true}); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestCheckDeviceMissing(t *testing.T) {
	err := checkDevice(t.TempDir() + "/video9")
	if !errors.Is(err, ErrMediaUnavailable) {
		t.Errorf("err = %v, want ErrMediaUnavailable", err)
	}
}

func TestFakeMediaDevicesDenied(t *testing.T) {
	d := &FakeMediaDevices{Err: ErrPermissionDenied}
	if _, err := d.GetUserMedia(context.Background(), Constraints{Video: true}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
	if d.Calls() != 1 {
		t.Errorf("calls = %d, want 1", d.Calls())
	}
}

func TestOfferLatestReplacesUnreadFrame(t *testing.T) {
	ch := make(chan image.Image, 1)
	older := image.NewRGBA(image.Rect(0, 0, 1, 1))
	newer := image.NewRGBA(image.Rect(0, 0, 2, 2))

	offerLatest(ch, older)
	offerLatest(ch, newer)

	if got := <-ch; got != image.Image(newer) {
		t.Errorf("got frame %v, want the newest", got.Bounds())
	}
	select {
	case img := <-ch:
		t.Errorf("unexpected second frame %v", img.Bounds())
	default:
	}
}

func TestFakeStreamerKeepsNewestFrame(t *testing.T) {
	s := NewFakeStreamer()
	for w := 1; w <= 3; w++ {
		s.Push(image.NewRGBA(image.Rect(0, 0, w, w)))
	}
	if got := (<-s.FrameChan()).Bounds().Dx(); got != 3 {
		t.Errorf("width = %d, want 3", got)
	}

	s.Stop()
	s.Push(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	select {
	case img := <-s.FrameChan():
		t.Errorf("frame %v delivered after Stop", img.Bounds())
	default:
	}
}
