package microphone

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

const fakeChunkFrames = 1024

// FileContext replays a WAV file as if it were a microphone.
type FileContext struct {
	samples    []int16
	sampleRate uint32
	realtime   bool
}

func NewFileContext(wavPath string, realtime bool) (*FileContext, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", wavPath)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", wavPath, err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	shift := 0
	if dec.BitDepth > 16 {
		shift = int(dec.BitDepth) - 16
	}

	samples := make([]int16, len(buf.Data)/channels)
	for i := range samples {
		var sum int
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c] >> shift
		}
		samples[i] = int16(sum / channels)
	}

	return NewSampleContext(samples, uint32(buf.Format.SampleRate), realtime), nil
}

// NewSampleContext replays in-memory samples.
func NewSampleContext(samples []int16, sampleRate uint32, realtime bool) *FileContext {
	return &FileContext{samples: samples, sampleRate: sampleRate, realtime: realtime}
}

func (f *FileContext) SampleRate() uint32 { return f.sampleRate }

func (f *FileContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "file", Name: "file replay"}}, nil
}

func (f *FileContext) Close() {}

// ErrSampleRateMismatch reports a capture requested at a rate the replayed
// samples were not recorded at.
var ErrSampleRateMismatch = errors.New("sample rate mismatch")

// NewCapture replays the samples. A non-zero config.SampleRate must equal the
// context's rate since samples are never resampled.
func (f *FileContext) NewCapture(_ *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	if config.SampleRate != 0 && f.sampleRate != 0 && config.SampleRate != f.sampleRate {
		return nil, fmt.Errorf("%w: file is %d Hz, capture wants %d Hz",
			ErrSampleRateMismatch, f.sampleRate, config.SampleRate)
	}
	return &FileCapture{
		samples:   f.samples,
		interval:  chunkInterval(f.realtime, f.sampleRate),
		audioDone: make(chan struct{}),
	}, nil
}

func chunkInterval(realtime bool, sampleRate uint32) time.Duration {
	if !realtime || sampleRate == 0 {
		return 0
	}
	return time.Duration(fakeChunkFrames) * time.Second / time.Duration(sampleRate)
}

// FileCapture feeds its samples in chunks, then closes AudioDone and stays
// silent until stopped.
type FileCapture struct {
	samples   []int16
	interval  time.Duration
	audioDone chan struct{}

	mu       sync.Mutex
	cb       SampleCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FileCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FileCapture) SetCallback(cb SampleCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FileCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FileCapture) callback() SampleCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FileCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	go func() {
		defer close(f.feedDone)
		for pos := 0; pos < len(f.samples); pos += fakeChunkFrames {
			if f.interval > 0 {
				select {
				case <-f.stopCh:
					return
				case <-time.After(f.interval):
				}
			} else {
				select {
				case <-f.stopCh:
					return
				default:
				}
			}

			end := min(pos+fakeChunkFrames, len(f.samples))
			chunk := make([]int16, end-pos)
			copy(chunk, f.samples[pos:end])
			if cb := f.callback(); cb != nil {
				cb(chunk)
			}
		}
		close(f.audioDone)
		<-f.stopCh
	}()

	return nil
}

func (f *FileCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FileCapture) Close() {}
