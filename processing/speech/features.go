package speech

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"livesense/internal/models"
)

// minDecibels floors silent bins so log10(0) never reaches the model.
const minDecibels = -200

// FeatureParams describes the BROWSER_FFT front end: non-overlapping frames
// of FFTSize samples, dB magnitude, first ColumnTruncateLength bins,
// NumFrames frames per recognition.
type FeatureParams struct {
	SampleRate           uint32
	FFTSize              int
	NumFrames            int
	ColumnTruncateLength int
}

func DefaultFeatureParams() FeatureParams {
	return FeatureParams{
		SampleRate:           44100,
		FFTSize:              1024,
		NumFrames:            43,
		ColumnTruncateLength: 232,
	}
}

func (p FeatureParams) Validate() error {
	if p.SampleRate == 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	if p.FFTSize < 2 || p.FFTSize&(p.FFTSize-1) != 0 {
		return fmt.Errorf("fft size must be a power of two, got %d", p.FFTSize)
	}
	if p.ColumnTruncateLength < 1 || p.ColumnTruncateLength > p.FFTSize/2 {
		return fmt.Errorf("column truncate length %d outside [1, %d]", p.ColumnTruncateLength, p.FFTSize/2)
	}
	if p.NumFrames < 1 {
		return fmt.Errorf("num frames must be positive")
	}
	return nil
}

// frameExtractor turns one FFTSize block of samples into a dB spectrum row.
type frameExtractor struct {
	params FeatureParams
	window []float64
	buf    []float64
}

func newFrameExtractor(p FeatureParams) *frameExtractor {
	return &frameExtractor{
		params: p,
		window: window.Blackman(p.FFTSize),
		buf:    make([]float64, p.FFTSize),
	}
}

func (e *frameExtractor) Row(samples []int16) []float32 {
	n := e.params.FFTSize
	for i := 0; i < n; i++ {
		e.buf[i] = float64(samples[i]) / math.MaxInt16 * e.window[i]
	}

	spectrum := fft.FFTReal(e.buf)

	row := make([]float32, e.params.ColumnTruncateLength)
	for k := range row {
		mag := cmplx.Abs(spectrum[k]) / float64(n)
		db := float64(minDecibels)
		if mag > 0 {
			db = max(minDecibels, 20*math.Log10(mag))
		}
		row[k] = float32(db)
	}
	return row
}

// spectrogramFromRows flattens rows into a [frames][freq] spectrogram.
func spectrogramFromRows(rows [][]float32) *models.Spectrogram {
	if len(rows) == 0 {
		return &models.Spectrogram{}
	}
	freq := len(rows[0])
	data := make([]float32, 0, len(rows)*freq)
	for _, r := range rows {
		data = append(data, r...)
	}
	return &models.Spectrogram{Data: data, Frames: len(rows), FrequencySize: freq}
}

// normalize z-scores x over the whole tensor.
func normalize(x []float32) []float32 {
	if len(x) == 0 {
		return nil
	}
	var mean float64
	for _, v := range x {
		mean += float64(v)
	}
	mean /= float64(len(x))

	var variance float64
	for _, v := range x {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(x))
	std := math.Sqrt(variance)
	if std < 1e-6 {
		std = 1e-6
	}

	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32((float64(v) - mean) / std)
	}
	return out
}
