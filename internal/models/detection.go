package models

import "image"

// Detection is one object-detector output item.
type Detection struct {
	Class string  `json:"class"`
	Score float32 `json:"score"`
	// BBox is [x, y, width, height] in surface pixels.
	BBox [4]float32 `json:"bbox"`
}

// Rect converts the bounding box to an image rectangle.
func (d Detection) Rect() image.Rectangle {
	x, y := int(d.BBox[0]), int(d.BBox[1])
	return image.Rect(x, y, x+int(d.BBox[2]), y+int(d.BBox[3]))
}

// Classification is one score vector produced by the speech recognizer,
// aligned by index with the recognizer's word labels.
type Classification struct {
	Scores []float32 `json:"scores"`

	// Spectrogram is only set when the listener was asked to include it.
	Spectrogram *Spectrogram `json:"spectrogram,omitempty"`
}

// Spectrogram is a row-major [Frames][FrequencySize] feature matrix.
type Spectrogram struct {
	Data          []float32 `json:"data"`
	Frames        int       `json:"frames"`
	FrequencySize int       `json:"frequency_size"`
}

// ArgMax returns the index of the highest score, first occurrence winning
// ties, and -1 for an empty vector.
func ArgMax(scores []float32) int {
	best := -1
	for i, s := range scores {
		if best < 0 || s > scores[best] {
			best = i
		}
	}
	return best
}
