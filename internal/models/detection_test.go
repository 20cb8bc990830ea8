package models

import (
	"image"
	"testing"
)

func TestArgMax(t *testing.T) {
	for _, tt := range []struct {
		name   string
		scores []float32
		want   int
	}{
		{"empty", nil, -1},
		{"single", []float32{0.3}, 0},
		{"unique max", []float32{0.1, 0.9, 0.05}, 1},
		{"tie keeps first", []float32{0.4, 0.8, 0.8}, 1},
		{"last", []float32{0.1, 0.2, 0.7}, 2},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := ArgMax(tt.scores); got != tt.want {
				t.Errorf("ArgMax(%v) = %d, want %d", tt.scores, got, tt.want)
			}
		})
	}
}

func TestDetectionRect(t *testing.T) {
	d := Detection{Class: "person", BBox: [4]float32{10, 20, 30, 40}}
	want := image.Rect(10, 20, 40, 60)
	if got := d.Rect(); got != want {
		t.Errorf("Rect() = %v, want %v", got, want)
	}
}
