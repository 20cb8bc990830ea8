package processing

import (
	"image"
	"image/color"

	"livesense/internal/models"
)

var boxColor = color.RGBA{0, 255, 0, 255}

// DrawDetections outlines every detection on img.
func DrawDetections(img *image.RGBA, dets []models.Detection) {
	for _, d := range dets {
		r := d.Rect()
		drawRect(img, r.Min.Y, r.Min.X, r.Max.Y, r.Max.X, boxColor)
	}
}

func drawRect(img *image.RGBA, y1, x1, y2, x2 int, col color.Color) {
	thickness := 3
	bounds := img.Bounds()

	setPixel := func(x, y int) {
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			img.Set(x, y, col)
		}
	}

	for t := 0; t < thickness; t++ {
		for x := x1; x <= x2; x++ {
			setPixel(x, y1+t)
			setPixel(x, y2-t)
		}
		for y := y1; y <= y2; y++ {
			setPixel(x1+t, y)
			setPixel(x2-t, y)
		}
	}
}
