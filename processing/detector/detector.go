package processing

import (
	"context"
	"image"

	"livesense/internal/models"
)

// Detector finds objects in one frame. Results are ordered by the backend,
// highest confidence first.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]models.Detection, error)
	Name() string
	Close() error
}
