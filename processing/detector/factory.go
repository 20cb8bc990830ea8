package processing

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"livesense/internal/config"
	"livesense/internal/models"
)

// New builds the detector selected by cfg.Backend. The remote backend is
// connected before returning.
func New(ctx context.Context, cfg config.DetectorConfig, fs afero.Fs) (Detector, error) {
	switch cfg.Backend {
	case config.BackendRemote:
		d := NewRemoteDetector(cfg.Host)
		if err := d.Connect(ctx); err != nil {
			return nil, err
		}
		return d, nil

	case config.BackendONNX:
		labels, err := models.LoadLabels(fs, cfg.LabelsPath)
		if err != nil {
			return nil, err
		}
		d, err := NewSSDDetector(SSDOptions{
			ModelPath:      cfg.ModelPath,
			Labels:         labels,
			InputSize:      cfg.InputSize,
			MaxDetections:  cfg.MaxDetections,
			ScoreThreshold: cfg.ScoreThreshold,
		})
		if err != nil {
			return nil, err
		}
		return d, nil

	default:
		return nil, fmt.Errorf("unknown detector backend: %q", cfg.Backend)
	}
}
