package processing

import (
	"context"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"

	"livesense/internal/models"
)

const (
	ssdInputName  = "images"
	ssdBoxesName  = "detection_boxes"
	ssdClassName  = "detection_classes"
	ssdScoresName = "detection_scores"
)

type SSDOptions struct {
	ModelPath      string
	Labels         []string
	InputSize      int
	MaxDetections  int
	ScoreThreshold float32
}

// SSDDetector runs an SSD-style model exported to ONNX. The model takes a
// [1, 3, S, S] float input in [0, 1] and yields boxes [1, N, 4] as normalized
// [y1, x1, y2, x2], 1-based class ids [1, N] and scores [1, N].
type SSDDetector struct {
	opts SSDOptions

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	boxes   *ort.Tensor[float32]
	classes *ort.Tensor[float32]
	scores  *ort.Tensor[float32]
}

func NewSSDDetector(opts SSDOptions) (*SSDDetector, error) {
	if opts.InputSize <= 0 || opts.MaxDetections <= 0 {
		return nil, fmt.Errorf("invalid SSD shape: input %d, detections %d", opts.InputSize, opts.MaxDetections)
	}
	s := int64(opts.InputSize)
	n := int64(opts.MaxDetections)

	d := &SSDDetector{opts: opts}
	var err error
	if d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, s, s)); err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	if d.boxes, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n, 4)); err != nil {
		d.Close()
		return nil, fmt.Errorf("error creating boxes tensor: %w", err)
	}
	if d.classes, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n)); err != nil {
		d.Close()
		return nil, fmt.Errorf("error creating classes tensor: %w", err)
	}
	if d.scores, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n)); err != nil {
		d.Close()
		return nil, fmt.Errorf("error creating scores tensor: %w", err)
	}

	d.session, err = ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{ssdInputName},
		[]string{ssdBoxesName, ssdClassName, ssdScoresName},
		[]ort.ArbitraryTensor{d.input},
		[]ort.ArbitraryTensor{d.boxes, d.classes, d.scores},
		nil,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("error creating session: %w", err)
	}
	return d, nil
}

func (d *SSDDetector) Name() string { return "onnx " + d.opts.ModelPath }

func (d *SSDDetector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := d.opts.InputSize
	resized := imaging.Resize(img, size, size, imaging.Linear)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, fmt.Errorf("detector closed")
	}

	fillCHW(d.input.GetData(), resized, size)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	b := img.Bounds()
	return decodeSSD(
		d.boxes.GetData(), d.classes.GetData(), d.scores.GetData(),
		d.opts.Labels, d.opts.ScoreThreshold,
		float32(b.Dx()), float32(b.Dy()),
	), nil
}

// fillCHW writes an RGB image as planar channels scaled to [0, 1].
func fillCHW(buffer []float32, pic *image.NRGBA, size int) {
	channelSize := size * size
	for y := 0; y < size; y++ {
		offset := y * size
		for x := 0; x < size; x++ {
			i := offset + x
			p := pic.PixOffset(x, y)
			buffer[i] = float32(pic.Pix[p]) / 255.0
			buffer[channelSize+i] = float32(pic.Pix[p+1]) / 255.0
			buffer[channelSize*2+i] = float32(pic.Pix[p+2]) / 255.0
		}
	}
}

// decodeSSD turns raw SSD outputs into detections above threshold, scaled to
// a w x h frame and ordered by descending score.
func decodeSSD(boxes, classes, scores []float32, labels []string, threshold, w, h float32) []models.Detection {
	n := min(len(scores), len(classes), len(boxes)/4)
	out := make([]models.Detection, 0, n)
	for i := 0; i < n; i++ {
		if scores[i] < threshold {
			continue
		}
		y1, x1 := boxes[i*4]*h, boxes[i*4+1]*w
		y2, x2 := boxes[i*4+2]*h, boxes[i*4+3]*w
		out = append(out, models.Detection{
			Class: labelFor(int(classes[i]), labels),
			Score: scores[i],
			BBox:  [4]float32{x1, y1, x2 - x1, y2 - y1},
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func labelFor(id int, labels []string) string {
	if id >= 1 && id <= len(labels) {
		return labels[id-1]
	}
	return fmt.Sprintf("class %d", id)
}

func (d *SSDDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.session != nil {
		err = d.session.Destroy()
		d.session = nil
	}
	for _, t := range []*ort.Tensor[float32]{d.input, d.boxes, d.classes, d.scores} {
		if t != nil {
			t.Destroy()
		}
	}
	d.input, d.boxes, d.classes, d.scores = nil, nil, nil, nil
	return err
}
