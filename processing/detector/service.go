package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"livesense/internal/log"
	"livesense/internal/models"
)

// wireResult is one item of the detection server's JSON reply. Box is
// [y1, x1, y2, x2] normalized to the frame size.
type wireResult struct {
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

// RemoteDetector sends JPEG frames to a detection server over a websocket and
// reads one JSON reply per frame.
type RemoteDetector struct {
	serverURL string
	quality   int
	timeout   time.Duration
	dialer    *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewRemoteDetector(host string) *RemoteDetector {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}

	return &RemoteDetector{
		serverURL: u.String(),
		quality:   jpeg.DefaultQuality,
		timeout:   5 * time.Second,
		dialer:    websocket.DefaultDialer,
	}
}

func (d *RemoteDetector) Name() string { return "remote " + d.serverURL }

// Connect dials the server. Detect redials on its own after a failure.
func (d *RemoteDetector) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectLocked(ctx)
}

func (d *RemoteDetector) connectLocked(ctx context.Context) error {
	if d.conn != nil {
		return nil
	}
	log.Infof("connecting to detector server %s", d.serverURL)
	conn, _, err := d.dialer.DialContext(ctx, d.serverURL, nil)
	if err != nil {
		return fmt.Errorf("connect to detector server: %w", err)
	}
	log.Info("connected to detection server")
	d.conn = conn
	return nil
}

func (d *RemoteDetector) dropLocked() {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}

func (d *RemoteDetector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: d.quality}); err != nil {
		return nil, fmt.Errorf("JPEG encode: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.connectLocked(ctx); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	d.conn.SetWriteDeadline(deadline)
	d.conn.SetReadDeadline(deadline)

	// Cancellation expires the socket so a blocked write or read returns.
	netConn := d.conn.NetConn()
	stop := context.AfterFunc(ctx, func() { netConn.SetDeadline(time.Now()) })
	defer stop()

	if err := d.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		d.dropLocked()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("send frame: %w", err)
	}

	_, message, err := d.conn.ReadMessage()
	if err != nil {
		d.dropLocked()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("connection lost: %w", err)
	}

	var results []wireResult
	if err := json.Unmarshal(message, &results); err != nil {
		return nil, fmt.Errorf("JSON decode: %w", err)
	}

	b := img.Bounds()
	return fromWire(results, float32(b.Dx()), float32(b.Dy())), nil
}

func fromWire(results []wireResult, w, h float32) []models.Detection {
	out := make([]models.Detection, 0, len(results))
	for _, r := range results {
		det := models.Detection{Class: r.Label, Score: r.Confidence}
		if len(r.Box) == 4 {
			y1, x1 := r.Box[0]*h, r.Box[1]*w
			y2, x2 := r.Box[2]*h, r.Box[3]*w
			det.BBox = [4]float32{x1, y1, x2 - x1, y2 - y1}
		}
		out = append(out, det)
	}
	return out
}

func (d *RemoteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	d.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := d.conn.Close()
	d.conn = nil
	return err
}
