package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"
)

type SourceType string

const (
	SourceLocal  SourceType = "Local"
	SourceWebcam SourceType = "Web-Camera"

	DefaultConfigPath           string = "config.json"
	DefaultDetectorProcessorUrl string = "localhost:8080"
)

var SourcesList = [...]string{
	string(SourceWebcam),
	string(SourceLocal),
}

type DetectorBackend string

const (
	BackendRemote DetectorBackend = "remote"
	BackendONNX   DetectorBackend = "onnx"
)

type LocalConfig struct {
	Path string `json:"path" yaml:"path"`
}

type WebcamConfig struct {
	DeviceID string `json:"device_id" yaml:"device_id"`
}

type DetectorConfig struct {
	Backend DetectorBackend `json:"backend" yaml:"backend"`
	Host    string          `json:"host" yaml:"host"`

	ModelPath      string  `json:"model_path" yaml:"model_path"`
	LabelsPath     string  `json:"labels_path" yaml:"labels_path"`
	InputSize      int     `json:"input_size" yaml:"input_size"`
	MaxDetections  int     `json:"max_detections" yaml:"max_detections"`
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
}

type SpeechConfig struct {
	Variant    string `json:"variant" yaml:"variant"`
	ModelPath  string `json:"model_path" yaml:"model_path"`
	LabelsPath string `json:"labels_path" yaml:"labels_path"`
	DeviceID   string `json:"device_id" yaml:"device_id"`

	SampleRate           uint32 `json:"sample_rate" yaml:"sample_rate"`
	FFTSize              int    `json:"fft_size" yaml:"fft_size"`
	NumFrames            int    `json:"num_frames" yaml:"num_frames"`
	ColumnTruncateLength int    `json:"column_truncate_length" yaml:"column_truncate_length"`

	ProbabilityThreshold            float32 `json:"probability_threshold" yaml:"probability_threshold"`
	OverlapFactor                   float32 `json:"overlap_factor" yaml:"overlap_factor"`
	SuppressionTimeMs               int     `json:"suppression_time_ms" yaml:"suppression_time_ms"`
	InvokeCallbackOnNoiseAndUnknown bool    `json:"invoke_callback_on_noise_and_unknown" yaml:"invoke_callback_on_noise_and_unknown"`
}

// Settings is the serialized part of Config.
type Settings struct {
	ActiveSource SourceType `json:"active_source" yaml:"active_source"`
	TargetFPS    uint       `json:"target_fps" yaml:"target_fps"`
	ScaledWitdh  int        `json:"scaled_witdh" yaml:"scaled_witdh"`
	ScaledHeight int        `json:"scaled_height" yaml:"scaled_height"`
	DrawBoxes    bool       `json:"draw_boxes" yaml:"draw_boxes"`

	// RuntimeLibrary is the onnxruntime shared library; empty uses the
	// platform default search path.
	RuntimeLibrary string `json:"runtime_library" yaml:"runtime_library"`

	Local    LocalConfig    `json:"local" yaml:"local"`
	Webcam   WebcamConfig   `json:"webcam" yaml:"webcam"`
	Detector DetectorConfig `json:"detector" yaml:"detector"`
	Speech   SpeechConfig   `json:"speech" yaml:"speech"`
}

type Config struct {
	mu sync.RWMutex

	Settings `yaml:",inline"`
}

func (c *Config) GetFPS() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TargetFPS
}

func (c *Config) SetFPS(fps uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TargetFPS = fps
}

func (c *Config) GetWidth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ScaledWitdh
}

func (c *Config) SetWidth(width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScaledWitdh = width
}

func (c *Config) GetHeight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ScaledHeight
}

func (c *Config) SetHeight(height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScaledHeight = height
}

func (c *Config) GetSource() SourceType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ActiveSource
}

func (c *Config) SetSource(s SourceType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ActiveSource = s
}

func (c *Config) GetLocalPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Local.Path
}

func (c *Config) SetLocalPath(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Local.Path = p
}

func (c *Config) GetWebcamDevice() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Webcam.DeviceID
}

func (c *Config) SetWebcamDevice(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Webcam.DeviceID = id
}

func (c *Config) GetDrawBoxes() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.DrawBoxes
}

func (c *Config) SetDrawBoxes(b bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DrawBoxes = b
}

func (c *Config) GetThreshold() float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Speech.ProbabilityThreshold
}

func (c *Config) SetThreshold(p float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Speech.ProbabilityThreshold = p
}

func (c *Config) SuppressionTime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return MillisToDuration(c.Speech.SuppressionTimeMs)
}

func MillisToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Snapshot returns a copy that is safe to read without locking.
func (c *Config) Snapshot() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Settings
}

// Validate rejects values the loops cannot run with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.ActiveSource {
	case SourceLocal, SourceWebcam:
	default:
		return fmt.Errorf("unknown source: %q", c.ActiveSource)
	}
	switch c.Detector.Backend {
	case BackendRemote, BackendONNX:
	default:
		return fmt.Errorf("unknown detector backend: %q", c.Detector.Backend)
	}
	if c.TargetFPS == 0 {
		return fmt.Errorf("target_fps must be positive")
	}
	if c.ScaledWitdh <= 0 || c.ScaledHeight <= 0 {
		return fmt.Errorf("scaled size must be positive, got %dx%d", c.ScaledWitdh, c.ScaledHeight)
	}
	if p := c.Speech.ProbabilityThreshold; p < 0 || p > 1 {
		return fmt.Errorf("probability_threshold out of range: %v", p)
	}
	if o := c.Speech.OverlapFactor; o < 0 || o >= 1 {
		return fmt.Errorf("overlap_factor must be in [0, 1), got %v", o)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (c *Config) marshal(path string) ([]byte, error) {
	snap := c.Snapshot()
	if isYAML(path) {
		return yaml.Marshal(&snap)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Config) Save(fs afero.Fs, path string) error {
	data, err := c.marshal(path)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) SaveByDefault() error {
	return c.Save(afero.NewOsFs(), DefaultConfigPath)
}

// LoadConfigFile reads path from fs over the defaults. A missing file yields
// the defaults with a nil error; a malformed file yields the defaults and the
// decode error so the caller can report it.
func LoadConfigFile(fs afero.Fs, path string) (*Config, error) {
	cfg := NewDefaultConfig()

	exists, err := afero.Exists(fs, path)
	if err != nil || !exists {
		return cfg, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	settings := cfg.Settings
	if isYAML(path) {
		err = yaml.Unmarshal(data, &settings)
	} else {
		err = json.Unmarshal(data, &settings)
	}
	if err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}

	return &Config{Settings: settings}, nil
}

func defaultWebcam() string {
	if runtime.GOOS == "windows" {
		return "Integrated Camera"
	}
	return "/dev/video0"
}

func NewDefaultConfig() *Config {
	return &Config{Settings: Settings{
		ActiveSource: SourceWebcam,
		Local:        LocalConfig{Path: "..."},
		Webcam:       WebcamConfig{DeviceID: defaultWebcam()},
		TargetFPS:    24,
		ScaledWitdh:  640,
		ScaledHeight: 480,
		Detector: DetectorConfig{
			Backend:        BackendRemote,
			Host:           DefaultDetectorProcessorUrl,
			ModelPath:      "models/ssd_mobilenet_v2.onnx",
			LabelsPath:     "models/coco_labels.txt",
			InputSize:      300,
			MaxDetections:  100,
			ScoreThreshold: 0.5,
		},
		Speech: SpeechConfig{
			Variant:              "BROWSER_FFT",
			ModelPath:            "models/speech_commands.onnx",
			LabelsPath:           "models/speech_commands_labels.txt",
			SampleRate:           44100,
			FFTSize:              1024,
			NumFrames:            43,
			ColumnTruncateLength: 232,
			ProbabilityThreshold: 0.7,
			OverlapFactor:        0.5,
		},
	}}
}
