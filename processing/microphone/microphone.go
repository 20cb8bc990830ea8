package microphone

import (
	"encoding/binary"
	"strings"
)

// SampleCallback receives one chunk of mono 16-bit PCM.
type SampleCallback func(samples []int16)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb SampleCallback)
	ClearCallback()
}

// FindDevice picks the device whose ID or name matches query
// (case-insensitive substring on the name). Empty query selects nil,
// meaning the system default.
func FindDevice(devices []DeviceInfo, query string) *DeviceInfo {
	if query == "" {
		return nil
	}
	lower := strings.ToLower(query)
	for i := range devices {
		if devices[i].ID == query || strings.Contains(strings.ToLower(devices[i].Name), lower) {
			return &devices[i]
		}
	}
	return nil
}

// samplesFromS16LE decodes little-endian 16-bit PCM, averaging channels down
// to mono.
func samplesFromS16LE(data []byte, channels int) []int16 {
	if channels < 1 {
		channels = 1
	}
	frame := 2 * channels
	out := make([]int16, len(data)/frame)
	for i := range out {
		var sum int32
		for c := 0; c < channels; c++ {
			off := i*frame + c*2
			sum += int32(int16(binary.LittleEndian.Uint16(data[off:])))
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}
