package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"livesense/internal/config"
	"livesense/processing/microphone"
)

func TestRootFlags(t *testing.T) {
	tests := []struct {
		name string
		def  string
	}{
		{"config", config.DefaultConfigPath},
		{"log-path", ""},
		{"headless", "false"},
		{"wav", ""},
	}
	for _, tt := range tests {
		f := rootCmd.Flags().Lookup(tt.name)
		if f == nil {
			f = rootCmd.PersistentFlags().Lookup(tt.name)
		}
		if f == nil {
			t.Errorf("flag --%s not registered", tt.name)
			continue
		}
		if f.DefValue != tt.def {
			t.Errorf("--%s default = %q, want %q", tt.name, f.DefValue, tt.def)
		}
	}
}

func TestDevicesRegistered(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"devices"})
	if err != nil || cmd != devicesCmd {
		t.Errorf("devices subcommand not found: %v", err)
	}
}

func TestPrintMicrophones(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	printMicrophones(cmd, []microphone.DeviceInfo{{ID: "ab12", Name: "USB Headset"}})
	if !strings.Contains(buf.String(), "USB Headset  [ab12]") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	printMicrophones(cmd, nil)
	if !strings.Contains(buf.String(), "(none)") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestOpenMicrophoneMissingWAV(t *testing.T) {
	wavPath = t.TempDir() + "/missing.wav"
	defer func() { wavPath = "" }()

	if _, err := openMicrophone(); err == nil {
		t.Error("expected error for missing WAV file")
	}
}
