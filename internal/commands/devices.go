package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"livesense/processing/capture"
	"livesense/processing/microphone"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List cameras and microphones",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cameras, err := capture.ListCameras()
		fmt.Fprintln(out, "Cameras:")
		switch {
		case err != nil:
			fmt.Fprintf(out, "  error: %v\n", err)
		case len(cameras) == 0:
			fmt.Fprintln(out, "  (none)")
		}
		for _, c := range cameras {
			fmt.Fprintf(out, "  %s\n", c)
		}

		fmt.Fprintln(out, "Microphones:")
		mic, err := microphone.NewContext()
		if err != nil {
			fmt.Fprintf(out, "  error: %v\n", err)
			return nil
		}
		defer mic.Close()

		devices, err := mic.Devices()
		if err != nil {
			fmt.Fprintf(out, "  error: %v\n", err)
			return nil
		}
		printMicrophones(cmd, devices)
		return nil
	},
}

func printMicrophones(cmd *cobra.Command, devices []microphone.DeviceInfo) {
	out := cmd.OutOrStdout()
	if len(devices) == 0 {
		fmt.Fprintln(out, "  (none)")
		return
	}
	for _, d := range devices {
		fmt.Fprintf(out, "  %s  [%s]\n", d.Name, d.ID)
	}
}
