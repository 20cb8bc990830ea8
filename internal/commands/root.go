package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"livesense/internal/config"
)

var (
	configPath string
	logPath    string
	wavPath    string
	headless   bool
)

var rootCmd = &cobra.Command{
	Use:   "livesense",
	Short: "Live speech-command and object recognition",
	Long: `livesense - classifies microphone audio into speech commands and detects
objects in camera frames, showing the top label of each stream.

By default a window with the camera preview is opened. Use --headless to run
in the terminal.

Examples:
  # Run with the default config.json
  livesense

  # Terminal UI, replaying a WAV file instead of the microphone
  livesense --headless --wav clip.wav

  # Show capture devices
  livesense devices`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context())
	},
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "config file (.json, .yaml or .yml)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log-path", "", "log directory (default $LIVESENSE_LOG_PATH or the OS log dir)")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "run in the terminal without a window")
	rootCmd.Flags().StringVar(&wavPath, "wav", "", "replay a WAV file instead of the microphone")

	rootCmd.AddCommand(devicesCmd)
}
