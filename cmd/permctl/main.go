package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "permctl",
		Short:         "Inspect VoiceBar's macOS privacy permissions",
		Long:          "Evaluates, requests and diagnoses the microphone, accessibility, input monitoring and screen capture permissions.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("config", "", "Path to config file (default $VOICEBAR_CONFIG)")
	root.PersistentFlags().String("log-level", "", "Override logging level")

	root.AddCommand(
		statusCmd(),
		checkCmd(),
		doctorCmd(),
	)
	return root
}
