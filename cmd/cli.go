// SPDX-License-Identifier: MIT
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"enhancer/pkg/build"
)

// Options is what the command line resolved to. Fields override the
// corresponding config file values when set.
type Options struct {
	ConfigPath string
	Command    string // "" runs the TUI; "list" and "impulse" are one-offs
	TUIMode    bool
	Verbose    bool

	// Audio overrides.
	Device     int
	SampleRate float64

	// impulse command arguments.
	ImpulseOutput string
	ImpulseLevel  int
}

// ParseArgs builds the CLI and parses os.Args into Options.
func ParseArgs() (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{
		Device:     -1,
		SampleRate: 0, // 0 keeps the config file value
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Dynamic audio enhancement chain",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.TUIMode = true
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = "list"
			options.TUIMode = false
		},
	}
	rootCmd.AddCommand(listCmd)

	// Impulse command: render the synthetic reverb impulse to a WAV
	// file for inspection or reuse as a measured override.
	impulseCmd := &cobra.Command{
		Use:   "impulse",
		Short: "Render the reverb impulse response to a WAV file",
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = "impulse"
			options.TUIMode = false
		},
	}
	impulseCmd.Flags().StringVarP(&options.ImpulseOutput, "output", "o", "impulse.wav",
		"Output WAV file for the rendered impulse")
	impulseCmd.Flags().IntVarP(&options.ImpulseLevel, "level", "n", 2,
		"Enhancement level whose reverb profile to render (1-3)")
	rootCmd.AddCommand(impulseCmd)

	// Shared configuration flags
	rootCmd.PersistentFlags().StringVarP(&options.ConfigPath, "config", "f", "",
		"Path to the YAML configuration file")
	rootCmd.PersistentFlags().IntVarP(&options.Device, "device", "d", -1,
		"Input device ID. Use 'list' to see available devices.")
	rootCmd.PersistentFlags().Float64VarP(&options.SampleRate, "sample-rate", "s", 0,
		"Sample rate in Hertz (Hz); 0 keeps the configured value")
	rootCmd.PersistentFlags().BoolVarP(&options.Verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}
