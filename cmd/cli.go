// SPDX-License-Identifier: MIT
package cmd

import (
	"os"

	"beatpulse/internal/build"
	"beatpulse/internal/config"

	"github.com/spf13/cobra"
)

// ParseArgs builds a Config from defaults, command-line flags, an
// optional YAML overlay, and environment-variable overrides, in that
// order, then validates and clamps the result.
func ParseArgs() (*config.Config, error) {
	buildInfo := build.GetBuildFlags()
	options := config.NewConfig()

	var configPath string

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Live beat and tempo estimation for a continuous mono audio stream",
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
			options.Run = true
			return finalize(options, configPath)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio input devices and MIDI output ports",
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = "list"
			options.Run = false
		},
	}
	rootCmd.AddCommand(listCmd)

	// Device & capture settings.
	rootCmd.PersistentFlags().IntVarP(&options.DeviceID, "device", "d", config.DefaultDeviceID,
		"Input device ID. Use the 'list' command to see available devices.")
	rootCmd.PersistentFlags().Float64VarP(&options.SampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Capture sample rate, in Hertz")
	rootCmd.PersistentFlags().IntVarP(&options.FramesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"Frames per capture buffer (affects latency)")
	rootCmd.PersistentFlags().BoolVarP(&options.LowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Open the input stream with low-latency timing hints")

	// Prefilter & band split.
	rootCmd.PersistentFlags().Float64Var(&options.HpfHz, "hpf-hz", config.DefaultHpfHz,
		"Global prefilter high-pass cutoff, in Hertz")
	rootCmd.PersistentFlags().Float64Var(&options.LpfHz, "lpf-hz", config.DefaultLpfHz,
		"Global prefilter low-pass cutoff, in Hertz")

	// Fusion & gating.
	rootCmd.PersistentFlags().Float64Var(&options.CoincidenceWindowSec, "coincidence-window-sec", config.DefaultCoincidenceWindowSec,
		"Cross-band onset coincidence window, in seconds")
	rootCmd.PersistentFlags().IntVar(&options.MinBandsForOnset, "min-bands-for-onset", config.DefaultMinBandsForOnset,
		"Minimum number of distinct bands required to keep a fused onset")

	// Tempo estimator.
	rootCmd.PersistentFlags().Float64Var(&options.MinConfidenceForUpdates, "min-confidence-for-updates", config.DefaultMinConfidenceForUpdates,
		"Minimum tempo confidence before BPM updates are applied")
	rootCmd.PersistentFlags().IntVar(&options.TopKCandidates, "top-k-candidates", config.DefaultTopKCandidates,
		"Number of autocorrelation peaks retained per tempo update")
	rootCmd.PersistentFlags().Float64Var(&options.IOIWeight, "ioi-weight", config.DefaultIOIWeight,
		"Weight given to inter-onset-interval support when scoring tempo candidates")
	rootCmd.PersistentFlags().Float64Var(&options.SlewPercent, "slew-percent", config.DefaultSlewPercent,
		"Maximum fractional BPM change applied per tempo update")
	rootCmd.PersistentFlags().BoolVar(&options.SendTempoCandidates, "send-tempo-candidates", config.DefaultSendTempoCandidates,
		"Include the full tempo candidate list on the monitor transport")

	// Emitters / external interfaces.
	rootCmd.PersistentFlags().Float64Var(&options.EmitHz, "emit-hz", config.DefaultEmitHz,
		"Emitter tick rate, in Hertz")
	rootCmd.PersistentFlags().StringVar(&options.EventAddress, "event-address", config.DefaultEventAddress,
		"UDP host:port for \"/beat\" and \"/tempo\" event datagrams")
	rootCmd.PersistentFlags().StringVar(&options.MonitorAddr, "monitor-addr", config.DefaultMonitorAddr,
		"HTTP/WebSocket listen address for the live monitor broadcaster")
	rootCmd.PersistentFlags().StringVar(&options.PreferredOutputName, "preferred-output-name", config.DefaultPreferredOutputName,
		"Substring used to match a render endpoint when enumerating output devices")
	rootCmd.PersistentFlags().BoolVar(&options.MIDIEnabled, "midi", config.DefaultMIDIEnabled,
		"Enable MIDI control-surface output")
	rootCmd.PersistentFlags().StringVar(&options.MIDIOutPortName, "midi-out-port", "",
		"MIDI output port name. Defaults to the first available port.")

	// Debug & config file.
	rootCmd.PersistentFlags().BoolVarP(&options.Verbose, "verbose", "v", config.DefaultVerbosity,
		"Show verbose (debug-level) log output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a YAML config overlay. Defaults to ./config.yaml if present.")

	// Execute the CLI
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}

func finalize(options *config.Config, configPath string) error {
	if err := config.LoadOverlay(configPath, options); err != nil {
		return err
	}
	options.ApplyEnvOverrides()
	return options.Validate()
}
