package config

// Core configuration constants that define the boundaries and defaults
// for the beat/tempo estimation pipeline.
const (
	DefaultDeviceID        = MinDeviceID // Default to system default device
	DefaultFramesPerBuffer = 512         // Capture buffer size; equals the worker's 512-sample ring read
	DefaultLowLatency      = false
	DefaultSampleRate      = 44100
	DefaultVerbosity       = false
	DefaultCommand         = ""

	DefaultHpfHz                = 20.0
	DefaultLpfHz                = 6000.0
	DefaultPreferredOutputName  = ""
	DefaultCoincidenceWindowSec = 0.015
	DefaultMinBandsForOnset     = 2
	DefaultMinConfidenceForUpdates = 0.20
	DefaultTopKCandidates       = 5
	DefaultIOIWeight            = 1.0
	DefaultSlewPercent          = 0.03
	DefaultSendTempoCandidates  = false

	DefaultEmitHz        = 30.0
	DefaultEventAddress  = "127.0.0.1:9000"
	DefaultMonitorAddr   = ":8080"
	DefaultMIDIEnabled   = false

	// Hardware and processing limits.
	MinDeviceID     = -1
	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MaxBufferFrames = 8192

	MinHpfHz = 10.0
	MaxHpfHz = 200.0
	MinLpfHz = 1000.0
	MaxLpfHz = 6000.0

	MinCoincidenceWindowSec = 0.008
	MaxCoincidenceWindowSec = 0.030

	MinTopKCandidates = 1
	MaxTopKCandidates = 10

	MinIOIWeight = 0.0
	MaxIOIWeight = 4.0

	MinSlewPercent = 0.01
	MaxSlewPercent = 0.20
)

// Config holds all runtime configuration options for the beat/tempo
// estimation pipeline. It is constructed via command line flags and
// optionally overlaid with a YAML file and environment variables.
type Config struct {
	// Device Settings
	DeviceID        int     `yaml:"device_id"`
	FramesPerBuffer int     `yaml:"frames_per_buffer"`
	LowLatency      bool    `yaml:"low_latency"`
	SampleRate      float64 `yaml:"sample_rate"`

	// Debug Options
	Verbose bool   `yaml:"verbose"`
	Command string `yaml:"-"`
	Run     bool   `yaml:"-"` // true once the root command decides to start the pipeline

	// Prefilter & Band Split
	HpfHz float64 `yaml:"hpf_hz"`
	LpfHz float64 `yaml:"lpf_hz"`

	// Fusion & Gating
	CoincidenceWindowSec float64 `yaml:"coincidence_window_sec"`
	MinBandsForOnset     int     `yaml:"min_bands_for_onset"`

	// Tempo Estimator
	MinConfidenceForUpdates float64 `yaml:"min_confidence_for_updates"`
	TopKCandidates          int     `yaml:"top_k_candidates"`
	IOIWeight               float64 `yaml:"ioi_weight"`
	SlewPercent             float64 `yaml:"slew_percent"`
	SendTempoCandidates     bool    `yaml:"send_tempo_candidates"`

	// Emitters / External Interfaces
	EmitHz              float64 `yaml:"emit_hz"`
	EventAddress        string  `yaml:"event_address"`  // UDP target for "/beat" and "/tempo" messages
	MonitorAddr         string  `yaml:"monitor_addr"`    // HTTP/WebSocket monitor listen address
	PreferredOutputName string  `yaml:"preferred_output_name"` // substring used to match a render endpoint when enumerating
	MIDIEnabled         bool    `yaml:"midi_enabled"`
	MIDIOutPortName     string  `yaml:"midi_out_port_name"`
}

// NewConfig creates a new Config instance with default values. This is
// typically used as the base configuration before applying command line
// arguments or config file settings.
func NewConfig() *Config {
	return &Config{
		DeviceID:        DefaultDeviceID,
		FramesPerBuffer: DefaultFramesPerBuffer,
		LowLatency:      DefaultLowLatency,
		SampleRate:      DefaultSampleRate,
		Verbose:         DefaultVerbosity,
		Command:         DefaultCommand,

		HpfHz: DefaultHpfHz,
		LpfHz: DefaultLpfHz,

		CoincidenceWindowSec: DefaultCoincidenceWindowSec,
		MinBandsForOnset:     DefaultMinBandsForOnset,

		MinConfidenceForUpdates: DefaultMinConfidenceForUpdates,
		TopKCandidates:          DefaultTopKCandidates,
		IOIWeight:               DefaultIOIWeight,
		SlewPercent:             DefaultSlewPercent,
		SendTempoCandidates:     DefaultSendTempoCandidates,

		EmitHz:              DefaultEmitHz,
		EventAddress:        DefaultEventAddress,
		MonitorAddr:         DefaultMonitorAddr,
		PreferredOutputName: DefaultPreferredOutputName,
		MIDIEnabled:         DefaultMIDIEnabled,
	}
}
