// Package config provides the configuration schema and loader for the
// voxmimic voice-cloning server.
package config

// LogLevel controls log verbosity for the voxmimic server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Device selects the compute device requested from the synthesis engine.
type Device string

const (
	// DeviceAuto lets the engine pick CUDA when available, CPU otherwise.
	DeviceAuto Device = "auto"

	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// IsValid reports whether d is a recognised device.
func (d Device) IsValid() bool {
	switch d {
	case DeviceAuto, DeviceCPU, DeviceCUDA:
		return true
	}
	return false
}

// Config is the root configuration structure for voxmimic.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Paths        PathsConfig        `yaml:"paths"`
	Engine       EngineConfig       `yaml:"engine"`
	DefaultVoice DefaultVoiceConfig `yaml:"default_voice"`
}

// ServerConfig holds network and logging settings for the voxmimic server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// PathsConfig holds filesystem locations for voice samples, generated audio,
// and the model checkpoint.
type PathsConfig struct {
	// VoicesDir is the directory holding one subdirectory per registered
	// voice, each containing its reference audio sample.
	VoicesDir string `yaml:"voices_dir"`

	// OutputDir is the directory generated audio files are written to and
	// served from.
	OutputDir string `yaml:"output_dir"`

	// MetadataPath is the JSON file persisting the voice registry.
	MetadataPath string `yaml:"metadata_path"`

	// ModelDir is the directory containing the model checkpoint.
	ModelDir string `yaml:"model_dir"`

	// ModelConfig is the model's own configuration file inside ModelDir.
	// Leave empty to use the engine's default.
	ModelConfig string `yaml:"model_config"`
}

// EngineConfig controls how the synthesis engine is invoked.
type EngineConfig struct {
	// Binary is the engine executable name or path (default "indextts").
	Binary string `yaml:"binary"`

	// Device selects the compute device. Default: auto.
	Device Device `yaml:"device"`

	// FP16 enables half-precision inference when the device supports it.
	FP16 bool `yaml:"fp16"`

	// SerializeSynthesis forces synthesis requests through a single engine
	// invocation at a time. Useful on GPUs without enough memory for
	// concurrent inference.
	SerializeSynthesis bool `yaml:"serialize_synthesis"`

	// AutoloadModel loads the model during startup instead of on the first
	// synthesis request.
	AutoloadModel bool `yaml:"autoload_model"`
}

// DefaultVoiceConfig describes the built-in voice seeded into an empty
// registry at startup.
type DefaultVoiceConfig struct {
	// ID is the registry identifier for the default voice (default "default").
	ID string `yaml:"id"`

	// Name is the display name (default "Default Voice").
	Name string `yaml:"name"`

	// Source is the path to the bundled reference sample copied into the
	// voices directory on first start. When the file is missing, the server
	// starts with an empty registry.
	Source string `yaml:"source"`
}
