package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Validate] when the corresponding field is empty.
const (
	DefaultListenAddr   = ":8000"
	DefaultVoicesDir    = "voices"
	DefaultOutputDir    = "output"
	DefaultEngineBinary = "indextts"
	DefaultVoiceID      = "default"
	DefaultVoiceName    = "Default Voice"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values, applying
// defaults for fields that may be left empty. It returns a joined error
// listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Paths
	if cfg.Paths.VoicesDir == "" {
		cfg.Paths.VoicesDir = DefaultVoicesDir
	}
	if cfg.Paths.OutputDir == "" {
		cfg.Paths.OutputDir = DefaultOutputDir
	}
	if cfg.Paths.MetadataPath == "" {
		cfg.Paths.MetadataPath = filepath.Join(cfg.Paths.VoicesDir, "voices.json")
	}
	if cfg.Paths.ModelDir == "" {
		slog.Warn("paths.model_dir is not set; synthesis will fail until the model is available")
	}

	// Engine
	if cfg.Engine.Binary == "" {
		cfg.Engine.Binary = DefaultEngineBinary
	}
	if cfg.Engine.Device == "" {
		cfg.Engine.Device = DeviceAuto
	}
	if !cfg.Engine.Device.IsValid() {
		errs = append(errs, fmt.Errorf("engine.device %q is invalid; valid values: auto, cpu, cuda", cfg.Engine.Device))
	}
	if cfg.Engine.FP16 && cfg.Engine.Device == DeviceCPU {
		slog.Warn("engine.fp16 has no effect on cpu; the engine runs full precision")
	}

	// Default voice
	if cfg.DefaultVoice.ID == "" {
		cfg.DefaultVoice.ID = DefaultVoiceID
	}
	if cfg.DefaultVoice.Name == "" {
		cfg.DefaultVoice.Name = DefaultVoiceName
	}
	if cfg.DefaultVoice.Source == "" {
		slog.Warn("default_voice.source is not set; the registry starts empty until a voice is cloned")
	}

	return errors.Join(errs...)
}

// EnsureDirectories creates the voices and output directories, plus the
// parent directory of the metadata file, if they do not exist yet.
func EnsureDirectories(cfg *Config) error {
	dirs := []string{
		cfg.Paths.VoicesDir,
		cfg.Paths.OutputDir,
		filepath.Dir(cfg.Paths.MetadataPath),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("config: create directory %q: %w", d, err)
		}
	}
	return nil
}
