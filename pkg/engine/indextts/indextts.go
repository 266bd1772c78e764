// Package indextts provides an [engine.Engine] adapter around the IndexTTS2
// inference command-line tool.
//
// The adapter treats the model as an opaque collaborator: Load verifies that
// the checkpoint directory and model config exist and probes the CLI for its
// version string; Synthesize shells out once per request with the reference
// clip, the text, and the desired output path. Nothing in this package
// depends on the model's internals.
//
// Typical usage:
//
//	eng := indextts.New(indextts.Config{
//	    BinaryPath: "indextts",
//	    ModelDir:   "/srv/models/indextts2",
//	    ConfigPath: "/srv/models/indextts2/config.yaml",
//	    Device:     "cuda:0",
//	})
//	if err := eng.Load(ctx); err != nil { ... }
//	path, err := eng.Synthesize(ctx, refWav, "hello", outWav)
package indextts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"

	"github.com/voxmimic/voxmimic/pkg/engine"
)

// Compile-time interface assertion.
var _ engine.Engine = (*Engine)(nil)

const defaultBinary = "indextts"

// Config holds the paths and device options handed to the inference CLI.
type Config struct {
	// BinaryPath is the inference CLI executable. Defaults to "indextts"
	// resolved via PATH when empty.
	BinaryPath string

	// ModelDir is the directory containing the model checkpoints.
	ModelDir string

	// ConfigPath is the model configuration file (usually config.yaml inside
	// ModelDir).
	ConfigPath string

	// Device selects the compute device (e.g., "cuda:0"). Empty lets the CLI
	// pick; the adapter then reports "auto".
	Device string

	// UseFP16 enables half-precision inference when the device supports it.
	UseFP16 bool
}

// Engine shells out to the IndexTTS2 CLI for every synthesis request. Safe
// for concurrent use: each call spawns an independent process.
type Engine struct {
	cfg    Config
	loaded atomic.Bool

	// version and device are written by Load before loaded is set to true and
	// read by the accessors only after observing loaded, so a status probe
	// racing the first Load never sees a partial write.
	version string
	device  string
}

// New creates an unloaded Engine. Call Load before Synthesize.
func New(cfg Config) *Engine {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = defaultBinary
	}
	return &Engine{cfg: cfg}
}

// Load verifies the model assets are present and probes the CLI for its
// version. It does not keep a process alive; model weights are mapped by the
// CLI on each invocation (or by its own daemon, which is outside this
// adapter's contract).
func (e *Engine) Load(ctx context.Context) error {
	if e.cfg.ModelDir == "" {
		return errors.New("indextts: model dir not configured")
	}
	if _, err := os.Stat(e.cfg.ModelDir); err != nil {
		return fmt.Errorf("indextts: model dir: %w", err)
	}
	if e.cfg.ConfigPath != "" {
		if _, err := os.Stat(e.cfg.ConfigPath); err != nil {
			return fmt.Errorf("indextts: model config: %w", err)
		}
	}

	out, err := exec.CommandContext(ctx, e.cfg.BinaryPath, "--version").CombinedOutput()
	if err != nil {
		return fmt.Errorf("indextts: probe %q: %w: %s", e.cfg.BinaryPath, err, strings.TrimSpace(string(out)))
	}
	e.version = strings.TrimSpace(string(out))

	e.device = e.cfg.Device
	if e.device == "" {
		e.device = "auto"
	}
	e.loaded.Store(true)
	return nil
}

// Synthesize invokes the CLI once and returns the output path on success.
func (e *Engine) Synthesize(ctx context.Context, refAudioPath, text, outputPath string) (string, error) {
	if !e.loaded.Load() {
		return "", engine.ErrNotLoaded
	}

	args := []string{
		"--model-dir", e.cfg.ModelDir,
		"--ref-audio", refAudioPath,
		"--output", outputPath,
	}
	if e.cfg.ConfigPath != "" {
		args = append(args, "--config", e.cfg.ConfigPath)
	}
	if e.cfg.Device != "" {
		args = append(args, "--device", e.cfg.Device)
	}
	if e.cfg.UseFP16 {
		args = append(args, "--fp16")
	}
	args = append(args, "--text", text)

	cmd := exec.CommandContext(ctx, e.cfg.BinaryPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("indextts: synthesis failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return outputPath, nil
}

// Loaded implements [engine.Engine].
func (e *Engine) Loaded() bool { return e.loaded.Load() }

// Device implements [engine.Engine]. Returns the empty string before Load
// has completed.
func (e *Engine) Device() string {
	if !e.loaded.Load() {
		return ""
	}
	return e.device
}

// Version implements [engine.Engine]. Returns the empty string before Load
// has completed.
func (e *Engine) Version() string {
	if !e.loaded.Load() {
		return ""
	}
	return e.version
}
