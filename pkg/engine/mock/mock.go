// Package mock provides a test double for the engine.Engine interface.
//
// Use Engine to script load and synthesis outcomes and to verify what the
// orchestrator passed to the backend.
//
// Example:
//
//	eng := &mock.Engine{VersionResult: "2.0-test"}
//	_ = eng.Load(ctx)
//	path, _ := eng.Synthesize(ctx, "ref.wav", "hello", "out.wav")
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/voxmimic/voxmimic/pkg/engine"
)

// Compile-time interface assertion.
var _ engine.Engine = (*Engine)(nil)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// RefAudioPath is the reference clip path passed to Synthesize.
	RefAudioPath string
	// Text is the text passed to Synthesize.
	Text string
	// OutputPath is the requested output path.
	OutputPath string
}

// Engine is a mock implementation of engine.Engine.
type Engine struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// LoadErr, if non-nil, is returned by Load; the engine then stays unloaded.
	LoadErr error

	// SynthesizeErr, if non-nil, is returned by Synthesize.
	SynthesizeErr error

	// WriteOutput controls whether Synthesize creates a placeholder file at
	// the requested output path. Defaults to true via NewLoaded; zero-value
	// engines must set it explicitly when the caller checks file existence.
	WriteOutput bool

	// OutputData is the file content written when WriteOutput is set. A nil
	// slice writes a minimal non-empty placeholder.
	OutputData []byte

	// DeviceResult is returned by Device.
	DeviceResult string

	// VersionResult is returned by Version.
	VersionResult string

	// --- Call records ---

	// LoadCalls counts every call to Load, including failed ones.
	LoadCalls int

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	loaded bool
}

// NewLoaded returns an Engine that reports itself loaded immediately and
// writes placeholder output files on Synthesize.
func NewLoaded() *Engine {
	return &Engine{WriteOutput: true, DeviceResult: "cpu", loaded: true}
}

// Load records the call and flips the loaded flag unless LoadErr is set.
func (e *Engine) Load(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.LoadCalls++
	if e.LoadErr != nil {
		return e.LoadErr
	}
	e.loaded = true
	return nil
}

// Synthesize records the call and optionally writes a placeholder file.
func (e *Engine) Synthesize(_ context.Context, refAudioPath, text, outputPath string) (string, error) {
	e.mu.Lock()
	e.SynthesizeCalls = append(e.SynthesizeCalls, SynthesizeCall{
		RefAudioPath: refAudioPath,
		Text:         text,
		OutputPath:   outputPath,
	})
	err := e.SynthesizeErr
	write := e.WriteOutput
	data := e.OutputData
	e.mu.Unlock()

	if err != nil {
		return "", err
	}
	if write {
		if data == nil {
			data = []byte("RIFF")
		}
		if werr := os.WriteFile(outputPath, data, 0o644); werr != nil {
			return "", werr
		}
	}
	return outputPath, nil
}

// Loaded reports whether a successful Load has happened.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Device returns DeviceResult.
func (e *Engine) Device() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.DeviceResult
}

// Version returns VersionResult.
func (e *Engine) Version() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.VersionResult
}
