// Package engine defines the Engine interface for voice-cloning synthesis
// backends.
//
// An engine wraps a pretrained zero-shot TTS model (e.g., an IndexTTS2
// checkpoint driven through its inference CLI) and presents a narrow
// file-path-in/file-path-out contract: given a reference audio clip that
// establishes the speaker identity and a piece of text, it produces a WAV
// file at the requested output path. The service core never depends on the
// model's internals — only on this success/failure contract.
//
// Implementations must be safe for concurrent use unless documented
// otherwise; deployments running a non-reentrant backend serialise calls at
// the orchestrator boundary instead.
package engine

import (
	"context"
	"errors"
)

// ErrNotLoaded is returned by Synthesize when Load has not completed
// successfully.
var ErrNotLoaded = errors.New("engine: model not loaded")

// Engine is the abstraction over any voice-cloning synthesis backend.
type Engine interface {
	// Load initialises the model. It is expensive (checkpoint loading, GPU
	// memory allocation) and is called at most once per process by the
	// orchestrator; a failed Load is terminal and is not retried.
	Load(ctx context.Context) error

	// Synthesize renders text as speech in the voice of the reference clip
	// at refAudioPath and writes a WAV file to outputPath. It returns the
	// path of the produced file, which may differ from outputPath if the
	// backend normalises extensions. Returns [ErrNotLoaded] when called
	// before a successful Load.
	Synthesize(ctx context.Context, refAudioPath, text, outputPath string) (string, error)

	// Loaded reports whether Load has completed successfully.
	Loaded() bool

	// Device returns the compute device the model runs on (e.g., "cuda:0",
	// "cpu"), or the empty string before Load.
	Device() string

	// Version returns the model's version string if known, or the empty
	// string.
	Version() string
}
