// Package tts orchestrates speech generation: it resolves the requested
// voice, drives the synthesis engine, applies speed/pitch post-processing,
// and hands back a file reference.
//
// The engine is loaded lazily on the first generation request. Loading is
// modelled as an explicit three-state machine (unloaded → loaded | failed)
// behind its own mutex with a lock-free fast path, so concurrent first
// requests block on one load and a failed load is terminal rather than
// retried on every request.
package tts

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxmimic/voxmimic/internal/gpu"
	"github.com/voxmimic/voxmimic/internal/observe"
	"github.com/voxmimic/voxmimic/internal/voice"
	"github.com/voxmimic/voxmimic/pkg/audio"
	"github.com/voxmimic/voxmimic/pkg/engine"
)

// ErrEmptyText is returned by Generate when the request text is empty or
// whitespace-only.
var ErrEmptyText = errors.New("text must not be empty")

// ErrModelLoad wraps a terminal engine initialisation failure. Once loading
// has failed, every subsequent request reports the original cause without
// retrying.
var ErrModelLoad = errors.New("model failed to load")

// ErrInference wraps a synthesis failure: the engine call errored, or it
// claimed success without producing the output file.
var ErrInference = errors.New("synthesis failed")

// Engine load states.
const (
	stateUnloaded int32 = iota
	stateLoaded
	stateFailed
)

// Request is a single generation request.
type Request struct {
	// Text to synthesise. Must be non-empty.
	Text string

	// VoiceID selects the speaker. Empty selects the default voice.
	VoiceID string

	// Speed is the playback-rate multiplier, neutral at 1.0.
	Speed float64

	// Pitch is the shift in semitones, neutral at 0.0.
	Pitch float64
}

// Result describes a finished generation.
type Result struct {
	// VoiceID is the resolved speaker identifier.
	VoiceID string

	// AudioPath is the output file location relative to the output root.
	AudioPath string
}

// Status is the observational health snapshot served by GET /health.
type Status struct {
	GPU    gpu.Info    `json:"gpu"`
	Model  ModelStatus `json:"model"`
	Voices int         `json:"voices"`
}

// ModelStatus reports the engine's load state.
type ModelStatus struct {
	Loaded  bool   `json:"loaded"`
	Device  string `json:"device,omitempty"`
	Version string `json:"version,omitempty"`
}

// Config holds the orchestrator's operational settings.
type Config struct {
	// OutputDir is the directory generated audio is written to.
	OutputDir string

	// SerializeSynthesis funnels engine calls through one mutex. Enable for
	// backends that are not reentrant; the registry and load path are
	// unaffected.
	SerializeSynthesis bool
}

// Service wires the voice registry and the synthesis engine together. Safe
// for concurrent use.
type Service struct {
	cfg     Config
	voices  *voice.Registry
	engine  engine.Engine
	metrics *observe.Metrics

	loadState atomic.Int32
	loadMu    sync.Mutex
	loadErr   error

	synthMu sync.Mutex // held around engine calls only when SerializeSynthesis
}

// New creates a Service. metrics must be non-nil; use a Metrics built from a
// plain sdk meter provider in tests.
func New(cfg Config, voices *voice.Registry, eng engine.Engine, metrics *observe.Metrics) *Service {
	return &Service{
		cfg:     cfg,
		voices:  voices,
		engine:  eng,
		metrics: metrics,
	}
}

// EnsureLoaded makes sure the engine has been loaded, performing the load if
// this is the first call. Concurrent callers during the initial load block
// until it finishes; callers after a failed load get [ErrModelLoad]
// immediately.
func (s *Service) EnsureLoaded(ctx context.Context) error {
	if s.loadState.Load() == stateLoaded {
		return nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	switch s.loadState.Load() {
	case stateLoaded:
		return nil
	case stateFailed:
		return fmt.Errorf("%w: %v", ErrModelLoad, s.loadErr)
	}

	start := time.Now()
	if err := s.engine.Load(ctx); err != nil {
		s.loadErr = err
		s.loadState.Store(stateFailed)
		s.metrics.RecordEngineError(ctx, "load")
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	s.loadState.Store(stateLoaded)

	slog.Info("synthesis engine loaded",
		"device", s.engine.Device(),
		"version", s.engine.Version(),
		"duration", time.Since(start),
	)
	return nil
}

// Generate runs the full pipeline for one request and returns the produced
// file reference. Error kinds: [ErrEmptyText], [voice.ErrNotFound],
// [ErrModelLoad], [ErrInference], [audio.ErrEmptyAudio]; anything else is an
// I/O failure propagated as-is.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Result{}, ErrEmptyText
	}

	v, err := s.voices.Get(req.VoiceID)
	if err != nil {
		return Result{}, err
	}
	refPath, err := s.voices.AbsolutePath(v)
	if err != nil {
		return Result{}, err
	}

	ctx, span := observe.StartSpan(ctx, "tts.generate")
	defer span.End()
	span.SetAttributes(observe.Attr("voice", v.ID))

	if err := s.EnsureLoaded(ctx); err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("tts: create output dir: %w", err)
	}

	id := uuid.New()
	token := hex.EncodeToString(id[:])
	rawPath := filepath.Join(s.cfg.OutputDir, token+"_raw.wav")
	finalPath := filepath.Join(s.cfg.OutputDir, token+".wav")

	start := time.Now()
	produced, err := s.synthesize(ctx, refPath, req.Text, rawPath)
	s.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("voice", v.ID)))
	if err != nil {
		s.metrics.RecordEngineError(ctx, "synthesize")
		s.metrics.RecordSynthesis(ctx, v.ID, "error")
		return Result{}, fmt.Errorf("%w: %v", ErrInference, err)
	}
	if produced == "" {
		return Result{}, fmt.Errorf("%w: engine returned no output path", ErrInference)
	}
	if _, err := os.Stat(produced); err != nil {
		return Result{}, fmt.Errorf("%w: engine output %q missing", ErrInference, produced)
	}

	if needsPostProcessing(req.Speed, req.Pitch) {
		err := audio.ApplySpeedPitch(produced, finalPath, req.Speed, req.Pitch)
		// Best-effort scratch cleanup regardless of the transform outcome.
		if rmErr := os.Remove(produced); rmErr != nil {
			observe.Logger(ctx).Warn("failed to remove scratch output", "path", produced, "err", rmErr)
		}
		if err != nil {
			return Result{}, err
		}
	} else {
		if err := os.Rename(produced, finalPath); err != nil {
			return Result{}, fmt.Errorf("tts: move output into place: %w", err)
		}
	}

	s.metrics.RecordSynthesis(ctx, v.ID, "ok")

	return Result{
		VoiceID:   v.ID,
		AudioPath: filepath.Base(finalPath),
	}, nil
}

// synthesize invokes the engine, optionally serialised for non-reentrant
// backends.
func (s *Service) synthesize(ctx context.Context, refPath, text, outPath string) (string, error) {
	if s.cfg.SerializeSynthesis {
		s.synthMu.Lock()
		defer s.synthMu.Unlock()
	}
	return s.engine.Synthesize(ctx, refPath, text, outPath)
}

// needsPostProcessing reports whether speed or pitch deviate from neutral
// beyond numeric tolerance.
func needsPostProcessing(speed, pitch float64) bool {
	return speed < 1-1e-3 || speed > 1+1e-3 || pitch < -1e-3 || pitch > 1e-3
}

// Status assembles the health snapshot: GPU inventory, engine load state,
// and the current voice count. Purely observational.
func (s *Service) Status(ctx context.Context) Status {
	return Status{
		GPU: gpu.Probe(ctx),
		Model: ModelStatus{
			Loaded:  s.loadState.Load() == stateLoaded,
			Device:  s.engine.Device(),
			Version: s.engine.Version(),
		},
		Voices: s.voices.Count(),
	}
}

// Loaded reports whether the engine has been successfully loaded.
func (s *Service) Loaded() bool {
	return s.loadState.Load() == stateLoaded
}

// LoadFailure returns the terminal load error. It is nil while the engine is
// unloaded or after a successful load.
func (s *Service) LoadFailure() error {
	if s.loadState.Load() != stateFailed {
		return nil
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return fmt.Errorf("%w: %v", ErrModelLoad, s.loadErr)
}
