// Package voice persists speaker reference clips on disk and exposes their
// metadata.
//
// The registry owns a mapping from voice identifier to [Voice], mirrored to a
// JSON metadata file under the voices root. All reads and writes go through
// one mutex: registration is rare and cheap next to synthesis, so a
// coarse-grained lock keeps the collision-resolution and persistence logic
// trivially correct under concurrent requests.
//
// The metadata file is written with a temp-file-then-rename pattern so a
// crash mid-write never leaves a truncated file behind, and entries whose
// backing audio file has gone missing are silently dropped at load time.
package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned by Get and AbsolutePath when the requested voice
// (or its backing audio file) does not exist.
var ErrNotFound = errors.New("voice not found")

// ErrEmptyName is returned by Add when the display name is empty or
// whitespace-only.
var ErrEmptyName = errors.New("voice name must not be empty")

// Voice describes a stored speaker reference clip.
type Voice struct {
	// ID is the unique, stable identifier; it doubles as the voice's
	// directory name under the voices root.
	ID string `json:"id"`

	// Name is the human-readable display label. Not required to be unique.
	Name string `json:"name"`

	// Path is the audio file location relative to the voices root.
	Path string `json:"path"`

	// CreatedAt is the registration timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// Config locates the registry's files and names the seeded default voice.
type Config struct {
	// VoicesDir is the root directory holding one subdirectory per voice.
	VoicesDir string

	// MetadataPath is the JSON metadata file location.
	MetadataPath string

	// DefaultID identifies the voice used when a request omits voice_id.
	DefaultID string

	// DefaultName is the display name given to the seeded default voice.
	DefaultName string

	// DefaultSource is an optional sample file copied in as the default
	// voice on first run. When empty or missing, Bootstrap completes with an
	// empty registry instead of failing — deliberate degraded-mode behaviour
	// for deployments that only ever use cloned voices.
	DefaultSource string
}

// metadataFile is the on-disk shape of the metadata document.
type metadataFile struct {
	Voices []json.RawMessage `json:"voices"`
}

// Registry is the file-backed voice store. Create one with New, then call
// Bootstrap before use. Safe for concurrent use.
type Registry struct {
	cfg Config

	mu     sync.Mutex
	voices map[string]Voice
}

// New creates a Registry over the given locations. No disk access happens
// until Bootstrap.
func New(cfg Config) *Registry {
	return &Registry{
		cfg:    cfg,
		voices: make(map[string]Voice),
	}
}

// Bootstrap ensures the required directories exist, loads the metadata file
// if present, and — when the registry comes up empty — seeds exactly one
// default voice from the configured sample. A missing or unset sample leaves
// the registry empty without error.
func (r *Registry) Bootstrap() error {
	if err := os.MkdirAll(r.cfg.VoicesDir, 0o755); err != nil {
		return fmt.Errorf("voice: create voices dir: %w", err)
	}
	if dir := filepath.Dir(r.cfg.MetadataPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("voice: create metadata dir: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return err
	}
	if len(r.voices) == 0 {
		return r.seedDefaultLocked()
	}
	return nil
}

// loadLocked reads the metadata file into the in-memory map. A missing file
// is an empty registry; malformed records and records whose audio file is
// gone are skipped, not fatal.
func (r *Registry) loadLocked() error {
	data, err := os.ReadFile(r.cfg.MetadataPath)
	if errors.Is(err, os.ErrNotExist) {
		r.voices = make(map[string]Voice)
		return nil
	}
	if err != nil {
		return fmt.Errorf("voice: read metadata: %w", err)
	}

	var doc metadataFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("voice: parse metadata %q: %w", r.cfg.MetadataPath, err)
	}

	voices := make(map[string]Voice, len(doc.Voices))
	for _, raw := range doc.Voices {
		var v Voice
		if err := json.Unmarshal(raw, &v); err != nil || v.ID == "" || v.Path == "" {
			slog.Warn("voice: skipping malformed metadata record", "err", err)
			continue
		}
		if _, err := os.Stat(filepath.Join(r.cfg.VoicesDir, v.Path)); err != nil {
			slog.Warn("voice: dropping voice with missing audio file",
				"id", v.ID, "path", v.Path)
			continue
		}
		voices[v.ID] = v
	}
	r.voices = voices
	return nil
}

// saveLocked serialises the full map to the metadata file atomically.
func (r *Registry) saveLocked() error {
	doc := struct {
		Voices []Voice `json:"voices"`
	}{Voices: make([]Voice, 0, len(r.voices))}
	for _, v := range r.voices {
		doc.Voices = append(doc.Voices, v)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("voice: marshal metadata: %w", err)
	}

	tmp := r.cfg.MetadataPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("voice: write metadata: %w", err)
	}
	if err := os.Rename(tmp, r.cfg.MetadataPath); err != nil {
		return fmt.Errorf("voice: replace metadata: %w", err)
	}
	return nil
}

// seedDefaultLocked copies the bundled sample into the voices root and
// registers it under the configured default ID.
func (r *Registry) seedDefaultLocked() error {
	if r.cfg.DefaultSource == "" {
		return nil
	}
	src, err := os.Open(r.cfg.DefaultSource)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("voice: default voice sample missing, starting with empty registry",
			"source", r.cfg.DefaultSource)
		return nil
	}
	if err != nil {
		return fmt.Errorf("voice: open default sample: %w", err)
	}
	defer src.Close()

	destDir := filepath.Join(r.cfg.VoicesDir, r.cfg.DefaultID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("voice: create default voice dir: %w", err)
	}
	destFile := filepath.Join(destDir, filepath.Base(r.cfg.DefaultSource))

	dst, err := os.Create(destFile)
	if err != nil {
		return fmt.Errorf("voice: create default sample copy: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("voice: copy default sample: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("voice: copy default sample: %w", err)
	}

	return r.registerLocked(r.cfg.DefaultID, r.cfg.DefaultName, destFile)
}

// List returns a snapshot of the current voices. Order is unspecified.
func (r *Registry) List() []Voice {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Voice, 0, len(r.voices))
	for _, v := range r.voices {
		out = append(out, v)
	}
	return out
}

// Count returns the number of registered voices.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.voices)
}

// Get resolves a voice by ID. An empty id selects the configured default
// voice. Returns [ErrNotFound] when no entry exists for the resolved id.
func (r *Registry) Get(id string) (Voice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = r.cfg.DefaultID
	}
	v, ok := r.voices[id]
	if !ok {
		return Voice{}, fmt.Errorf("voice %q: %w", id, ErrNotFound)
	}
	return v, nil
}

// Register stores a voice whose audio file the caller has already placed at
// filePath (inside the voices root) and persists the registry.
func (r *Registry) Register(id, name, filePath string) (Voice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.registerLocked(id, name, filePath); err != nil {
		return Voice{}, err
	}
	return r.voices[id], nil
}

func (r *Registry) registerLocked(id, name, filePath string) error {
	rel, err := filepath.Rel(r.cfg.VoicesDir, filePath)
	if err != nil {
		return fmt.Errorf("voice: path %q outside voices root: %w", filePath, err)
	}
	r.voices[id] = Voice{
		ID:        id,
		Name:      name,
		Path:      rel,
		CreatedAt: time.Now().UTC(),
	}
	return r.saveLocked()
}

// Add stores an uploaded reference clip under a fresh identifier derived from
// displayName and registers it. The collision check, the file write, and the
// registration all happen under one lock acquisition, so two concurrent Adds
// with the same name always end up with distinct ids.
func (r *Registry) Add(data []byte, uploadName, displayName string) (Voice, error) {
	if strings.TrimSpace(displayName) == "" {
		return Voice{}, ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slug := Slugify(displayName)
	id := slug
	for n := 2; ; n++ {
		if _, exists := r.voices[id]; !exists {
			break
		}
		id = fmt.Sprintf("%s-%d", slug, n)
	}

	ext := filepath.Ext(uploadName)
	if ext == "" {
		ext = ".wav"
	}

	targetDir := filepath.Join(r.cfg.VoicesDir, id)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return Voice{}, fmt.Errorf("voice: create voice dir: %w", err)
	}
	targetFile := filepath.Join(targetDir, "prompt"+ext)
	if err := os.WriteFile(targetFile, data, 0o644); err != nil {
		return Voice{}, fmt.Errorf("voice: write reference clip: %w", err)
	}

	if err := r.registerLocked(id, strings.TrimSpace(displayName), targetFile); err != nil {
		return Voice{}, err
	}
	return r.voices[id], nil
}

// AbsolutePath resolves a voice's audio file against the voices root. Returns
// [ErrNotFound] when the file has been removed out-of-band since load.
func (r *Registry) AbsolutePath(v Voice) (string, error) {
	path := filepath.Join(r.cfg.VoicesDir, v.Path)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("voice %q reference clip: %w", v.ID, ErrNotFound)
	}
	return path, nil
}
