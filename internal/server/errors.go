package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/voxmimic/voxmimic/internal/tts"
	"github.com/voxmimic/voxmimic/internal/voice"
	"github.com/voxmimic/voxmimic/pkg/audio"
)

// errorBody is the JSON error envelope returned by every endpoint.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Machine-readable error kinds.
const (
	kindNotFound     = "not_found"
	kindInvalidInput = "invalid_input"
	kindModelLoad    = "model_load"
	kindInference    = "inference"
	kindInvalidAudio = "invalid_audio"
	kindInternal     = "internal"
)

// writeError sends the JSON error envelope with the given status.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

// writeServiceError maps a service-layer error onto an HTTP status and kind.
// Unrecognised errors become opaque 500s, logged but not echoed to clients.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, voice.ErrNotFound):
		writeError(w, http.StatusNotFound, kindNotFound, err.Error())
	case errors.Is(err, voice.ErrEmptyName), errors.Is(err, tts.ErrEmptyText):
		writeError(w, http.StatusBadRequest, kindInvalidInput, err.Error())
	case errors.Is(err, tts.ErrModelLoad):
		writeError(w, http.StatusInternalServerError, kindModelLoad, err.Error())
	case errors.Is(err, tts.ErrInference):
		writeError(w, http.StatusInternalServerError, kindInference, err.Error())
	case errors.Is(err, audio.ErrEmptyAudio):
		writeError(w, http.StatusInternalServerError, kindInvalidAudio, err.Error())
	default:
		slog.ErrorContext(r.Context(), "unhandled request error",
			"method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, kindInternal, "internal error")
	}
}
