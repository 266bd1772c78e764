package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/voxmimic/voxmimic/internal/gpu"
	"github.com/voxmimic/voxmimic/internal/tts"
	"github.com/voxmimic/voxmimic/internal/voice"
)

// Request boundary limits.
const (
	// maxUploadBytes caps the multipart voice sample upload.
	maxUploadBytes = 50 << 20

	// Speed is a time-stretch factor; values above speedMax or at/below
	// speedMin distort beyond usefulness.
	speedMin = 0.25
	speedMax = 4.0

	// Pitch shift range in semitones, one octave either way.
	pitchMin = -12.0
	pitchMax = 12.0
)

// generateRequest is the POST /generate payload, accepted as JSON or as an
// HTML form.
type generateRequest struct {
	Text    string   `json:"text"`
	VoiceID string   `json:"voice_id"`
	Speed   *float64 `json:"speed"`
	Pitch   *float64 `json:"pitch"`
}

// generateResponse references the generated audio file.
type generateResponse struct {
	VoiceID   string `json:"voice_id"`
	AudioPath string `json:"audio_path"`
	AudioURL  string `json:"audio_url"`
}

// cloneResponse describes a newly registered voice.
type cloneResponse struct {
	VoiceID string `json:"voice_id"`
	Name    string `json:"name"`
	Path    string `json:"path"`
}

// voicesResponse lists all registered voices.
type voicesResponse struct {
	Voices []voice.Voice `json:"voices"`
}

// healthResponse is the GET /health body.
type healthResponse struct {
	Status string          `json:"status"`
	GPU    gpu.Info        `json:"gpu"`
	Model  tts.ModelStatus `json:"model"`
	Voices int             `json:"voices"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Status(r.Context())
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		GPU:    st.GPU,
		Model:  st.Model,
		Voices: st.Voices,
	})
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, voicesResponse{Voices: s.voices.List()})
}

func (s *Server) handleCloneVoice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, kindInvalidInput, "expected multipart form with voice_name and file")
		return
	}

	name := r.FormValue("voice_name")
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, kindInvalidInput, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	v, err := s.voices.Add(data, header.Filename, name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.metrics.CloneDuration.Record(r.Context(), time.Since(start).Seconds())
	s.metrics.VoicesTotal.Add(r.Context(), 1)
	slog.InfoContext(r.Context(), "voice cloned", "id", v.ID, "name", v.Name)

	writeJSON(w, http.StatusOK, cloneResponse{VoiceID: v.ID, Name: v.Name, Path: v.Path})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := parseGenerateRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindInvalidInput, err.Error())
		return
	}

	speed := 1.0
	if req.Speed != nil {
		speed = *req.Speed
	}
	pitch := 0.0
	if req.Pitch != nil {
		pitch = *req.Pitch
	}
	if speed <= speedMin || speed > speedMax {
		writeError(w, http.StatusBadRequest, kindInvalidInput,
			fmt.Sprintf("speed %.3f out of range (%.2f, %.2f]", speed, speedMin, speedMax))
		return
	}
	if pitch < pitchMin || pitch > pitchMax {
		writeError(w, http.StatusBadRequest, kindInvalidInput,
			fmt.Sprintf("pitch %.2f out of range [%.0f, %.0f]", pitch, pitchMin, pitchMax))
		return
	}

	res, err := s.svc.Generate(r.Context(), tts.Request{
		Text:    req.Text,
		VoiceID: req.VoiceID,
		Speed:   speed,
		Pitch:   pitch,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		VoiceID:   res.VoiceID,
		AudioPath: path.Join("output", res.AudioPath),
		AudioURL:  audioURL(r, res.AudioPath),
	})
}

// parseGenerateRequest decodes JSON or form payloads depending on the
// request Content-Type.
func parseGenerateRequest(r *http.Request) (generateRequest, error) {
	var req generateRequest

	ct := r.Header.Get("Content-Type")
	if ct != "" {
		ct, _, _ = mime.ParseMediaType(ct)
	}

	switch ct {
	case "application/json":
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return req, fmt.Errorf("invalid JSON body: %v", err)
		}
	default:
		if err := r.ParseForm(); err != nil {
			return req, fmt.Errorf("invalid form body: %v", err)
		}
		req.Text = r.PostFormValue("text")
		req.VoiceID = r.PostFormValue("voice_id")
		if raw := r.PostFormValue("speed"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return req, fmt.Errorf("invalid speed %q", raw)
			}
			req.Speed = &v
		}
		if raw := r.PostFormValue("pitch"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return req, fmt.Errorf("invalid pitch %q", raw)
			}
			req.Pitch = &v
		}
	}

	return req, nil
}

// audioURL builds an absolute URL for the generated file based on how the
// client reached us.
func audioURL(r *http.Request, file string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/output/" + file
}

// writeJSON encodes v with the given status. Encoding failures surface as a
// broken body; the status line is already gone by then.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}
