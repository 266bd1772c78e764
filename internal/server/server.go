// Package server wires the voxmimic HTTP surface: voice management,
// synthesis, static serving of generated audio, and operational endpoints.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxmimic/voxmimic/internal/health"
	"github.com/voxmimic/voxmimic/internal/observe"
	"github.com/voxmimic/voxmimic/internal/tts"
	"github.com/voxmimic/voxmimic/internal/voice"
)

// Config holds the server's own settings; everything else arrives through
// the collaborators passed to [New].
type Config struct {
	// OutputDir is the directory generated audio is served from under
	// /output/.
	OutputDir string
}

// Server exposes the voxmimic HTTP API.
type Server struct {
	cfg     Config
	voices  *voice.Registry
	svc     *tts.Service
	metrics *observe.Metrics
	handler http.Handler
}

// New assembles a [Server] with all routes registered. The health handler
// carries readiness checkers wired by the caller.
func New(cfg Config, voices *voice.Registry, svc *tts.Service, metrics *observe.Metrics, hc *health.Handler) *Server {
	s := &Server{
		cfg:     cfg,
		voices:  voices,
		svc:     svc,
		metrics: metrics,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/voices", s.handleVoices).Methods(http.MethodGet)
	r.HandleFunc("/clone-voice", s.handleCloneVoice).Methods(http.MethodPost)
	r.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)

	r.PathPrefix("/output/").Handler(
		http.StripPrefix("/output/", http.FileServer(http.Dir(cfg.OutputDir))),
	).Methods(http.MethodGet, http.MethodHead)

	hc.Register(r)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// CORS sits inside the observability middleware so that preflight
	// requests are traced but answered before routing.
	s.handler = observe.Middleware(metrics, r)(corsMiddleware(r))
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// corsMiddleware answers preflight requests and marks every response as
// cross-origin accessible. The service is designed to sit behind a trusted
// reverse proxy, so the policy is permissive.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
