package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"tftfb/internal/config"
	"tftfb/internal/convert"
	"tftfb/internal/ili9341"
	appLog "tftfb/internal/log"
	"tftfb/internal/schedule"
)

// maxUpload bounds PUT /api/frame bodies.
const maxUpload = 8 << 20

// Device is the part of *ili9341.Device the server needs.
type Device interface {
	Stats() ili9341.Stats
	Buffer() *ili9341.PixelBuffer
	Flush() error
}

// Capturer is the part of *schedule.Scheduler the server needs.
type Capturer interface {
	Stats() schedule.Stats
	RunNow(ctx context.Context) error
}

// Server provides the status API and a live preview of the pixel buffer.
type Server struct {
	cfg      *config.Config
	dev      Device
	capturer Capturer // nil when capturing is disabled
	mux      *http.ServeMux

	// The preview is re-encoded at most once per previewTTL.
	previewMu    sync.Mutex
	previewCache *previewCache
}

type previewCache struct {
	png       []byte
	updatedAt time.Time
}

const previewTTL = time.Second

// NewServer constructs a new Server. capturer may be nil.
func NewServer(cfg *config.Config, dev Device, capturer Capturer) *Server {
	s := &Server{
		cfg:      cfg,
		dev:      dev,
		capturer: capturer,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="tftfb", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs an HTTP server on cfg.Listen until ctx is cancelled, then shuts
// it down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
	s.mux.HandleFunc("PUT /api/frame", s.handleFrame)
	s.mux.HandleFunc("POST /api/flush", s.handleFlush)
	s.mux.HandleFunc("POST /api/capture", s.handleCapture)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	Device  ili9341.Stats   `json:"device"`
	Capture *schedule.Stats `json:"capture,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Device: s.dev.Stats()}
	if s.capturer != nil {
		st := s.capturer.Stats()
		resp.Capture = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePreview renders the current pixel buffer as a PNG.
func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	s.previewMu.Lock()
	pc := s.previewCache
	if pc == nil || time.Since(pc.updatedAt) >= previewTTL {
		png, err := convert.EncodePNG(s.dev.Buffer().Snapshot())
		if err != nil {
			s.previewMu.Unlock()
			appLog.Error("preview encode failed", err)
			writeError(w, http.StatusInternalServerError, "failed to render preview")
			return
		}
		pc = &previewCache{png: png, updatedAt: time.Now()}
		s.previewCache = pc
	}
	s.previewMu.Unlock()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(pc.png)
}

// handleFrame loads an uploaded PNG into the pixel buffer. The refresh loop
// picks it up on its next frame.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpload))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	if err := convert.PackPNG(s.dev.Buffer(), data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.invalidatePreview()
	w.WriteHeader(http.StatusNoContent)
}

// handleFlush pushes the buffer to the panel right away.
func (s *Server) handleFlush(w http.ResponseWriter, _ *http.Request) {
	if err := s.dev.Flush(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ili9341.ErrNotReady) || errors.Is(err, ili9341.ErrClosed) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCapture runs the capture job once, outside its schedule.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if s.capturer == nil {
		writeError(w, http.StatusNotFound, "capture is not configured")
		return
	}
	if err := s.capturer.RunNow(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.invalidatePreview()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) invalidatePreview() {
	s.previewMu.Lock()
	s.previewCache = nil
	s.previewMu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
