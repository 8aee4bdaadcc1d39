// Package api serves sampled poses and recorded sessions over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/trackpose/internal/db"
	"github.com/banshee-data/trackpose/internal/httputil"
	"github.com/banshee-data/trackpose/internal/monitoring"
	"github.com/banshee-data/trackpose/internal/pose"
	"github.com/banshee-data/trackpose/internal/posemux"
	"github.com/banshee-data/trackpose/internal/tracker"
	"github.com/banshee-data/trackpose/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultRecordLimit = 1000
	maxRecordLimit     = 100000
)

// Server exposes a sampling loop, its frame mux and the optional recorder
// database over HTTP.
type Server struct {
	loop *tracker.Loop
	m    *posemux.Mux
	db   *db.DB
}

// NewServer creates a Server. database may be nil when recording is
// disabled; the session routes then answer 503.
func NewServer(loop *tracker.Loop, m *posemux.Mux, database *db.DB) *Server {
	return &Server{
		loop: loop,
		m:    m,
		db:   database,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /poses/latest", s.latestPoses)
	mux.HandleFunc("GET /poses/stream", s.streamPoses)
	mux.HandleFunc("GET /stats", s.showStats)
	mux.HandleFunc("GET /config", s.showConfig)
	mux.HandleFunc("GET /sessions", s.listSessions)
	mux.HandleFunc("GET /sessions/{id}/records", s.sessionRecords)
	mux.HandleFunc("GET /sessions/{id}/chart", s.sessionChart)
	mux.HandleFunc("GET /version", s.showVersion)
	return mux
}

// recordJSON is the wire form of a PoseRecord. NaN and ±Inf have no JSON
// representation and are sent as null.
type recordJSON struct {
	Device   uint32      `json:"device"`
	Position [3]*float64 `json:"position"`
	Rotation [4]*float64 `json:"rotation"`
}

type frameJSON struct {
	Seq       uint64       `json:"seq"`
	Timestamp time.Time    `json:"timestamp"`
	Records   []recordJSON `json:"records,omitempty"`
	Flat      []*float64   `json:"flat,omitempty"`
}

func finite(v float32) *float64 {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func newRecordJSON(device uint32, r pose.PoseRecord) recordJSON {
	out := recordJSON{Device: device}
	for i := 0; i < 3; i++ {
		out.Position[i] = finite(r[i])
	}
	for i := 0; i < 4; i++ {
		out.Rotation[i] = finite(r[3+i])
	}
	return out
}

func newFrameJSON(f posemux.Frame, flat bool) frameJSON {
	out := frameJSON{Seq: f.Seq, Timestamp: f.Timestamp}
	if flat {
		values := f.Flat()
		out.Flat = make([]*float64, len(values))
		for i, v := range values {
			out.Flat[i] = finite(v)
		}
		return out
	}
	out.Records = make([]recordJSON, len(f.Records))
	for i, r := range f.Records {
		out.Records[i] = newRecordJSON(f.Indices[i], r)
	}
	return out
}

func (s *Server) latestPoses(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.loop.Latest()
	if !ok {
		httputil.NotFound(w, "No frame sampled yet")
		return
	}
	flat := r.URL.Query().Get("flat")
	httputil.WriteJSONOK(w, newFrameJSON(frame, flat == "1" || flat == "true"))
}

func (s *Server) streamPoses(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "Streaming unsupported")
		return
	}
	flat := r.URL.Query().Get("flat")
	asFlat := flat == "1" || flat == "true"

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, frames := s.m.Subscribe()
	defer s.m.Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			data, err := json.Marshal(newFrameJSON(f, asFlat))
			if err != nil {
				monitoring.Logf("failed to encode frame %d: %v", f.Seq, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", f.Seq, data); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]interface{}{
		"loop":        s.loop.Stats(),
		"subscribers": s.m.SubscriberCount(),
		"dropped":     s.m.Dropped(),
	})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	axes := s.loop.Axes()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"invert_x":        axes.InvertX,
		"invert_z":        axes.InvertZ,
		"flip_xz":         axes.FlipXZ,
		"device_indices":  s.loop.Indices(),
		"sample_interval": s.loop.Interval().String(),
		"recording":       s.db != nil,
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "Recording is disabled")
		return
	}
	sessions, err := s.db.ListSessions()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to list sessions: %v", err))
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

type storedRecordJSON struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Slot      int       `json:"slot"`
	recordJSON
}

func (s *Server) sessionRecords(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "Recording is disabled")
		return
	}

	q := r.URL.Query()
	var device *uint32
	if d := q.Get("device"); d != "" {
		parsed, err := strconv.ParseUint(d, 10, 32)
		if err != nil {
			httputil.BadRequest(w, "Invalid 'device' parameter")
			return
		}
		v := uint32(parsed)
		device = &v
	}

	limit := defaultRecordLimit
	if l := q.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxRecordLimit {
			httputil.BadRequest(w, fmt.Sprintf("Invalid 'limit' parameter (1-%d)", maxRecordLimit))
			return
		}
		limit = parsed
	}

	id := r.PathValue("id")
	session, err := s.db.GetSession(id)
	if err != nil {
		s.sessionError(w, err)
		return
	}
	records, err := s.db.SessionRecords(id, device, limit)
	if err != nil {
		s.sessionError(w, err)
		return
	}

	out := make([]storedRecordJSON, len(records))
	for i, rec := range records {
		out[i] = storedRecordJSON{
			Seq:        rec.Seq,
			Timestamp:  rec.Timestamp,
			Slot:       rec.Slot,
			recordJSON: newRecordJSON(rec.Device, rec.Record),
		}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"session": session,
		"records": out,
	})
}

func (s *Server) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrSessionNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, fmt.Sprintf("Failed to read session: %v", err))
}
