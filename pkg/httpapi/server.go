// Package httpapi serves the assistant over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	nodex "github.com/tanpawarit/clinic-appointment-agent/agent/nodes"
	statex "github.com/tanpawarit/clinic-appointment-agent/agent/state"
)

// Config is the HTTP_* section.
type Config struct {
	Addr         string        `split_words:"true" default:":8080"`
	ReadTimeout  time.Duration `split_words:"true" default:"10s"`
	WriteTimeout time.Duration `split_words:"true" default:"120s"`
	MaxBodyBytes int64         `split_words:"true" default:"65536"`
	RateLimit    float64       `split_words:"true" default:"2"`
	RateBurst    int           `split_words:"true" default:"5"`
	// ClientIdle is how long an unused per-client bucket is kept.
	ClientIdle time.Duration `split_words:"true" default:"10m"`
}

// Service is the conversation surface the API exposes.
type Service interface {
	HandleMessage(ctx context.Context, threadID string, identity int64, text string) (nodex.GraphOutput, error)
	Thread(ctx context.Context, threadID string) (*statex.SessionState, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// Recorder receives one observation per request.
type Recorder interface {
	RecordHTTPRequest(method, path string, status int, elapsed time.Duration)
}

type Server struct {
	cfg      Config
	svc      Service
	metrics  http.Handler
	recorder Recorder
	limiter  *clientLimiter
	newID    func() string
}

type Option func(*Server)

// WithMetrics mounts h on GET /metrics and records every request with rec.
func WithMetrics(h http.Handler, rec Recorder) Option {
	return func(s *Server) {
		s.metrics = h
		s.recorder = rec
	}
}

func New(cfg Config, svc Service, opts ...Option) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		limiter: newClientLimiter(cfg.RateLimit, cfg.RateBurst, cfg.ClientIdle),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("GET /threads/{id}", s.handleGetThread)
	mux.HandleFunc("DELETE /threads/{id}", s.handleDeleteThread)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return s.accessLog(s.rateLimit(mux))
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info().Msg("http server stopped")
		return nil
	}
}

/* ----------------------------- DTOs ----------------------------- */

type executeRequest struct {
	IDNumber int64  `json:"id_number"`
	Messages string `json:"messages"`
	ThreadID string `json:"thread_id"`
}

type messageResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type executeResponse struct {
	ThreadID string            `json:"thread_id"`
	Reply    string            `json:"reply"`
	Phase    string            `json:"phase"`
	Messages []messageResponse `json:"messages"`
}

type threadResponse struct {
	ThreadID  string            `json:"thread_id"`
	Phase     string            `json:"phase"`
	Turns     int               `json:"turns"`
	Messages  []messageResponse `json:"messages"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

/* ----------------------------- Handlers ----------------------------- */

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var req executeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = s.newID()
	}

	out, err := s.svc.HandleMessage(r.Context(), threadID, req.IDNumber, req.Messages)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, executeResponse{
		ThreadID: out.ThreadID,
		Reply:    out.Reply,
		Phase:    string(out.Phase),
		Messages: toMessages(out.Messages),
	})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Thread(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, threadResponse{
		ThreadID:  st.ThreadID,
		Phase:     string(st.Phase),
		Turns:     st.Turns,
		Messages:  toMessages(st.Messages),
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	})
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteThread(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toMessages(in []statex.Message) []messageResponse {
	out := make([]messageResponse, 0, len(in))
	for _, m := range in {
		out = append(out, messageResponse{
			Role:      string(m.Role),
			Content:   m.Content,
			Name:      m.Name,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

/* ----------------------------- Middleware ----------------------------- */

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		// Label by route pattern to keep cardinality bounded.
		path := r.Pattern
		if i := strings.IndexByte(path, ' '); i >= 0 {
			path = path[i+1:]
		}
		if path == "" {
			path = "unmatched"
		}
		if s.recorder != nil {
			s.recorder.RecordHTTPRequest(r.Method, path, rec.status, elapsed)
		}
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Msg("http request")
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

/* ----------------------------- Responses ----------------------------- */

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response failed")
	}
}
