package queryservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tracewell/collector/internal/sqlengine"
	"github.com/tracewell/collector/internal/store"
)

// maxLoggedBodyBytes caps request body logging, matching the teacher's
// sqliteExporter.loggingMiddleware bound.
const maxLoggedBodyBytes = 64 * 1024

// Server exposes a Service over HTTP: plain JSON for Query/Clear/Schema,
// and Server-Sent Events for Follow (spec.md §1's "local presentation
// tools" and §4.4's streaming RPC, transported per the Open Question
// decision recorded in SPEC_FULL.md).
type Server struct {
	svc    *Service
	logger *zap.Logger
	server *http.Server
}

// NewServer builds an http.Server bound to addr, serving svc.
func NewServer(svc *Service, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/schema", s.handleSchema)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/clear", s.handleClear)
	mux.HandleFunc("/follow", s.handleFollowSSE)
	mux.HandleFunc("/ws/follow", s.handleFollowWS)

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.loggingMiddleware(s.corsMiddleware(mux)),
	}
	return s
}

// ListenAndServe runs the HTTP server until it is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting query server", zap.String("addr", s.server.Addr))
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("query server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and blocks until ctx is canceled or the server
// fails on its own, returning whichever error occurred first. It pairs a
// listener goroutine with a shutdown-on-cancel goroutine under a single
// errgroup so callers get one error value instead of juggling both.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.ListenAndServe()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, msg string, err error, status int) {
	if err != nil {
		s.logger.Warn(msg, zap.Error(err))
	} else {
		s.logger.Warn(msg)
	}
	http.Error(w, msg, status)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
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

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var bodyStr string
		if r.Method == http.MethodPost && r.Body != nil && s.logger.Core().Enabled(zap.DebugLevel) {
			bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBodyBytes+1))
			if err == nil {
				bodyStr = string(bodyBytes)
				r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			}
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
		if bodyStr != "" {
			s.logger.Debug("http request body", zap.String("path", r.URL.Path), zap.String("body", bodyStr))
		}
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.svc.Stats())
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, sqlengine.Columns)
}

type queryRequest struct {
	SQL string `json:"sql"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	sql, err := s.sqlFromRequest(r)
	if err != nil {
		s.writeError(w, "invalid request", err, http.StatusBadRequest)
		return
	}

	res, err := s.svc.Query(sql)
	if err != nil {
		s.writeError(w, "query failed", err, http.StatusBadRequest)
		return
	}
	s.writeJSON(w, res)
}

func (s *Server) sqlFromRequest(r *http.Request) (string, error) {
	if r.Method == http.MethodGet {
		if sql := r.URL.Query().Get("sql"); sql != "" {
			return sql, nil
		}
		return "", fmt.Errorf("missing sql query parameter")
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", fmt.Errorf("decoding request body: %w", err)
	}
	return req.SQL, nil
}

type clearRequest struct {
	Kinds []string `json:"kinds"`
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	kinds, err := parseKinds(req.Kinds)
	if err != nil {
		s.writeError(w, "invalid kinds", err, http.StatusBadRequest)
		return
	}
	s.writeJSON(w, s.svc.Clear(kinds...))
}

func parseKinds(names []string) ([]store.Kind, error) {
	if len(names) == 0 {
		return []store.Kind{store.KindTraces, store.KindLogs, store.KindMetrics}, nil
	}
	out := make([]store.Kind, 0, len(names))
	for _, n := range names {
		switch n {
		case "traces":
			out = append(out, store.KindTraces)
		case "logs":
			out = append(out, store.KindLogs)
		case "metrics":
			out = append(out, store.KindMetrics)
		default:
			return nil, fmt.Errorf("unknown kind %q", n)
		}
	}
	return out, nil
}

// handleFollowSSE streams Follow frames as Server-Sent Events. Each frame
// is one "data: <json>\n\n" event; the connection closes when the client
// disconnects or the stream lags.
func (s *Server) handleFollowSSE(w http.ResponseWriter, r *http.Request) {
	sql, mode, err := followParamsFromRequest(r)
	if err != nil {
		s.writeError(w, "invalid request", err, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, "streaming unsupported", nil, http.StatusInternalServerError)
		return
	}

	stream, err := s.svc.Follow(r.Context(), sql, mode)
	if err != nil {
		s.writeError(w, "follow failed", err, http.StatusBadRequest)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for frame := range stream.Frames {
		payload, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}

	if err := stream.Err(); err != nil {
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
		flusher.Flush()
	}
}

func followParamsFromRequest(r *http.Request) (sql string, mode FollowMode, err error) {
	q := r.URL.Query()
	sql = q.Get("sql")
	if sql == "" {
		return "", 0, fmt.Errorf("missing sql query parameter")
	}
	mode = NewSpansOnly
	if q.Get("mode") == "full_group" {
		mode = FullGroup
	}
	return sql, mode, nil
}
