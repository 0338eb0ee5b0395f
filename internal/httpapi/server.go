// Package httpapi serves health, shard status and metrics over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/shardline/pkg/log"
	"github.com/bft-labs/shardline/pkg/shard"
	"github.com/bft-labs/shardline/pkg/shardline"
)

// Source is the running instance the API reports on.
type Source interface {
	Status() shardline.State
	Info() []shard.Info
}

// Router builds the API handler. A nil gatherer disables /metrics.
func Router(src Source, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		st := src.Status()
		code := http.StatusOK
		if st != shardline.StateRunning {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{"state": st.String()})
	})

	r.Get("/shards", func(w http.ResponseWriter, _ *http.Request) {
		info := src.Info()
		if info == nil {
			info = []shard.Info{}
		}
		writeJSON(w, http.StatusOK, info)
	})

	r.Get("/shards/{index}", func(w http.ResponseWriter, req *http.Request) {
		idx, err := strconv.ParseUint(chi.URLParam(req, "index"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid shard index"})
			return
		}
		for _, in := range src.Info() {
			if in.Index == idx {
				writeJSON(w, http.StatusOK, in)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "shard not found"})
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Server runs the API until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger log.Logger
}

// NewServer creates a server listening on addr.
func NewServer(addr string, handler http.Handler, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", log.String("addr", s.srv.Addr))
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
