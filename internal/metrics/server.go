package metrics

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/shmchat/internal/errors"
	"github.com/Iron-Ham/shmchat/internal/logging"
)

// NewRouter serves /metrics from gatherer, /healthz, and /segment with the
// attached segment's layout as JSON.
func NewRouter(gatherer prometheus.Gatherer, stats StatsFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/segment", func(w http.ResponseWriter, _ *http.Request) {
		if stats == nil {
			http.Error(w, "no segment", http.StatusNotFound)
			return
		}
		st, err := stats()
		if errors.Is(err, errors.ErrNotAttached) {
			http.Error(w, "not attached", http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	})
	return r
}

// Server is the metrics HTTP listener.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *logging.Logger
	done   chan error
}

// Start listens on addr and serves handler in the background.
func Start(addr string, handler http.Handler, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", addr)
	}
	s := &Server{
		srv:    &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger.WithComponent("metrics"),
		done:   make(chan error, 1),
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	s.logger.Info("metrics server listening", "addr", ln.Addr().String())
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server and waits for it to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}
