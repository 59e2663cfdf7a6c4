package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves /metrics and a liveness endpoint for the ingestion worker
// pool (spec.md §2's Metrics component), adapted from the teacher's
// MetricsServer.
type Server struct {
	server *http.Server
	addr   string
}

// NewServer builds a metrics Server bound to addr. addr without a leading
// colon is treated as a bare port, as the teacher's constructor does.
func NewServer(addr string) *Server {
	if addr == "" {
		addr = ":9090"
	}
	if addr[0] != ':' {
		addr = ":" + addr
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"service": "fileingest", "version": "1.0.0"}`))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{server: srv, addr: addr}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	log.Printf("starting metrics server on %s", s.addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

var (
	// ActiveWorkers gauges the current size of the bounded worker pool
	// (spec.md §4.10).
	ActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_active_workers",
			Help: "Number of worker-pool slots currently processing a file",
		},
	)

	// DBConnections gauges pgxpool connection state.
	DBConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingest_db_connections",
			Help: "Database connection pool state",
		},
		[]string{"state"},
	)

	// DuplicateFiles counts files routed to the duplicates location
	// (spec.md §4.2).
	DuplicateFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_duplicate_files_total",
			Help: "Total files identified as duplicates",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(ActiveWorkers)
	prometheus.MustRegister(DBConnections)
	prometheus.MustRegister(DuplicateFiles)
}
