package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-lens/internal/config"
)

// maxRequestBytes caps /analyze bodies; a 512-token float64 matrix is about 2MB.
const maxRequestBytes = 16 << 20

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lens_http_requests_total",
		Help: "Total number of /analyze requests by status code",
	}, []string{"code"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lens_request_duration_seconds",
		Help:    "Time spent processing analyze requests",
		Buckets: prometheus.DefBuckets,
	})
)

var tracer = otel.Tracer("lens-server")

type Server struct {
	sem *semaphore.Weighted
}

func NewServer(maxConcurrent int) *Server {
	return &Server{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func (s *Server) fail(w http.ResponseWriter, code int, msg string) {
	requestsTotal.WithLabelValues(fmt.Sprint(code)).Inc()
	http.Error(w, msg, code)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleAnalyze")
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		s.fail(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		s.fail(w, http.StatusServiceUnavailable, "Server busy")
		return
	}
	defer s.sem.Release(1)

	var req analyzeRequest
	if err := cbor.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		span.RecordError(err)
		s.fail(w, http.StatusBadRequest, fmt.Sprintf("Bad Request (CBOR decode): %v", err))
		return
	}
	span.SetAttributes(
		attribute.Int("seq_len", len(req.Tokens)),
		attribute.String("input_type", req.InputType),
	)

	res, err := req.analyze()
	if err != nil {
		span.RecordError(err)
		s.fail(w, http.StatusBadRequest, fmt.Sprintf("Bad Request: %v", err))
		return
	}

	body, err := cbor.Marshal(res)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "encode result")
		return
	}
	requestsTotal.WithLabelValues("200").Inc()
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func serveCmd(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.String("listen", "", "Address to listen on (e.g. :8080)")
	fs.Int("max-concurrent", 0, "Maximum number of concurrent analyze requests")
	enableOTel := fs.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")

	cfg, err := loadConfig(fs, args, func(c *config.Config) map[string]func(string) error {
		return map[string]func(string) error{
			"listen": setString(&c.Server.Addr),
			"max-concurrent": func(v string) error {
				list, err := parseIntList(v)
				if err != nil || len(list) != 1 || list[0] < 1 {
					return fmt.Errorf("invalid -max-concurrent %q", v)
				}
				c.Server.MaxConcurrent = list[0]
				return nil
			},
		}
	})
	if err != nil {
		return err
	}

	return withTracing(*enableOTel, func() error {
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           NewServer(cfg.Server.MaxConcurrent).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		log.Info().Str("addr", cfg.Server.Addr).Int("max_concurrent", cfg.Server.MaxConcurrent).Msg("Starting Lens Server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
}
