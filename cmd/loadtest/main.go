package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	promadapter "github.com/codewandler/esk/adapters/prometheus"
	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/domain/patient"
	"github.com/codewandler/esk/internal/bootstrap"
	"github.com/codewandler/esk/internal/config"
)

// === Config ===

// NOTE: for the nats backend run: docker run --net=host nats:latest -js

type loadConfig struct {
	config.Config

	N         int `env:"N" envDefault:"50000"`
	BatchSize int `env:"B" envDefault:"1000"`
	Workers   int `env:"W" envDefault:"8"`
	Patients  int `env:"P" envDefault:"16"`
}

func main() {
	var cfg loadConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		config.Exitf("config: %v", err)
	}
	if cfg.Workers < 1 || cfg.Patients < 1 || cfg.BatchSize < 1 {
		config.Exitf("config: W, P and B must be positive")
	}

	runID := gonanoid.Must(6)
	log := cfg.Logger(os.Stderr).With(slog.String("run", runID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg, log)
	}

	rt, err := bootstrap.Open(ctx, cfg.Config, log, promadapter.NewESMetrics(reg))
	checkErr(err)
	defer func() { _ = rt.Close() }()

	svc, err := rt.PatientService()
	checkErr(err)
	defer svc.Close()

	if err := run(ctx, cfg, svc, runID, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("loadtest failed", slog.Any("error", err))
		_ = rt.Close()
		os.Exit(1)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	log.Info("serving metrics", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", slog.Any("error", err))
	}
}

// === Run ===

type stats struct {
	writes    atomic.Int64
	conflicts atomic.Int64
	rejected  atomic.Int64
}

func run(ctx context.Context, cfg loadConfig, svc *patient.Service, runID string, log *slog.Logger) error {
	meta := []es.HandleOption{es.WithMetadata(patient.Meta{Actor: "loadtest-" + runID})}

	ids := make([]uuid.UUID, cfg.Patients)
	for i := range ids {
		m, err := svc.AddPatient(ctx, patient.AddPatient{
			Name:    fmt.Sprintf("patient %s-%d", runID, i),
			Address: patient.Address{Street: "1 Main St", City: "Springfield", State: "IL", Zip: "62701"},
		}, meta...)
		if err != nil {
			return fmt.Errorf("seed patient %d: %w", i, err)
		}
		ids[i] = m.ID
	}
	log.Info("seeded", slog.Int("patients", len(ids)), slog.Int("workers", cfg.Workers), slog.Int("n", cfg.N))

	var (
		st      stats
		next    atomic.Int64
		startAt = time.Now()
		last    atomic.Int64
	)
	last.Store(startAt.UnixNano())

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		g.Go(func() error {
			rnd := rand.New(rand.NewPCG(uint64(w), uint64(startAt.UnixNano())))
			for {
				i := next.Add(1)
				if i > int64(cfg.N) {
					return nil
				}
				if err := updateOne(ctx, svc, ids[rnd.IntN(len(ids))], int32(i), meta, cfg.RetryMaxTries, &st); err != nil {
					return err
				}
				if i%int64(cfg.BatchSize) == 0 {
					report(cfg.BatchSize, &last)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// === stats ===

	took := time.Since(startAt)
	runtime.GC()
	fmt.Println("==========================================")
	fmt.Printf("total runtime: %.3f seconds\n", took.Seconds())
	fmt.Printf("       writes: %d\n", st.writes.Load())
	fmt.Printf("    conflicts: %d\n", st.conflicts.Load())
	fmt.Printf("     rejected: %d\n", st.rejected.Load())
	fmt.Printf("avg. writes/s: %d\n", int(float64(st.writes.Load())/took.Seconds()))
	return nil
}

// updateOne changes the age of a patient, re-reading its version after every
// conflict with a concurrent worker.
func updateOne(ctx context.Context, svc *patient.Service, id uuid.UUID, age int32, opts []es.HandleOption, maxTries uint, st *stats) error {
	_, err := es.RetryOnConflict(ctx, func(ctx context.Context) (patient.PatientMeta, error) {
		current, err := svc.Meta(ctx, id)
		if err != nil {
			return patient.PatientMeta{}, err
		}
		m, ok := current.Get()
		if !ok {
			return patient.PatientMeta{}, fmt.Errorf("patient %s: %w", id, es.ErrEntityNotFound)
		}
		return svc.UpdatePatient(ctx, patient.UpdatePatient{
			ID:      id,
			Version: m.Version,
			Name:    "patient " + id.String(),
			Age:     age,
		}, opts...)
	},
		es.RetryMaxTries(maxTries),
		es.RetryNotify(func(error, time.Duration) { st.conflicts.Add(1) }),
	)
	switch {
	case err == nil:
		st.writes.Add(1)
		return nil
	case errors.Is(err, es.ErrValidation), errors.Is(err, es.ErrConcurrencyConflict):
		st.rejected.Add(1)
		return nil
	case errors.Is(err, es.ErrProjectionFailed):
		st.writes.Add(1)
		return svc.Sync(ctx, id)
	default:
		return err
	}
}

func report(batch int, last *atomic.Int64) {
	now := time.Now()
	took := now.Sub(time.Unix(0, last.Swap(now.UnixNano())))
	mu := getMemUsage()
	fmt.Printf(" | %5d writes | %6d ms | %6d writes/s | (%d / %d) MiB mem (sys) |\n",
		batch, took.Milliseconds(), int(float64(batch)/took.Seconds()), mu.Alloc/1024/1024, mu.Sys/1024/1024)
}

// === stats helpers ===

type MemUsage struct {
	Alloc uint64 // bytes allocated and not yet freed (heap)
	Sys   uint64 // total bytes obtained from OS
}

func getMemUsage() MemUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemUsage{Alloc: m.Alloc, Sys: m.Sys}
}

func checkErr(err error) {
	if err != nil {
		config.Exitf("loadtest: %v", err)
	}
}
