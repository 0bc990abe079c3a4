package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/api"
	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/correction"
	"github.com/loqalabs/loqa-scribe/internal/dictation"
	"github.com/loqalabs/loqa-scribe/internal/eventstore"
	"github.com/loqalabs/loqa-scribe/internal/natsserver"
	"github.com/loqalabs/loqa-scribe/internal/recognition"
	"github.com/loqalabs/loqa-scribe/internal/recognition/bridge"
	"github.com/loqalabs/loqa-scribe/internal/recognition/busengine"
	"github.com/loqalabs/loqa-scribe/internal/transcript"
)

type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	ready         atomic.Bool
	wg            sync.WaitGroup

	nats    *natsserver.EmbeddedServer
	bus     *bus.Client
	store   *eventstore.Store
	bridge  *bridge.Engine
	busEng  *busengine.Engine
	session *dictation.Session
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the dictation service up and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	handler, err := r.build(ctx, metricsHandler)
	if err != nil {
		r.teardown()
		r.closeTelemetry()
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http")

	if metricsHandler != nil && r.cfg.Telemetry.PrometheusBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.serve(r.metricsServer, "metrics")
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr), slog.String("session_id", r.session.ID()))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	for _, srv := range []*http.Server{r.httpServer, r.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	r.teardown()
	r.closeTelemetry()
	return nil
}

// build assembles every component behind the HTTP handler. Components are
// recorded on r as they come up so teardown can release a partial build.
func (r *Runtime) build(ctx context.Context, metricsHandler http.Handler) (http.Handler, error) {
	cfg := r.cfg

	var err error
	r.store, err = eventstore.Open(ctx, cfg.EventStore, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}

	if cfg.Bus.Enabled {
		busCfg := cfg.Bus
		r.nats, err = natsserver.Start(busCfg, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start embedded bus: %w", err)
		}
		if r.nats != nil {
			busCfg.Servers = []string{r.nats.ClientURL()}
		}
		r.bus, err = bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to bus: %w", err)
		}
	}

	engine, err := r.recognitionEngine()
	if err != nil {
		return nil, err
	}

	strategy, err := transcript.ParseStrategy(cfg.Transcript.Strategy)
	if err != nil {
		return nil, err
	}
	rec := transcript.New(engine, transcript.Options{
		Strategy:        strategy,
		RestartDelay:    time.Duration(cfg.Transcript.RestartDelayMS) * time.Millisecond,
		DuplicateWindow: time.Duration(cfg.Transcript.DuplicateWindowMS) * time.Millisecond,
		DedupCapacity:   cfg.Transcript.DedupCapacity,
	}, r.logger)

	corrector, err := correction.FromConfig(ctx, cfg.Correction, cfg.Recognition.Language, r.logger)
	if err != nil {
		rec.Close()
		return nil, fmt.Errorf("failed to build corrector: %w", err)
	}

	var publisher dictation.Publisher
	if r.bus != nil {
		publisher = r.bus
	}
	r.session = dictation.New(ctx, rec, corrector, r.store, publisher, dictation.Options{
		Language:          cfg.Recognition.Language,
		CorrectionEnabled: cfg.Correction.Enabled,
		Debounce:          time.Duration(cfg.Correction.DebounceMS) * time.Millisecond,
		CorrectionTimeout: time.Duration(cfg.Correction.TimeoutMS) * time.Millisecond,
		ExportPrefix:      cfg.Export.Prefix,
	}, r.logger)

	apiOpts := api.Options{CorrectionTimeout: time.Duration(cfg.Correction.TimeoutMS) * time.Millisecond}
	if r.bridge != nil {
		b := r.bridge
		r.session.Subscribe(func(s dictation.Snapshot) {
			if err := b.Push(s.Update(time.Now())); err != nil {
				r.logger.Warn("failed to push transcript to recognition client", slog.String("error", err.Error()))
			}
		})
		apiOpts.Recognition = b
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	api.New(r.session, corrector, apiOpts, r.logger).Register(mux)
	return mux, nil
}

func (r *Runtime) recognitionEngine() (recognition.Engine, error) {
	recCfg := recognition.Config{
		Continuous:      r.cfg.Recognition.Continuous,
		InterimResults:  r.cfg.Recognition.InterimResults,
		Language:        r.cfg.Recognition.Language,
		MaxAlternatives: r.cfg.Recognition.MaxAlternatives,
	}
	switch r.cfg.Recognition.Engine {
	case "bridge":
		r.bridge = bridge.New(recCfg, r.logger)
		return r.bridge, nil
	case "bus":
		eng, err := busengine.New(r.bus, recCfg, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start bus recognition engine: %w", err)
		}
		r.busEng = eng
		return eng, nil
	case "scripted":
		return recognition.NewScripted(), nil
	case "none":
		r.logger.Warn("speech recognition disabled; commands will report unsupported")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown recognition engine %q", r.cfg.Recognition.Engine)
	}
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("server", name), slog.String("error", err.Error()))
		}
	}()
}

// teardown releases components in reverse start order.
func (r *Runtime) teardown() {
	if r.session != nil {
		r.session.Close()
	}
	if r.bridge != nil {
		r.bridge.Close()
	}
	if r.busEng != nil {
		if err := r.busEng.Close(); err != nil {
			r.logger.Warn("bus engine close error", slog.String("error", err.Error()))
		}
	}
	if r.bus != nil {
		r.bus.Close()
	}
	if r.nats != nil {
		r.nats.Shutdown()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("event store close error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) closeTelemetry() {
	if r.tracerClose == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tracerClose(ctx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.bus == nil || r.bus.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
