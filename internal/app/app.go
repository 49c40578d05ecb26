// Package app wires all soapscribe subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithIdentity, WithMetrics). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soapscribe/soapscribe/internal/config"
	"github.com/soapscribe/soapscribe/internal/health"
	"github.com/soapscribe/soapscribe/internal/identity"
	"github.com/soapscribe/soapscribe/internal/notegen"
	"github.com/soapscribe/soapscribe/internal/notes"
	"github.com/soapscribe/soapscribe/internal/notes/postgres"
	"github.com/soapscribe/soapscribe/internal/observe"
	"github.com/soapscribe/soapscribe/internal/server"
	"github.com/soapscribe/soapscribe/internal/session"
	"github.com/soapscribe/soapscribe/internal/transcript"
	"github.com/soapscribe/soapscribe/pkg/capture"
)

const (
	// readHeaderTimeout bounds slow-header attacks on the listener.
	readHeaderTimeout = 10 * time.Second

	// drainTimeout is how long Run waits for in-flight requests on shutdown.
	drainTimeout = 10 * time.Second
)

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a note store instead of creating one from config.
func WithStore(s notes.Store) Option {
	return func(a *App) { a.baseStore = s }
}

// WithIdentity injects an identity provider instead of creating one from
// config.
func WithIdentity(p identity.Provider) Option {
	return func(a *App) { a.ident = p }
}

// WithMetrics injects a metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// App owns all subsystem lifetimes and serves the scribe HTTP API.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	baseStore notes.Store
	store     *notes.Watched
	broker    *server.Broker
	sessions  *session.Manager
	ident     identity.Provider
	httpSrv   *http.Server

	mu   sync.Mutex
	addr string

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.LLM == nil {
		return nil, errors.New("app: stt and llm providers are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	var checkers []health.Checker

	// ── Note store ───────────────────────────────────────────────────────
	if a.baseStore == nil {
		if dsn := cfg.Store.PostgresDSN; dsn != "" {
			pg, err := postgres.NewStore(ctx, dsn)
			if err != nil {
				return nil, fmt.Errorf("app: connect note store: %w", err)
			}
			a.baseStore = pg
			a.closers = append(a.closers, func() error {
				pg.Close()
				return nil
			})
			checkers = append(checkers, health.PoolChecker("database", pg.Pool()))
			slog.Info("using postgres note store")
		} else {
			a.baseStore = notes.NewMemStore()
			slog.Warn("no postgres_dsn configured, notes are stored in memory")
		}
	}
	a.store = notes.Watch(&instrumentedStore{inner: a.baseStore, m: a.metrics}, slog.Default())

	// ── SSE broker, fed by the store's change feed ───────────────────────
	a.broker = server.NewBroker()
	a.closers = append(a.closers, func() error {
		a.broker.Close()
		return nil
	})
	a.store.Subscribe(a.broker.PublishNotes)

	// ── Identity ─────────────────────────────────────────────────────────
	if a.ident == nil {
		ident, err := buildIdentity(cfg.Identity)
		if err != nil {
			return nil, fmt.Errorf("app: build identity provider: %w", err)
		}
		a.ident = ident
	}

	// ── Gateways + per-clinician session controllers ─────────────────────
	sttp := &instrumentedSTT{inner: providers.STT, name: cfg.Providers.STT.Name, m: a.metrics}
	llmp := &instrumentedLLM{inner: providers.LLM, name: cfg.Providers.LLM.Name, m: a.metrics}

	genOpts := []notegen.Option{}
	if cfg.Note.Temperature != 0 {
		genOpts = append(genOpts, notegen.WithTemperature(cfg.Note.Temperature))
	}
	if cfg.Note.MaxTokens > 0 {
		genOpts = append(genOpts, notegen.WithMaxTokens(cfg.Note.MaxTokens))
	}
	generator, err := notegen.New(llmp, genOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: build generator: %w", err)
	}

	var corrector *transcript.Corrector
	if len(cfg.Note.Vocabulary) > 0 {
		corrector = transcript.New(cfg.Note.Vocabulary)
		slog.Info("transcript vocabulary correction enabled", "terms", len(cfg.Note.Vocabulary))
	}

	a.sessions = session.NewManager(func(owner string) *session.Controller {
		ctrlOpts := []session.Option{
			session.WithOnChange(a.broker.PublishSession),
			session.WithMetrics(a.metrics),
		}
		if corrector != nil {
			ctrlOpts = append(ctrlOpts, session.WithCorrector(corrector))
		}
		if cfg.Note.Template != "" {
			ctrlOpts = append(ctrlOpts, session.WithDefaultTemplate(cfg.Note.Template))
		}
		ctrl, err := session.New(session.Config{
			Owner:     owner,
			Device:    capture.NewBufferDevice(),
			STT:       sttp,
			Generator: generator,
			Store:     a.store,
		}, ctrlOpts...)
		if err != nil {
			// Unreachable: every dependency is non-nil by construction.
			panic("app: build session controller: " + err.Error())
		}
		a.metrics.ActiveSessions.Add(context.Background(), 1)
		return ctrl
	})

	// ── HTTP surface ─────────────────────────────────────────────────────
	checkers = append(checkers, health.Checker{
		Name: "providers",
		Check: func(context.Context) error {
			return nil // both gateways are non-nil by construction
		},
	})

	srv, err := server.New(server.Config{
		Sessions: a.sessions,
		Store:    a.store,
		Identity: a.ident,
		Broker:   a.broker,
	},
		server.WithHealth(health.New(checkers...)),
		server.WithMetrics(a.metrics),
		server.WithOpusIntake(),
	)
	if err != nil {
		return nil, fmt.Errorf("app: build server: %w", err)
	}

	a.httpSrv = &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return a, nil
}

// buildIdentity creates the identity provider for the configured mode.
func buildIdentity(cfg config.IdentityConfig) (identity.Provider, error) {
	switch cfg.Mode {
	case config.IdentityStatic:
		return identity.NewStaticProvider(cfg.Static)
	case config.IdentityNone:
		return nil, nil
	default:
		// Header mode is the default.
		return identity.NewHeaderProvider(cfg.Header), nil
	}
}

// Addr returns the bound listen address once Run has started, or "".
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Run binds the listener and serves HTTP until ctx is cancelled, then drains
// in-flight requests. Returns nil on a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen on %q: %w", a.cfg.Server.ListenAddr, err)
	}

	a.mu.Lock()
	a.addr = ln.Addr().String()
	a.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			slog.Info("soapscribe listening", "addr", a.Addr(), "tls", true)
			err = a.httpSrv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("soapscribe listening", "addr", a.Addr())
			err = a.httpSrv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		return a.httpSrv.Shutdown(drainCtx)
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in order: live sessions are abandoned
// (discarding open captures and invalidating in-flight gateway calls), then
// the broker and store are closed. It respects the context deadline: if ctx
// expires, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Len())

		a.sessions.Shutdown()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
