package visa

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"

	"github.com/jonanatree/visapay/internal/metrics"
	"github.com/jonanatree/visapay/internal/middleware"
	"github.com/jonanatree/visapay/internal/session"
	visa8583 "github.com/jonanatree/visapay/visa/iso8583"
)

const sweepInterval = time.Minute

// App is the main application, it contains all the components of the payment
// service and is responsible for starting and stopping them.
type App struct {
	srv               *http.Server
	wg                *sync.WaitGroup
	Addr              string
	ISO8583ServerAddr string
	logger            *slog.Logger
	iso8583Server     io.Closer
	config            *Config

	store      AdminStore
	closeStore func() error
	sessions   *session.Store
	stop       chan struct{}
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "visa"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		wg:     &sync.WaitGroup{},
		logger: logger,
		config: config,
		stop:   make(chan struct{}),
	}
}

func (a *App) Start(ctx context.Context) error {
	a.logger.Info("starting app...")

	if err := a.config.Validate(); err != nil {
		return err
	}

	var rec *metrics.Recorder
	if a.config.MetricsEnabled {
		rec = metrics.New()
	}

	var (
		ops   Operations
		ready func(ctx context.Context) error
	)
	if a.config.Backend == BackendLocal {
		store, closeStore, err := OpenStore(ctx, a.config)
		if err != nil {
			return fmt.Errorf("opening %s store: %w", a.config.Store, err)
		}
		a.store = store
		a.closeStore = closeStore

		svc := NewService(store, a.logger, rec)
		ops = svc
		ready = svc.Ping
	} else {
		remote, err := remoteOperations(a.config)
		if err != nil {
			return err
		}
		ops = remote
		ready = func(context.Context) error { return nil }
		a.logger.Info("forwarding operations", slog.String("backend", a.config.Backend), slog.String("url", a.config.BackendURL))
	}

	a.sessions = session.New(a.config.SessionTTL)
	workflow := NewWorkflow(ops, a.sessions)

	iso8583Server := visa8583.NewServer(a.logger, a.config.ISO8583Addr, workflow)
	if err := iso8583Server.Start(); err != nil {
		a.closeStoreQuietly()
		return fmt.Errorf("starting iso8583 server: %w", err)
	}
	a.ISO8583ServerAddr = iso8583Server.Addr
	a.iso8583Server = iso8583Server

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.NewStructuredLogger(a.logger))
	router.Use(chimiddleware.Recoverer)

	NewAPI(workflow).AppendRoutes(router)
	NewRPC(workflow).AppendRoutes(router)
	NewWeb(workflow, a.logger).AppendRoutes(router)

	if rec != nil {
		router.Method(http.MethodGet, "/metrics", rec.Handler())
	}
	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		iso8583Server.Close()
		a.closeStoreQuietly()
		return fmt.Errorf("listening tcp port: %w", err)
	}

	a.Addr = l.Addr().String()

	a.srv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil && err != http.ErrServerClosed {
			a.logger.Error("starting http server", "err", err)
		}

		a.logger.Info("http server stopped")
	}()

	a.wg.Add(1)
	go a.sweepSessions()

	return nil
}

func (a *App) sweepSessions() {
	defer a.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			if n := a.sessions.Sweep(); n > 0 {
				a.logger.Debug("expired verifications dropped", slog.Int("count", n))
			}
		}
	}
}

// CardLoader returns the local store, or nil when operations are forwarded
// to a remote backend.
func (a *App) CardLoader() CardLoader {
	if a.store == nil {
		return nil
	}
	return a.store
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("shutting down http server", "err", err)
	}

	if err := a.iso8583Server.Close(); err != nil {
		a.logger.Error("closing iso8583 server", "err", err)
	}

	close(a.stop)
	a.wg.Wait()

	a.closeStoreQuietly()

	a.logger.Info("app stopped")
}

func (a *App) closeStoreQuietly() {
	if a.closeStore == nil {
		return
	}
	if err := a.closeStore(); err != nil {
		a.logger.Error("closing store", "err", err)
	}
	a.closeStore = nil
}
