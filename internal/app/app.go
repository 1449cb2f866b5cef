package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foxzi/clientdesk/internal/api"
	"github.com/foxzi/clientdesk/internal/config"
	"github.com/foxzi/clientdesk/internal/dispatch"
	"github.com/foxzi/clientdesk/internal/dkim"
	"github.com/foxzi/clientdesk/internal/generate"
	"github.com/foxzi/clientdesk/internal/ipfilter"
	"github.com/foxzi/clientdesk/internal/mailer"
	"github.com/foxzi/clientdesk/internal/metrics"
	"github.com/foxzi/clientdesk/internal/ratelimit"
	"github.com/foxzi/clientdesk/internal/repository"
	"github.com/foxzi/clientdesk/internal/store"
	deskTLS "github.com/foxzi/clientdesk/internal/tls"
	"github.com/foxzi/clientdesk/internal/variables"
)

// App is the main application
type App struct {
	config *config.Config
	logger *slog.Logger
	flush  func()

	store     store.Store
	users     *repository.Users
	clients   *repository.Clients
	templates *repository.Templates
	invoices  *repository.Invoices

	sender     mailer.Sender
	sandbox    *mailer.Sandbox
	limiter    *ratelimit.Limiter
	dispatcher *dispatch.Dispatcher
	tracker    *dispatch.Tracker
	metrics    *metrics.Metrics
	collector  *metrics.Collector
	apiServer  *api.Server
	acmeServer *http.Server

	runCtx     context.Context
	cancelRuns context.CancelFunc
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger, flush := setupLogger(cfg.Logging)

	st, size, err := OpenStore(cfg.Database)
	if err != nil {
		flush()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a, err := build(cfg, st, size, logger)
	if err != nil {
		st.Close()
		flush()
		return nil, err
	}
	a.flush = flush
	return a, nil
}

func build(cfg *config.Config, st store.Store, size metrics.SizeFunc, logger *slog.Logger) (*App, error) {
	a := &App{
		config: cfg,
		logger: logger,
		flush:  func() {},
		store:  st,
	}

	a.users = repository.NewUsers(st)
	a.clients = repository.NewClients(st)
	a.templates = repository.NewTemplates(st)
	a.invoices = repository.NewInvoices(st, a.clients)

	var signer *dkim.Signer
	if cfg.Mailer.Provider == config.ProviderSMTP {
		var err error
		signer, err = dkim.FromConfig(cfg.Mailer.SMTP.DKIM)
		if err != nil {
			return nil, fmt.Errorf("failed to load DKIM signer: %w", err)
		}
		if signer != nil {
			logger.Info("DKIM signing enabled", "domain", signer.Domain(), "selector", signer.Selector())
		}
	}

	sender, sandbox, err := newSender(cfg.Mailer, st, signer, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailer: %w", err)
	}
	a.sender = sender
	a.sandbox = sandbox
	logger.Info("mail provider configured", "provider", cfg.Mailer.Provider, "sender", cfg.Mailer.SenderEmail)

	if cfg.RateLimit.Enabled {
		a.limiter, err = ratelimit.NewLimiter(context.Background(), st, cfg.RateLimit, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		logger.Info("rate limiting enabled")
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		metrics.SetGlobal(a.metrics)
		a.collector = metrics.NewCollector(a.metrics, size, 0, logger)
	}

	engine := variables.New()
	a.tracker = dispatch.NewTracker(cfg.Dispatch.RunHistory)

	opts := []dispatch.Option{
		dispatch.WithDelay(cfg.Dispatch.Delay),
		dispatch.WithEngine(engine),
		dispatch.WithObserver(a.tracker),
	}
	if a.limiter != nil {
		opts = append(opts, dispatch.WithLimiter(a.limiter))
	}
	a.dispatcher = dispatch.New(sender, logger, opts...)

	generator := generate.New(cfg.Generation, logger)
	if _, ok := generator.(generate.Unavailable); !ok {
		logger.Info("template generation enabled", "model", cfg.Generation.Model)
	}

	a.runCtx, a.cancelRuns = context.WithCancel(context.Background())

	deps := api.Deps{
		Users:      a.users,
		Clients:    a.clients,
		Templates:  a.templates,
		Invoices:   a.invoices,
		Dispatcher: a.dispatcher,
		Tracker:    a.tracker,
		Generator:  generator,
		Engine:     engine,
		RunContext: a.runCtx,
	}
	if sandbox != nil {
		deps.Sandbox = api.NewSandboxServer(sandbox)
		logger.Info("sandbox mode enabled, emails are captured instead of sent")
	}
	if a.limiter != nil || signer != nil {
		deps.Management = api.NewManagementServer(a.limiter, signer)
	}
	if a.metrics != nil {
		deps.MetricsHandler = a.metrics.Handler()
		deps.MetricsPath = cfg.Metrics.Path
	}

	filter, err := ipfilter.New(cfg.Server.AllowedIPs, logger.With("component", "ipfilter"))
	if err != nil {
		return nil, err
	}
	if filter.Enabled() {
		deps.IPFilter = filter
		logger.Info("API IP filter enabled", "allowed_ips", cfg.Server.AllowedIPs)
	}

	a.apiServer = api.NewServer(deps, cfg.Server, logger)

	tlsConfig, acme, err := deskTLS.Setup(cfg.Server.TLS, logger)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		a.apiServer.UseTLS(tlsConfig)
	}
	if acme != nil {
		a.acmeServer = acme.ChallengeServer()
	}

	return a, nil
}

// newSender creates the configured provider. The sandbox is returned
// separately so its captures can be browsed through the API.
func newSender(cfg config.MailerConfig, st store.Store, signer *dkim.Signer, logger *slog.Logger) (mailer.Sender, *mailer.Sandbox, error) {
	if cfg.Provider != config.ProviderSandbox {
		sender, err := mailer.New(cfg, mailer.Deps{Store: st, Signer: signer, Logger: logger})
		return sender, nil, err
	}

	sbLogger := logger.With("component", "mailer", "provider", cfg.Provider)
	sb := mailer.NewSandbox(st, cfg.SenderEmail, cfg.SenderName, sbLogger)
	sb.SetErrorSimulation(cfg.Sandbox.SimulateErrors, cfg.Sandbox.ErrorProbability)
	return mailer.Instrument(cfg.Provider, sb, sbLogger), sb, nil
}

// Logger returns the application logger
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Handler returns the HTTP API handler
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Users returns the user repository
func (a *App) Users() *repository.Users {
	return a.users
}

// Clients returns the client repository
func (a *App) Clients() *repository.Clients {
	return a.clients
}

// Templates returns the template repository
func (a *App) Templates() *repository.Templates {
	return a.templates
}

// Dispatcher returns the bulk email dispatcher
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting clientdesk",
		"version", api.Version,
		"api_addr", a.config.Server.ListenAddr,
		"database", a.config.Database.Driver,
		"provider", a.config.Mailer.Provider,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	if a.acmeServer != nil {
		g.Go(func() error {
			a.logger.Info("starting ACME HTTP challenge server", "addr", a.acmeServer.Addr)
			if err := a.acmeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("acme server: %w", err)
			}
			return nil
		})
	}

	if a.limiter != nil {
		g.Go(func() error {
			return a.limiter.Run(gctx)
		})
	}

	if a.collector != nil {
		g.Go(func() error {
			return a.collector.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			a.logger.Info("shutdown signal received")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		defer cancel()
		if a.acmeServer != nil {
			if err := a.acmeServer.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("acme server shutdown error", "error", err)
			}
		}
		return a.apiServer.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	if runErr != nil {
		a.logger.Error("server error", "error", runErr)
	}

	return errors.Join(runErr, a.Shutdown(context.Background()))
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.config.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests first
	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	// Let running dispatches finish, cancel what is left at the deadline
	done := make(chan struct{})
	go func() {
		a.tracker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("cancelling unfinished dispatch runs")
		a.cancelRuns()
		<-done
	}
	a.cancelRuns()

	return a.Close()
}

// Close persists rate limit counters, releases the store and flushes the error reporter
func (a *App) Close() error {
	if a.limiter != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.limiter.Flush(flushCtx); err != nil {
			a.logger.Error("rate limiter flush error", "error", err)
		}
		cancel()
	}

	err := a.store.Close()
	if err != nil {
		a.logger.Error("storage close error", "error", err)
	} else {
		a.logger.Info("shutdown complete")
	}
	a.flush()
	return err
}
