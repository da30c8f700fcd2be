package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/appetiteclub/kds/internal/events"
	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/internal/livesync"
	"github.com/appetiteclub/kds/internal/tables"
	"github.com/appetiteclub/kds/pkg"
	"github.com/appetiteclub/kds/pkg/config"
	"github.com/appetiteclub/kds/pkg/event"
	pkgevents "github.com/appetiteclub/kds/pkg/events"
	"github.com/appetiteclub/kds/pkg/logging"
	"github.com/appetiteclub/kds/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

const (
	AppName    = "kds"
	AppVersion = "0.1.0"

	shutdownTimeout = 10 * time.Second
)

// App wires the kitchen display service.
type App struct {
	config *config.Config
	logger logging.Logger

	store      *Store
	bus        pkgevents.Bus
	intake     pkgevents.Subscriber
	codec      event.Codec
	stations   *kitchen.Stations
	ledger     *kitchen.Ledger
	dispatcher *kitchen.Dispatcher
	reads      *livesync.CachedReader
	projector  *tables.Projector
	debouncer  *livesync.Debouncer
	registry   *livesync.Registry
	subscriber *events.OrderSubscriber
	router     chi.Router
	server     *http.Server
}

func New(cfg *config.Config, logger logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &App{config: cfg, logger: logger}, nil
}

// Initialize opens the store and the bus and builds every component.
func (a *App) Initialize(ctx context.Context) error {
	codecName, _ := a.config.GetString("broker.codec")
	codec, err := event.CodecByName(codecName)
	if err != nil {
		return err
	}
	a.codec = codec

	driver, _ := a.config.GetString("db.driver")
	a.store, err = OpenStore(ctx, driver, a.config, a.logger)
	if err != nil {
		return err
	}

	if err := a.openBus(ctx); err != nil {
		a.closeStore()
		return err
	}

	retention := a.config.DurationOr("tables.retention", tables.DefaultRetention)
	overdue := a.config.DurationOr("tables.overdue.after", tables.DefaultOverdueAfter)

	a.stations = kitchen.NewStations(a.store.Stations, a.logger).WithTTL(a.config.DurationOr("stations.catalog.ttl", 30*time.Second), nil)
	a.ledger = kitchen.NewLedger(kitchen.LedgerDeps{
		Orders:    a.store.Orders,
		Entries:   a.store.Entries,
		Publisher: a.bus,
		Codec:     codec,
		Retention: retention,
		OnChange:  func(change kitchen.EntryChange) { a.reads.Invalidate(change) },
		Logger:    a.logger,
	})
	a.reads = livesync.NewCachedReader(a.ledger, a.config.DurationOr("sync.cache.ttl", livesync.DefaultCacheTTL), a.logger)
	a.dispatcher = kitchen.NewDispatcher(a.stations, kitchen.NewRouter(a.routingRules()), a.ledger, a.logger)

	if seed, _ := a.config.GetBool("seed.demo"); seed {
		if err := RunSeeds(ctx, kitchen.Seeds(a.stations), a.logger); err != nil {
			a.logger.Errorf("Demo seeding failed (non-fatal): %v", err)
		}
	}

	debounce := a.config.DurationOr("sync.debounce", livesync.DefaultDebounce)
	a.debouncer = livesync.NewDebouncer(debounce)
	aggregator := tables.NewAggregator(overdue, retention)
	a.projector = tables.NewProjector(tables.ProjectorDeps{
		Reader:     a.reads,
		Aggregator: aggregator,
		Subscriber: a.bus,
		Publisher:  a.bus,
		Codec:      codec,
		Scheduler:  a.debouncer,
		Logger:     a.logger,
	})
	a.registry = livesync.NewRegistry(livesync.NewBusSource(a.bus, codec, a.logger), livesync.RegistryOptions{
		Debounce: debounce,
		Logger:   a.logger,
	})
	a.subscriber = events.NewOrderSubscriber(a.intake, a.dispatcher, codec, a.logger)

	a.router = a.routes(tables.NewService(a.reads, a.ledger, aggregator))
	return nil
}

func (a *App) openBus(ctx context.Context) error {
	kind, _ := a.config.GetString("broker.kind")
	switch kind {
	case "nats", "":
		url, _ := a.config.GetString("nats.url")
		bus, err := pkg.NewNATSBus(url, a.logger)
		if err != nil {
			return err
		}
		bus.OnReconnect(func() {
			if a.reads != nil {
				a.reads.InvalidateAll()
			}
		})
		a.bus, a.intake = bus, bus

		if enabled, _ := a.config.GetBool("nats.stream.enabled"); enabled {
			stream, err := pkg.NewNATSStream(ctx, bus, pkg.NATSStreamConfig{
				StreamName:   "KDS_ORDERS",
				Subjects:     []string{event.OrdersPlacedTopic},
				ConsumerName: "kds-intake",
				MaxAge:       a.config.DurationOr("nats.stream.max.age", 24*time.Hour),
				MaxDeliver:   5,
			}, a.logger)
			if err != nil {
				_ = bus.Close()
				return err
			}
			a.intake = stream
			a.logger.Info("NATS stream initialized for durable order intake")
		}

	case "amqp":
		url, _ := a.config.GetString("amqp.url")
		exchange, _ := a.config.GetString("amqp.exchange")
		bus, err := pkg.NewAMQPBus(url, exchange, a.logger)
		if err != nil {
			return err
		}
		a.bus, a.intake = bus, bus

	case "local":
		bus := pkg.NewLocalBus(a.logger)
		a.bus, a.intake = bus, bus

	default:
		return fmt.Errorf("unknown broker kind %q", kind)
	}
	a.logger.Info("bus connected", "kind", kind, "codec", a.codec.Name())
	return nil
}

func (a *App) routingRules() kitchen.Rules {
	rules := kitchen.DefaultRules()
	if def, ok := a.config.GetString("routing.default"); ok && def != "" {
		rules.DefaultCategory = def
	}
	if p, ok := a.config.GetInt("routing.base.priority"); ok {
		rules.BasePriority = p
	}
	if b, ok := a.config.GetInt("routing.rush.boost"); ok {
		rules.RushBoost = b
	}
	if aliases, ok := a.config.GetStringMap("routing.aliases"); ok {
		rules.Aliases = aliases
	}
	return rules
}

func (a *App) routes(tableService *tables.Service) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		web.Respond(w, http.StatusOK, map[string]any{
			"name":          AppName,
			"version":       AppVersion,
			"driver":        a.store.Driver,
			"subscriptions": a.registry.ActiveSubscriptions(),
		}, nil)
	})

	kitchen.NewHandler(kitchen.HandlerDeps{
		Ledger:     a.ledger,
		Reader:     a.reads,
		Dispatcher: a.dispatcher,
		Stations:   a.stations,
	}, a.logger).RegisterRoutes(r)
	tables.NewHandler(tableService, a.logger).RegisterRoutes(r)

	keepalive := a.config.DurationOr("sync.keepalive", livesync.DefaultKeepalive)
	livesync.NewSSEHandler(a.registry, a.stations, keepalive, a.logger).RegisterRoutes(r)
	return r
}

// Dispatcher places orders, used by the utility commands.
func (a *App) Dispatcher() *kitchen.Dispatcher {
	return a.dispatcher
}

// Handler exposes the HTTP routes, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.router
}

// Run serves HTTP and consumes the bus until ctx is cancelled, then shuts
// everything down.
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("Starting %s(%s)", AppName, AppVersion)

	if err := a.projector.Start(ctx); err != nil {
		return err
	}
	if err := a.reads.Watch(ctx, a.bus, a.codec); err != nil {
		return err
	}
	if err := a.subscriber.Start(ctx); err != nil {
		return err
	}

	addr, _ := a.config.GetString("web.port")
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
		// Streams end with the app context instead of blocking Shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server listening", "addr", addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.Background())
	})

	err := g.Wait()
	a.logger.Infof("%s(%s) stopped", AppName, AppVersion)
	return err
}

// Shutdown stops the HTTP server, then the workers, the bus and the store.
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.debouncer != nil {
		a.debouncer.Stop()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bus close: %w", err))
		}
	}
	if err := a.store.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeStore() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.store.Stop(ctx); err != nil {
		a.logger.Error("cannot stop store", "error", err)
	}
}
