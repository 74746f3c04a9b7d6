package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Vinith467/realtime-tracking/internal/config"
	"github.com/Vinith467/realtime-tracking/internal/db"
	"github.com/Vinith467/realtime-tracking/internal/device/sim"
	"github.com/Vinith467/realtime-tracking/internal/diagnostics"
	"github.com/Vinith467/realtime-tracking/internal/session"
	"github.com/Vinith467/realtime-tracking/internal/store"
	"github.com/Vinith467/realtime-tracking/internal/store/memstore"
	"github.com/Vinith467/realtime-tracking/internal/store/pgstore"
	"github.com/Vinith467/realtime-tracking/internal/telemetry"
	"github.com/Vinith467/realtime-tracking/internal/watcher"
)

// simPeriod is the route playback cadence of the built-in device.
const simPeriod = 3 * time.Second

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "riderd").Logger()

	cfg := deps.loadConfig()

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("postgres connection failed")
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, signals, nil); err != nil {
		log.Error().Err(err).Msg("agent exited with error")
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run wires the field agent: simulated device layer, diagnostics, watcher,
// telemetry writer, and the duty controller behind a local HTTP surface.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "riderd").Logger()

	var st store.Store
	var docs *pgstore.Store
	if pg != nil {
		docs = pgstore.New(pg, rdb, log)
		if err := docs.Migrate(ctx); err != nil {
			log.Warn().Err(err).Msg("schema migration failed")
		}
		st = docs
	} else {
		log.Warn().Msg("no postgres pool, using in-memory store")
		st = memstore.New()
	}

	locator := sim.NewLocator(sim.DefaultRoute, simPeriod)
	screen := &sim.ScreenLock{}
	conn := sim.Connectivity{}

	prober := diagnostics.NewProber(st, locator, conn, cfg.ProbeTimeout, log)
	w := watcher.New(locator, screen, sim.Visibility{}, cfg.HeartbeatInterval, cfg.FixTimeout, log)
	writer := telemetry.NewWriter(st, log)

	ctl := session.NewController(st, prober, w, writer,
		session.FileNameStore{Path: cfg.RiderNameFile},
		session.Policy{AllowGeneratedName: cfg.AllowGeneratedName},
		log)

	ctl.Probe(ctx)

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	session.RegisterRoutes(app.Group("/duty"), ctl)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(app, cfg.AgentPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// go off duty before the process dies so the session record is closed
	if _, err := ctl.GoOffline(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("could not go offline on shutdown")
	}
	writer.Close()

	if err := shutdownFn(app, shutdownCtx); err != nil {
		return err
	}
	if docs != nil {
		docs.Close()
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}
