package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/grafana/ruleflow/pkg/store/postgres"
	"github.com/grafana/ruleflow/pkg/util/log"
)

// App wires the HTTP server to a Postgres-backed rule store and sample
// store, in the teacher's single-process App idiom (minus the distributed
// module lifecycle tempo's App carries — this service has exactly one
// module: the HTTP server).
type App struct {
	cfg *Config

	pool   *pgxpool.Pool
	rules  *postgres.RuleStore
	server *http.Server
}

func New(cfg *Config) (*App, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "parsing postgres dsn")
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxConnections)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Postgres.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres pool")
	}

	a := &App{
		cfg:   cfg,
		pool:  pool,
		rules: postgres.NewRuleStore(pool),
	}

	router := muxWrapper{mux.NewRouter()}
	a.registerRoutes(router)

	a.server = &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      router.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return a, nil
}

// Run serves HTTP until the listener fails or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPListenAddr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", a.cfg.HTTPListenAddr)
	}

	errCh := make(chan error, 1)
	go func() {
		level.Info(log.Logger).Log("msg", "starting http server", "addr", a.cfg.HTTPListenAddr)
		errCh <- a.server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return a.shutdown()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (a *App) shutdown() error {
	if a.cfg.ShutdownDelay > 0 {
		level.Info(log.Logger).Log("msg", "shutdown delay", "delay", a.cfg.ShutdownDelay)
		time.Sleep(a.cfg.ShutdownDelay)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutting down http server")
	}
	a.pool.Close()
	return nil
}
