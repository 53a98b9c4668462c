package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lox/bingohall/cmd/bingohall/shared"
	"github.com/lox/bingohall/internal/draw"
	"github.com/lox/bingohall/internal/metrics"
	"github.com/lox/bingohall/internal/notify"
	"github.com/lox/bingohall/internal/randutil"
	"github.com/lox/bingohall/internal/round"
	"github.com/lox/bingohall/internal/server"
	"github.com/lox/bingohall/internal/store"
	"github.com/lox/bingohall/internal/store/memory"
	"github.com/lox/bingohall/internal/store/postgres"
	"github.com/lox/bingohall/internal/tickets"
)

// ServeCmd runs the websocket gateway and REST API.
type ServeCmd struct {
	Config  string `short:"c" default:"bingohall.hcl" help:"Path to HCL configuration file"`
	Addr    string `env:"BINGOHALL_ADDR" help:"Listen address host:port (overrides config)"`
	DSN     string `env:"BINGOHALL_DSN" help:"Postgres DSN; empty keeps everything in memory (overrides config)"`
	Debug   bool   `help:"Enable debug logging"`
	JSON    bool   `help:"Log JSON lines"`
	NoColor bool   `help:"Disable coloured log output"`
	Seed    *int64 `help:"Deterministic RNG seed for manual draws (overrides config)"`
}

func (c *ServeCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if err := c.override(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts := shared.LogOptions{
		Level:   cfg.Server.LogLevel,
		Format:  cfg.Server.LogFormat,
		Debug:   c.Debug,
		NoColor: c.NoColor,
	}
	if c.JSON {
		opts.Format = "json"
	}
	logger, err := shared.SetupLogger(opts)
	if err != nil {
		return err
	}

	ctx := shared.SetupSignalHandler(logger)

	st, err := openStore(ctx, cfg.Database.DSN, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	game, _ := cfg.GameParams()
	interval, _ := cfg.DrawInterval()
	queryTimeout, _ := cfg.QueryTimeout()
	seed := randutil.SeedOrNow(cfg.Draw.Seed, time.Now())

	m := metrics.NewCollector("bingohall")
	srv := server.NewServer(logger, server.WithMetrics(m))
	notes := notify.NewAggregator(st, srv, logger, m, queryTimeout)

	rounds := round.NewManager(round.Config{
		Store:            st,
		Publisher:        srv,
		Notifier:         notes,
		Logger:           logger,
		Metrics:          m,
		RoundDuration:    game.RoundDuration,
		SoldOutDelay:     game.SoldOutDelay,
		WinnerResetDelay: game.WinnerResetDelay,
		QueryTimeout:     queryTimeout,
		Jackpot:          game.Jackpot,
	})
	defer rounds.Close()

	svc := tickets.NewService(tickets.Config{
		Store:     st,
		Rounds:    rounds,
		Publisher: srv,
		Notifier:  notes,
		Logger:    logger,
		Pricing:   game.Pricing,
	})

	session := draw.NewSession(draw.SessionConfig{
		Engine:    draw.NewEngine(randutil.New(seed)),
		Interval:  interval,
		Publisher: srv,
		Recorder:  svc,
		Logger:    logger,
		Metrics:   m,
	})
	defer session.Stop()

	srv.Attach(server.Services{
		Rounds:        rounds,
		Draw:          session,
		Notifications: notes,
		Tickets:       svc,
	})

	if err := rounds.Start(ctx); err != nil {
		return fmt.Errorf("start round: %w", err)
	}

	logger.Info("Starting bingo hall",
		"addr", cfg.ListenAddress(),
		"store", storeName(cfg.Database.DSN),
		"round_duration", game.RoundDuration,
		"sold_out_delay", game.SoldOutDelay,
		"jackpot", game.Jackpot,
		"draw_seed", seed)

	return srv.ListenAndServe(ctx, cfg.ListenAddress())
}

func (c *ServeCmd) override(cfg *server.Config) error {
	if c.Addr != "" {
		host, port, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return fmt.Errorf("invalid --addr: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid --addr port: %w", err)
		}
		if host != "" {
			cfg.Server.Address = host
		}
		cfg.Server.Port = p
	}
	if c.DSN != "" {
		cfg.Database.DSN = c.DSN
	}
	if c.Seed != nil {
		cfg.Draw.Seed = *c.Seed
	}
	return nil
}

func openStore(ctx context.Context, dsn string, logger *log.Logger) (store.Store, error) {
	if dsn == "" {
		logger.Warn("No database configured, state is kept in memory only")
		return memory.New(), nil
	}

	pg, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	v, err := postgres.Migrate(pg.DB())
	if err != nil {
		_ = pg.Close()
		return nil, err
	}
	logger.Info("Database ready", "schema_version", v)
	return pg, nil
}

func storeName(dsn string) string {
	if dsn == "" {
		return "memory"
	}
	return "postgres"
}
