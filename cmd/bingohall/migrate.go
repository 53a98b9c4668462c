package main

import (
	"context"

	"github.com/lox/bingohall/cmd/bingohall/shared"
	"github.com/lox/bingohall/internal/store/postgres"
)

// MigrateCmd applies the embedded schema migrations.
type MigrateCmd struct {
	DSN  string `env:"BINGOHALL_DSN" required:"" help:"Postgres DSN"`
	Down bool   `help:"Revert every migration instead"`
}

func (c *MigrateCmd) Run() error {
	logger, err := shared.SetupLogger(shared.LogOptions{})
	if err != nil {
		return err
	}

	pg, err := postgres.Open(context.Background(), c.DSN)
	if err != nil {
		return err
	}
	defer pg.Close()

	if c.Down {
		if err := postgres.MigrateDown(pg.DB()); err != nil {
			return err
		}
		logger.Info("Migrations reverted")
		return nil
	}

	v, err := postgres.Migrate(pg.DB())
	if err != nil {
		return err
	}
	logger.Info("Migrations applied", "schema_version", v)
	return nil
}
