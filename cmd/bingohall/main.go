package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version VersionCmd `cmd:"" help:"Print the version"`
	Serve   ServeCmd   `cmd:"" help:"Run the bingo hall server"`
	Migrate MigrateCmd `cmd:"" help:"Apply or revert database migrations"`
	Draw    DrawCmd    `cmd:"" help:"Simulate manual draws offline"`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(version)
	return nil
}

func main() {
	// Flags and env tags read the process environment, so .env goes first.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("bingohall"),
		kong.Description("Real-time bingo hall backend"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
