package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/shopspring/decimal"

	"github.com/lox/bingohall/internal/bingo"
	"github.com/lox/bingohall/internal/draw"
	"github.com/lox/bingohall/internal/round"
)

// Config represents the complete server configuration. Every block is
// optional; LoadConfig fills missing blocks and values with defaults.
type Config struct {
	Server   *ServerSettings   `hcl:"server,block"`
	Game     *GameSettings     `hcl:"game,block"`
	Draw     *DrawSettings     `hcl:"draw,block"`
	Database *DatabaseSettings `hcl:"database,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address   string `hcl:"address,optional"`
	Port      int    `hcl:"port,optional"`
	LogLevel  string `hcl:"log_level,optional"`
	LogFormat string `hcl:"log_format,optional"`
}

// GameSettings holds the round timings and money amounts. Durations use
// Go syntax ("60m", "1500ms"); amounts are decimal strings or numbers.
type GameSettings struct {
	RoundDuration      string `hcl:"round_duration,optional"`
	SoldOutDelay       string `hcl:"sold_out_delay,optional"`
	WinnerResetDelay   string `hcl:"winner_reset_delay,optional"`
	Jackpot            string `hcl:"jackpot,optional"`
	ColumnPrice        string `hcl:"column_price,optional"`
	FiveColumnDiscount string `hcl:"five_column_discount,optional"`
}

// DrawSettings configures the manual draw session. Seed 0 seeds from the clock.
type DrawSettings struct {
	Interval string `hcl:"interval,optional"`
	Seed     int64  `hcl:"seed,optional"`
}

// DatabaseSettings selects the store. An empty DSN uses the in-memory store.
type DatabaseSettings struct {
	DSN          string `hcl:"dsn,optional"`
	QueryTimeout string `hcl:"query_timeout,optional"`
}

// GameParams are the parsed game settings.
type GameParams struct {
	RoundDuration    time.Duration
	SoldOutDelay     time.Duration
	WinnerResetDelay time.Duration
	Jackpot          decimal.Decimal
	Pricing          bingo.Pricing
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadConfig loads configuration from an HCL file. A missing file yields
// the defaults.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Game == nil {
		c.Game = &GameSettings{}
	}
	if c.Draw == nil {
		c.Draw = &DrawSettings{}
	}
	if c.Database == nil {
		c.Database = &DatabaseSettings{}
	}

	if c.Server.Address == "" {
		c.Server.Address = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "text"
	}

	pricing := bingo.DefaultPricing()
	defaultString(&c.Game.RoundDuration, round.DefaultRoundDuration.String())
	defaultString(&c.Game.SoldOutDelay, round.DefaultSoldOutDelay.String())
	defaultString(&c.Game.WinnerResetDelay, round.DefaultWinnerResetDelay.String())
	defaultString(&c.Game.Jackpot, round.DefaultJackpot.String())
	defaultString(&c.Game.ColumnPrice, pricing.ColumnPrice.String())
	defaultString(&c.Game.FiveColumnDiscount, pricing.FiveColumnDiscount.String())

	defaultString(&c.Draw.Interval, draw.DefaultInterval.String())
	defaultString(&c.Database.QueryTimeout, round.DefaultQueryTimeout.String())
}

func defaultString(s *string, v string) {
	if *s == "" {
		*s = v
	}
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}
	switch c.Server.LogFormat {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("invalid log format: %s", c.Server.LogFormat)
	}

	game, err := c.GameParams()
	if err != nil {
		return err
	}
	if game.SoldOutDelay < round.MinSoldOutDelay {
		return fmt.Errorf("game: sold_out_delay must be at least %s", round.MinSoldOutDelay)
	}
	if game.Jackpot.IsNegative() || game.Pricing.ColumnPrice.Sign() <= 0 || game.Pricing.FiveColumnDiscount.IsNegative() {
		return errors.New("game: amounts must not be negative and column_price must be positive")
	}
	if game.Pricing.FiveColumnDiscount.GreaterThan(game.Pricing.ColumnPrice.Mul(decimal.NewFromInt(5))) {
		return errors.New("game: five_column_discount exceeds the price of five columns")
	}

	if _, err := c.DrawInterval(); err != nil {
		return err
	}
	if _, err := c.QueryTimeout(); err != nil {
		return err
	}
	return nil
}

// GameParams parses the game block.
func (c *Config) GameParams() (GameParams, error) {
	var p GameParams
	var err error
	if p.RoundDuration, err = positiveDuration("game.round_duration", c.Game.RoundDuration); err != nil {
		return p, err
	}
	if p.SoldOutDelay, err = positiveDuration("game.sold_out_delay", c.Game.SoldOutDelay); err != nil {
		return p, err
	}
	if p.WinnerResetDelay, err = positiveDuration("game.winner_reset_delay", c.Game.WinnerResetDelay); err != nil {
		return p, err
	}
	if p.Jackpot, err = amount("game.jackpot", c.Game.Jackpot); err != nil {
		return p, err
	}
	if p.Pricing.ColumnPrice, err = amount("game.column_price", c.Game.ColumnPrice); err != nil {
		return p, err
	}
	if p.Pricing.FiveColumnDiscount, err = amount("game.five_column_discount", c.Game.FiveColumnDiscount); err != nil {
		return p, err
	}
	return p, nil
}

// DrawInterval parses draw.interval.
func (c *Config) DrawInterval() (time.Duration, error) {
	return positiveDuration("draw.interval", c.Draw.Interval)
}

// QueryTimeout parses database.query_timeout.
func (c *Config) QueryTimeout() (time.Duration, error) {
	return positiveDuration("database.query_timeout", c.Database.QueryTimeout)
}

// ListenAddress returns the full server address
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Server.Address, strconv.Itoa(c.Server.Port))
}

func positiveDuration(name, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", name, raw)
	}
	return d, nil
}

func amount(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}
