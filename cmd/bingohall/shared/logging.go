package shared

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

// LogOptions selects the level and output format of the root logger.
type LogOptions struct {
	Level   string
	Format  string
	Debug   bool
	NoColor bool
}

// SetupLogger builds the root logger every component derives its prefix from.
func SetupLogger(opts LogOptions) (*log.Logger, error) {
	return newLogger(os.Stderr, opts)
}

func newLogger(w io.Writer, opts LogOptions) (*log.Logger, error) {
	level := log.InfoLevel
	if opts.Level != "" {
		l, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = l
	}
	if opts.Debug {
		level = log.DebugLevel
	}

	formatter := log.TextFormatter
	switch opts.Format {
	case "", "text":
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
	logger.SetStyles(styles())
	if opts.NoColor {
		logger.SetColorProfile(termenv.Ascii)
	}
	return logger, nil
}

func styles() *log.Styles {
	s := log.DefaultStyles()
	s.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Padding(0, 1).
		Background(lipgloss.Color("204")).
		Foreground(lipgloss.Color("0"))
	s.Keys["error"] = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	s.Keys["round"] = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	s.Values["round"] = lipgloss.NewStyle().Bold(true)
	return s
}
