package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/bingohall/internal/bingo"
	"github.com/lox/bingohall/internal/draw"
	"github.com/lox/bingohall/internal/fileutil"
	"github.com/lox/bingohall/internal/randutil"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	columnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14"))

	percentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))
)

// DrawCmd runs manual draws to completion without a server and reports how
// often each column wins and how many balls a draw takes.
type DrawCmd struct {
	Seed *int64 `help:"Random seed for reproducible results"`
	Runs int    `default:"1000" help:"Number of draws to simulate"`
	Out  string `type:"path" help:"Also write the report as JSON to this file"`
}

// drawReport summarises a batch of simulated draws.
type drawReport struct {
	Runs     int
	Wins     [bingo.ColumnCount + 1]int
	Exhaust  int
	Balls    []int
	Duration time.Duration
}

func (c *DrawCmd) Run() error {
	if c.Runs <= 0 {
		return fmt.Errorf("--runs must be positive, got %d", c.Runs)
	}
	var seed int64
	if c.Seed != nil {
		seed = *c.Seed
	} else {
		seed = time.Now().UnixNano()
	}

	report := simulateDraws(seed, c.Runs)
	report.print(os.Stdout, seed)
	if c.Out == "" {
		return nil
	}
	if err := fileutil.WriteJSON(c.Out, report.summary(seed)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Printf("report written to %s\n", c.Out)
	return nil
}

func simulateDraws(seed int64, runs int) drawReport {
	start := time.Now()
	engine := draw.NewEngine(randutil.New(seed))
	report := drawReport{Runs: runs, Balls: make([]int, 0, runs)}

	for range runs {
		engine.Reset()
		engine.Start()
		for {
			if _, ok := engine.DrawNext(); !ok {
				break
			}
		}

		state := engine.State()
		report.Balls = append(report.Balls, len(state.Drawn))
		if !state.Won() {
			report.Exhaust++
			continue
		}
		report.Wins[state.WinningPattern[0]]++
	}

	report.Duration = time.Since(start)
	return report
}

type drawSummary struct {
	Seed        int64          `json:"seed"`
	Runs        int            `json:"runs"`
	Wins        map[string]int `json:"wins_by_column"`
	Exhausted   int            `json:"exhausted"`
	MeanBalls   float64        `json:"mean_balls"`
	MedianBalls int            `json:"median_balls"`
	P95Balls    int            `json:"p95_balls"`
}

func (r drawReport) summary(seed int64) drawSummary {
	wins := make(map[string]int, bingo.ColumnCount)
	for col := bingo.MinColumn; col <= bingo.MaxColumn; col++ {
		wins[strconv.Itoa(col)] = r.Wins[col]
	}
	return drawSummary{
		Seed:        seed,
		Runs:        r.Runs,
		Wins:        wins,
		Exhausted:   r.Exhaust,
		MeanBalls:   r.mean(),
		MedianBalls: r.percentile(0.5),
		P95Balls:    r.percentile(0.95),
	}
}

func (r drawReport) mean() float64 {
	if len(r.Balls) == 0 {
		return 0
	}
	sum := 0
	for _, n := range r.Balls {
		sum += n
	}
	return float64(sum) / float64(len(r.Balls))
}

func (r drawReport) percentile(p float64) int {
	if len(r.Balls) == 0 {
		return 0
	}
	sorted := slices.Clone(r.Balls)
	slices.Sort(sorted)
	i := int(p * float64(len(sorted)-1))
	return sorted[i]
}

func (r drawReport) print(out io.Writer, seed int64) {
	fmt.Fprintf(out, "%s %d draws, seed %d\n\n", headerStyle.Render("bingohall draw"), r.Runs, seed)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\n",
		headerStyle.Render("column"),
		headerStyle.Render("pattern"),
		headerStyle.Render("wins"))
	for col := bingo.MinColumn; col <= bingo.MaxColumn; col++ {
		pct := 100 * float64(r.Wins[col]) / float64(r.Runs)
		fmt.Fprintf(w, "%s\t%v\t%s\n",
			columnStyle.Render(fmt.Sprintf("%d", col)),
			draw.ColumnPattern(col).Ints(),
			percentStyle.Render(fmt.Sprintf("%.1f%%", pct)))
	}
	_ = w.Flush()

	fmt.Fprintf(out, "\nballs per draw: mean %.1f, median %d, p95 %d\n",
		r.mean(), r.percentile(0.5), r.percentile(0.95))
	if r.Exhaust > 0 {
		fmt.Fprintf(out, "%d draws exhausted the pool without a winner\n", r.Exhaust)
	}
	fmt.Fprintf(out, "%d draws in %v\n", r.Runs, r.Duration.Truncate(time.Millisecond))
}
