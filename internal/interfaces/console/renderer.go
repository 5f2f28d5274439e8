package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"polyfolio/internal/application/port"
	"polyfolio/internal/application/store"
	"polyfolio/internal/domain/model"
)

// ANSI color codes
const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiDim      = "\033[2m"
	ansiClearEOL = "\033[K"
)

func colorize(s, color string) string {
	return color + s + ansiReset
}

// Sink writes rendered lines to stdout. The live line is redrawn in place;
// snapshot lines persist with a dimmed timestamp so the scrollback reads as
// a valuation log.
type Sink struct{}

func NewSink() port.Sink { return &Sink{} }

func (s *Sink) WriteLive(line string) error {
	fmt.Print(line) // carriage return in the line, no newline
	return nil
}

func (s *Sink) WriteSnapshot(ts time.Time, line string) error {
	fmt.Printf("\n%s %s\n\n", colorize(ts.Format(time.RFC3339), ansiDim), line)
	return nil
}

func (s *Sink) NewLine() error {
	fmt.Print("\n")
	return nil
}

// Renderer formats the application state into terminal lines.
type Renderer struct{}

func NewRenderer() *Renderer { return &Renderer{} }

// RenderLine renders the one-line live view: total value, cash and the
// open position count.
func (r *Renderer) RenderLine(st store.State, live bool) string {
	var sb strings.Builder

	if live {
		sb.WriteString("\r")
	}
	sb.WriteString(colorize("[PORTFOLIO] ", ansiDim))

	sb.WriteString("total=")
	sb.WriteString(st.Portfolio.TotalValue.StringFixed(2))
	sb.WriteString(colorize("  ||  ", ansiDim))
	sb.WriteString("cash=")
	sb.WriteString(st.Balance.StringFixed(2))
	sb.WriteString(colorize("  ||  ", ansiDim))

	var won, lost, open int
	for _, p := range st.Positions {
		switch p.Status {
		case model.StatusWon:
			won++
		case model.StatusLost:
			lost++
		case model.StatusOpen, model.StatusFilled:
			open++
		}
	}
	sb.WriteString("open=")
	sb.WriteString(strconv.Itoa(open))
	if won > 0 {
		sb.WriteString(" ")
		sb.WriteString(colorize("won="+strconv.Itoa(won), ansiGreen))
	}
	if lost > 0 {
		sb.WriteString(" ")
		sb.WriteString(colorize("lost="+strconv.Itoa(lost), ansiRed))
	}

	if live {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}

// Watch redraws the live line whenever the state store commits a new
// version, and drops a timestamped snapshot line once per interval.
func Watch(ctx context.Context, st *store.Store, sink port.Sink, snapshotEvery time.Duration) {
	updates, unsubscribe := st.Subscribe()
	defer unsubscribe()

	renderer := NewRenderer()
	ticker := time.NewTicker(snapshotEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = sink.NewLine()
			return
		case <-updates:
			_ = sink.WriteLive(renderer.RenderLine(st.Snapshot(), true))
		case now := <-ticker.C:
			_ = sink.WriteSnapshot(now, renderer.RenderLine(st.Snapshot(), false))
		}
	}
}
