package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

const (
	defaultWidth   = 80
	defaultRefresh = 120 * time.Millisecond
	nameColumn     = 18
	minBarWidth    = 10
)

// Options configures a Board.
type Options struct {
	// Output is the terminal to draw on. Default: os.Stdout.
	Output io.Writer
	// Title labels the aggregated line. Default: "bootstrapping".
	Title string
	// Total is the number of descriptors in the run.
	Total int
	// Live forces in-place redrawing on or off. Default: auto-detected.
	Live *bool
	// Width overrides the detected terminal width.
	Width int
	// RefreshInterval throttles redraws caused by byte updates.
	RefreshInterval time.Duration
}

// Board is the terminal progress display shared by every task of a run.
type Board struct {
	gate    *Gate
	out     io.Writer
	live    bool
	width   int
	title   string
	total   int
	done    int
	refresh time.Duration

	bars     []*Bar
	drawn    int
	lastDraw time.Time
	closed   bool

	fill *color.Color
	dim  *color.Color
}

// NewBoard builds a Board drawing on opts.Output under gate.
func NewBoard(gate *Gate, opts Options) *Board {
	if gate == nil {
		gate = NewGate()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Title == "" {
		opts.Title = "bootstrapping"
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultRefresh
	}

	live := isTerminal(opts.Output)
	if opts.Live != nil {
		live = *opts.Live
	}

	width := opts.Width
	if width <= 0 {
		width = terminalWidth(opts.Output)
	}

	return &Board{
		gate:    gate,
		out:     opts.Output,
		live:    live,
		width:   width,
		title:   opts.Title,
		total:   opts.Total,
		refresh: opts.RefreshInterval,
		fill:    color.New(color.FgGreen),
		dim:     color.New(color.Faint),
	}
}

// Gate returns the gate guarding this board.
func (b *Board) Gate() *Gate {
	return b.gate
}

// Transfer returns a Sink rendering one byte bar labelled name. The bar only
// appears once the first event arrives.
func (b *Board) Transfer(name string) Sink {
	return &Bar{board: b, name: name}
}

// Step records one finished descriptor.
func (b *Board) Step() {
	b.gate.Do(func() {
		if b.closed {
			return
		}
		b.done++
		if !b.live {
			fmt.Fprintf(b.out, "%s: %d/%d files\n", b.title, b.done, b.total)
			return
		}
		b.redraw(true)
	})
}

// Close draws the final frame and releases the terminal.
func (b *Board) Close() {
	b.gate.Do(func() {
		if b.closed {
			return
		}
		if b.live {
			b.clear()
			b.bars = nil
			fmt.Fprintln(b.out, b.overallLine())
		}
		b.closed = true
	})
}

// Writer wraps w so that every write first lifts the bars off the screen and
// redraws them below the written text afterwards.
func (b *Board) Writer(w io.Writer) io.Writer {
	if w == nil {
		w = b.out
	}
	return &boardWriter{board: b, w: w}
}

type boardWriter struct {
	board *Board
	w     io.Writer
}

func (bw *boardWriter) Write(p []byte) (n int, err error) {
	bw.board.gate.Do(func() {
		if !bw.board.live || bw.board.closed {
			n, err = bw.w.Write(p)
			return
		}
		bw.board.clear()
		n, err = bw.w.Write(p)
		bw.board.draw()
	})
	return n, err
}

// Bar is the Sink for a single transfer on a Board.
type Bar struct {
	board    *Board
	name     string
	total    int64
	current  int64
	started  time.Time
	attached bool
	closed   bool
}

// TotalKnown sizes the bar.
func (s *Bar) TotalKnown(total int64) {
	s.board.gate.Do(func() {
		s.total = total
		s.attach()
		if !s.board.live {
			fmt.Fprintf(s.board.out, "  %s: downloading %s\n", s.name, humanize.Bytes(uint64(max64(total, 0))))
			return
		}
		s.board.redraw(true)
	})
}

// Advance moves the bar forward by n bytes.
func (s *Bar) Advance(n int64) {
	s.board.gate.Do(func() {
		s.current += n
		if s.attach() {
			s.board.redraw(true)
			return
		}
		s.board.redraw(false)
	})
}

// Reset rewinds the bar for a retry.
func (s *Bar) Reset() {
	s.board.gate.Do(func() {
		s.current = 0
		s.started = time.Now()
		s.board.redraw(true)
	})
}

// Close removes the bar from the board.
func (s *Bar) Close() {
	s.board.gate.Do(func() {
		if s.closed {
			return
		}
		s.closed = true
		if !s.attached {
			return
		}
		s.board.detach(s)
		if !s.board.live {
			fmt.Fprintf(s.board.out, "  %s: %s in %s\n", s.name, humanize.Bytes(uint64(s.current)), time.Since(s.started).Round(time.Millisecond))
			return
		}
		s.board.redraw(true)
	})
}

// attach must be called under the gate. It reports whether the bar was newly added.
func (s *Bar) attach() bool {
	if s.attached || s.closed || s.board.closed {
		return false
	}
	s.attached = true
	s.started = time.Now()
	s.board.bars = append(s.board.bars, s)
	return true
}

func (b *Board) detach(bar *Bar) {
	for i, cur := range b.bars {
		if cur == bar {
			b.bars = append(b.bars[:i], b.bars[i+1:]...)
			return
		}
	}
}

// redraw must be called under the gate.
func (b *Board) redraw(force bool) {
	if !b.live || b.closed {
		return
	}
	if !force && time.Since(b.lastDraw) < b.refresh {
		return
	}
	b.clear()
	b.draw()
}

func (b *Board) clear() {
	if b.drawn == 0 {
		return
	}
	fmt.Fprintf(b.out, "\033[%dA\033[J", b.drawn)
	b.drawn = 0
}

func (b *Board) draw() {
	var buf strings.Builder
	buf.WriteString(b.overallLine())
	buf.WriteByte('\n')
	for _, bar := range b.bars {
		buf.WriteString(b.barLine(bar))
		buf.WriteByte('\n')
	}
	io.WriteString(b.out, buf.String())
	b.drawn = 1 + len(b.bars)
	b.lastDraw = time.Now()
}

func (b *Board) overallLine() string {
	counter := fmt.Sprintf(" %d/%d files", b.done, b.total)
	barWidth := b.width - runewidth.StringWidth(b.title) - runewidth.StringWidth(counter) - 3
	var ratio float64
	if b.total > 0 {
		ratio = float64(b.done) / float64(b.total)
	}
	return b.title + " " + b.gauge(ratio, barWidth) + counter
}

func (b *Board) barLine(bar *Bar) string {
	name := runewidth.FillRight(runewidth.Truncate(bar.name, nameColumn, "…"), nameColumn)

	elapsed := time.Since(bar.started).Seconds()
	if elapsed <= 0 {
		elapsed = 0.001
	}
	speed := humanize.Bytes(uint64(float64(bar.current)/elapsed)) + "/s"

	if bar.total <= 0 {
		return fmt.Sprintf("  %s %s  %s", name, humanize.Bytes(uint64(bar.current)), b.dim.Sprint(speed))
	}

	ratio := float64(bar.current) / float64(bar.total)
	stats := fmt.Sprintf(" %5.1f%%  %s/%s  %s",
		ratio*100,
		humanize.Bytes(uint64(bar.current)),
		humanize.Bytes(uint64(bar.total)),
		speed,
	)
	barWidth := b.width - nameColumn - runewidth.StringWidth(stats) - 5
	return "  " + name + " " + b.gauge(ratio, barWidth) + stats
}

func (b *Board) gauge(ratio float64, width int) string {
	if width < minBarWidth {
		width = minBarWidth
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	filled := int(float64(width) * ratio)
	bar := strings.Repeat("=", filled)
	if filled < width {
		bar += ">" + strings.Repeat(" ", width-filled-1)
	}
	return "[" + b.fill.Sprint(bar) + "]"
}

func isTerminal(w io.Writer) bool {
	if file, ok := w.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}

func terminalWidth(w io.Writer) int {
	if file, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(file.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return defaultWidth
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
