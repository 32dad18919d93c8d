// Package ui renders run summaries, ledger history and prompts for the CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	runewidth "github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"binstrap/internal/bootstrap"
	"binstrap/internal/data"
	apperrors "binstrap/internal/errors"
)

const urlColumn = 56

// Printer renders rich terminal UI fragments used by the CLI.
type Printer struct {
	out          io.Writer
	colorEnabled bool
	success      *color.Color
	info         *color.Color
	warn         *color.Color
	error        *color.Color
	faint        *color.Color
}

// NewPrinter constructs a Printer writing to out. Colour is enabled only when
// out is a terminal and NO_COLOR is unset.
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	enabled := supportsColor(out) && os.Getenv("NO_COLOR") == ""

	p := &Printer{
		out:          out,
		colorEnabled: enabled,
		success:      color.New(color.FgGreen, color.Bold),
		info:         color.New(color.FgBlue, color.Bold),
		warn:         color.New(color.FgYellow, color.Bold),
		error:        color.New(color.FgRed, color.Bold),
		faint:        color.New(color.Faint),
	}

	if !enabled {
		p.success.DisableColor()
		p.info.DisableColor()
		p.warn.DisableColor()
		p.error.DisableColor()
		p.faint.DisableColor()
	}

	return p
}

// PrintSeparator prints a repeated character separator.
func (p *Printer) PrintSeparator(char string, length int) {
	if length <= 0 {
		return
	}
	fmt.Fprintln(p.out, strings.Repeat(char, length))
}

// PrintSummary renders one line per descriptor followed by every failure.
func (p *Printer) PrintSummary(report *bootstrap.Report) {
	if report == nil {
		return
	}

	p.PrintSeparator("-", 72)
	for _, res := range report.Results {
		mark := p.success.Sprint("✓")
		detail := fmt.Sprintf("%s, %d exposures", sourceText(res.Source), len(res.Exposures))
		if res.Source == bootstrap.SourceNetwork {
			detail += ", " + humanize.Bytes(uint64(res.Bytes))
		}
		if res.Failed() {
			mark = p.error.Sprint("✕")
			detail = p.error.Sprint(string(res.State))
		}
		fmt.Fprintf(p.out, "[ %s ] %s  %s\n", mark, column(res.Descriptor.URL, urlColumn), detail)
	}

	failures := report.Failures()
	if len(failures) > 0 {
		fmt.Fprintln(p.out)
		p.warn.Fprintln(p.out, "Failures")
		for _, f := range failures {
			subject := f.URL
			if f.Exposure != "" {
				subject = fmt.Sprintf("%s [%s]", f.URL, f.Exposure)
			}
			fmt.Fprintf(p.out, "  %s %s\n", p.error.Sprint(string(f.Kind)), subject)
			fmt.Fprintf(p.out, "      %s\n", p.faint.Sprint(failureMessage(f.Err)))
		}
	}

	p.PrintSeparator("-", 72)
	total := len(report.Results)
	line := fmt.Sprintf("%d/%d descriptors ready in %s", report.Succeeded(), total,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	if report.Failed() {
		p.error.Fprintln(p.out, line)
		return
	}
	p.success.Fprintln(p.out, line)
}

// PrintHistory renders recent runs, newest first.
func (p *Printer) PrintHistory(runs []data.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(p.out, "no recorded runs")
		return
	}

	p.info.Fprintln(p.out, "Recent runs")
	for _, run := range runs {
		mark := p.success.Sprint("✓")
		if run.Failed() > 0 {
			mark = p.error.Sprint("✕")
		}
		fmt.Fprintf(p.out, "[ %s ] %s  %-8s %d/%d  %s\n",
			mark,
			column(run.ID, 36),
			run.Platform,
			run.Succeeded,
			run.Total,
			p.faint.Sprint(humanize.Time(run.StartedAt)),
		)
		for _, f := range run.Failures {
			subject := f.URL
			if f.Exposure != "" {
				subject += " [" + f.Exposure + "]"
			}
			fmt.Fprintf(p.out, "      %s %s\n", p.error.Sprint(f.Kind), subject)
		}
	}
}

// PrintArtifacts renders the cache entries known to the ledger.
func (p *Printer) PrintArtifacts(artifacts []data.Artifact) {
	if len(artifacts) == 0 {
		fmt.Fprintln(p.out, "cache is empty")
		return
	}

	var total int64
	p.info.Fprintln(p.out, "Cached artifacts")
	for _, a := range artifacts {
		total += a.Size
		fmt.Fprintf(p.out, "  %s %9s  %s\n",
			column(a.URL, urlColumn),
			humanize.Bytes(uint64(a.Size)),
			p.faint.Sprint(humanize.Time(a.RecordedAt)),
		)
	}
	fmt.Fprintf(p.out, "%d artifacts, %s\n", len(artifacts), humanize.Bytes(uint64(total)))
}

// Confirm asks a yes/no question. A declined or aborted prompt returns false.
func Confirm(label string, in io.ReadCloser, out io.WriteCloser) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     in,
		Stdout:    out,
	}

	if _, err := prompt.Run(); err != nil {
		if err == promptui.ErrAbort {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func sourceText(s bootstrap.Source) string {
	if s == bootstrap.SourceNone {
		return "-"
	}
	return string(s)
}

func failureMessage(err error) string {
	if err == nil {
		return "unknown failure"
	}
	appErr, ok := apperrors.As(err)
	if !ok {
		return err.Error()
	}
	if appErr.Err != nil {
		return fmt.Sprintf("%s: %v", appErr.Message, appErr.Err)
	}
	return appErr.Message
}

func column(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

func supportsColor(w io.Writer) bool {
	if file, ok := w.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}
