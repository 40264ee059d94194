// Package tui renders sheetdex results for the terminal.
package tui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/sheetdex/sheetdex/pkg/ingest"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	barStyle     = lipgloss.NewStyle().Foreground(success)
)

// maxListedFailures caps the rejected rows printed per report.
const maxListedFailures = 10

// PrintIngestReport prints the outcome of one ingestion.
func PrintIngestReport(w io.Writer, res ingest.Result) {
	fmt.Fprintln(w)
	switch {
	case res.Empty:
		fmt.Fprintln(w, mutedStyle.Render("  ○ SOURCE EMPTY, NOTHING INDEXED"))
	case res.Failed > 0:
		fmt.Fprintln(w, accentStyle.Render("  ! INGEST COMPLETE WITH REJECTIONS"))
	default:
		fmt.Fprintln(w, successStyle.Render("  ✓ INGEST COMPLETE"))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  %s %s → %s\n", mutedStyle.Render("Source:"), titleStyle.Render(res.Source), titleStyle.Render(res.Target))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Rows:"), titleStyle.Render(formatNumber(int64(res.Rows))))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Indexed:"), successStyle.Render(fmt.Sprintf("%d", res.Succeeded)))
	if res.Failed > 0 {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Rejected:"), accentStyle.Render(fmt.Sprintf("%d", res.Failed)))
		for i, f := range res.Failures {
			if i == maxListedFailures {
				fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("    … %d more", len(res.Failures)-maxListedFailures)))
				break
			}
			fmt.Fprintf(w, "    %s %s\n", mutedStyle.Render(fmt.Sprintf("row %d:", f.Row)), f.Reason)
		}
	}

	if res.Duration > 0 {
		perSec := float64(res.Rows) / res.Duration.Seconds()
		fmt.Fprintf(w, "  %s %s %s\n",
			mutedStyle.Render("Time:"),
			titleStyle.Render(formatDuration(res.Duration)),
			mutedStyle.Render(fmt.Sprintf("(%s rows/sec)", formatNumber(int64(perSec)))))
	}
	fmt.Fprintln(w)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// ShowProgress creates a progress bar counting processed files.
func ShowProgress(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
