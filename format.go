package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tonimelisma/datasync-go/internal/dropzone"
)

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * 1024
	sizeGB = 1024 * 1024 * 1024
)

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	switch {
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(sizeGB))
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(sizeMB))
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(sizeKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatTime returns a compact local timestamp, or "-" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	t = t.Local()

	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// formatPercent renders a percentage with two decimals, as the dashboards do.
func formatPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}

// printTable writes aligned columns. headers and each row must have the same
// length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

const progressBarWidth = 24

// progressBar renders "[=====>    ]  42%".
func progressBar(pct int) string {
	pct = min(max(pct, 0), 100)
	filled := pct * progressBarWidth / 100

	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(strings.Repeat("=", filled))

	if filled < progressBarWidth {
		b.WriteByte('>')
		b.WriteString(strings.Repeat(" ", progressBarWidth-filled-1))
	}

	fmt.Fprintf(&b, "] %3d%%", pct)

	return b.String()
}

// uploadRenderer prints upload status changes. On a terminal the current
// file's bar is redrawn in place; otherwise only final states are printed.
type uploadRenderer struct {
	mu      sync.Mutex
	w       io.Writer
	tty     bool
	quiet   bool
	lastLen int
}

func (r *uploadRenderer) update(st dropzone.FileStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch st.State {
	case dropzone.StateUploading:
		if r.tty && !r.quiet {
			r.redraw(fmt.Sprintf("%s %s", progressBar(st.Progress), st.Name))
		}
	case dropzone.StateSuccess:
		r.line(fmt.Sprintf("uploaded  %s", st.Name), false)
	case dropzone.StateSkipped:
		r.line(fmt.Sprintf("skipped   %s (already uploaded)", st.Name), false)
	case dropzone.StateError:
		r.line(fmt.Sprintf("failed    %s: %v", st.Name, st.Err), true)
	}
}

func (r *uploadRenderer) redraw(s string) {
	pad := max(r.lastLen-len(s), 0)
	fmt.Fprintf(r.w, "\r%s%s", s, strings.Repeat(" ", pad))
	r.lastLen = len(s)
}

// line prints a permanent line, clearing any in-place bar first. Errors are
// printed even in quiet mode.
func (r *uploadRenderer) line(s string, always bool) {
	if r.quiet && !always {
		return
	}

	if r.tty && r.lastLen > 0 {
		fmt.Fprintf(r.w, "\r%s\r", strings.Repeat(" ", r.lastLen))
		r.lastLen = 0
	}

	fmt.Fprintln(r.w, s)
}
