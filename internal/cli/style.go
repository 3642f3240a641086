package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	colorAccent  = lipgloss.Color("#8BC34A")
	colorInfo    = lipgloss.Color("#2196F3")
	colorWarning = lipgloss.Color("#FFC107")
	colorDanger  = lipgloss.Color("#E53935")
	colorMuted   = lipgloss.Color("#7A8599")
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorInfo).
			Padding(0, 2)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorInfo)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	keyStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	okStyle     = lipgloss.NewStyle().Foreground(colorAccent)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarning)
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorDanger)
)

// banner renders the boxed product heading.
func banner(subtitle string) string {
	return bannerStyle.Render("SMM BOT " + subtitle)
}

// statusText colors a status word by its meaning.
func statusText(s string) string {
	switch s {
	case "active", "online", "ok", "healthy", "succeeded", "true":
		return okStyle.Render(s)
	case "paused", "inactive", "queued", "degraded":
		return warnStyle.Render(s)
	case "dead", "suspended", "failed", "rejected", "unhealthy", "stopped", "false":
		return errStyle.Render(s)
	}
	return s
}

// table renders rows under a bold header.
type table struct {
	title   string
	headers []string
	rows    [][]string
}

func newTable(title string, headers ...string) *table {
	return &table{title: title, headers: headers}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer) {
	if t.title != "" {
		fmt.Fprintln(w, titleStyle.Render(t.title))
	}
	if len(t.rows) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("(none)"))
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	// Padding(0, 1) adds a column on each side.
	for i := range widths {
		widths[i] += 2
	}

	var sb strings.Builder
	for i, h := range t.headers {
		sb.WriteString(headerStyle.Width(widths[i]).Render(h))
	}
	sb.WriteString("\n")
	for i := range t.headers {
		sb.WriteString(mutedStyle.Render(strings.Repeat("-", widths[i])))
	}
	sb.WriteString("\n")
	for _, row := range t.rows {
		for i := range t.headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			sb.WriteString(cellStyle.Width(widths[i]).Render(cell))
		}
		sb.WriteString("\n")
	}
	fmt.Fprint(w, sb.String())
}

// renderMap prints a decoded JSON object as sorted key/value lines. Nested
// objects are flattened with dotted keys.
func renderMap(w io.Writer, title string, m map[string]any) {
	if title != "" {
		fmt.Fprintln(w, titleStyle.Render(title))
	}
	flat := map[string]string{}
	flatten("", m, flat)
	keys := make([]string, 0, len(flat))
	width := 0
	for k := range flat {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s  %s\n", keyStyle.Render(fmt.Sprintf("%-*s", width, k)), statusText(flat[k]))
	}
}

func flatten(prefix string, v any, out map[string]string) {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 && prefix != "" {
			out[prefix] = "{}"
		}
		for k, inner := range val {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, inner, out)
		}
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if _, nested := item.(map[string]any); nested {
				out[prefix] = fmt.Sprintf("[%d items]", len(val))
				return
			}
			parts = append(parts, fmt.Sprint(item))
		}
		out[prefix] = "[" + strings.Join(parts, ", ") + "]"
	case nil:
		out[prefix] = "-"
	default:
		out[prefix] = fmt.Sprint(val)
	}
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, okStyle.Render(fmt.Sprintf(format, args...)))
}
