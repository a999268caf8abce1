// Package notify prints short status lines to the terminal.
package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"
)

// Kind is the severity of a notification.
type Kind int

const (
	Info Kind = iota
	Success
	Warning
	Error
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// DefaultPreviewWidth is the width text previews are truncated to.
const DefaultPreviewWidth = 60

var (
	successColor = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#89F0CB"}
	errorColor   = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F87"}
	warningColor = lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#FFD75F"}
	infoColor    = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
)

var symbols = map[Kind]string{
	Info:    "•",
	Success: "✓",
	Warning: "!",
	Error:   "✗",
}

// Notifier writes styled notifications to a writer.
type Notifier struct {
	mu     sync.Mutex
	out    io.Writer
	styles map[Kind]lipgloss.Style
	quiet  bool
}

// New creates a notifier writing to w. Colors are only used when w is a
// terminal.
func New(w io.Writer) *Notifier {
	r := lipgloss.NewRenderer(w, termenv.WithColorCache(true))
	return &Notifier{
		out: w,
		styles: map[Kind]lipgloss.Style{
			Info:    r.NewStyle().Foreground(infoColor),
			Success: r.NewStyle().Foreground(successColor).Bold(true),
			Warning: r.NewStyle().Foreground(warningColor),
			Error:   r.NewStyle().Foreground(errorColor).Bold(true),
		},
	}
}

// SetQuiet suppresses everything but errors.
func (n *Notifier) SetQuiet(quiet bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.quiet = quiet
}

// Notify prints one notification line.
func (n *Notifier) Notify(kind Kind, format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.quiet && kind != Error {
		return
	}
	msg := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintln(n.out, n.styles[kind].Render(symbols[kind]+" "+msg))
}

func (n *Notifier) Info(format string, args ...any)    { n.Notify(Info, format, args...) }
func (n *Notifier) Success(format string, args ...any) { n.Notify(Success, format, args...) }
func (n *Notifier) Warning(format string, args ...any) { n.Notify(Warning, format, args...) }
func (n *Notifier) Error(format string, args ...any)   { n.Notify(Error, format, args...) }

// Preview collapses whitespace in text and truncates it to width cells.
func Preview(text string, width int) string {
	if width <= 0 {
		width = DefaultPreviewWidth
	}
	return truncate.StringWithTail(strings.Join(strings.Fields(text), " "), uint(width), "…") //nolint:gosec
}
