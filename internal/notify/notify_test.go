package notify

import (
	"bytes"
	"strings"
	"testing"

	"github.com/muesli/reflow/ansi"
)

func TestNotify(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Info, "• reading 3 chunks"},
		{Success, "✓ reading 3 chunks"},
		{Warning, "! reading 3 chunks"},
		{Error, "✗ reading 3 chunks"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			var buf bytes.Buffer
			n := New(&buf)
			n.Notify(tt.kind, "reading %d chunks", 3)

			// A bytes.Buffer is not a terminal, so no escape codes.
			if got := strings.TrimSpace(buf.String()); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQuiet(t *testing.T) {
	var buf bytes.Buffer
	n := New(&buf)
	n.SetQuiet(true)

	n.Info("hidden")
	n.Success("hidden")
	n.Warning("hidden")
	n.Error("shown")

	if got := strings.TrimSpace(buf.String()); got != "✗ shown" {
		t.Errorf("got %q", got)
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"  spaced \n\t out  ", 20, "spaced out"},
		{"The quick brown fox jumps over the lazy dog", 10, "The quick…"},
	}
	for _, tt := range tests {
		got := Preview(tt.text, tt.width)
		if got != tt.want {
			t.Errorf("Preview(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
		if w := ansi.PrintableRuneWidth(got); w > tt.width {
			t.Errorf("preview %q is %d cells wide, limit %d", got, w, tt.width)
		}
	}

	if got := Preview(strings.Repeat("a", 100), 0); ansi.PrintableRuneWidth(got) != DefaultPreviewWidth {
		t.Errorf("default width preview has width %d", ansi.PrintableRuneWidth(got))
	}
}
