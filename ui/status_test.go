package ui

import (
	"strings"
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"

	"deskos/desktop"
	"deskos/window"
)

func TestCell(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{name: "pads", in: "ab", width: 4, want: "ab  "},
		{name: "exact", in: "abcd", width: 4, want: "abcd"},
		{name: "truncates", in: "abcdefgh", width: 6, want: "abc..."},
		{name: "wide runes", in: "記事帳", width: 6, want: "記事帳"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cell(tt.in, tt.width)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.width, runewidth.StringWidth(got))
		})
	}
}

func TestRenderStatus(t *testing.T) {
	s := desktop.Status{
		Plugins: []desktop.PluginStatus{
			{ID: "notepad", Name: "Notepad", Version: "1.0.0", State: "active"},
			{ID: "weather", Name: "Weather", Version: "0.2.0", State: "registered"},
		},
		Components: []desktop.ComponentStatus{
			{ID: "notepad", Name: "Notepad", Capability: "both", Actions: 3},
		},
		Windows: []window.Record{
			{ID: "notepad", Title: "Notepad", IsOpen: true, Size: window.Size{Width: 600, Height: 400}},
		},
		Focused: "notepad",
		Tools:   3,
	}

	out := RenderStatus(s, 0)
	for _, want := range []string{"PLUGIN", "notepad", "weather", "registered", "COMPONENT", "both", "600x400", "focused", "tools 3"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "No open windows.")
}

func TestRenderStatusEmpty(t *testing.T) {
	out := RenderStatus(desktop.Status{}, 60)
	assert.Contains(t, out, "No plugins registered.")
	assert.Contains(t, out, "No open windows.")
	assert.NotContains(t, out, "COMPONENT")
}

func TestRenderTools(t *testing.T) {
	assert.Contains(t, RenderTools(nil, 80), "No tools registered.")

	tools := []mcptypes.Tool{
		{Name: "notepad.setValue", Description: "Replace the text"},
		{Name: "notepad.getValue", Description: strings.Repeat("long description ", 10)},
	}
	out := RenderTools(tools, 60)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 3)
	for _, line := range lines {
		assert.LessOrEqual(t, runewidth.StringWidth(line), 60)
	}
	assert.Contains(t, lines[2], "...")
}

func TestRenderList(t *testing.T) {
	assert.Equal(t, "a\nb\n", RenderList([]string{"a", "b"}, "none"))
	assert.Contains(t, RenderList(nil, "none"), "none")
}
