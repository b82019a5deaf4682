package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mattn/go-runewidth"

	"deskos/desktop"
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 80

// cell pads or truncates s to exactly width terminal columns.
func cell(s string, width int) string {
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "...")
	}
	return runewidth.FillRight(s, width)
}

// table lays out rows in fixed-width columns. style, when set, colors the
// last column after padding.
func table(headers []string, widths []int, rows [][]string, style func(string) lipgloss.Style) string {
	var b strings.Builder
	head := make([]string, len(headers))
	for i, h := range headers {
		head[i] = HeaderStyle.Render(cell(h, widths[i]))
	}
	b.WriteString(strings.TrimRight(strings.Join(head, " "), " "))
	b.WriteString("\n")
	for _, row := range rows {
		cols := make([]string, len(row))
		for i, v := range row {
			cols[i] = cell(v, widths[i])
			if style != nil && i == len(row)-1 {
				cols[i] = style(v).Render(cols[i])
			}
		}
		b.WriteString(strings.TrimRight(strings.Join(cols, " "), " "))
		b.WriteString("\n")
	}
	return b.String()
}

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "active", "both":
		return ActiveStyle
	case "declare-only", "handler-only":
		return WarningStyle
	default:
		return DimStyle
	}
}

// RenderStatus draws the plugin, component and window tables.
func RenderStatus(s desktop.Status, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	nameWidth := max(12, width-48)

	var sections []string
	sections = append(sections, TitleStyle.Render("deskos")+"  "+FormatPairs(
		"plugins", strconv.Itoa(len(s.Plugins)),
		"components", strconv.Itoa(len(s.Components)),
		"tools", strconv.Itoa(s.Tools),
		"pending", strconv.Itoa(s.PendingCalls),
	))

	if len(s.Plugins) == 0 {
		sections = append(sections, DimStyle.Render("No plugins registered."))
	} else {
		rows := make([][]string, 0, len(s.Plugins))
		for _, p := range s.Plugins {
			rows = append(rows, []string{p.ID, p.Name, p.Version, p.State})
		}
		sections = append(sections, table(
			[]string{"PLUGIN", "NAME", "VERSION", "STATE"},
			[]int{16, nameWidth, 10, 12}, rows, stateStyle))
	}

	if len(s.Components) > 0 {
		rows := make([][]string, 0, len(s.Components))
		for _, c := range s.Components {
			rows = append(rows, []string{c.ID, c.Name, strconv.Itoa(c.Actions), c.Capability})
		}
		sections = append(sections, table(
			[]string{"COMPONENT", "NAME", "ACTIONS", "BOUND"},
			[]int{16, nameWidth, 10, 12}, rows, stateStyle))
	}

	if len(s.Windows) == 0 {
		sections = append(sections, DimStyle.Render("No open windows."))
	} else {
		rows := make([][]string, 0, len(s.Windows))
		for _, w := range s.Windows {
			flags := ""
			switch {
			case w.ID == s.Focused:
				flags = "focused"
			case w.IsMinimized:
				flags = "minimized"
			case w.IsMaximized:
				flags = "maximized"
			}
			rows = append(rows, []string{
				w.ID,
				w.Title,
				fmt.Sprintf("%dx%d", w.Size.Width, w.Size.Height),
				flags,
			})
		}
		sections = append(sections, table(
			[]string{"WINDOW", "TITLE", "SIZE", ""},
			[]int{16, nameWidth, 10, 12}, rows, nil))
	}

	return strings.Join(sections, "\n")
}

// RenderTools lists tools with their descriptions truncated to width.
func RenderTools(tools []mcptypes.Tool, width int) string {
	if len(tools) == 0 {
		return DimStyle.Render("No tools registered.") + "\n"
	}
	if width <= 0 {
		width = DefaultWidth
	}

	nameWidth := 0
	for _, t := range tools {
		nameWidth = max(nameWidth, runewidth.StringWidth(t.Name))
	}
	nameWidth = min(nameWidth, width/2)
	descWidth := max(10, width-nameWidth-1)

	rows := make([][]string, 0, len(tools))
	for _, t := range tools {
		rows = append(rows, []string{t.Name, t.Description})
	}
	return table([]string{"TOOL", "DESCRIPTION"}, []int{nameWidth, descWidth}, rows, nil)
}

// RenderList prints one item per line, or placeholder when items is empty.
func RenderList(items []string, placeholder string) string {
	if len(items) == 0 {
		return DimStyle.Render(placeholder) + "\n"
	}
	return strings.Join(items, "\n") + "\n"
}
