// Package ui renders desktop state for the terminal.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	dimColor       = lipgloss.Color("7")
	accentColor    = lipgloss.Color("12")
	successColor   = lipgloss.Color("10")
	warningColor   = lipgloss.Color("11")
	dangerColor    = lipgloss.Color("9")
	highlightColor = lipgloss.Color("13")

	TitleStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(highlightColor).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	ActiveStyle = lipgloss.NewStyle().
			Foreground(successColor)

	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(dangerColor).
			Bold(true)
)

// FormatPairs joins alternating labels and values, with values in bold
// accent: FormatPairs("tools", "3", "pending", "0") gives
// "tools 3  pending 0".
func FormatPairs(parts ...string) string {
	valueStyle := lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	var result []string
	for i := 0; i+1 < len(parts); i += 2 {
		result = append(result, parts[i]+" "+valueStyle.Render(parts[i+1]))
	}
	return strings.Join(result, "  ")
}
