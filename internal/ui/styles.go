// Package ui provides terminal styling for conveyor CLI output.
package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Semantic colors, adaptive for light and dark terminals.
var (
	ColorDone = lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	}
	ColorWaiting = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	ColorBlocked = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
)

var (
	DoneStyle    = lipgloss.NewStyle().Foreground(ColorDone)
	WaitingStyle = lipgloss.NewStyle().Foreground(ColorWaiting)
	BlockedStyle = lipgloss.NewStyle().Foreground(ColorBlocked)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle  = lipgloss.NewStyle().Foreground(ColorAccent)

	// HeaderStyle for section headers.
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// IsInteractive reports whether stdout is a terminal. Non-interactive runs
// (pipes, CI, agents) get plain output and no prompts.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// RenderDone renders text in the completed/healthy color.
func RenderDone(s string) string { return DoneStyle.Render(s) }

// RenderWaiting renders text in the awaiting-review color.
func RenderWaiting(s string) string { return WaitingStyle.Render(s) }

// RenderBlocked renders text in the blocked/error color.
func RenderBlocked(s string) string { return BlockedStyle.Render(s) }

// RenderMuted renders text in the de-emphasized color.
func RenderMuted(s string) string { return MutedStyle.Render(s) }

// RenderAccent renders text in the accent color.
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderHeader renders a section header in uppercase.
func RenderHeader(s string) string { return HeaderStyle.Render(strings.ToUpper(s)) }
