// Package ui holds terminal output styling shared by the CLI commands.
package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/strideapp/stride/internal/model"
	"github.com/strideapp/stride/internal/status"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	faintStyle  = lipgloss.NewStyle().Faint(true)
	focusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)

// Accent renders emphasized text, e.g. identifiers and headings.
func Accent(s string) string { return accentStyle.Render(s) }

// Pass renders success output.
func Pass(s string) string { return passStyle.Render(s) }

// Warn renders warning output.
func Warn(s string) string { return warnStyle.Render(s) }

// Err renders error output.
func Err(s string) string { return errStyle.Render(s) }

// Faint renders secondary detail.
func Faint(s string) string { return faintStyle.Render(s) }

// TaskLine renders one task for list output.
func TaskLine(t *model.Task) string {
	mark := "[ ]"
	if t.Completed {
		mark = passStyle.Render("[x]")
	}

	line := fmt.Sprintf("%s %s  %s", mark, faintStyle.Render(shortID(t.ID)), t.Title)

	if t.Focus {
		line += "  " + focusStyle.Render("★ focus")
	}
	if t.Priority > model.PriorityNone {
		line += "  " + warnStyle.Render("!"+t.Priority.String())
	}
	if t.DueAt != nil {
		line += "  " + faintStyle.Render("due "+t.DueAt.Format("2006-01-02"))
	}
	if t.Sync != status.Synced {
		line += "  " + faintStyle.Render("("+string(t.Sync)+")")
	}
	return line
}

// GoalLine renders one goal for list output.
func GoalLine(g *model.Goal) string {
	mark := "[ ]"
	if g.Completed {
		mark = passStyle.Render("[x]")
	}
	line := fmt.Sprintf("%s %s  %s", mark, faintStyle.Render(shortID(g.ID)), accentStyle.Render(g.Title))
	if g.Sync != status.Synced {
		line += "  " + faintStyle.Render("("+string(g.Sync)+")")
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
