package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/klogs/pkg/core"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusPending = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusCrash   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStopped = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(lipgloss.Color("205"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const statusBarH = 1

func (a App) listWidth() int {
	return min(max(a.width/4, 16), 40)
}

// logSize returns the inner size of the log pane.
func (a App) logSize() (int, int) {
	w := a.width - a.listWidth() - 8
	h := a.height - statusBarH - 3
	return max(w, 1), max(h, 1)
}

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	listW := a.listWidth()
	logW, logH := a.logSize()

	list := a.renderSources(listW, logH)
	listPane := a.paneBox(PaneSources, " Sources ", list, listW, logH)
	logPane := a.paneBox(PaneLogs, a.logTitle(), a.logs.View(), logW, logH)

	top := lipgloss.JoinHorizontal(lipgloss.Top, listPane, logPane)
	return lipgloss.JoinVertical(lipgloss.Left, top, a.renderStatusBar())
}

func (a App) paneBox(pane Pane, title, content string, w, h int) string {
	style := paneStyle
	if a.activePane == pane {
		style = activePaneStyle
	}
	return style.Width(w).Height(h).Render(
		titleStyle.Render(title) + "\n" + content,
	)
}

func (a App) renderSources(w, h int) string {
	var b strings.Builder
	rows := make([]string, 0, len(a.sources)+1)
	rows = append(rows, fmt.Sprintf("  %-*s", w-4, "all"))
	for _, s := range a.sources {
		rows = append(rows, fmt.Sprintf(" %s %-*s", statusIndicator(s.Status), w-4, truncate(s.ID, w-4)))
	}

	maxVisible := h - 2
	start := 0
	if a.selectedIdx >= maxVisible {
		start = a.selectedIdx - maxVisible + 1
	}
	for i := start; i < len(rows) && i-start < maxVisible; i++ {
		line := rows[i]
		if i == a.selectedIdx {
			line = selectedStyle.Width(w).Render(line)
		}
		b.WriteString(line + "\n")
	}

	if a.mode == ModeSearch {
		b.WriteString("\n" + a.search.View())
	}
	return b.String()
}

func (a App) logTitle() string {
	title := " " + a.title + " "
	if a.focus != "" {
		title += dimStyle.Render("["+a.focus+"]") + " "
	}
	if q := a.search.Value(); q != "" {
		title += dimStyle.Render("/"+q) + " "
	}
	if a.paused {
		title += dimStyle.Render("[PAUSED]") + " "
	}
	if a.ended {
		title += dimStyle.Render("[ENDED]") + " "
	}
	return title
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	if a.filterDesc != "" {
		left += "  filter: " + a.filterDesc
	}
	right := "tab:pane j/k:nav enter:focus /:search space:pause g/G:top/bottom q:quit"
	if a.mode == ModeSearch {
		right = "enter:apply esc:cancel"
	}

	gap := a.width - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func statusIndicator(status core.SourceStatus) string {
	switch status {
	case core.StatusRunning:
		return statusRunning.Render("●")
	case core.StatusPending:
		return statusPending.Render("◌")
	case core.StatusCrashLoopBackOff:
		return statusCrash.Render("↻")
	case core.StatusTerminated:
		return statusStopped.Render("○")
	default:
		return dimStyle.Render("?")
	}
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
