package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/klogs/pkg/core"
	"github.com/modoterra/klogs/pkg/render"
)

// MaxLines caps the number of entries kept in memory.
const MaxLines = 5000

// Pane identifies which TUI pane is focused.
type Pane int

const (
	PaneSources Pane = iota
	PaneLogs
)

// Mode identifies the current interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
)

// App is the root Bubble Tea model for the follow viewer.
type App struct {
	title      string
	filterDesc string
	sources    []core.Source
	renderer   *render.Renderer

	entries     []core.LogEntry
	dropped     int
	selectedIdx int
	focus       string // source ID, or "" for all
	paused      bool
	ended       bool

	activePane Pane
	mode       Mode
	search     textinput.Model
	logs       viewport.Model
	width      int
	height     int

	statusMsg string
}

// New creates the viewer. Entries are formatted with renderer.
func New(title, filterDesc string, sources []core.Source, renderer *render.Renderer) App {
	si := textinput.New()
	si.Placeholder = "search..."
	si.CharLimit = 64

	return App{
		title:      title,
		filterDesc: filterDesc,
		sources:    sources,
		renderer:   renderer,
		search:     si,
		logs:       viewport.New(0, 0),
		activePane: PaneLogs,
		mode:       ModeNormal,
		statusMsg:  fmt.Sprintf("streaming %d sources", len(sources)),
	}
}

// Init sets the window title.
func (a App) Init() tea.Cmd {
	return tea.SetWindowTitle("klogs: " + a.title)
}

// entryMsg carries one filtered entry from the runner.
type entryMsg core.LogEntry

// StreamEndedMsg reports that the runner returned.
type StreamEndedMsg struct{ Err error }

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		a.refresh()
		return a, nil

	case entryMsg:
		if a.paused {
			a.dropped++
			return a, nil
		}
		a.entries = append(a.entries, core.LogEntry(msg))
		if len(a.entries) > MaxLines {
			a.entries = a.entries[len(a.entries)-MaxLines:]
		}
		a.refresh()
		return a, nil

	case StreamEndedMsg:
		a.ended = true
		if msg.Err != nil {
			a.statusMsg = "error: " + msg.Err.Error()
		} else {
			a.statusMsg = "stream ended"
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.mode == ModeSearch {
		switch msg.String() {
		case "esc":
			a.mode = ModeNormal
			a.search.SetValue("")
			a.search.Blur()
		case "enter":
			a.mode = ModeNormal
			a.search.Blur()
		default:
			var cmd tea.Cmd
			a.search, cmd = a.search.Update(msg)
			a.refresh()
			return a, cmd
		}
		a.refresh()
		return a, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "tab":
		a.activePane = (a.activePane + 1) % 2
		return a, nil

	case "/":
		a.mode = ModeSearch
		a.search.Focus()
		return a, textinput.Blink

	case " ":
		a.paused = !a.paused
		if !a.paused && a.dropped > 0 {
			a.statusMsg = fmt.Sprintf("skipped %d lines while paused", a.dropped)
			a.dropped = 0
		}
		return a, nil

	case "G":
		a.logs.GotoBottom()
		return a, nil
	case "g":
		a.logs.GotoTop()
		return a, nil
	}

	if a.activePane == PaneSources {
		switch msg.String() {
		case "j", "down":
			a.selectedIdx = min(a.selectedIdx+1, len(a.sources))
		case "k", "up":
			a.selectedIdx = max(a.selectedIdx-1, 0)
		case "enter":
			a.focus = a.selectedSourceID()
			a.refresh()
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.logs, cmd = a.logs.Update(msg)
	return a, cmd
}

// selectedSourceID maps the list cursor to a source ID. Index 0 is "all".
func (a App) selectedSourceID() string {
	if a.selectedIdx == 0 || a.selectedIdx > len(a.sources) {
		return ""
	}
	return a.sources[a.selectedIdx-1].ID
}

// visible returns the formatted entries that pass the focus and search
// narrowing.
func (a App) visible() []string {
	q := strings.ToLower(a.search.Value())
	var out []string
	for _, e := range a.entries {
		if a.focus != "" && e.SourceID != a.focus {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(e.RawLine), q) {
			continue
		}
		out = append(out, a.renderer.Format(e))
	}
	return out
}

func (a *App) resize() {
	w, h := a.logSize()
	a.logs.Width = w
	a.logs.Height = h
}

// refresh rebuilds the viewport content, keeping the view pinned to the
// bottom when it already was.
func (a *App) refresh() {
	follow := a.logs.AtBottom() || a.logs.TotalLineCount() == 0
	a.logs.SetContent(strings.Join(a.visible(), "\n"))
	if follow {
		a.logs.GotoBottom()
	}
}
