package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	fileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// chrome is the number of lines taken by the title, tabs and help.
const chrome = 5

type viewerModel struct {
	title    string
	results  []result
	view     viewport.Model
	selected int
	ready    bool
}

func newViewerModel(title string, results []result) *viewerModel {
	return &viewerModel{title: title, results: results}
}

func (m *viewerModel) Init() tea.Cmd {
	return nil
}

func (m *viewerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "tab", "right", "l":
			if len(m.results) > 0 {
				m.selected = (m.selected + 1) % len(m.results)
				m.refresh()
			}
			return m, nil

		case "shift+tab", "left", "h":
			if len(m.results) > 0 {
				m.selected = (m.selected + len(m.results) - 1) % len(m.results)
				m.refresh()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		height := max(msg.Height-chrome, 1)
		if !m.ready {
			m.view = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.view.Width = msg.Width
			m.view.Height = height
		}
		m.refresh()
	}

	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

func (m *viewerModel) refresh() {
	if !m.ready || len(m.results) == 0 {
		return
	}
	r := m.results[m.selected]
	if r.failed {
		m.view.SetContent(errorStyle.Render(r.body))
	} else {
		m.view.SetContent(r.body)
	}
	m.view.GotoTop()
}

func (m *viewerModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	if len(m.results) == 0 {
		return "Nothing to show.\n\nPress q to quit."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Krakatau"))
	b.WriteString(" ")
	b.WriteString(m.title)
	b.WriteString("\n\n")

	for i, r := range m.results {
		label := " " + r.title + " "
		switch {
		case i == m.selected:
			b.WriteString(selectedStyle.Render(label))
		case r.failed:
			b.WriteString(errorStyle.Render(label))
		default:
			b.WriteString(fileStyle.Render(label))
		}
	}
	b.WriteString("\n")

	b.WriteString(m.view.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf("tab/shift+tab switch file • ↑/↓ scroll • q quit • %d%%", int(m.view.ScrollPercent()*100))))
	return b.String()
}

func runInteractive(title string, results []result) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal on stdout")
	}
	p := tea.NewProgram(newViewerModel(title, results), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
