// Package review is the interactive triage review UI. It pages through
// items awaiting a human call (model-shortlisted plus unresolved triage)
// and writes approve/reject decisions back to the library.
package review

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pulsepress/internal/library"
	"pulsepress/internal/logging"
)

// reviewStatuses are the item states the queue pages through, in the
// order they appear: the model's picks first, then what it left open.
var reviewStatuses = []string{
	library.StatusShortlisted,
	library.StatusTriaged,
	library.StatusTriageFailed,
}

// =============================================================================
// STYLES
// =============================================================================

type reviewStyles struct {
	title  lipgloss.Style
	label  lipgloss.Style
	muted  lipgloss.Style
	good   lipgloss.Style
	bad    lipgloss.Style
	warn   lipgloss.Style
	status lipgloss.Style
}

func defaultStyles() reviewStyles {
	return reviewStyles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A")),
		label:  lipgloss.NewStyle().Bold(true),
		muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		good:   lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true),
		bad:    lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true),
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")).Bold(true),
		status: lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("240")),
	}
}

// badge renders the status tag shown in front of each queue entry.
func (s reviewStyles) badge(status string) string {
	switch status {
	case library.StatusShortlisted:
		return s.good.Render("[SHORTLISTED]")
	case library.StatusRejected:
		return s.bad.Render("[REJECTED]")
	case library.StatusTriageFailed:
		return s.bad.Render("[FAILED]")
	default:
		return s.warn.Render("[PENDING]")
	}
}

// =============================================================================
// QUEUE ENTRIES
// =============================================================================

// entry pairs an item with its triage verdict for display. The verdict
// is nil when triage failed before one landed.
type entry struct {
	item    *library.Item
	verdict *library.Verdict
	styles  reviewStyles
}

func (e entry) FilterValue() string { return e.item.Title }

func (e entry) Title() string {
	return fmt.Sprintf("%s %s", e.styles.badge(e.item.Status), e.item.Title)
}

func (e entry) Description() string {
	parts := []string{e.item.Source}
	if !e.item.Published.IsZero() {
		parts = append(parts, e.item.Published.Format("2006-01-02"))
	}
	if e.verdict != nil {
		parts = append(parts, fmt.Sprintf("relevance %d/10", e.verdict.Relevance), e.verdict.Action)
	} else {
		parts = append(parts, "no verdict")
	}
	return strings.Join(parts, "  ")
}

// =============================================================================
// MODEL
// =============================================================================

type entriesLoadedMsg struct{ entries []entry }

type loadErrMsg struct{ err error }

type decisionMsg struct {
	index  int
	status string
	err    error
}

// Model is the bubbletea model behind `pulse review`.
type Model struct {
	lib     *library.Library
	list    list.Model
	entries []entry
	styles  reviewStyles

	showDetail bool
	message    string
	width      int
	height     int
	err        error
}

// New builds the review model over the library's pending queue.
func New(lib *library.Library) Model {
	styles := defaultStyles()

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true

	l := list.New([]list.Item{}, delegate, 80, 20)
	l.Title = "Triage review"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = styles.title

	return Model{
		lib:    lib,
		list:   l,
		styles: styles,
		width:  80,
		height: 24,
	}
}

// Run drives the interactive review loop until the user quits.
func Run(lib *library.Library) error {
	p := tea.NewProgram(New(lib), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init loads the queue.
func (m Model) Init() tea.Cmd {
	return m.load
}

// load collects reviewable items with their verdicts.
func (m Model) load() tea.Msg {
	var entries []entry
	for _, status := range reviewStatuses {
		items, err := m.lib.ListItems(status, 200)
		if err != nil {
			return loadErrMsg{err}
		}
		for _, item := range items {
			verdict, err := m.lib.GetVerdict(item.ID)
			if err != nil {
				return loadErrMsg{err}
			}
			entries = append(entries, entry{item: item, verdict: verdict, styles: m.styles})
		}
	}
	return entriesLoadedMsg{entries}
}

// decide writes one approve/reject call back to the library.
func (m Model) decide(index int, status string) tea.Cmd {
	e := m.entries[index]
	return func() tea.Msg {
		err := m.lib.UpdateItemStatus(e.item.ID, status)
		if err == nil {
			logging.Review("%s -> %s (%s)", e.item.ID, status, e.item.Title)
		}
		return decisionMsg{index: index, status: status, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-2)
		return m, nil

	case entriesLoadedMsg:
		m.entries = msg.entries
		items := make([]list.Item, len(m.entries))
		for i, e := range m.entries {
			items[i] = e
		}
		cmd = m.list.SetItems(items)
		m.message = fmt.Sprintf("%d items awaiting review", len(m.entries))
		return m, cmd

	case loadErrMsg:
		m.err = msg.err
		return m, nil

	case decisionMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("update failed: %v", msg.err)
			return m, nil
		}
		e := m.entries[msg.index]
		e.item.Status = msg.status
		cmd = m.list.SetItem(msg.index, e)
		verb := "approved"
		if msg.status == library.StatusRejected {
			verb = "rejected"
		}
		m.message = fmt.Sprintf("%s: %s", verb, e.item.Title)
		m.showDetail = false
		m.list.CursorDown()
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "a":
			if i := m.list.Index(); i >= 0 && i < len(m.entries) {
				return m, m.decide(i, library.StatusShortlisted)
			}
			return m, nil

		case "r":
			if i := m.list.Index(); i >= 0 && i < len(m.entries) {
				return m, m.decide(i, library.StatusRejected)
			}
			return m, nil

		case "o", "enter":
			if m.showDetail {
				m.showDetail = false
			} else if i := m.list.Index(); i >= 0 && i < len(m.entries) {
				m.showDetail = true
			}
			return m, nil

		case "esc":
			m.showDetail = false
			return m, nil
		}
	}

	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders either the queue or the selected verdict detail.
func (m Model) View() string {
	if m.err != nil {
		return m.styles.bad.Render(fmt.Sprintf("review queue unavailable: %v", m.err)) + "\n\n" +
			m.styles.muted.Render("q quit")
	}

	if m.showDetail {
		if i := m.list.Index(); i >= 0 && i < len(m.entries) {
			return m.detailView(m.entries[i])
		}
	}

	hints := m.styles.muted.Render("a approve  r reject  o detail  q quit")
	status := m.styles.muted.Render(m.message)
	return lipgloss.JoinVertical(lipgloss.Left, m.list.View(), status, hints)
}

// detailView shows the full verdict for one entry.
func (m Model) detailView(e entry) string {
	var sb strings.Builder

	sb.WriteString(m.styles.title.Render(e.item.Title) + "\n")
	meta := e.item.Source
	if !e.item.Published.IsZero() {
		meta += "  " + e.item.Published.Format("2006-01-02")
	}
	sb.WriteString(m.styles.muted.Render(meta) + "  " + m.styles.badge(e.item.Status) + "\n\n")

	if e.item.URL != "" {
		sb.WriteString(m.styles.muted.Render(e.item.URL) + "\n\n")
	}

	if e.verdict == nil {
		sb.WriteString(m.styles.bad.Render("No verdict recorded.") + "\n")
		sb.WriteString("Triage could not parse a decision for this item; approve or reject it manually.\n\n")
	} else {
		v := e.verdict
		relevance := m.styles.warn
		if v.Relevance >= 7 {
			relevance = m.styles.good
		}
		sb.WriteString(m.styles.label.Render("Relevance  ") + relevance.Render(fmt.Sprintf("%d/10", v.Relevance)) + "\n")
		sb.WriteString(m.styles.label.Render("Action     ") + v.Action + "\n")
		if v.Angle != "" {
			sb.WriteString(m.styles.label.Render("Angle      ") + v.Angle + "\n")
		}
		if v.Hook != "" {
			sb.WriteString(m.styles.label.Render("Hook       ") + v.Hook + "\n")
		}
		if v.Audience != "" {
			sb.WriteString(m.styles.label.Render("Audience   ") + v.Audience + "\n")
		}
		if v.Rationale != "" {
			sb.WriteString("\n" + m.styles.label.Render("Rationale") + "\n")
			sb.WriteString(v.Rationale + "\n")
		}
		if v.Model != "" {
			sb.WriteString("\n" + m.styles.muted.Render("triaged by "+v.Model) + "\n")
		}
	}

	sb.WriteString("\n" + m.styles.muted.Render("a approve  r reject  esc back  q quit"))
	return sb.String()
}
