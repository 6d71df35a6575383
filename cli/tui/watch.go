package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/netlog/observer"
)

// tickInterval is the dashboard's poll rate against the attached Observer.
const tickInterval = 500 * time.Millisecond

// StatsFunc returns the current stats of the attached Observer. Called
// once per tick; may be backed by an in-process Observer.Stats or an HTTP
// round trip to a running daemon's stats endpoint.
type StatsFunc func() observer.Stats

type tickMsg time.Time

// WatchModel is a Bubble Tea model rendering a live Observer dashboard:
// queue depth, chunk ring occupancy, and flush/drop counters.
type WatchModel struct {
	fetch      StatsFunc
	chunkCount int
	stats      observer.Stats
	err        error
	quitting   bool
}

// NewWatchModel creates a watch dashboard model. chunkCount is the
// configured ring size, used to render chunk occupancy; pass 0 for
// unbounded logs (occupancy is omitted).
func NewWatchModel(fetch StatsFunc, chunkCount int) WatchModel {
	return WatchModel{fetch: fetch, chunkCount: chunkCount}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.poll(), tick())
}

func (m WatchModel) poll() tea.Cmd {
	return func() tea.Msg {
		return m.fetch()
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, watchKeys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.poll(), tick())
	case observer.Stats:
		m.stats = msg
		m.err = nil
	}
	return m, nil
}

// View implements tea.Model.
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("netlog watch"))
	b.WriteString("\n\n")

	boxes := []string{
		statBox("Queue Len", fmt.Sprintf("%d", m.stats.QueueLen), highlightColor),
		statBox("Queue Bytes", fmt.Sprintf("%d", m.stats.QueueBytes), highlightColor),
		statBox("Dropped", fmt.Sprintf("%d", m.stats.QueueDropped), dropColor(m.stats.QueueDropped)),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	boxes = []string{
		statBox("Events Written", fmt.Sprintf("%d", m.stats.EventsWritten), successColor),
		statBox("Bytes Written", fmt.Sprintf("%d", m.stats.BytesWritten), successColor),
		statBox("Flushes", fmt.Sprintf("%d", m.stats.Flushes), lipgloss.Color("#3B82F6")),
		statBox("Rotations", fmt.Sprintf("%d", m.stats.Rotations), lipgloss.Color("#3B82F6")),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	if m.chunkCount > 0 {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Chunk Ring:"),
			ValueStyle.Render(chunkRing(m.stats.FileNumber, m.chunkCount))))
	}
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("File Number:"),
		ValueStyle.Render(fmt.Sprintf("%d", m.stats.FileNumber))))

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("fetch error: %v", m.err)))
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to quit"))
	return b.String()
}

// chunkRing renders the current write position within the chunk ring as an
// occupied/empty slot bar, e.g. "[##......] 2/8".
func chunkRing(fileNumber int64, chunkCount int) string {
	if chunkCount <= 0 {
		return ""
	}
	filled := int(fileNumber)
	if filled > chunkCount {
		filled = chunkCount
	}
	var bar strings.Builder
	bar.WriteString("[")
	for i := 0; i < chunkCount; i++ {
		if i < filled {
			bar.WriteString("#")
		} else {
			bar.WriteString(".")
		}
	}
	bar.WriteString(fmt.Sprintf("] %d/%d", filled, chunkCount))
	return bar.String()
}

func dropColor(dropped int64) lipgloss.Color {
	if dropped > 0 {
		return warningColor
	}
	return successColor
}

func statBox(label, value string, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(value)
	labelStr := StatLabelStyle.Render(label)
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

type watchKeyMap struct {
	Quit key.Binding
}

var watchKeys = watchKeyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunWatch starts the watch dashboard, blocking until the user quits.
func RunWatch(fetch StatsFunc, chunkCount int) error {
	p := tea.NewProgram(NewWatchModel(fetch, chunkCount), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
