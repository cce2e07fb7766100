package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/service"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// rowStartedMsg is sent when the batch begins a row.
type rowStartedMsg struct {
	index int
	row   models.JobRow
}

// rowFinishedMsg carries the outcome of a finished row.
type rowFinishedMsg struct {
	index   int
	row     models.JobRow
	outcome models.RowOutcome
}

// batchDoneMsg is sent once the batch returns.
type batchDoneMsg struct {
	err error
}

// recentRows is how many finished rows stay visible under the bar.
const recentRows = 5

// progressModel is the bubbletea model for a running batch.
type progressModel struct {
	runID    string
	total    int
	done     int
	failed   int
	current  *models.JobRow
	recent   []rowFinishedMsg
	progress progress.Model
	theme    Theme
	stop     context.CancelFunc
	stopping bool
	finished bool
	err      error
}

func newProgressModel(runID string, total int, stop context.CancelFunc) progressModel {
	return progressModel{
		runID: runID,
		total: total,
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(40),
		),
		theme: defaultTheme,
		stop:  stop,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.progress.Init()
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// The batch stops after the current row and then sends batchDoneMsg.
			if !m.stopping && m.stop != nil {
				m.stop()
			}
			m.stopping = true
		}

	case rowStartedMsg:
		row := msg.row
		m.current = &row

	case rowFinishedMsg:
		m.current = nil
		m.done++
		if !msg.outcome.Succeeded() {
			m.failed++
		}
		m.recent = append(m.recent, msg)
		if len(m.recent) > recentRows {
			m.recent = m.recent[len(m.recent)-recentRows:]
		}

	case batchDoneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	var pct float64
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}

	var b strings.Builder
	state := "running"
	switch {
	case m.finished && m.err != nil:
		state = "aborted"
	case m.finished:
		state = "done"
	case m.stopping:
		state = "stopping"
	}
	fmt.Fprintf(&b, "%s %s %d/%d rows",
		m.theme.statusStyle().Render(fmt.Sprintf("[%s %s]", m.runID, state)),
		m.progress.ViewAs(pct), m.done, m.total)
	if m.failed > 0 {
		b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("  %d failed", m.failed)))
	}
	b.WriteString("\n")

	for _, r := range m.recent {
		mark := m.theme.completedStyle().Render("✓")
		if !r.outcome.Succeeded() {
			mark = m.theme.errorStyle().Render("✗")
		}
		fmt.Fprintf(&b, "  %s line %d %s %s: %s\n", mark, r.row.Line, r.row.PatientID, r.outcome.Beamset, r.outcome.StatusOrDefault())
	}

	if m.finished {
		return b.String()
	}
	if m.current != nil {
		fmt.Fprintf(&b, "  … line %d %s %s\n", m.current.Line, m.current.PatientID, m.current.PlanName)
	}
	if m.stopping {
		b.WriteString(m.theme.hintStyle().Render("Stopping after the current row...") + "\n")
	} else {
		b.WriteString(m.theme.hintStyle().Render("Press Ctrl+C to stop after the current row") + "\n")
	}
	return b.String()
}

// progressUI runs a batch behind the progress display.
type progressUI struct {
	ctx     context.Context
	cancel  context.CancelFunc
	program *tea.Program
}

func newProgressUI(ctx context.Context, runID string, total int) *progressUI {
	ctx, cancel := context.WithCancel(ctx)
	return &progressUI{
		ctx:     ctx,
		cancel:  cancel,
		program: tea.NewProgram(newProgressModel(runID, total, cancel)),
	}
}

// Observer forwards row events to the display.
func (u *progressUI) Observer() service.Observer {
	return &progressObserver{send: u.program.Send}
}

// Run calls batch in the background and shows progress until it returns.
func (u *progressUI) Run(batch func(ctx context.Context) (*service.BatchResult, error)) (*service.BatchResult, error) {
	defer u.cancel()

	type outcome struct {
		result *service.BatchResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := batch(u.ctx)
		u.program.Send(batchDoneMsg{err: err})
		done <- outcome{result, err}
	}()

	if _, err := u.program.Run(); err != nil {
		slog.Warn("progress display failed", "error", err)
	}
	o := <-done
	return o.result, o.err
}

// progressObserver turns batch events into bubbletea messages.
type progressObserver struct {
	send func(tea.Msg)
}

func (o *progressObserver) RowStarted(_ context.Context, index, _ int, row models.JobRow) {
	o.send(rowStartedMsg{index: index, row: row})
}

func (o *progressObserver) RowFinished(_ context.Context, index, _ int, row models.JobRow, outcome models.RowOutcome) {
	o.send(rowFinishedMsg{index: index, row: row, outcome: outcome})
}
