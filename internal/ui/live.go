package ui

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LiveRenderer drives a bubbletea view while ingestion runs. The final
// summary is printed after the program exits so it survives the alternate
// screen teardown.
type LiveRenderer struct {
	mu      sync.Mutex
	cfg     Config
	tracker *Tracker
	program *tea.Program
	done    chan struct{}
	started bool
}

// NewLiveRenderer builds a live renderer. Callers should have checked that
// the output is a terminal; NewRenderer does.
func NewLiveRenderer(cfg Config) *LiveRenderer {
	return &LiveRenderer{
		cfg:     cfg,
		tracker: NewTracker(),
		done:    make(chan struct{}),
	}
}

func (r *LiveRenderer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	model := newLiveModel(r.tracker, r.cfg.Project, GetStyles(r.cfg.NoColor))
	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

func (r *LiveRenderer) Update(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.tracker.Snapshot().Stage {
		r.tracker.SetStage(event.Stage, event.Total)
	}
	r.tracker.Update(event.Current, event.CurrentFile)
}

func (r *LiveRenderer) Error(event ErrorEvent) {
	r.tracker.AddError(event)
}

// Complete quits the live view and prints the summary to the underlying
// writer once the screen is restored.
func (r *LiveRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(completeMsg{})
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}
	writeSummary(r.cfg.Output, stats)
}

func (r *LiveRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Quit()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}
	return nil
}

type tickMsg time.Time
type completeMsg struct{}

// liveModel is the bubbletea model behind the live view.
type liveModel struct {
	tracker  *Tracker
	project  string
	styles   Styles
	spinner  spinner.Model
	bar      progress.Model
	width    int
	quitting bool
}

func newLiveModel(tracker *Tracker, project string, styles Styles) *liveModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTeal))

	bar := progress.New(
		progress.WithSolidFill(ColorTeal),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &liveModel{
		tracker: tracker,
		project: project,
		styles:  styles,
		spinner: s,
		bar:     bar,
		width:   80,
	}
}

func (m *liveModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 24
		if m.bar.Width < 20 {
			m.bar.Width = 20
		}

	case completeMsg:
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *liveModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}

	snap := m.tracker.Snapshot()
	var b strings.Builder

	header := "Ingesting"
	if m.project != "" {
		header = "Ingesting " + m.project
	}
	b.WriteString(m.styles.Header.Render(header))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s",
		m.spinner.View(),
		m.styles.Active.Render(snap.Stage.String())))
	if snap.Total > 0 {
		b.WriteString(m.styles.Label.Render(fmt.Sprintf("  %d/%d", snap.Current, snap.Total)))
	}
	b.WriteString("\n")

	if snap.Total > 0 {
		b.WriteString(m.bar.ViewAs(snap.Fraction))
		b.WriteString("\n")
	}
	if snap.CurrentFile != "" {
		b.WriteString(m.styles.Dim.Render(truncate(snap.CurrentFile, m.width-4)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	parts := []string{m.styles.Label.Render("elapsed " + snap.Elapsed.Round(time.Second).String())}
	if snap.Errors > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("%d errors", snap.Errors)))
	}
	if snap.Warnings > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("%d warnings", snap.Warnings)))
	}
	b.WriteString(strings.Join(parts, "  "))
	b.WriteString("\n")
	b.WriteString(m.styles.Dim.Render("q to cancel"))
	b.WriteString("\n")

	return b.String()
}

func truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}
