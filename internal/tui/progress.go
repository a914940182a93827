// Package tui shows a live view of an ensemble while its trials run.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/finsim/internal/ensemble"
	"github.com/san-kum/finsim/internal/storage"
	"github.com/san-kum/finsim/internal/viz"
)

const recentLines = 6

// TrialDoneMsg reports one finished trial.
type TrialDoneMsg struct {
	Trial ensemble.Trial
}

// FinishedMsg reports that the whole ensemble returned.
type FinishedMsg struct {
	Err error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type Model struct {
	title  string
	total  int
	done   int
	failed int

	nets   []float64
	recent []string

	started   time.Time
	elapsed   time.Duration
	frame     int
	finished  bool
	cancelled bool
	err       error

	width int
}

func NewProgress(title string, total int) Model {
	return Model{
		title:   title,
		total:   total,
		started: time.Now(),
		width:   80,
	}
}

func (m Model) Cancelled() bool { return m.cancelled }

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if !m.finished {
				m.cancelled = true
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case TrialDoneMsg:
		m.done++
		row := storage.Summarize(msg.Trial)
		var line string
		if row.OK() {
			m.nets = append(m.nets, row.Net().InexactFloat64())
			line = fmt.Sprintf("%-10s %s", row.Name, viz.Money(row.Net()))
		} else {
			m.failed++
			line = fmt.Sprintf("%-10s %s", row.Name, viz.StatusFailed.Render(row.Error))
		}
		m.recent = append(m.recent, line)
		if len(m.recent) > recentLines {
			m.recent = m.recent[len(m.recent)-recentLines:]
		}
	case FinishedMsg:
		m.finished = true
		m.err = msg.Err
		m.elapsed = time.Since(m.started)
		return m, tea.Quit
	case tickMsg:
		if m.finished {
			return m, nil
		}
		m.frame++
		m.elapsed = time.Since(m.started)
		return m, tick()
	}
	return m, nil
}

var spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func (m Model) View() string {
	var b strings.Builder

	status := spinner[m.frame%len(spinner)]
	if m.finished {
		status = viz.StatusOK.Render("done")
		if m.err != nil {
			status = viz.StatusFailed.Render("error")
		}
	}
	b.WriteString("\n  " + viz.Title.Render(m.title) + "  " + status + "\n\n")

	pct := 0.0
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}
	barWidth := min(max(m.width-30, 10), 60)
	b.WriteString(fmt.Sprintf("  %s %d/%d", viz.ProgressBar(pct, barWidth), m.done, m.total))
	if m.failed > 0 {
		b.WriteString("  " + viz.StatusFailed.Render(fmt.Sprintf("%d failed", m.failed)))
	}
	b.WriteString("\n")
	b.WriteString("  " + viz.MetricLabel.Render("elapsed ") + viz.MetricValue.Render(m.elapsed.Round(time.Millisecond).String()) + "\n\n")

	if len(m.nets) > 0 {
		b.WriteString("  " + viz.MetricLabel.Render("net position ") + viz.Sparkline(m.nets, barWidth) + "\n\n")
	}
	for _, line := range m.recent {
		b.WriteString("    " + line + "\n")
	}
	if m.err != nil {
		b.WriteString("\n  " + viz.StatusFailed.Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n  " + viz.KeyHint.Render("q cancel") + "\n")
	return b.String()
}

// BuildFunc runs an ensemble, reporting each finished trial through progress.
type BuildFunc func(ctx context.Context, progress func(ensemble.Trial)) (*ensemble.Ensemble, error)

// Run drives build under a progress view. Quitting the view cancels the build.
func Run(ctx context.Context, title string, total int, build BuildFunc) (*ensemble.Ensemble, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgress(title, total), tea.WithContext(ctx))

	var (
		ens      *ensemble.Ensemble
		buildErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ens, buildErr = build(ctx, func(tr ensemble.Trial) { p.Send(TrialDoneMsg{Trial: tr}) })
		p.Send(FinishedMsg{Err: buildErr})
	}()

	_, err := p.Run()
	cancel()
	<-done

	if buildErr != nil {
		return nil, buildErr
	}
	if err != nil {
		return nil, err
	}
	return ens, nil
}
