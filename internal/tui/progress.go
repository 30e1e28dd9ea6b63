// Package tui renders a live view of a setup run
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"sparxel/internal/pipeline"
	"sparxel/internal/tui/styles"
)

// Lines of console output kept under the stage list
const logTail = 6

type stageState int

const (
	statePending stageState = iota
	stateRunning
	stateDone
	stateSkipped
	stateFailed
)

// eventMsg carries a sequencer event into the program
type eventMsg pipeline.Event

// lineMsg carries one line of console output
type lineMsg string

// doneMsg is sent once the run has returned
type doneMsg struct{ err error }

// Progress is the bubbletea model for a setup run
type Progress struct {
	stages  []pipeline.Stage
	state   map[pipeline.StageName]stageState
	elapsed map[pipeline.StageName]time.Duration
	spinner spinner.Model
	lines   []string
	cancel  context.CancelFunc
	done    bool
	err     error
	width   int
}

// NewProgress creates a model listing stages. cancel is called when the user
// interrupts the run and may be nil.
func NewProgress(stages []pipeline.Stage, cancel context.CancelFunc) *Progress {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.SpinnerStyle

	state := make(map[pipeline.StageName]stageState, len(stages))
	for _, st := range stages {
		state[st.Name] = statePending
	}
	return &Progress{
		stages:  stages,
		state:   state,
		elapsed: make(map[pipeline.StageName]time.Duration, len(stages)),
		spinner: s,
		cancel:  cancel,
		width:   80,
	}
}

// Init starts the spinner
func (m *Progress) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles events
func (m *Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case eventMsg:
		m.apply(pipeline.Event(msg))
		return m, nil

	case lineMsg:
		m.lines = append(m.lines, string(msg))
		if len(m.lines) > logTail {
			m.lines = m.lines[len(m.lines)-logTail:]
		}
		return m, nil

	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m *Progress) apply(ev pipeline.Event) {
	switch ev.Kind {
	case pipeline.StageStarted:
		m.state[ev.Stage] = stateRunning
	case pipeline.StageFinished:
		m.state[ev.Stage] = stateDone
		m.elapsed[ev.Stage] = ev.Elapsed
	case pipeline.StageSkipped:
		m.state[ev.Stage] = stateSkipped
	case pipeline.RunFailed:
		m.state[ev.Stage] = stateFailed
		m.err = ev.Err
	}
}

// Err returns the error the run ended with, if any
func (m *Progress) Err() error {
	return m.err
}

// View renders the stage list
func (m *Progress) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render(pipeline.AppName + " setup"))
	b.WriteString("\n")

	for _, st := range m.stages {
		var marker string
		switch m.state[st.Name] {
		case stateRunning:
			marker = m.spinner.View()
		case stateDone:
			marker = styles.StageDone.String()
		case stateSkipped:
			marker = styles.StageSkipped.String()
		case stateFailed:
			marker = styles.StageFailed.String()
		default:
			marker = styles.StagePending.String()
		}

		line := marker + " " + styles.StageName.Render(string(st.Name))
		if d, ok := m.elapsed[st.Name]; ok {
			line += styles.Muted.Render(d.Round(time.Millisecond).String())
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(m.lines) > 0 {
		b.WriteString("\n")
		for _, l := range m.lines {
			b.WriteString(styles.Muted.MaxWidth(m.width).Render(l))
			b.WriteString("\n")
		}
	}

	switch {
	case m.err != nil:
		b.WriteString("\n")
		b.WriteString(styles.ErrorMsg.Render("Abort " + m.err.Error()))
		b.WriteString("\n")
	case m.done:
		b.WriteString("\n")
		b.WriteString(styles.SuccessMsg.Render(pipeline.AppName + " Finished."))
		b.WriteString("\n")
	default:
		b.WriteString(styles.FormatHelp("ctrl+c", "abort"))
		b.WriteString("\n")
	}
	return b.String()
}

// lineWriter turns console writes into lineMsgs
type lineWriter struct {
	mu      sync.Mutex
	pending string
	send    func(tea.Msg)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending += string(p)
	for {
		i := strings.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.send(lineMsg(w.pending[:i]))
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

// Run performs a setup run while rendering its progress. Console output is
// shown beneath the stage list while the program owns the terminal.
func Run(ctx context.Context, rc *pipeline.RunContext) error {
	seq, err := pipeline.NewSetup(rc.Config)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewProgress(seq.Stages(), cancel)
	p := tea.NewProgram(model)

	rc.Console.SetOutput(&lineWriter{send: p.Send})
	rc.Observer = func(ev pipeline.Event) { p.Send(eventMsg(ev)) }

	// Send blocks until the program loop is running, so all output happens
	// on the run goroutine.
	result := make(chan error, 1)
	go func() {
		rc.Console.Step("%s Started.", pipeline.AppName)
		err := seq.Run(ctx, rc)
		result <- err
		p.Send(doneMsg{err: err})
	}()

	_, perr := p.Run()
	cancel()
	runErr := <-result
	if perr != nil {
		return fmt.Errorf("TUI error: %w", perr)
	}
	return runErr
}
