// Package pipeline drives a setup run through its fixed stage order. A stage
// starts only after the previous stage's handler has returned, and handlers
// return only once all of their concurrent work has settled.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StageName identifies a stage
type StageName string

// ErrUnknownStage is returned when a handler jumps to a stage that is not
// declared after it
var ErrUnknownStage = errors.New("unknown stage")

// Transition tells the sequencer where to go after a stage succeeds
type Transition struct {
	skipTo StageName
}

// Next advances to the next declared stage
func Next() Transition { return Transition{} }

// SkipTo jumps forward to the named stage; stages in between are skipped
func SkipTo(name StageName) Transition { return Transition{skipTo: name} }

// Handler performs a stage's work
type Handler func(ctx context.Context, rc *RunContext) (Transition, error)

// Stage is one named step of a run
type Stage struct {
	Name        StageName
	Description string // Progress line printed when the stage starts
	Run         Handler
}

// StageError wraps the failure that aborted a run
type StageError struct {
	Stage StageName
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// EventKind classifies sequencer events
type EventKind int

const (
	StageStarted EventKind = iota
	StageFinished
	StageSkipped
	RunFailed
)

// Event reports progress to an Observer
type Event struct {
	Kind    EventKind
	Stage   StageName
	Elapsed time.Duration
	Err     error
}

// Observer receives sequencer events in order, from the sequencer goroutine
type Observer func(Event)

// Sequencer runs stages strictly in declaration order
type Sequencer struct {
	stages  []Stage
	index   map[StageName]int
	Timeout time.Duration // Per-stage limit; zero disables it
}

// NewSequencer validates the stage list
func NewSequencer(stages []Stage) (*Sequencer, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("pipeline: no stages")
	}
	index := make(map[StageName]int, len(stages))
	for i, s := range stages {
		if s.Name == "" || s.Run == nil {
			return nil, fmt.Errorf("pipeline: stage %d is missing a name or handler", i)
		}
		if _, dup := index[s.Name]; dup {
			return nil, fmt.Errorf("pipeline: duplicate stage %s", s.Name)
		}
		index[s.Name] = i
	}
	return &Sequencer{stages: stages, index: index}, nil
}

// Stages returns the declared stage order
func (s *Sequencer) Stages() []Stage {
	out := make([]Stage, len(s.stages))
	copy(out, s.stages)
	return out
}

// Run executes the stages. The first failing stage aborts the run and is
// returned as a *StageError; no later stage runs.
func (s *Sequencer) Run(ctx context.Context, rc *RunContext) error {
	notify := func(ev Event) {
		if rc.Observer != nil {
			rc.Observer(ev)
		}
	}

	for i := 0; i < len(s.stages); {
		stage := s.stages[i]
		if stage.Description != "" {
			rc.Console.Step("%s", stage.Description)
		}
		notify(Event{Kind: StageStarted, Stage: stage.Name})

		start := time.Now()
		tr, err := s.runStage(ctx, rc, stage)
		if err != nil {
			serr := &StageError{Stage: stage.Name, Err: err}
			notify(Event{Kind: RunFailed, Stage: stage.Name, Elapsed: time.Since(start), Err: serr})
			return serr
		}
		notify(Event{Kind: StageFinished, Stage: stage.Name, Elapsed: time.Since(start)})

		if tr.skipTo == "" {
			i++
			continue
		}
		j, ok := s.index[tr.skipTo]
		if !ok || j <= i {
			serr := &StageError{Stage: stage.Name, Err: fmt.Errorf("%w: cannot advance to %q", ErrUnknownStage, tr.skipTo)}
			notify(Event{Kind: RunFailed, Stage: stage.Name, Err: serr})
			return serr
		}
		for k := i + 1; k < j; k++ {
			notify(Event{Kind: StageSkipped, Stage: s.stages[k].Name})
		}
		i = j
	}
	return nil
}

func (s *Sequencer) runStage(ctx context.Context, rc *RunContext, stage Stage) (Transition, error) {
	if err := ctx.Err(); err != nil {
		return Transition{}, err
	}
	sctx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	tr, err := stage.Run(sctx, rc)
	if err != nil && errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return tr, fmt.Errorf("timed out after %s: %w", s.Timeout, err)
	}
	return tr, err
}
