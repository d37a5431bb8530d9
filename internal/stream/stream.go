// Package stream runs an inference session as a sequence of progress events
// ending in exactly one complete or error event.
package stream

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/ZanzyTHEbar/quakesim/internal/errors"
	"github.com/ZanzyTHEbar/quakesim/internal/inference"
)

// State is the position of a stream in its lifecycle.
type State int

const (
	StateInit State = iota
	StateValidating
	StateStaged
	StateComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateValidating:
		return "validating"
	case StateStaged:
		return "staged"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Terminal reports whether no further events may follow.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

const (
	TypeProgress = "progress"
	TypeComplete = "complete"
	TypeError    = "error"
)

// Event is one message of the stream.
type Event struct {
	Type              string             `json:"type"`
	Progress          int                `json:"progress"`
	Message           string             `json:"message,omitempty"`
	Prediction        *float64           `json:"prediction,omitempty"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	Error             string             `json:"error,omitempty"`
}

// Emitter delivers one event to the client. Returning an error stops the stream.
type Emitter func(Event) error

type milestone struct {
	progress int
	message  string
}

var (
	msInit      = milestone{5, "Initializing simulation"}
	msValidated = milestone{15, "Input validated"}
	msPreparing = milestone{25, "Preparing building features"}
	msBuilt     = milestone{40, "Feature vector built"}
	msReady     = milestone{55, "Model ready"}
	msPredicted = milestone{70, "Prediction computed"}
	msExplained = milestone{85, "Feature importance computed"}
	msFinal     = milestone{95, "Finalizing results"}
	msComplete  = milestone{100, "Simulation complete"}
)

// Milestones lists the progress values of a successful stream in order.
func Milestones() []int {
	return []int{
		msInit.progress, msValidated.progress, msPreparing.progress, msBuilt.progress, msReady.progress,
		msPredicted.progress, msExplained.progress, msFinal.progress, msComplete.progress,
	}
}

// Streamer paces one inference session into progress events. It is not safe
// for concurrent use; create one per request.
type Streamer struct {
	delay    time.Duration
	emit     Emitter
	state    State
	progress int
	events   int
}

// New returns a streamer that waits delay between stages.
func New(delay time.Duration, emit Emitter) *Streamer {
	return &Streamer{delay: delay, emit: emit}
}

// State returns the current lifecycle state.
func (s *Streamer) State() State { return s.state }

// Progress returns the last emitted progress value.
func (s *Streamer) Progress() int { return s.progress }

// Events returns the number of events emitted.
func (s *Streamer) Events() int { return s.events }

// Run drives session to completion. A failure before or after the stream
// starts is reported as a single error event and returned. When ctx is
// cancelled, emission stops without a terminal event and ctx.Err() is
// returned.
func (s *Streamer) Run(ctx context.Context, session inference.Session) (*inference.Outcome, error) {
	if s.state != StateInit {
		return nil, fmt.Errorf("stream already in state %s", s.state)
	}

	if err := s.step(ctx, msInit, false); err != nil {
		return nil, err
	}

	s.state = StateValidating
	if err := session.Validate(); err != nil {
		return nil, s.fail(err)
	}

	s.state = StateStaged
	if err := s.step(ctx, msValidated, true); err != nil {
		return nil, err
	}
	if err := s.step(ctx, msPreparing, true); err != nil {
		return nil, err
	}

	if err := session.Build(); err != nil {
		return nil, s.fail(err)
	}
	if err := s.step(ctx, msBuilt, true); err != nil {
		return nil, err
	}
	if err := s.step(ctx, msReady, true); err != nil {
		return nil, err
	}

	if err := session.Predict(ctx); err != nil {
		return nil, s.failOrCancel(ctx, err)
	}
	if err := s.step(ctx, msPredicted, true); err != nil {
		return nil, err
	}

	if err := session.Explain(ctx); err != nil {
		return nil, s.failOrCancel(ctx, err)
	}
	if err := s.step(ctx, msExplained, true); err != nil {
		return nil, err
	}

	out, err := session.Outcome()
	if err != nil {
		return nil, s.fail(err)
	}
	if err := s.step(ctx, msFinal, true); err != nil {
		return nil, err
	}

	prediction := out.Value()
	if err := s.send(Event{
		Type:              TypeComplete,
		Progress:          msComplete.progress,
		Message:           msComplete.message,
		Prediction:        &prediction,
		FeatureImportance: out.FeatureImportance,
	}); err != nil {
		return nil, err
	}
	s.state = StateComplete
	return out, nil
}

// step waits out the stage delay, then emits a progress milestone.
func (s *Streamer) step(ctx context.Context, m milestone, pace bool) error {
	if pace && s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.send(Event{Type: TypeProgress, Progress: m.progress, Message: m.message})
}

func (s *Streamer) send(e Event) error {
	if s.state.Terminal() {
		return fmt.Errorf("stream already %s", s.state)
	}
	if e.Progress < s.progress {
		return fmt.Errorf("progress would go backwards from %d to %d", s.progress, e.Progress)
	}
	if err := s.emit(e); err != nil {
		return err
	}
	s.progress = e.Progress
	s.events++
	return nil
}

func (s *Streamer) failOrCancel(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return s.fail(err)
}

// fail emits the terminal error event carrying the client-facing message.
func (s *Streamer) fail(err error) error {
	appErr := apperrors.ToAppError(err)
	if sendErr := s.send(Event{Type: TypeError, Progress: s.progress, Error: appErr.Message()}); sendErr != nil {
		return sendErr
	}
	s.state = StateError
	return appErr
}
