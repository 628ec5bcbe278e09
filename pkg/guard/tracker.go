// Package guard tracks repeated invocations of the same logical task so
// an agent stuck in a call loop gets flagged instead of silently burning
// cycles. Terminal executions age out via a scheduled janitor.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/romiluz13/memory-engineering/pkg/store"
)

const (
	// RepeatWindow is the rolling window inside which consecutive calls
	// accumulate. A call after the window resets the count to 1.
	RepeatWindow = 10 * time.Minute

	// RepeatThreshold is the call count above which Repeated is set.
	RepeatThreshold = 3

	executionIDLength = 12
)

// Observation reports one recorded call against a task.
type Observation struct {
	State    store.ExecutionState
	Repeated bool // call count exceeded RepeatThreshold inside the window
	Resumed  bool // an existing non-terminal execution was continued
}

// Tracker is the loop-guard over execution state.
type Tracker struct {
	store  *store.Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker.
func NewTracker(st *store.Store, logger zerolog.Logger) *Tracker {
	return &Tracker{store: st, logger: logger, now: time.Now}
}

// Record counts one call against (projectID, taskName). Calls within
// RepeatWindow of the previous one accumulate; the first call, a call
// after an idle gap, or a call following a terminal execution starts a
// fresh execution with a new id and count 1.
func (t *Tracker) Record(ctx context.Context, projectID, taskName string) (*Observation, error) {
	now := t.now()

	state, err := t.store.GetExecution(ctx, projectID, taskName)
	switch {
	case errors.Is(err, store.ErrNotFound):
		state = nil
	case err != nil:
		return nil, err
	}

	obs := &Observation{}
	if state == nil || state.IsTerminal() || now.Sub(state.LastCalled) > RepeatWindow {
		id, err := gonanoid.New(executionIDLength)
		if err != nil {
			return nil, fmt.Errorf("failed to mint execution id: %w", err)
		}
		obs.State = store.ExecutionState{
			ProjectID:   projectID,
			TaskName:    taskName,
			ExecutionID: id,
			Status:      store.StatusPlanning,
			CallCount:   1,
		}
	} else {
		obs.State = *state
		obs.State.CallCount++
		obs.Resumed = true
	}
	obs.State.LastCalled = now
	obs.Repeated = obs.State.CallCount > RepeatThreshold

	if err := t.store.SaveExecution(ctx, obs.State); err != nil {
		return nil, err
	}

	if obs.Repeated {
		t.logger.Warn().
			Str("project", projectID).
			Str("task", taskName).
			Int("calls", obs.State.CallCount).
			Msg("Task called repeatedly inside the guard window")
	}
	return obs, nil
}

// Advance moves an execution to a new status, recording step progress.
// Moving to a terminal status freezes the state until the janitor purges
// it.
func (t *Tracker) Advance(ctx context.Context, projectID, taskName, status string, completedStep string) (*store.ExecutionState, error) {
	switch status {
	case store.StatusPlanning, store.StatusExecuting, store.StatusComplete, store.StatusFailed:
	default:
		return nil, fmt.Errorf("unknown execution status %q", status)
	}

	state, err := t.store.GetExecution(ctx, projectID, taskName)
	if err != nil {
		return nil, err
	}
	if state.IsTerminal() {
		return nil, fmt.Errorf("execution %s/%s already %s", projectID, taskName, state.Status)
	}

	state.Status = status
	if completedStep != "" {
		state.CompletedSteps = append(state.CompletedSteps, completedStep)
	}
	if err := t.store.SaveExecution(ctx, *state); err != nil {
		return nil, err
	}
	return state, nil
}

// Status returns the current execution state, or ErrNotFound.
func (t *Tracker) Status(ctx context.Context, projectID, taskName string) (*store.ExecutionState, error) {
	return t.store.GetExecution(ctx, projectID, taskName)
}
