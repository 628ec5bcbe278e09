package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// GetExecution fetches the execution state for (projectID, taskName).
func (s *Store) GetExecution(ctx context.Context, projectID, taskName string) (*ExecutionState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT project_id, task_name, execution_id, status, call_count, last_called, total_steps, completed_steps
		FROM executions
		WHERE project_id = ? AND task_name = ?`,
		projectID, taskName,
	)

	var e ExecutionState
	var lastCalled int64
	var steps string
	err := row.Scan(&e.ProjectID, &e.TaskName, &e.ExecutionID, &e.Status,
		&e.CallCount, &lastCalled, &e.TotalSteps, &steps)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: execution %s/%s", ErrNotFound, projectID, taskName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read execution: %w", err)
	}
	e.LastCalled = time.Unix(lastCalled, 0).UTC()
	json.Unmarshal([]byte(steps), &e.CompletedSteps)
	return &e, nil
}

// SaveExecution upserts the execution state. Reaching a terminal status
// stamps terminal_at so the janitor can purge the row 24h later.
func (s *Store) SaveExecution(ctx context.Context, e ExecutionState) error {
	steps, err := json.Marshal(e.CompletedSteps)
	if err != nil {
		return fmt.Errorf("failed to marshal completed steps: %w", err)
	}

	var terminalAt interface{}
	if e.IsTerminal() {
		terminalAt = time.Now().Unix()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions
			(project_id, task_name, execution_id, status, call_count, last_called, total_steps, completed_steps, terminal_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, task_name) DO UPDATE SET
			execution_id = excluded.execution_id,
			status = excluded.status,
			call_count = excluded.call_count,
			last_called = excluded.last_called,
			total_steps = excluded.total_steps,
			completed_steps = excluded.completed_steps,
			terminal_at = CASE
				WHEN excluded.terminal_at IS NOT NULL AND executions.terminal_at IS NULL THEN excluded.terminal_at
				WHEN excluded.terminal_at IS NULL THEN NULL
				ELSE executions.terminal_at
			END`,
		e.ProjectID, e.TaskName, e.ExecutionID, e.Status, e.CallCount,
		e.LastCalled.Unix(), e.TotalSteps, string(steps), terminalAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// PurgeTerminalExecutions deletes executions that reached a terminal
// status longer than maxAge ago.
func (s *Store) PurgeTerminalExecutions(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM executions
		WHERE terminal_at IS NOT NULL AND terminal_at <= ?`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge executions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
