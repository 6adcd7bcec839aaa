// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package execution

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome is the state of one task.
type Outcome int

const (
	Pending Outcome = iota
	Succeeded
	Failed
	Cancelled
	// Skipped tasks never started because the run was cancelled first.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Task records the execution of one cell within a run.
type Task struct {
	ID        uuid.UUID
	CellIndex int
	// Order is the 1-based position of the task within its run.
	Order      int
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    Outcome
	// Err describes a Failed or Cancelled task.
	Err error
}

// Duration is the wall time of the task, zero if it never started.
func (t *Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// Report summarises a run.
type Report struct {
	URI   string
	Tasks []*Task
}

// Count returns the number of tasks with the given outcome.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, t := range r.Tasks {
		if t.Outcome == o {
			n++
		}
	}
	return n
}

// OK reports whether every task succeeded.
func (r *Report) OK() bool {
	return r.Count(Succeeded) == len(r.Tasks)
}
