// SPDX-License-Identifier: AGPL-3.0-or-later
package runstate

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bartekus/webstore/internal/script"
)

// Status represents the outcome of a script run.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// Run is the summary of one script execution.
// Matches <state-dir>/last-run.json and <state-dir>/runs/<id>.json.
type Run struct {
	ID            string    `json:"id"`
	Script        string    `json:"script"`
	Status        Status    `json:"status"`
	ExecutedLines int       `json:"executed_lines"`
	FailedLine    int       `json:"failed_line,omitempty"`
	FailedText    string    `json:"failed_text,omitempty"`
	Error         string    `json:"error,omitempty"`
	ExitCode      int       `json:"exit_code"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// NewRun starts a run record for scriptPath.
func NewRun(scriptPath string, started time.Time) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Script:    scriptPath,
		StartedAt: started.UTC(),
	}
}

// Finish records the outcome. err is the error returned by the interpreter.
func (r *Run) Finish(executed int, err error, exitCode int, finished time.Time) {
	r.ExecutedLines = executed
	r.ExitCode = exitCode
	r.FinishedAt = finished.UTC()
	if err == nil {
		r.Status = StatusPass
		return
	}

	r.Status = StatusFail
	r.Error = err.Error()
	var le *script.LineError
	if errors.As(err, &le) {
		r.FailedLine = le.Line
		r.FailedText = le.Text
		r.Error = le.Err.Error()
	}
}

// Duration is the wall time of a finished run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
