package replay

import (
	"time"

	"github.com/google/uuid"

	"github.com/usestring/apilearn/internal/compare"
)

// StepTrace is the exportable record of one executed step.
type StepTrace struct {
	Method     string          `json:"method"`
	URL        string          `json:"url"`
	State      State           `json:"state"`
	Status     int             `json:"status,omitempty"`
	Transport  string          `json:"transport,omitempty"`
	DurationMS int64           `json:"durationMs"`
	Refreshed  bool            `json:"refreshed,omitempty"`
	Error      string          `json:"error,omitempty"`
	Drift      *compare.Report `json:"drift,omitempty"`
	RetryAfter time.Duration   `json:"-"`
}

// ExecutionTrace ties a run's steps together under one trace ID for
// logging and export.
type ExecutionTrace struct {
	ID         string      `json:"id"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`
	Success    bool        `json:"success"`
	FailedStep int         `json:"failedStep,omitempty"`
	Steps      []StepTrace `json:"steps"`
}

// NewTrace starts a trace for one run.
func NewTrace() *ExecutionTrace {
	return &ExecutionTrace{ID: uuid.NewString(), StartedAt: time.Now()}
}

// Record appends one step result.
func (t *ExecutionTrace) Record(r *StepResult) {
	st := StepTrace{
		Method:     r.Call.Method,
		URL:        r.Call.URL,
		State:      r.State,
		Status:     r.Status,
		Transport:  r.Transport,
		DurationMS: r.Duration.Milliseconds(),
		Refreshed:  r.Refreshed,
	}
	if r.Err != nil {
		st.Error = r.Err.Error()
	}
	t.Steps = append(t.Steps, st)
}

// AttachDrift annotates the most recently recorded step.
func (t *ExecutionTrace) AttachDrift(report *compare.Report) {
	if len(t.Steps) == 0 || report == nil || report.Same {
		return
	}
	t.Steps[len(t.Steps)-1].Drift = report
}

// Finish closes the trace from a chain result.
func (t *ExecutionTrace) Finish(res *ChainResult) {
	t.FinishedAt = time.Now()
	t.Success = res.Success
	t.FailedStep = res.FailedStep
}
