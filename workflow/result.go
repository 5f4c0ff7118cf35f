package workflow

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// StepStatus is the lifecycle state of a step within one run.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	// StepAbsorbed means every attempt failed but the step's policy is
	// continue-with-log; the step counts as finished with no output.
	StepAbsorbed StepStatus = "absorbed"
	StepFailed   StepStatus = "failed"
	StepSkipped  StepStatus = "skipped"
)

// IsTerminal reports whether the status can no longer change.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepSucceeded, StepAbsorbed, StepFailed, StepSkipped:
		return true
	}
	return false
}

// Completed reports whether the step finished without a required failure.
func (s StepStatus) Completed() bool {
	return s == StepSucceeded || s == StepAbsorbed
}

// FlowStatus is the overall outcome of a run.
type FlowStatus string

const (
	FlowSucceeded FlowStatus = "succeeded"
	FlowFailed    FlowStatus = "failed"
	FlowCancelled FlowStatus = "cancelled"
)

// StepOutcome is the recorded result of one step.
type StepOutcome struct {
	Step      string     `json:"step"`
	Index     int        `json:"index"` // declaration position in the flow
	Status    StepStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	Output    any        `json:"output,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartSeq  uint64     `json:"start_seq,omitempty"`
	EndSeq    uint64     `json:"end_seq,omitempty"`
	StartedAt time.Time  `json:"started_at,omitempty"`
	EndedAt   time.Time  `json:"ended_at,omitempty"`

	err error
}

// Err returns the error that ended the step, if any.
func (o StepOutcome) Err() error { return o.err }

// Duration returns the wall time between dispatch and completion.
func (o StepOutcome) Duration() time.Duration {
	if o.StartedAt.IsZero() || o.EndedAt.IsZero() {
		return 0
	}
	return o.EndedAt.Sub(o.StartedAt)
}

// FlowResult summarizes a run.
type FlowResult struct {
	RunID     string                  `json:"run_id"`
	Flow      string                  `json:"flow"`
	Status    FlowStatus              `json:"status"`
	Steps     map[string]*StepOutcome `json:"steps"`
	Order     []string                `json:"order"`
	State     map[string]any          `json:"state"`
	StartedAt time.Time               `json:"started_at"`
	EndedAt   time.Time               `json:"ended_at"`
}

// Succeeded reports whether every step ended succeeded or absorbed.
func (r *FlowResult) Succeeded() bool {
	return r != nil && r.Status == FlowSucceeded
}

// Step returns the outcome of one step.
func (r *FlowResult) Step(id string) *StepOutcome {
	if r == nil {
		return nil
	}
	return r.Steps[id]
}

// TotalAttempts sums the attempts of every step.
func (r *FlowResult) TotalAttempts() int {
	n := 0
	for _, o := range r.Steps {
		n += o.Attempts
	}
	return n
}

// Duration returns the wall time of the run.
func (r *FlowResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// StepsWithStatus returns the ids of steps that ended with status, in dispatch
// order followed by undispatched steps in declaration order.
func (r *FlowResult) StepsWithStatus(status StepStatus) []string {
	var ids []string
	seen := make(map[string]bool, len(r.Order))
	for _, id := range r.Order {
		seen[id] = true
		if r.Steps[id].Status == status {
			ids = append(ids, id)
		}
	}
	var rest []*StepOutcome
	for id, o := range r.Steps {
		if !seen[id] && o.Status == status {
			rest = append(rest, o)
		}
	}
	slices.SortFunc(rest, func(a, b *StepOutcome) int {
		if c := cmp.Compare(a.Index, b.Index); c != 0 {
			return c
		}
		return cmp.Compare(a.Step, b.Step)
	})
	for _, o := range rest {
		ids = append(ids, o.Step)
	}
	return ids
}

// runRecorder tracks per-step outcomes of one run. Sequence numbers come from
// a single counter so start/end ordering across steps is total.
type runRecorder struct {
	mu    sync.Mutex
	seq   uint64
	steps map[string]*StepOutcome
	order []string
	now   func() time.Time
}

func newRunRecorder(f *Flow, now func() time.Time) *runRecorder {
	rec := &runRecorder{
		steps: make(map[string]*StepOutcome, len(f.steps)),
		now:   now,
	}
	for i, n := range f.steps {
		rec.steps[n.ID] = &StepOutcome{Step: n.ID, Index: i, Status: StepPending}
	}
	return rec
}

func (r *runRecorder) status(id string) StepStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.steps[id].Status
}

func (r *runRecorder) recordStart(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	o := r.steps[id]
	o.Status = StepRunning
	o.StartSeq = r.seq
	o.StartedAt = r.now()
	r.order = append(r.order, id)
}

func (r *runRecorder) recordEnd(id string, status StepStatus, attempts int, output any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	o := r.steps[id]
	o.Status = status
	o.Attempts = attempts
	o.Output = output
	o.EndSeq = r.seq
	o.EndedAt = r.now()
	o.err = err
	if err != nil {
		o.Error = err.Error()
	}
}

func (r *runRecorder) recordSkip(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.steps[id]
	o.Status = StepSkipped
	o.err = err
	if err != nil {
		o.Error = err.Error()
	}
}

// inputs copies the current outcomes of the given predecessors.
func (r *runRecorder) inputs(preds []string) map[string]StepOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]StepOutcome, len(preds))
	for _, p := range preds {
		out[p] = *r.steps[p]
	}
	return out
}

func (r *runRecorder) outcomes() (map[string]*StepOutcome, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := make(map[string]*StepOutcome, len(r.steps))
	for id, o := range r.steps {
		c := *o
		steps[id] = &c
	}
	return steps, append([]string(nil), r.order...)
}
