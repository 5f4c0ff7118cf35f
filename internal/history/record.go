package history

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/finflow/workflow"
)

var (
	ErrNotFound     = errors.New("history: run not found")
	ErrInvalidInput = errors.New("history: invalid record")
)

// StepRecord is the stored summary of one step.
type StepRecord struct {
	Step     string `json:"step"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Record is the stored summary of one finished flow run.
type Record struct {
	RunID       string        `json:"run_id"`
	Flow        string        `json:"flow"`
	Status      string        `json:"status"`
	Steps       []StepRecord  `json:"steps"`
	FinalReport string        `json:"final_report,omitempty"` // 最终报告的产物定位符
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
	Duration    time.Duration `json:"duration"`
}

// Store persists run summaries.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, runID string) (*Record, error)
	// List returns the most recent runs first.
	List(ctx context.Context, limit int) ([]*Record, error)
	Close() error
}

// FromFlowResult summarizes res. Steps keep dispatch order; steps that never
// ran follow in declaration order of steps.
func FromFlowResult(res *workflow.FlowResult, steps []string, finalReport string) *Record {
	rec := &Record{
		RunID:       res.RunID,
		Flow:        res.Flow,
		Status:      string(res.Status),
		FinalReport: finalReport,
		StartedAt:   res.StartedAt,
		EndedAt:     res.EndedAt,
		Duration:    res.Duration(),
	}
	seen := make(map[string]bool, len(res.Steps))
	add := func(id string) {
		o := res.Steps[id]
		if o == nil || seen[id] {
			return
		}
		seen[id] = true
		rec.Steps = append(rec.Steps, StepRecord{Step: id, Status: string(o.Status), Attempts: o.Attempts, Error: o.Error})
	}
	for _, id := range res.Order {
		add(id)
	}
	for _, id := range steps {
		add(id)
	}
	return rec
}

func validate(rec *Record) error {
	if rec == nil || rec.RunID == "" || rec.Flow == "" {
		return ErrInvalidInput
	}
	return nil
}

type nopStore struct{}

func (nopStore) Save(context.Context, *Record) error { return nil }
func (nopStore) Get(context.Context, string) (*Record, error) { return nil, ErrNotFound }
func (nopStore) List(context.Context, int) ([]*Record, error) { return nil, nil }
func (nopStore) Close() error { return nil }
