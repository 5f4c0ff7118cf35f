package agent

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BaSui01/finflow/types"
)

// delegationState 在一次顶层任务内沿委派链共享
type delegationState struct {
	chain     []string
	maxDepth  int
	remaining *atomic.Int32
}

type delegationKey struct{}

func newDelegationState(root string, maxDepth, budget int) *delegationState {
	remaining := &atomic.Int32{}
	remaining.Store(int32(budget))
	return &delegationState{chain: []string{root}, maxDepth: maxDepth, remaining: remaining}
}

func withDelegation(ctx context.Context, ds *delegationState) context.Context {
	return context.WithValue(ctx, delegationKey{}, ds)
}

func delegationFrom(ctx context.Context) *delegationState {
	ds, _ := ctx.Value(delegationKey{}).(*delegationState)
	return ds
}

// depth is the number of delegation hops from the root worker.
func (ds *delegationState) depth() int {
	return len(ds.chain) - 1
}

func (ds *delegationState) extend(to string) *delegationState {
	return &delegationState{
		chain:     append(slices.Clone(ds.chain), to),
		maxDepth:  ds.maxDepth,
		remaining: ds.remaining,
	}
}

// DelegationChain returns the workers currently on the delegation chain of
// ctx, root first.
func DelegationChain(ctx context.Context) []string {
	if ds := delegationFrom(ctx); ds != nil {
		return slices.Clone(ds.chain)
	}
	return nil
}

// delegate 处理后端的委派请求。被拒绝的请求作为观察结果返回，只有取消会中止任务
func (w *Worker) delegate(ctx context.Context, ds *delegationState, taskID string, d *Delegation) (DelegationRecord, string, error) {
	rec := DelegationRecord{From: w.Name(), To: d.To, Task: d.Task, Depth: ds.depth() + 1}

	reject := func(format string, args ...any) (DelegationRecord, string, error) {
		rec.Reason = fmt.Sprintf(format, args...)
		w.logger.Info("delegation rejected", zap.String("to", d.To), zap.String("reason", rec.Reason))
		return rec, "error: " + types.NewError(types.ErrDelegationRejected, rec.Reason).Error(), nil
	}

	switch {
	case !w.cfg.AllowDelegation:
		return reject("agent %s is not allowed to delegate", w.Name())
	case d.Task == "":
		return reject("delegation to %s has no task", d.To)
	}
	target, ok := w.coworkers[d.To]
	if !ok {
		return reject("%s is not a coworker of %s; coworkers: %v", d.To, w.Name(), w.coNames)
	}
	if slices.Contains(ds.chain, d.To) {
		return reject("%s is already on the delegation chain %v", d.To, ds.chain)
	}
	if ds.depth()+1 > ds.maxDepth {
		return reject("delegation depth %d exceeds the limit of %d", ds.depth()+1, ds.maxDepth)
	}
	if ds.remaining.Add(-1) < 0 {
		return reject("delegation budget of this task is used up")
	}

	w.logger.Info("delegating", zap.String("to", d.To), zap.Int("depth", rec.Depth))
	sub := Task{
		ID:             fmt.Sprintf("%s/%s", taskID, d.To),
		Description:    d.Task,
		ExpectedOutput: "A complete answer to the delegated request.",
	}
	if d.Context != "" {
		sub.Context = []Attachment{{Task: taskID, Content: d.Context}}
	}

	out, err := target.Execute(withDelegation(ctx, ds.extend(d.To)), sub, nil)
	if err != nil {
		if ctx.Err() != nil {
			return rec, "", ctx.Err()
		}
		rec.Reason = err.Error()
		return rec, "error: delegate " + d.To + " failed: " + err.Error(), nil
	}
	rec.Accepted = true
	return rec, out.Content, nil
}
