package crews

import (
	"container/heap"

	"github.com/BaSui01/finflow/agent/artifacts"
	"github.com/BaSui01/finflow/types"
)

// validateTasks 检查任务图：唯一 ID、唯一产物、已知依赖、无环
func validateTasks(tasks []*TaskSpec) error {
	if len(tasks) == 0 {
		return types.NewGraphInvalid("crew has no tasks")
	}
	ids := make(map[string]bool, len(tasks))
	outputs := make(map[string]string, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			return types.NewGraphInvalid("task id is empty")
		}
		if ids[t.ID] {
			return types.NewGraphInvalid("duplicate task id %s", t.ID)
		}
		ids[t.ID] = true

		loc, err := artifacts.NormalizeLocator(t.Output)
		if err != nil {
			return types.NewGraphInvalid("task %s output: %v", t.ID, err)
		}
		if owner, dup := outputs[loc]; dup {
			return types.NewGraphInvalid("tasks %s and %s both produce %s", owner, t.ID, loc)
		}
		outputs[loc] = t.ID
		t.Output = loc
	}
	for _, t := range tasks {
		seen := make(map[string]bool, len(t.DependsOn))
		for _, d := range t.DependsOn {
			if !ids[d] {
				return types.NewGraphInvalid("task %s depends on unknown task %s", t.ID, d)
			}
			if d == t.ID {
				return types.NewGraphInvalid("task %s depends on itself", t.ID)
			}
			if seen[d] {
				return types.NewGraphInvalid("task %s lists dependency %s twice", t.ID, d)
			}
			seen[d] = true
		}
	}
	if _, err := plan(tasks); err != nil {
		return err
	}
	return nil
}

// plan 使用 Kahn 算法求拓扑序，同时就绪的任务按声明顺序出队
func plan(tasks []*TaskSpec) ([]*TaskSpec, error) {
	byID := make(map[string]*TaskSpec, len(tasks))
	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]*TaskSpec, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		indegree[t.ID] = len(t.DependsOn)
	}
	for _, t := range tasks {
		for _, d := range t.DependsOn {
			dependents[d] = append(dependents[d], t)
		}
	}

	h := &taskHeap{}
	for _, t := range tasks {
		if indegree[t.ID] == 0 {
			heap.Push(h, t)
		}
	}
	order := make([]*TaskSpec, 0, len(tasks))
	for h.Len() > 0 {
		t := heap.Pop(h).(*TaskSpec)
		order = append(order, t)
		for _, dep := range dependents[t.ID] {
			indegree[dep.ID]--
			if indegree[dep.ID] == 0 {
				heap.Push(h, dep)
			}
		}
	}
	if len(order) != len(tasks) {
		var stuck []string
		for _, t := range tasks {
			if indegree[t.ID] > 0 {
				stuck = append(stuck, t.ID)
			}
		}
		return nil, types.NewGraphInvalid("task dependencies form a cycle among %v", stuck)
	}
	return order, nil
}

// taskHeap orders tasks by declaration index.
type taskHeap []*TaskSpec

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return h[i].index < h[j].index }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)        { *h = append(*h, x.(*TaskSpec)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
