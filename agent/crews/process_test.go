package crews

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/finflow/agent"
	"github.com/BaSui01/finflow/testutil/mocks"
)

func fanOutTasks() []TaskSpec {
	return []TaskSpec{
		{ID: "news", Agent: "news_agent", Description: "news", Output: "news.md"},
		{ID: "charts", Agent: "chart_agent", Description: "charts", Output: "charts.md"},
		{ID: "merge", Agent: "merge_agent", Description: "merge", Output: "report.md", DependsOn: []string{"news", "charts"}},
	}
}

func TestHierarchical_CoordinatorPicks(t *testing.T) {
	var offered [][]string
	coord := CoordinatorFunc(func(_ context.Context, ready []*TaskSpec, view RunView) (string, error) {
		var ids []string
		for _, r := range ready {
			ids = append(ids, r.ID)
		}
		offered = append(offered, ids)
		return ready[len(ready)-1].ID, nil
	})
	c := newTestCrew(t, fanOutTasks(), nil, memStore(t), WithProcess(Hierarchical(coord, zap.NewNop())))

	res, err := c.Kickoff(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ProcessHierarchical, res.Process)
	assert.Equal(t, []string{"charts", "news", "merge"}, res.Order)
	// single ready tasks are not offered to the coordinator
	assert.Equal(t, [][]string{{"news", "charts"}}, offered)
}

func TestHierarchical_FallsBackToFirstReady(t *testing.T) {
	tests := []struct {
		name  string
		coord Coordinator
	}{
		{"error", CoordinatorFunc(func(context.Context, []*TaskSpec, RunView) (string, error) {
			return "", errors.New("manager unavailable")
		})},
		{"not ready", CoordinatorFunc(func(context.Context, []*TaskSpec, RunView) (string, error) {
			return "merge", nil
		})},
		{"nil coordinator", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCrew(t, fanOutTasks(), nil, memStore(t), WithProcess(Hierarchical(tt.coord, nil)))
			res, err := c.Kickoff(context.Background(), nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"news", "charts", "merge"}, res.Order)
		})
	}
}

func TestManagerCoordinator_Choose(t *testing.T) {
	backend := mocks.NewMockBackend().ThenAnswer("I would run `charts` next.")
	manager, err := agent.NewWorker(agent.NewDefaultConfig("manager", "Crew Manager", "keep the crew moving"), backend, nil, nil)
	require.NoError(t, err)

	ready := []*TaskSpec{
		{ID: "news", Agent: "news_agent", Description: "Collect news about {topic}\nmore detail"},
		{ID: "charts", Agent: "chart_agent", Description: "Plot prices"},
	}
	choice, err := NewManagerCoordinator(manager).Choose(context.Background(), ready,
		RunView{Crew: "report", Inputs: map[string]string{"topic": "tesla"}, Completed: []string{"setup"}})
	require.NoError(t, err)
	assert.Equal(t, "charts", choice)

	prompt := backend.LastRequest().Messages[1].Content
	assert.Contains(t, prompt, "- news (agent news_agent): Collect news about tesla\n")
	assert.Contains(t, prompt, "Already completed: setup")
}

func TestMatchTask(t *testing.T) {
	ready := []*TaskSpec{{ID: "news"}, {ID: "news_writer"}}
	assert.Equal(t, "news", matchTask(" news. ", ready))
	assert.Equal(t, "news_writer", matchTask("run news_writer now", ready))
	assert.Equal(t, "other", matchTask("other", ready))
}

// randomTasks draws an acyclic task graph: edges only point to tasks drawn
// earlier in a random permutation, declaration order is shuffled separately.
func randomTasks(t *rapid.T) []TaskSpec {
	n := rapid.IntRange(1, 8).Draw(t, "n")
	topo := rapid.Permutation(rangeInts(n)).Draw(t, "topo")
	rank := make(map[int]int, n)
	for i, v := range topo {
		rank[v] = i
	}
	tasks := make([]TaskSpec, n)
	for i := 0; i < n; i++ {
		tasks[i] = TaskSpec{ID: fmt.Sprintf("t%d", i), Agent: "worker", Description: "d", Output: fmt.Sprintf("out/%d.md", i)}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if rank[j] < rank[i] && rapid.Bool().Draw(t, fmt.Sprintf("edge_%d_%d", i, j)) {
				tasks[i].DependsOn = append(tasks[i].DependsOn, tasks[j].ID)
			}
		}
	}
	return tasks
}

func rangeInts(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestProperty_SequentialOrderIsDeterministicTopologicalOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tasks := randomTasks(rt)
		w, err := agent.NewWorker(agent.NewDefaultConfig("worker", "w", "g"), mocks.NewMockBackend(), nil, nil)
		if err != nil {
			rt.Fatal(err)
		}
		store := memStore(t)
		c, err := New("prop", tasks, []*agent.Worker{w}, store)
		if err != nil {
			rt.Fatal(err)
		}

		res, err := c.Kickoff(context.Background(), nil)
		if err != nil {
			rt.Fatal(err)
		}
		if fmt.Sprint(res.Order) != fmt.Sprint(c.Plan()) {
			rt.Fatalf("order %v differs from plan %v", res.Order, c.Plan())
		}

		pos := make(map[string]int, len(res.Order))
		for i, id := range res.Order {
			pos[id] = i
		}
		for _, task := range tasks {
			for _, d := range task.DependsOn {
				if pos[d] >= pos[task.ID] {
					rt.Fatalf("%s ran before its dependency %s", task.ID, d)
				}
			}
		}
	})
}
