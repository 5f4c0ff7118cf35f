package workflow

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// randomFlow builds an acyclic flow of n steps where step i may only listen on
// steps declared before it. Steps with no chosen predecessor become starts.
func randomFlow(n int, seed int64, allowOr bool) (*Flow, error) {
	rng := rand.New(rand.NewSource(seed))
	b := NewFlowBuilder(fmt.Sprintf("random-%d", seed))
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("s%d", i)
		var preds []string
		for j := 0; j < i; j++ {
			if rng.Intn(3) == 0 {
				preds = append(preds, fmt.Sprintf("s%d", j))
			}
		}
		h := returns(id)
		if len(preds) == 0 {
			b.Start(id, h)
			continue
		}
		comb := JoinAll
		if allowOr && rng.Intn(2) == 0 {
			comb = JoinAny
		}
		b.Listen(id, comb, h, preds...)
	}
	return b.Build()
}

// Feature: flow scheduling, Property 1: a listen step starts only after its
// join is satisfied; AND joins start after every predecessor completed.
func TestProperty_JoinOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("steps start after their join is satisfied", prop.ForAll(
		func(n int, seed int64) bool {
			flow, err := randomFlow(n, seed, true)
			if err != nil {
				t.Logf("Build failed: %v", err)
				return false
			}

			res, err := newTestScheduler().Run(context.Background(), flow, nil)
			if err != nil {
				t.Logf("Run failed: %v", err)
				return false
			}

			for _, node := range flow.Steps() {
				o := res.Step(node.ID)
				if o.Status != StepSucceeded {
					return false
				}
				if node.Kind == KindStart {
					continue
				}
				firstEnd, lastEnd := ^uint64(0), uint64(0)
				for _, p := range node.Predecessors {
					e := res.Step(p).EndSeq
					if e < firstEnd {
						firstEnd = e
					}
					if e > lastEnd {
						lastEnd = e
					}
				}
				if node.Combinator == JoinAll && o.StartSeq < lastEnd {
					t.Logf("AND step %s started before a predecessor ended", node.ID)
					return false
				}
				if node.Combinator == JoinAny && o.StartSeq < firstEnd {
					t.Logf("OR step %s started before any predecessor ended", node.ID)
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// Feature: flow scheduling, Property 9: identical graph and state give an
// identical dispatch order that matches the static plan.
func TestProperty_DeterministicDispatch(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("single-slot dispatch order equals plan", prop.ForAll(
		func(n int, seed int64) bool {
			flow, err := randomFlow(n, seed, false)
			if err != nil {
				return false
			}

			sched := newTestScheduler(WithMaxConcurrency(1))
			first, err := sched.Run(context.Background(), flow, nil)
			if err != nil {
				return false
			}
			second, err := sched.Run(context.Background(), flow, nil)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(first.Order, second.Order) &&
				reflect.DeepEqual(first.Order, flow.Plan())
		},
		gen.IntRange(1, 10),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
