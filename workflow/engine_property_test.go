package workflow

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// Random DAGs: each step depends on a subset of earlier declarations, so the
// graph is acyclic by construction.
func randomDefinition(t *rapid.T) *Definition {
	n := rapid.IntRange(1, 8).Draw(t, "steps")
	def := &Definition{Name: "generated"}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("s%d", i)
		var deps []string
		for j := 0; j < i; j++ {
			if rapid.Bool().Draw(t, fmt.Sprintf("dep_%d_%d", i, j)) {
				deps = append(deps, fmt.Sprintf("s%d", j))
			}
		}
		def.Steps = append(def.Steps, StepDef{ID: id, Action: "mark", DependsOn: deps})
	}
	return def
}

func TestEngineExecutionRespectsDependencies(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		def := randomDefinition(t)

		e := NewEngine()
		if err := e.RegisterAction("mark", ActionFunc(func(ctx context.Context, _ map[string]any) (map[string]any, error) {
			return nil, nil
		})); err != nil {
			t.Fatalf("register action: %v", err)
		}

		if err := e.RegisterWorkflow(def); err != nil {
			t.Fatalf("register workflow: %v", err)
		}
		if _, err := e.Execute(context.Background(), "generated", nil); err != nil {
			t.Fatalf("execute: %v", err)
		}

		wctx, ok := e.Context("generated")
		if !ok {
			t.Fatal("missing context")
		}
		position := make(map[string]int)
		for i, rec := range wctx.History() {
			if rec.Status != StepCompleted {
				t.Fatalf("step %s finished %s", rec.StepID, rec.Status)
			}
			position[rec.StepID] = i
		}
		if len(position) != len(def.Steps) {
			t.Fatalf("ran %d of %d steps", len(position), len(def.Steps))
		}
		for _, step := range def.Steps {
			for _, dep := range step.DependsOn {
				if position[dep] >= position[step.ID] {
					t.Fatalf("step %s ran before its dependency %s", step.ID, dep)
				}
			}
		}

		// The default sequential engine runs exactly the computed topological
		// order, declaration ties included.
		order, err := topologicalOrder(def, dependencyEdges(def))
		if err != nil {
			t.Fatalf("topological order: %v", err)
		}
		for i, id := range order {
			if position[id] != i {
				t.Fatalf("step %s ran at %d, topological order says %d", id, position[id], i)
			}
		}
	})
}

func TestTopologicalOrderIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		def := randomDefinition(t)
		edges := dependencyEdges(def)

		first, err := topologicalOrder(def, edges)
		if err != nil {
			t.Fatalf("topological order: %v", err)
		}
		for i := 0; i < 5; i++ {
			again, err := topologicalOrder(def, edges)
			if err != nil {
				t.Fatalf("topological order: %v", err)
			}
			if len(again) != len(first) {
				t.Fatalf("order length changed: %d vs %d", len(again), len(first))
			}
			for j := range first {
				if again[j] != first[j] {
					t.Fatalf("order changed at %d: %s vs %s", j, again[j], first[j])
				}
			}
		}
	})
}
