package engine

import (
	"strings"
	"testing"
)

func TestGraphBuilder_EmptyNodes(t *testing.T) {
	graph, err := NewGraphBuilder().Build(nil)
	if err != nil {
		t.Fatalf("Expected no error for empty nodes, got: %v", err)
	}
	if len(graph.Levels) != 0 {
		t.Errorf("Expected 0 levels, got %d", len(graph.Levels))
	}
}

func TestGraphBuilder_StackTopologyOrdering(t *testing.T) {
	nodes := []PlanNode{
		{Name: "todo-group", Type: "group"},
		{Name: "todo-telemetry", Type: "telemetry.sink", DependsOn: []string{"todo-group"}},
		{Name: "todo-sql", Type: "sql.server", DependsOn: []string{"todo-group"}},
		{Name: "todo-db", Type: "sql.database", DependsOn: []string{"todo-sql"}},
		{Name: "todo-api", Type: "function.host", DependsOn: []string{"todo-db", "todo-telemetry"}},
		{Name: "todo-site", Type: "static.site", DependsOn: []string{"todo-group"}},
	}

	graph, err := NewGraphBuilder().Build(nodes)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	level := make(map[string]int)
	for l, names := range graph.Levels {
		for _, n := range names {
			level[n] = l
		}
	}

	if level["todo-group"] != 0 {
		t.Errorf("Expected group at level 0, got %d", level["todo-group"])
	}
	if level["todo-db"] <= level["todo-sql"] {
		t.Error("Database must be ordered after its server")
	}
	if level["todo-api"] <= level["todo-db"] || level["todo-api"] <= level["todo-telemetry"] {
		t.Error("Function host must be ordered after database and telemetry")
	}
}

func TestGraphBuilder_CycleDetected(t *testing.T) {
	nodes := []PlanNode{
		{Name: "a", Type: "group", DependsOn: []string{"b"}},
		{Name: "b", Type: "group", DependsOn: []string{"a"}},
	}

	_, err := NewGraphBuilder().Build(nodes)
	if err == nil {
		t.Fatal("Expected cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("Expected cycle in error, got: %v", err)
	}
}

func TestGraphBuilder_UndeclaredDependency(t *testing.T) {
	nodes := []PlanNode{
		{Name: "db", Type: "sql.database", DependsOn: []string{"missing-server"}},
	}

	_, err := NewGraphBuilder().Build(nodes)
	if err == nil || !strings.Contains(err.Error(), "undeclared") {
		t.Errorf("Expected undeclared dependency error, got: %v", err)
	}
}

func TestGraphBuilder_DuplicateName(t *testing.T) {
	nodes := []PlanNode{
		{Name: "x", Type: "group"},
		{Name: "x", Type: "group"},
	}

	_, err := NewGraphBuilder().Build(nodes)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("Expected duplicate error, got: %v", err)
	}
}
