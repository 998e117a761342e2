package engine

import (
	"fmt"
	"sort"
	"strings"
)

// PlanNode is one declared resource in the plan a preview renders.
type PlanNode struct {
	// Name is the unique logical resource name.
	Name string `json:"name"`

	// Type is the resource kind (e.g. "group", "sql.server", "function.host").
	Type string `json:"type"`

	// DependsOn names the resources this node is declared after.
	DependsOn []string `json:"depends_on,omitempty"`
}

// PlanGraph is the dependency-ordered view of a declared stack. Nodes at the
// same level have no ordering relative to each other.
type PlanGraph struct {
	// Levels holds node names grouped by dependency depth, roots first.
	// Names within a level are sorted for stable rendering.
	Levels [][]string `json:"levels"`

	// Nodes maps resource names to their plan nodes.
	Nodes map[string]*PlanNode `json:"nodes"`
}

// GraphBuilder orders plan nodes topologically and rejects cycles and
// references to undeclared resources.
type GraphBuilder struct {
	nodes      map[string]*PlanNode
	dependents map[string][]string
	inDegree   map[string]int
}

// NewGraphBuilder creates an empty graph builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		nodes:      make(map[string]*PlanNode),
		dependents: make(map[string][]string),
		inDegree:   make(map[string]int),
	}
}

// Build constructs the ordered plan graph from the given nodes.
func (b *GraphBuilder) Build(nodes []PlanNode) (*PlanGraph, error) {
	if len(nodes) == 0 {
		return &PlanGraph{Nodes: map[string]*PlanNode{}}, nil
	}

	for i := range nodes {
		n := &nodes[i]
		if n.Name == "" {
			return nil, fmt.Errorf("plan node with empty name")
		}
		if _, exists := b.nodes[n.Name]; exists {
			return nil, fmt.Errorf("duplicate plan node %q", n.Name)
		}
		b.nodes[n.Name] = n
		b.inDegree[n.Name] = 0
	}

	for _, n := range b.nodes {
		for _, dep := range n.DependsOn {
			if _, exists := b.nodes[dep]; !exists {
				return nil, fmt.Errorf("plan node %q depends on undeclared resource %q", n.Name, dep)
			}
			b.dependents[dep] = append(b.dependents[dep], n.Name)
			b.inDegree[n.Name]++
		}
	}

	levels, err := b.computeLevels()
	if err != nil {
		return nil, err
	}

	return &PlanGraph{Levels: levels, Nodes: b.nodes}, nil
}

// computeLevels runs Kahn's algorithm with level tracking. A leftover node
// after the sweep means a dependency cycle.
func (b *GraphBuilder) computeLevels() ([][]string, error) {
	degree := make(map[string]int, len(b.inDegree))
	for name, d := range b.inDegree {
		degree[name] = d
	}

	var current []string
	for name, d := range degree {
		if d == 0 {
			current = append(current, name)
		}
	}

	var levels [][]string
	processed := 0
	for len(current) > 0 {
		sort.Strings(current)
		levels = append(levels, current)
		processed += len(current)

		var next []string
		for _, name := range current {
			for _, dep := range b.dependents[name] {
				degree[dep]--
				if degree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if processed != len(b.nodes) {
		var stuck []string
		for name, d := range degree {
			if d > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("dependency cycle involving: %s", strings.Join(stuck, ", "))
	}

	return levels, nil
}

// Render returns a human-readable dependency-ordered listing of the graph.
func (g *PlanGraph) Render() string {
	var sb strings.Builder
	for level, names := range g.Levels {
		for _, name := range names {
			node := g.Nodes[name]
			sb.WriteString(fmt.Sprintf("%d. %-18s %s", level, node.Type, node.Name))
			if len(node.DependsOn) > 0 {
				sb.WriteString(fmt.Sprintf("  (after %s)", strings.Join(node.DependsOn, ", ")))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
