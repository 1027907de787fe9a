package graph

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/presslens/presslens/internal/domain"
)

// Edge connects two stages. The predicate decides whether the edge is
// taken; RetryBudget bounds how often the target may be re-entered
// through this run (a budget of N allows N+1 visits of the target
// before the edge is treated as exhausted).
type Edge struct {
	From        string    `yaml:"from" json:"from"`
	To          string    `yaml:"to" json:"to"`
	Predicate   Predicate `yaml:"when,omitempty" json:"when"`
	RetryBudget int       `yaml:"retry_budget,omitempty" json:"retry_budget,omitempty"`
}

// Definition is a directed stage graph represented as data. Edge order
// is declaration order; predicate evaluation respects it.
type Definition struct {
	Name  string   `yaml:"name" json:"name"`
	Start string   `yaml:"start" json:"start"`
	Nodes []string `yaml:"nodes" json:"nodes"`
	Edges []Edge   `yaml:"edges" json:"edges"`
}

//go:embed critique.yaml
var critiqueGraphYAML []byte

//go:embed critique_url.yaml
var critiqueURLGraphYAML []byte

// Load parses a graph definition from YAML. The result is not yet
// validated; call Validate with the registry holding its stages.
func Load(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse graph definition: %w", err)
	}
	return &def, nil
}

// DefaultDefinition returns the built-in critique graph for raw-text
// submissions: claim extraction with a bounded re-extraction loop, then
// technique detection fanning out to bias scoring and synthesis, with
// synthesis joining on both.
func DefaultDefinition() *Definition {
	def, err := Load(critiqueGraphYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded critique graph is invalid: %v", err))
	}
	return def
}

// URLDefinition returns the built-in graph for URL submissions; it
// prepends the content extraction stage to the default topology.
func URLDefinition() *Definition {
	def, err := Load(critiqueURLGraphYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded URL critique graph is invalid: %v", err))
	}
	return def
}

// Outgoing returns the edges leaving a node in declaration order.
func (d *Definition) Outgoing(node string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.From == node {
			out = append(out, e)
		}
	}
	return out
}

// Terminals returns the nodes without outgoing edges.
func (d *Definition) Terminals() []string {
	var out []string
	for _, n := range d.Nodes {
		if len(d.Outgoing(n)) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Validate checks the structural invariants of the definition against
// the registry that will execute it. All violations are
// GraphDefinitionErrors raised here, never at run time:
//
//   - the start node is set and declared;
//   - node names are unique and every edge references declared nodes;
//   - at least one node is terminal;
//   - a node with conditional outgoing edges also declares a default
//     edge, so no result can hit a silent dead-end;
//   - retry budgets are non-negative, and every cycle carries at least
//     one edge with a positive retry budget (no unconditional cycles);
//   - every stage named by a node is registered, and each stage's
//     declared dependencies are upstream of it in the graph.
//
// Output-key collisions between concurrently reachable stages cannot
// occur: a stage's output key is its unique node name.
func (d *Definition) Validate(reg *Registry) error {
	if d.Start == "" {
		return &domain.GraphDefinitionError{Msg: "no start node designated"}
	}

	nodes := make(map[string]struct{}, len(d.Nodes))
	for _, n := range d.Nodes {
		if n == "" {
			return &domain.GraphDefinitionError{Msg: "empty node name"}
		}
		if _, dup := nodes[n]; dup {
			return &domain.GraphDefinitionError{Node: n, Msg: "duplicate node name"}
		}
		nodes[n] = struct{}{}
	}
	if _, ok := nodes[d.Start]; !ok {
		return &domain.GraphDefinitionError{Node: d.Start, Msg: "start node is not declared"}
	}

	for _, e := range d.Edges {
		if _, ok := nodes[e.From]; !ok {
			return &domain.GraphDefinitionError{Node: e.From, Msg: "edge source is not declared"}
		}
		if _, ok := nodes[e.To]; !ok {
			return &domain.GraphDefinitionError{Node: e.To, Msg: "edge target is not declared"}
		}
		if e.RetryBudget < 0 {
			return &domain.GraphDefinitionError{Node: e.From, Msg: "negative retry budget"}
		}
		if err := e.Predicate.validate(); err != nil {
			return &domain.GraphDefinitionError{Node: e.From, Msg: err.Error()}
		}
	}

	if len(d.Terminals()) == 0 {
		return &domain.GraphDefinitionError{Msg: "no terminal node; every node has outgoing edges"}
	}

	for _, n := range d.Nodes {
		out := d.Outgoing(n)
		conditional, deflt := 0, 0
		for _, e := range out {
			if e.Predicate.IsDefault() {
				deflt++
			} else {
				conditional++
			}
		}
		if conditional > 0 && deflt == 0 {
			return &domain.GraphDefinitionError{Node: n, Msg: "conditional edges without a default edge"}
		}
	}

	if err := d.checkBoundedCycles(); err != nil {
		return err
	}

	if reg != nil {
		if start, ok := reg.Get(d.Start); ok && len(start.Requires()) > 0 {
			return &domain.GraphDefinitionError{Node: d.Start, Msg: "start stage declares dependencies"}
		}
		for _, n := range d.Nodes {
			stage, ok := reg.Get(n)
			if !ok {
				return &domain.GraphDefinitionError{Node: n, Msg: "no registered stage"}
			}
			for _, dep := range stage.Requires() {
				if _, declared := nodes[dep]; !declared {
					return &domain.GraphDefinitionError{Node: n, Msg: fmt.Sprintf("depends on %s which is not in the graph", dep)}
				}
				if !d.reachable(dep, n) {
					return &domain.GraphDefinitionError{Node: n, Msg: fmt.Sprintf("depends on %s which is not upstream", dep)}
				}
			}
		}
	}

	return nil
}

// checkBoundedCycles verifies that removing all edges carrying a
// positive retry budget leaves an acyclic graph: any cycle must be a
// bounded retry loop, never an unconditional one.
func (d *Definition) checkBoundedCycles() error {
	adj := make(map[string][]string)
	for _, e := range d.Edges {
		if e.RetryBudget > 0 {
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(d.Nodes))

	var visit func(n string) string
	visit = func(n string) string {
		state[n] = inStack
		for _, next := range adj[n] {
			switch state[next] {
			case inStack:
				return next
			case unvisited:
				if bad := visit(next); bad != "" {
					return bad
				}
			}
		}
		state[n] = done
		return ""
	}

	for _, n := range d.Nodes {
		if state[n] == unvisited {
			if bad := visit(n); bad != "" {
				return &domain.GraphDefinitionError{Node: bad, Msg: "cycle without a retry budget"}
			}
		}
	}
	return nil
}

// reachable reports whether there is a path from src to dst.
func (d *Definition) reachable(src, dst string) bool {
	seen := map[string]bool{src: true}
	queue := []string{src}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, e := range d.Outgoing(n) {
			if e.To == dst {
				return true
			}
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return false
}
