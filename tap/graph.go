package tap

import (
	"fmt"
)

// StreamGraph is the parent/child tree of stream definitions.
type StreamGraph struct {
	definitions map[string]StreamDefinition
	order       []string
	roots       []string
	children    map[string][]string
}

// NewStreamGraph validates the definitions and orders them parents first,
// keeping declaration order among siblings.
func NewStreamGraph(definitions []StreamDefinition) (*StreamGraph, error) {
	result := &StreamGraph{
		definitions: make(map[string]StreamDefinition, len(definitions)),
		children:    make(map[string][]string),
	}
	for _, def := range definitions {
		if _, exists := result.definitions[def.Name]; exists {
			return nil, fmt.Errorf("duplicate stream %s", def.Name)
		}
		result.definitions[def.Name] = def
	}
	for _, def := range definitions {
		if def.Parent == "" {
			result.roots = append(result.roots, def.Name)
			continue
		}
		parent, exists := result.definitions[def.Parent]
		if !exists {
			return nil, fmt.Errorf("stream %s has unknown parent %s", def.Name, def.Parent)
		}
		if len(parent.ChildContext) == 0 {
			return nil, fmt.Errorf("stream %s is a parent but declares no child context", parent.Name)
		}
		result.children[def.Parent] = append(result.children[def.Parent], def.Name)
	}

	visited := make(map[string]bool, len(definitions))
	var visit func(name string)
	visit = func(name string) {
		visited[name] = true
		result.order = append(result.order, name)
		for _, child := range result.children[name] {
			visit(child)
		}
	}
	for _, root := range result.roots {
		visit(root)
	}
	if len(visited) != len(definitions) {
		var cyclic []string
		for _, def := range definitions {
			if !visited[def.Name] {
				cyclic = append(cyclic, def.Name)
			}
		}
		return nil, fmt.Errorf("streams %v are not reachable from a root stream", cyclic)
	}
	return result, nil
}

func (g *StreamGraph) Roots() []StreamDefinition {
	return g.lookup(g.roots)
}

func (g *StreamGraph) Children(name string) []StreamDefinition {
	return g.lookup(g.children[name])
}

// TopologicalOrder returns every definition, each parent before its children.
func (g *StreamGraph) TopologicalOrder() []StreamDefinition {
	return g.lookup(g.order)
}

func (g *StreamGraph) Definition(name string) (StreamDefinition, bool) {
	def, ok := g.definitions[name]
	return def, ok
}

// Ancestors returns the parents of name, nearest first.
func (g *StreamGraph) Ancestors(name string) []string {
	var result []string
	for def, ok := g.definitions[name]; ok && def.Parent != ""; def, ok = g.definitions[def.Parent] {
		result = append(result, def.Parent)
	}
	return result
}

func (g *StreamGraph) lookup(names []string) []StreamDefinition {
	result := make([]StreamDefinition, len(names))
	for i, name := range names {
		result[i] = g.definitions[name]
	}
	return result
}
