package entity

import "sort"

// graph is the dependency view of a set of entities. deps[n] lists the
// entities n depends on; index[n] is n's registration position.
type graph struct {
	names []string
	deps  map[string][]string
	index map[string]int
}

func newGraph(names []string, deps map[string][]string) *graph {
	g := &graph{
		names: names,
		deps:  make(map[string][]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, n := range names {
		g.index[n] = i
		seen := make(map[string]bool)
		for _, d := range deps[n] {
			if seen[d] {
				continue // deduplicate
			}
			seen[d] = true
			g.deps[n] = append(g.deps[n], d)
		}
	}
	return g
}

// findCycle returns the first cycle found, as a closed path
// ["a", "b", "c", "a"] where each entity depends on the next. It walks roots
// in registration order so the reported cycle is deterministic.
func (g *graph) findCycle() []string {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(g.names))
	var stack []string

	var visit func(n string) []string
	visit = func(n string) []string {
		state[n] = onStack
		stack = append(stack, n)
		for _, d := range g.deps[n] {
			if _, known := g.index[d]; !known {
				continue
			}
			switch state[d] {
			case onStack:
				start := 0
				for i, s := range stack {
					if s == d {
						start = i
						break
					}
				}
				path := append([]string(nil), stack[start:]...)
				return append(path, d)
			case unvisited:
				if cycle := visit(d); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
		return nil
	}

	for _, n := range g.names {
		if state[n] == unvisited {
			if cycle := visit(n); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// order returns a topological order using Kahn's algorithm, always taking the
// ready entity with the lowest registration index. ok is false on a cycle.
func (g *graph) order() (order []string, ok bool) {
	dependents := make(map[string][]string, len(g.names))
	inDegree := make(map[string]int, len(g.names))
	for _, n := range g.names {
		inDegree[n] = 0
	}
	for _, n := range g.names {
		for _, d := range g.deps[n] {
			if _, known := g.index[d]; !known {
				continue // missing dep is reported by validation
			}
			dependents[d] = append(dependents[d], n)
			inDegree[n]++
		}
	}

	var ready []string
	for _, n := range g.names {
		if inDegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	order = make([]string, 0, len(g.names))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		for _, dep := range dependents[current] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Slice(ready, func(i, j int) bool {
			return g.index[ready[i]] < g.index[ready[j]]
		})
	}
	return order, len(order) == len(g.names)
}

// dependents returns every entity that transitively depends on name, in
// registration order.
func (g *graph) dependents(name string) []string {
	reverse := make(map[string][]string, len(g.names))
	for _, n := range g.names {
		for _, d := range g.deps[n] {
			reverse[d] = append(reverse[d], n)
		}
	}
	seen := map[string]bool{name: true}
	queue := []string{name}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range reverse[cur] {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
				queue = append(queue, n)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return g.index[out[i]] < g.index[out[j]] })
	return out
}
