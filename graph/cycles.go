package graph

// View is the read-only shape cycle detection walks. Index implements it.
type View interface {
	// IDs returns every node id in ascending order.
	IDs() []string
	// Deps returns the distinct ids id has edges to, in ascending order.
	Deps(id string) []string
}

// FindCycles returns every distinct simple cycle in view. With a non-empty
// seed only the cycles passing through seed are returned, each starting at
// seed; otherwise each cycle starts at its smallest id. The result is
// deterministic for a given view.
func FindCycles(view View, seed string) []Cycle {
	ids := view.IDs()
	comp := components(view, ids)

	if seed != "" {
		c, ok := comp[seed]
		if !ok || !c.cyclic {
			return nil
		}
		return circuits(view, seed, func(id string) bool {
			return comp[id].index == c.index
		})
	}

	rank := make(map[string]int, len(ids))
	for i, id := range ids {
		rank[id] = i
	}

	var cycles []Cycle
	for i, start := range ids {
		c := comp[start]
		if !c.cyclic {
			continue
		}
		lo := i
		cycles = append(cycles, circuits(view, start, func(id string) bool {
			return comp[id].index == c.index && rank[id] > lo
		})...)
	}
	return cycles
}

// circuits enumerates the simple paths from start back to start that only
// pass through allowed nodes.
func circuits(view View, start string, allowed func(string) bool) []Cycle {
	var out []Cycle
	path := []string{start}
	onPath := map[string]bool{start: true}

	var walk func(id string)
	walk = func(id string) {
		for _, next := range view.Deps(id) {
			if next == start {
				out = append(out, append(Cycle(nil), path...))
				continue
			}
			if onPath[next] || !allowed(next) {
				continue
			}
			onPath[next] = true
			path = append(path, next)
			walk(next)
			path = path[:len(path)-1]
			delete(onPath, next)
		}
	}
	walk(start)
	return out
}

type component struct {
	index  int
	cyclic bool // more than one member, or a self-import
}

// components labels strongly connected components (Tarjan). Only nodes inside
// a cyclic component can be on a cycle, which keeps the circuit search local.
func components(view View, ids []string) map[string]component {
	var (
		counter int
		stack   []string
		onStack = make(map[string]bool)
		low     = make(map[string]int)
		order   = make(map[string]int)
		result  = make(map[string]component, len(ids))
		next    int
	)

	var strong func(id string)
	strong = func(id string) {
		order[id] = counter
		low[id] = counter
		counter++
		stack = append(stack, id)
		onStack[id] = true

		selfLoop := false
		for _, dep := range view.Deps(id) {
			if dep == id {
				selfLoop = true
			}
			if _, seen := order[dep]; !seen {
				strong(dep)
				low[id] = min(low[id], low[dep])
			} else if onStack[dep] {
				low[id] = min(low[id], order[dep])
			}
		}

		if low[id] != order[id] {
			return
		}
		var members []string
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			members = append(members, top)
			if top == id {
				break
			}
		}
		c := component{index: next, cyclic: len(members) > 1 || selfLoop}
		next++
		for _, m := range members {
			result[m] = c
		}
	}

	for _, id := range ids {
		if _, seen := order[id]; !seen {
			strong(id)
		}
	}
	return result
}
