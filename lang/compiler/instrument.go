package compiler

import "golang.org/x/exp/slices"

// instrument populates IsRecursive/NeedsMemoization on every named
// function. byName maps a declared function name to its SVMFunction,
// built by the compiler from the FuncStmt nodes it lowered.
//
// The call-graph SCC pass only runs when enableRecursionDetection is set;
// NeedsMemoization is only computed, reading the SCC results, when
// enableMemoization is also set. A function is flagged only when it is
// recursive, its parameter count is within memoThreshold, and it provably
// never assigns to an outer scope: memoizing an impure function would
// elide its side effects on a cache hit, so an unproven function is never
// flagged.
func instrument(byName map[string]*SVMFunction, enableRecursionDetection, enableMemoization bool, memoThreshold int) {
	if !enableRecursionDetection {
		return
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)

	g := newSCCGraph(names)
	for _, name := range names {
		fn := byName[name]
		called := make([]string, 0, len(fn.CalledNames))
		for callee := range fn.CalledNames {
			if _, ok := byName[callee]; ok {
				called = append(called, callee)
			}
		}
		slices.Sort(called)
		for _, callee := range called {
			g.addEdge(name, callee)
		}
	}

	for _, comp := range g.stronglyConnectedComponents() {
		recursive := len(comp) > 1
		if len(comp) == 1 {
			// a lone node is recursive only if it calls itself directly.
			name := comp[0]
			recursive = byName[name].CalledNames[name]
		}
		if !recursive {
			continue
		}
		for _, name := range comp {
			fn := byName[name]
			fn.IsRecursive = true
			if enableMemoization && fn.NumArgs <= memoThreshold && !fn.AssignsOuterScope {
				fn.NeedsMemoization = true
			}
		}
	}
}

// sccGraph is a minimal directed graph over function names, supporting
// Tarjan's strongly-connected-components algorithm.
type sccGraph struct {
	nodes []string
	index map[string]int
	adj [][]int
}

func newSCCGraph(names []string) *sccGraph {
	g := &sccGraph{nodes: names, index: make(map[string]int, len(names))}
	for i, n := range names {
		g.index[n] = i
	}
	g.adj = make([][]int, len(names))
	return g
}

func (g *sccGraph) addEdge(from, to string) {
	fi, ok := g.index[from]
	if !ok {
		return
	}
	ti, ok := g.index[to]
	if !ok {
		return
	}
	g.adj[fi] = append(g.adj[fi], ti)
}

// stronglyConnectedComponents runs Tarjan's algorithm, returning each SCC
// as a slice of function names, in an order that is deterministic given
// the sorted node/edge order addEdge was called with.
func (g *sccGraph) stronglyConnectedComponents() [][]string {
	n := len(g.nodes)
	indexOf := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range indexOf {
		indexOf[i] = -1
	}

	var stack []int
	var next int
	var comps [][]string

	var strongconnect func(v int)
	strongconnect = func(v int) {
		indexOf[v] = next
		lowlink[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.adj[v] {
			switch {
			case indexOf[w] == -1:
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			case onStack[w]:
				if indexOf[w] < lowlink[v] {
					lowlink[v] = indexOf[w]
				}
			}
		}

		if lowlink[v] == indexOf[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, g.nodes[w])
				if w == v {
					break
				}
			}
			comps = append(comps, comp)
		}
	}

	for v := 0; v < n; v++ {
		if indexOf[v] == -1 {
			strongconnect(v)
		}
	}
	return comps
}
