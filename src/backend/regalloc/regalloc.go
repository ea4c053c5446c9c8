// Package regalloc builds the register interference graph of a
// function window and colours it with the target's general purpose
// register count using the graph colouring algorithm.
package regalloc

import (
	"sort"

	"decafc/src/backend/flow"
	"decafc/src/backend/regfile"
	"decafc/src/ir/tac"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Assignment maps coloured locations to their physical register.
// Locations absent from the map are memory operands on every use.
type Assignment map[*tac.Location]regfile.Register

// node represents a register interference graph node element.
type node struct {
	loc     *tac.Location
	adj     map[*node]struct{} // Neighbours in the interference graph.
	enabled bool               // Set to false while "removed" from the graph.
	color   int                // 0 means no register.
}

// ---------------------
// ----- Functions -----
// ---------------------

// Allocate builds the interference graph over the window and k-colours
// it. For every instruction, all pairs drawn from kill + out interfere;
// the union of kill + gen over the window is the candidate variable
// set. Colour c > 0 maps to allocatable register c-1; colour 0 leaves
// the location in memory.
func Allocate(w *flow.Window, rf regfile.RegisterFile) Assignment {
	nodes := make(map[*tac.Location]*node)
	get := func(l *tac.Location) *node {
		n, ok := nodes[l]
		if !ok {
			n = &node{loc: l, adj: make(map[*node]struct{}), enabled: true}
			nodes[l] = n
		}
		return n
	}

	candidates := tac.NewLocSet()
	for i1 := w.Begin; i1 < w.End; i1++ {
		e1 := w.Prog.Code[i1]

		interf := tac.NewLocSet()
		for _, l := range e1.Kill() {
			interf.Add(l)
			candidates.Add(l)
			get(l)
		}
		for l := range e1.Flow().Out {
			interf.Add(l)
		}
		for _, l := range e1.Gen() {
			candidates.Add(l)
			get(l)
		}

		// Pairwise edges; the rule is commutative so iteration order
		// does not matter here.
		members := interf.Sorted()
		for i2, u := range members {
			for _, v := range members[i2+1:] {
				un, vn := get(u), get(v)
				un.adj[vn] = struct{}{}
				vn.adj[un] = struct{}{}
			}
		}
	}

	color(nodes, rf.K())

	assignment := make(Assignment)
	for l := range candidates {
		if n, ok := nodes[l]; ok && n.color > 0 {
			assignment[l] = rf.Get(n.color - 1)
		}
	}
	return assignment
}

// color runs the simplify/select colouring. Nodes leave the graph
// lowest enabled degree first, ascending location id breaking ties;
// when no node has fewer than k enabled neighbours the lowest degree
// node leaves anyway as a spill candidate. Reinsertion assigns the
// smallest colour unused among coloured neighbours, or 0 when all k
// colours are taken.
func color(nodes map[*tac.Location]*node, k int) {
	order := make([]*node, 0, len(nodes))
	for _, e1 := range nodes {
		order = append(order, e1)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].loc.Id() < order[j].loc.Id() })

	// Simplify: remove nodes onto the select stack.
	stack := make([]*node, 0, len(order))
	for removed := 0; removed < len(order); {
		var pick *node
		for _, e1 := range order {
			if !e1.enabled {
				continue
			}
			if pick == nil || e1.degree() < pick.degree() {
				pick = e1
			}
		}
		pick.enabled = false
		stack = append(stack, pick)
		removed++
	}

	// Select: pop and colour.
	for i1 := len(stack) - 1; i1 >= 0; i1-- {
		e1 := stack[i1]
		e1.enabled = true
		used := make(map[int]bool, len(e1.adj))
		for n := range e1.adj {
			if n.enabled && n.color > 0 {
				used[n.color] = true
			}
		}
		for c := 1; c <= k; c++ {
			if !used[c] {
				e1.color = c
				break
			}
		}
	}
}

// degree returns the number of enabled neighbours of the node.
func (n *node) degree() int {
	count := 0
	for e1 := range n.adj {
		if e1.enabled {
			count++
		}
	}
	return count
}
