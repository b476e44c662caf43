package compliance

import (
	"sort"

	"vesselcheck/internal/domain"
)

// Graph is the item dependency graph of one checklist. Edges point from an item to the
// items it depends on.
type Graph struct {
	nodes map[string]domain.ChecklistItem
	ids   []string
}

// NewGraph indexes items by id. Duplicate ids keep the first occurrence; CheckIntegrity
// reports them.
func NewGraph(items []domain.ChecklistItem) *Graph {
	g := &Graph{nodes: make(map[string]domain.ChecklistItem, len(items))}
	for _, it := range items {
		if _, dup := g.nodes[it.ID]; dup {
			continue
		}
		g.nodes[it.ID] = it
		g.ids = append(g.ids, it.ID)
	}
	return g
}

// Dangling returns dependency ids of the item that resolve to no item.
func (g *Graph) Dangling(item domain.ChecklistItem) []string {
	var out []string
	for _, dep := range item.Dependencies {
		if _, ok := g.nodes[dep]; !ok {
			out = append(out, dep)
		}
	}
	return out
}

const (
	white = iota
	grey
	black
)

// DetectCycles walks the graph depth-first with white/grey/black colouring and returns the
// first cycle found. Dangling edges are ignored here.
func (g *Graph) DetectCycles() error {
	color := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range g.nodes[id].Dependencies {
			if _, ok := g.nodes[dep]; !ok {
				continue
			}
			switch color[dep] {
			case grey:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, stack[start:]...), dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}
	for _, id := range g.ids {
		if color[id] == white && visit(id) {
			return &CyclicDependencyError{Cycle: cycle}
		}
	}
	return nil
}

// Order returns item ids with every dependency before its dependents. Independent items
// keep category/order/id ordering. The graph must be acyclic.
func (g *Graph) Order() ([]string, error) {
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}
	ids := append([]string{}, g.ids...)
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := g.nodes[ids[i]], g.nodes[ids[j]]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	var place func(id string)
	place = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		for _, dep := range g.nodes[id].Dependencies {
			if _, ok := g.nodes[dep]; ok {
				place(dep)
			}
		}
		out = append(out, id)
	}
	for _, id := range ids {
		place(id)
	}
	return out, nil
}

// Readiness describes whether an item may transition to completed.
type Readiness struct {
	Ready    bool     `json:"ready"`
	Pending  []string `json:"pending,omitempty"`
	Dangling []string `json:"dangling,omitempty"`
}

// Err returns a DependencyError when the item is not ready.
func (r Readiness) Err(itemID string) error {
	if r.Ready {
		return nil
	}
	return &DependencyError{ItemID: itemID, Pending: r.Pending, Dangling: r.Dangling}
}

// IsReady reports whether every dependency of item exists in the checklist and is completed.
// Dangling references keep the item permanently not ready.
func IsReady(item domain.ChecklistItem, c domain.Checklist) Readiness {
	g := NewGraph(c.Items)
	var r Readiness
	for _, dep := range item.Dependencies {
		d, ok := g.nodes[dep]
		switch {
		case !ok:
			r.Dangling = append(r.Dangling, dep)
		case d.Status != domain.ItemCompleted:
			r.Pending = append(r.Pending, dep)
		}
	}
	r.Ready = len(r.Pending) == 0 && len(r.Dangling) == 0
	return r
}

// Blocked lists items whose dependencies reference missing items, keyed by item id.
func Blocked(c domain.Checklist) map[string][]string {
	g := NewGraph(c.Items)
	out := map[string][]string{}
	for _, it := range c.Items {
		if d := g.Dangling(it); len(d) > 0 {
			out[it.ID] = d
		}
	}
	return out
}
