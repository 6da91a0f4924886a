package search

import "parcelbot.ai/internal/grid"

// FindMidpointBidirectional expands alternately from a and b, one BFS layer at
// a time, and stops at the first tile reached by both frontiers. It returns
// that tile and the full walk from a to b through it.
func (e *Engine) FindMidpointBidirectional(a, b grid.Position) (grid.Position, Path, bool) {
	if a == b {
		return a, Path{Positions: []grid.Position{a}}, true
	}
	ta := &tree{start: a, parent: map[grid.Position]grid.Position{a: a}}
	tb := &tree{start: b, parent: map[grid.Position]grid.Position{b: b}}
	qa := []grid.Position{a}
	qb := []grid.Position{b}

	// expand grows one layer of from and reports the first tile already known
	// to other.
	expand := func(from, other *tree, q []grid.Position) ([]grid.Position, grid.Position, bool) {
		var next []grid.Position
		for _, cur := range q {
			for _, d := range grid.Directions {
				np := cur.Add(d)
				if _, seen := from.parent[np]; seen {
					continue
				}
				_, meet := other.parent[np]
				if !meet && !e.valid(np) {
					continue
				}
				from.parent[np] = cur
				if meet {
					return nil, np, true
				}
				next = append(next, np)
			}
		}
		return next, grid.Position{}, false
	}

	for len(qa) > 0 || len(qb) > 0 {
		var (
			mid grid.Position
			hit bool
		)
		if len(qa) > 0 {
			qa, mid, hit = expand(ta, tb, qa)
			if hit {
				return mid, join(ta, tb, mid), true
			}
		}
		if len(qb) > 0 {
			qb, mid, hit = expand(tb, ta, qb)
			if hit {
				return mid, join(ta, tb, mid), true
			}
		}
		if len(qa) == 0 || len(qb) == 0 {
			break
		}
	}
	return grid.Position{}, Path{}, false
}

func join(ta, tb *tree, mid grid.Position) Path {
	first := ta.path(mid)
	second := tb.path(mid)
	if !first.Reachable() || !second.Reachable() {
		return Path{}
	}
	ps := append([]grid.Position(nil), first.Positions...)
	for i := len(second.Positions) - 2; i >= 0; i-- {
		ps = append(ps, second.Positions[i])
	}
	return FromPositions(ps)
}
