package search

import "parcelbot.ai/internal/grid"

// Occupancy reports tiles currently occupied by other agents. It is read fresh
// on every query.
type Occupancy interface {
	Occupied(p grid.Position) bool
}

type Stats struct {
	Searches        int
	Hits            int
	Misses          int
	UnsafeEvictions int
	ReuseEvictions  int
}

const (
	// DefaultMaxEntries bounds the memo; exceeding it drops the whole cache.
	DefaultMaxEntries = 200_000

	// An entry may be served this many times before it is recomputed.
	maxReuse = 1
)

type cacheKey struct {
	start    grid.Position
	end      grid.Position
	delivery bool
}

// tree is one BFS parent forest rooted at start. Entries seeded by the same
// search share it.
type tree struct {
	start  grid.Position
	parent map[grid.Position]grid.Position
}

func (t *tree) path(end grid.Position) Path {
	if _, ok := t.parent[end]; !ok {
		return Path{}
	}
	var rev []grid.Position
	for cur := end; ; cur = t.parent[cur] {
		rev = append(rev, cur)
		if cur == t.start {
			break
		}
	}
	ps := make([]grid.Position, len(rev))
	for i := range rev {
		ps[i] = rev[len(rev)-1-i]
	}
	return FromPositions(ps)
}

type entry struct {
	tree *tree
	end  grid.Position
	uses int
}

// Engine answers grid queries for a single agent. It is not safe for
// concurrent use; the agent loop is its only caller.
type Engine struct {
	m   *grid.Map
	occ Occupancy

	maxEntries int
	cache      map[cacheKey]*entry
	stats      Stats
}

func NewEngine(m *grid.Map, occ Occupancy) *Engine {
	return &Engine{
		m:          m,
		occ:        occ,
		maxEntries: DefaultMaxEntries,
		cache:      make(map[cacheKey]*entry),
	}
}

func (e *Engine) SetMaxEntries(n int) {
	if n > 0 {
		e.maxEntries = n
	}
}

// SetMap swaps the tile layout and drops every memoized path.
func (e *Engine) SetMap(m *grid.Map) {
	e.m = m
	e.Reset()
}

func (e *Engine) Map() *grid.Map { return e.m }

func (e *Engine) Reset() {
	e.cache = make(map[cacheKey]*entry)
}

func (e *Engine) Stats() Stats { return e.stats }

func (e *Engine) CacheSize() int { return len(e.cache) }

func (e *Engine) IsValidPosition(x, y int, ignoreAgents bool) bool {
	if e.m == nil {
		return false
	}
	p := grid.Position{X: x, Y: y}
	if !e.m.InBounds(p) || !e.m.Tile(p).Passable() {
		return false
	}
	if !ignoreAgents && e.occ != nil && e.occ.Occupied(p) {
		return false
	}
	return true
}

func (e *Engine) valid(p grid.Position) bool { return e.IsValidPosition(p.X, p.Y, false) }

// IsPathSafe reports whether no position is occupied by another agent.
func (e *Engine) IsPathSafe(ps []grid.Position) bool {
	if e.occ == nil {
		return true
	}
	for _, p := range ps {
		if e.occ.Occupied(p) {
			return false
		}
	}
	return true
}

// ShortestPath runs a BFS from start to end. The zero Path is returned when end
// cannot be reached.
func (e *Engine) ShortestPath(start, end grid.Position) Path {
	if start == end {
		return Path{Positions: []grid.Position{start}}
	}
	key := cacheKey{start: start, end: end}
	if p, ok := e.lookup(key); ok {
		return p
	}
	t, found := e.bfs(start, func(p grid.Position) bool { return p == end })
	if !found {
		return Path{}
	}
	e.store(key, t, end)
	return t.path(end)
}

// NearestDeliveryTile runs a BFS from start to the closest delivery tile.
func (e *Engine) NearestDeliveryTile(start grid.Position) Path {
	if e.m == nil {
		return Path{}
	}
	if e.m.IsDelivery(start) {
		return Path{Positions: []grid.Position{start}}
	}
	key := cacheKey{start: start, delivery: true}
	if p, ok := e.lookup(key); ok {
		return p
	}
	var end grid.Position
	t, found := e.bfs(start, func(p grid.Position) bool {
		if e.m.IsDelivery(p) {
			end = p
			return true
		}
		return false
	})
	if !found {
		return Path{}
	}
	e.store(key, t, end)
	return t.path(end)
}

func (e *Engine) lookup(key cacheKey) (Path, bool) {
	ent, ok := e.cache[key]
	if !ok {
		e.stats.Misses++
		return Path{}, false
	}
	if ent.uses >= maxReuse {
		delete(e.cache, key)
		e.stats.ReuseEvictions++
		e.stats.Misses++
		return Path{}, false
	}
	p := ent.tree.path(ent.end)
	if !p.Reachable() || !e.IsPathSafe(p.Positions[1:]) {
		delete(e.cache, key)
		e.stats.UnsafeEvictions++
		e.stats.Misses++
		return Path{}, false
	}
	ent.uses++
	e.stats.Hits++
	return p, true
}

func (e *Engine) store(key cacheKey, t *tree, end grid.Position) {
	e.cache[key] = &entry{tree: t, end: end}
}

// bfs expands from start in the fixed direction order until goal matches a
// discovered node. Every discovered node is memoized as a subpath from start.
func (e *Engine) bfs(start grid.Position, goal func(grid.Position) bool) (*tree, bool) {
	e.stats.Searches++
	if len(e.cache) > e.maxEntries {
		e.Reset()
	}
	t := &tree{start: start, parent: map[grid.Position]grid.Position{start: start}}
	queue := []grid.Position{start}
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		for _, d := range grid.Directions {
			np := cur.Add(d)
			if _, seen := t.parent[np]; seen {
				continue
			}
			if !e.valid(np) {
				continue
			}
			t.parent[np] = cur
			k := cacheKey{start: start, end: np}
			if _, ok := e.cache[k]; !ok {
				e.cache[k] = &entry{tree: t, end: np}
			}
			if goal(np) {
				return t, true
			}
			queue = append(queue, np)
		}
	}
	return t, false
}
