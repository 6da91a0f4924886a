package grid

import "fmt"

type Tile uint8

const (
	Wall Tile = iota
	Spawner
	Delivery
	Walkable
)

func (t Tile) Passable() bool { return t != Wall }

// Map is the static tile layout. Tiles are indexed [x][y].
type Map struct {
	Width  int
	Height int

	tiles     [][]Tile
	delivery  []Position
	spawners  []Position
	walkables []Position
}

func NewMap(tiles [][]Tile) (*Map, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("empty map")
	}
	h := len(tiles[0])
	for x, col := range tiles {
		if len(col) != h {
			return nil, fmt.Errorf("ragged map: column %d has %d tiles, want %d", x, len(col), h)
		}
	}
	m := &Map{Width: len(tiles), Height: h, tiles: tiles}
	for x := 0; x < m.Width; x++ {
		for y := 0; y < m.Height; y++ {
			p := Position{X: x, Y: y}
			switch tiles[x][y] {
			case Delivery:
				m.delivery = append(m.delivery, p)
			case Spawner:
				m.spawners = append(m.spawners, p)
			}
			if tiles[x][y].Passable() {
				m.walkables = append(m.walkables, p)
			}
		}
	}
	return m, nil
}

// Open builds a width×height map of walkable tiles with the given delivery tiles.
func Open(width, height int, delivery ...Position) *Map {
	tiles := make([][]Tile, width)
	for x := range tiles {
		tiles[x] = make([]Tile, height)
		for y := range tiles[x] {
			tiles[x][y] = Walkable
		}
	}
	for _, p := range delivery {
		tiles[p.X][p.Y] = Delivery
	}
	m, _ := NewMap(tiles)
	return m
}

func (m *Map) InBounds(p Position) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < m.Width && p.Y < m.Height
}

func (m *Map) Tile(p Position) Tile {
	if !m.InBounds(p) {
		return Wall
	}
	return m.tiles[p.X][p.Y]
}

func (m *Map) IsDelivery(p Position) bool { return m.Tile(p) == Delivery }

func (m *Map) DeliveryTiles() []Position { return m.delivery }
func (m *Map) SpawnerTiles() []Position  { return m.spawners }
func (m *Map) WalkableTiles() []Position { return m.walkables }
