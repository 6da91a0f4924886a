package grid

import "fmt"

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

func (p Position) Add(d Direction) Position {
	v := d.Vec()
	return Position{X: p.X + v.X, Y: p.Y + v.Y}
}

// Distance is the Manhattan distance between a and b.
func Distance(a, b Position) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

type Direction string

const (
	Right Direction = "right"
	Left  Direction = "left"
	Up    Direction = "up"
	Down  Direction = "down"
)

// Directions is the fixed expansion order used by every search.
var Directions = [4]Direction{Right, Left, Up, Down}

func (d Direction) Vec() Position {
	switch d {
	case Right:
		return Position{X: 1}
	case Left:
		return Position{X: -1}
	case Up:
		return Position{Y: 1}
	case Down:
		return Position{Y: -1}
	}
	return Position{}
}

func (d Direction) Opposite() Direction {
	switch d {
	case Right:
		return Left
	case Left:
		return Right
	case Up:
		return Down
	case Down:
		return Up
	}
	return d
}

// DirectionTo returns the direction of a single step from a to b.
func DirectionTo(a, b Position) (Direction, bool) {
	for _, d := range Directions {
		if a.Add(d) == b {
			return d, true
		}
	}
	return "", false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
