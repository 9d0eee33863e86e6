package models

import "fmt"

// State is a maze position: X is the row and Y the column of the cell, counted from the
// top left of the maze file. States are plain values and are safe to use as map keys.
type State struct {
	X, Y int
}

func (s State) String() string {
	return fmt.Sprintf("(%d,%d)", s.X, s.Y)
}

// Action is an index into the environment's action set. The environment defines
// what each index means; only the order of its action space is relied upon.
type Action int

// Maze cell types, as they appear in maze files.
const (
	OPEN  = '.'
	WALL  = '*'
	START = 'S'
	GOAL  = 'G'
)

// The four compass moves of the maze, in action-space order.
const (
	WEST Action = iota
	NORTH
	EAST
	SOUTH
	NUM_ACTIONS = 4
)

// Displacement returns the row/column delta of a compass move.
// Unknown actions do not move.
func (a Action) Displacement() (dx, dy int) {
	switch a {
	case WEST:
		dy = -1
	case NORTH:
		dx = -1
	case EAST:
		dy = 1
	case SOUTH:
		dx = 1
	}
	return
}

// Arrow returns a printable rune for a compass move.
func (a Action) Arrow() rune {
	switch a {
	case WEST:
		return '←'
	case NORTH:
		return '↑'
	case EAST:
		return '→'
	case SOUTH:
		return '↓'
	}
	return '?'
}
