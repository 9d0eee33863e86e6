package grid_world

import (
	"fmt"
	"io"

	. "qmaze/models"

	"github.com/logrusorgru/aurora"
)

// ShowGrid prints the maze, for visual reference.
func (m *Maze) ShowGrid(w io.Writer, au aurora.Aurora) {
	for x := range m.cells {
		for y := range m.cells[x] {
			fmt.Fprintf(w, "%s ", paint(au, m.cells[x][y], string(m.cells[x][y])))
		}
		fmt.Fprintln(w)
	}
}

// ShowPolicy prints the policy's action at every open cell as an arrow. Walls and
// goals are printed as their cell type; cells missing from the policy print as '?'.
func (m *Maze) ShowPolicy(w io.Writer, au aurora.Aurora, policy map[State]Action) {
	for x := range m.cells {
		fmt.Fprint(w, " ")
		for y, cell := range m.cells[x] {
			symbol := string(cell)
			if cell == OPEN || cell == START {
				symbol = "?"
				if action, ok := policy[State{X: x, Y: y}]; ok {
					symbol = string(action.Arrow())
				}
			}
			fmt.Fprintf(w, "%s ", paint(au, cell, symbol))
		}
		fmt.Fprintln(w)
	}
}

// ShowValues prints the state values in grid layout, and their total.
func (m *Maze) ShowValues(w io.Writer, values map[State]float64) {
	fmt.Fprintln(w, "Max vals:")
	total := 0.0
	for x := range m.cells {
		fmt.Fprint(w, " ")
		for y := range m.cells[x] {
			val, ok := values[State{X: x, Y: y}]
			if !ok {
				fmt.Fprintf(w, "%7s ", "-")
				continue
			}
			fmt.Fprintf(w, "%7.2f ", val)
			total += val
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Pi total: %.2f\n", total)
}

func paint(au aurora.Aurora, cell rune, symbol string) aurora.Value {
	switch cell {
	case WALL:
		return au.Gray(12, symbol)
	case START:
		return au.Blue(symbol)
	case GOAL:
		return au.Green(symbol)
	}
	return au.Reset(symbol)
}
