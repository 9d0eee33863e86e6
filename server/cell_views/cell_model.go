// cell_views contains views derived from the Cell view-model.
package cell_views

import (
	"fmt"
	"math"

	. "qmaze/models"
	"qmaze/reinforcement"
)

// Cell is a maze cell in svg coordinates: X is the column and Y the row, such that [0][0]
// is the top left cell as printed in the console. Cell fields should be immediately usable
// as view parameters.
type Cell struct {
	X, Y int
	Max  float64
	// HasValue is set for cells in the state space; walls have no value or policy.
	HasValue            bool
	ShowArrow           bool
	PolicyArrowRotation int
	Fill                string
}

// Grid is the view-model of a snapshot: the maze cells, indexed [column][row], and the
// training progress at the time of the snapshot.
type Grid struct {
	Cells         [][]Cell
	Episode       int
	EpisodeLength int
	Epsilon       float64
}

// Layout is the geometry of the maze being drawn.
type Layout interface {
	Rows() int
	Cols() int
	CellType(State) rune
}

// Converter returns a function converting snapshots of training on @layout into Grids.
func Converter(layout Layout) func(reinforcement.Snapshot) Grid {
	return func(snapshot reinforcement.Snapshot) Grid {
		return Convert(layout, snapshot)
	}
}

// Convert transforms a policy snapshot into a Grid. Policy entries outside the layout are ignored.
func Convert(layout Layout, snapshot reinforcement.Snapshot) Grid {
	rows, cols := layout.Rows(), layout.Cols()
	cells := make([][]Cell, cols)
	for x := range cells {
		cells[x] = make([]Cell, rows)
		for y := range cells[x] {
			cells[x][y] = Cell{
				X:    x,
				Y:    y,
				Fill: getFill(layout.CellType(State{X: y, Y: x})),
			}
		}
	}

	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for _, d := range snapshot.Policy {
		minVal = math.Min(minVal, d.Value)
		maxVal = math.Max(maxVal, d.Value)
	}

	for _, d := range snapshot.Policy {
		x, y := d.State.Y, d.State.X
		if x < 0 || x >= cols || y < 0 || y >= rows {
			continue
		}
		cell := &cells[x][y]
		cell.Max = d.Value
		cell.HasValue = true
		cell.PolicyArrowRotation = getDegrees(d.Action)
		cellType := layout.CellType(d.State)
		cell.ShowArrow = cellType != GOAL
		if cellType == OPEN {
			cell.Fill = getRGBFill(d.Value, minVal, maxVal)
		}
	}

	return Grid{
		Cells:         cells,
		Episode:       snapshot.Episode,
		EpisodeLength: snapshot.EpisodeLength,
		Epsilon:       snapshot.Epsilon,
	}
}

// getDegrees returns the svg rotation of an upward arrow rune pointing in the action's direction.
func getDegrees(action Action) int {
	switch action {
	case EAST:
		return 90
	case SOUTH:
		return 180
	case WEST:
		return 270
	}
	return 0
}

// getRGBFill shades a value between red (lowest) and blue (highest), washed out so text stays legible.
func getRGBFill(val, minVal, maxVal float64) string {
	bluePct := 100
	if span := maxVal - minVal; span > 0 {
		bluePct = int(100.0 * (val - minVal) / span)
	}
	return fmt.Sprintf("rgba(%d%%,0%%,%d%%,0.25)", 100-bluePct, bluePct)
}

func getFill(cellType rune) (fill string) {
	switch cellType {
	case WALL:
		fill = "dimgray"
	case OPEN:
		fill = "white"
	case START:
		fill = "lightblue"
	case GOAL:
		fill = "lightgreen"
	}
	return
}
