package grid_world

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	. "qmaze/models"

	"github.com/spf13/afero"
)

// Rewards
const (
	STEP_REWARD = -1
)

var (
	// ErrNotReset is returned when Step is called before the first Reset.
	ErrNotReset = errors.New("maze: step called before reset")
	// ErrEpisodeOver is returned when Step is called after reaching a goal, without a Reset.
	ErrEpisodeOver = errors.New("maze: step called after episode termination")
	// ErrInvalidAction is returned for actions outside the action space.
	ErrInvalidAction = errors.New("maze: invalid action")
)

// ParseError describes a malformed maze file.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("maze: line %d: %s", e.Line, e.Reason)
	}
	return "maze: " + e.Reason
}

// Maze is a deterministic grid environment. The agent starts on the START cell and
// moves one cell per step in a compass direction; moves into walls or off the grid
// leave it in place. Every step costs STEP_REWARD and reaching a GOAL cell ends the episode.
// A Maze is not safe for concurrent use.
type Maze struct {
	cells  [][]rune
	start  State
	states []State

	current  State
	started  bool
	finished bool
}

// DebugMaze is a small maze for development and tests.
var DebugMaze []string = []string{
	".*..*..G",
	"S......*",
}

// Load reads a maze file from the passed filesystem.
func Load(fs afero.Fs, path string) (*Maze, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load maze: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a maze from lines of OPEN, WALL, START and GOAL cells. Blank trailing
// lines and carriage returns are ignored. The maze must be rectangular, contain exactly
// one START and at least one GOAL.
func Parse(r io.Reader) (*Maze, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse maze: %w", err)
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return Convert(lines)
}

// Convert builds a maze from its rows. See Parse for the accepted format.
func Convert(rows []string) (*Maze, error) {
	if len(rows) == 0 {
		return nil, &ParseError{Reason: "empty maze"}
	}

	width := len([]rune(rows[0]))
	maze := &Maze{cells: make([][]rune, 0, len(rows))}
	starts, goals := 0, 0
	for x, row := range rows {
		cells := []rune(row)
		if len(cells) == 0 {
			return nil, &ParseError{Line: x + 1, Reason: "empty row"}
		}
		if len(cells) != width {
			return nil, &ParseError{
				Line:   x + 1,
				Reason: fmt.Sprintf("row has %d cells, expected %d", len(cells), width),
			}
		}
		for y, cell := range cells {
			switch cell {
			case START:
				starts++
				maze.start = State{X: x, Y: y}
			case GOAL:
				goals++
			case OPEN, WALL:
			default:
				return nil, &ParseError{Line: x + 1, Reason: fmt.Sprintf("unknown cell %q at column %d", cell, y)}
			}
			if cell != WALL {
				maze.states = append(maze.states, State{X: x, Y: y})
			}
		}
		maze.cells = append(maze.cells, cells)
	}

	if starts != 1 {
		return nil, &ParseError{Reason: fmt.Sprintf("expected exactly one start cell, found %d", starts)}
	}
	if goals == 0 {
		return nil, &ParseError{Reason: "no goal cell"}
	}
	return maze, nil
}

// Rows returns the number of maze rows.
func (m *Maze) Rows() int {
	return len(m.cells)
}

// Cols returns the number of maze columns.
func (m *Maze) Cols() int {
	return len(m.cells[0])
}

// CellType returns the cell rune at the passed position, or WALL if off the grid.
func (m *Maze) CellType(s State) rune {
	if s.X < 0 || s.X >= m.Rows() || s.Y < 0 || s.Y >= m.Cols() {
		return WALL
	}
	return m.cells[s.X][s.Y]
}

// StateSpace returns every non-wall cell in row-major order.
func (m *Maze) StateSpace() []State {
	states := make([]State, len(m.states))
	copy(states, m.states)
	return states
}

// ActionSpace returns the compass moves, always in the same order.
func (m *Maze) ActionSpace() []Action {
	return []Action{WEST, NORTH, EAST, SOUTH}
}

// Reset places the agent on the start cell.
func (m *Maze) Reset() (State, error) {
	m.current = m.start
	m.started = true
	m.finished = false
	return m.current, nil
}

// Step moves the agent and returns its new position, the reward, and whether a goal was reached.
func (m *Maze) Step(action Action) (next State, reward float64, terminal bool, err error) {
	if !m.started {
		return next, 0, false, ErrNotReset
	}
	if m.finished {
		return next, 0, false, ErrEpisodeOver
	}
	if action < 0 || action >= NUM_ACTIONS {
		return next, 0, false, fmt.Errorf("%w: %d", ErrInvalidAction, action)
	}

	dx, dy := action.Displacement()
	next = State{X: m.current.X + dx, Y: m.current.Y + dy}
	if m.CellType(next) == WALL {
		next = m.current
	}

	m.current = next
	m.finished = m.CellType(next) == GOAL
	return next, STEP_REWARD, m.finished, nil
}
