package grid_world

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	. "qmaze/models"

	"github.com/logrusorgru/aurora"
	"github.com/spf13/afero"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParse(t *testing.T) {
	Convey("When parsing a maze", t, func() {
		Convey("The debug maze is valid", func() {
			maze, err := Convert(DebugMaze)
			So(err, ShouldBeNil)
			So(maze.Rows(), ShouldEqual, 2)
			So(maze.Cols(), ShouldEqual, 8)
			So(len(maze.StateSpace()), ShouldEqual, 13)
		})

		Convey("Walls are excluded from the state space, in row-major order", func() {
			maze, err := Parse(strings.NewReader("S*\n.G\n"))
			So(err, ShouldBeNil)
			So(maze.StateSpace(), ShouldResemble, []State{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}})
		})

		Convey("Carriage returns and trailing blank lines are ignored", func() {
			maze, err := Parse(strings.NewReader("S.\r\n.G\r\n\r\n\n"))
			So(err, ShouldBeNil)
			So(maze.Rows(), ShouldEqual, 2)
		})

		Convey("Malformed mazes are rejected", func() {
			for _, rows := range [][]string{
				{},
				{"S..", "..G", ".."},
				{"S.x", "..G"},
				{"...", "..G"},
				{"S.S", "..G"},
				{"S..", "..."},
				{"S..", "", "..G"},
			} {
				_, err := Convert(rows)
				var parseErr *ParseError
				So(errors.As(err, &parseErr), ShouldBeTrue)
			}
		})

		Convey("Row errors report their line", func() {
			_, err := Convert([]string{"S.G", "..", "..."})
			var parseErr *ParseError
			So(errors.As(err, &parseErr), ShouldBeTrue)
			So(parseErr.Line, ShouldEqual, 2)
			So(err.Error(), ShouldContainSubstring, "line 2")
		})

		Convey("Mazes load from a filesystem", func() {
			fs := afero.NewMemMapFs()
			So(afero.WriteFile(fs, "/env/maze.txt", []byte(strings.Join(DebugMaze, "\n")), 0644), ShouldBeNil)
			maze, err := Load(fs, "/env/maze.txt")
			So(err, ShouldBeNil)
			So(maze.Cols(), ShouldEqual, 8)

			_, err = Load(fs, "/env/missing.txt")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestStep(t *testing.T) {
	Convey("Given the maze", t, func() {
		// S . *
		// * . G
		maze, err := Convert([]string{"S.*", "*.G"})
		So(err, ShouldBeNil)

		Convey("Stepping before a reset fails", func() {
			_, _, _, err := maze.Step(EAST)
			So(errors.Is(err, ErrNotReset), ShouldBeTrue)
		})

		Convey("After a reset", func() {
			start, err := maze.Reset()
			So(err, ShouldBeNil)
			So(start, ShouldResemble, State{X: 0, Y: 0})

			Convey("Moving into a wall stays in place", func() {
				next, reward, terminal, err := maze.Step(SOUTH)
				So(err, ShouldBeNil)
				So(next, ShouldResemble, start)
				So(reward, ShouldEqual, STEP_REWARD)
				So(terminal, ShouldBeFalse)
			})

			Convey("Moving off the grid stays in place", func() {
				next, _, _, _ := maze.Step(WEST)
				So(next, ShouldResemble, start)
				next, _, _, _ = maze.Step(NORTH)
				So(next, ShouldResemble, start)
			})

			Convey("Reaching the goal ends the episode", func() {
				next, _, terminal, _ := maze.Step(EAST)
				So(next, ShouldResemble, State{X: 0, Y: 1})
				So(terminal, ShouldBeFalse)
				next, _, terminal, _ = maze.Step(SOUTH)
				So(next, ShouldResemble, State{X: 1, Y: 1})
				So(terminal, ShouldBeFalse)
				next, reward, terminal, _ := maze.Step(EAST)
				So(next, ShouldResemble, State{X: 1, Y: 2})
				So(reward, ShouldEqual, STEP_REWARD)
				So(terminal, ShouldBeTrue)

				_, _, _, err := maze.Step(WEST)
				So(errors.Is(err, ErrEpisodeOver), ShouldBeTrue)

				start, _ = maze.Reset()
				_, _, _, err = maze.Step(EAST)
				So(err, ShouldBeNil)
			})

			Convey("Unknown actions are rejected", func() {
				_, _, _, err := maze.Step(Action(4))
				So(errors.Is(err, ErrInvalidAction), ShouldBeTrue)
				_, _, _, err = maze.Step(Action(-1))
				So(errors.Is(err, ErrInvalidAction), ShouldBeTrue)
			})
		})

		Convey("Every action is a distinct compass move", func() {
			So(maze.ActionSpace(), ShouldResemble, []Action{WEST, NORTH, EAST, SOUTH})
			seen := map[[2]int]bool{}
			for _, a := range maze.ActionSpace() {
				dx, dy := a.Displacement()
				So(dx*dx+dy*dy, ShouldEqual, 1)
				seen[[2]int{dx, dy}] = true
			}
			So(len(seen), ShouldEqual, 4)
		})
	})
}

func TestShow(t *testing.T) {
	Convey("Given the debug maze", t, func() {
		maze, _ := Convert(DebugMaze)
		au := aurora.NewAurora(false)
		var buf bytes.Buffer

		Convey("The grid prints every cell", func() {
			maze.ShowGrid(&buf, au)
			So(buf.String(), ShouldEqual, ". * . . * . . G \nS . . . . . . * \n")
		})

		Convey("The policy prints arrows on open cells", func() {
			policy := map[State]Action{}
			for _, s := range maze.StateSpace() {
				policy[s] = EAST
			}
			delete(policy, State{X: 1, Y: 0})
			maze.ShowPolicy(&buf, au, policy)
			lines := strings.Split(buf.String(), "\n")
			So(lines[0], ShouldEqual, " → * → → * → → G ")
			So(lines[1], ShouldEqual, " ? → → → → → → * ")
		})

		Convey("The values print with their total", func() {
			maze.ShowValues(&buf, map[State]float64{{X: 0, Y: 0}: -1.5, {X: 1, Y: 0}: -2})
			So(buf.String(), ShouldContainSubstring, "Max vals:")
			So(buf.String(), ShouldContainSubstring, "  -1.50")
			So(buf.String(), ShouldContainSubstring, "Pi total: -3.50")
		})
	})
}
