package reinforcement

import (
	"errors"
	"io"
	"strings"
	"testing"

	. "qmaze/models"

	"github.com/spf13/afero"

	. "github.com/smartystreets/goconvey/convey"
)

func readLines(fs afero.Fs, path string) []string {
	data, err := afero.ReadFile(fs, path)
	So(err, ShouldBeNil)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestOutputs(t *testing.T) {
	Convey("Given a trained table", t, func() {
		ix, err := NewIndexer([]State{{X: 0, Y: 0}, {X: 1, Y: 2}}, []Action{WEST, EAST})
		So(err, ShouldBeNil)
		table := NewQTable(ix)
		table.Set(State{X: 0, Y: 0}, EAST, 1.5)
		table.Set(State{X: 1, Y: 2}, WEST, -0.1)
		table.Set(State{X: 1, Y: 2}, EAST, -0.25)

		fs := afero.NewMemMapFs()

		Convey("The q-value file has one line per pair", func() {
			So(WriteQValues(fs, "/out/q.txt", table.QValues()), ShouldBeNil)
			So(readLines(fs, "/out/q.txt"), ShouldResemble, []string{
				"0 0 0 0",
				"0 0 2 1.5",
				"1 2 0 -0.1",
				"1 2 2 -0.25",
			})
		})

		Convey("The policy file has the greedy action of every state", func() {
			So(WritePolicy(fs, "/out/policy.txt", table.Policy()), ShouldBeNil)
			So(readLines(fs, "/out/policy.txt"), ShouldResemble, []string{
				"0 0 2",
				"1 2 0",
			})
		})

		Convey("The value file has the greedy value of every state", func() {
			So(WriteValues(fs, "/out/values.txt", table.ValueFunction()), ShouldBeNil)
			So(readLines(fs, "/out/values.txt"), ShouldResemble, []string{
				"0 0 1.5",
				"1 2 -0.1",
			})
		})

		Convey("Written values parse back exactly", func() {
			table.Set(State{X: 0, Y: 0}, WEST, 1.0/3.0)
			So(WriteQValues(fs, "q.txt", table.QValues()), ShouldBeNil)
			So(readLines(fs, "q.txt")[0], ShouldEqual, "0 0 0 0.3333333333333333")
		})

		Convey("An existing file is replaced", func() {
			So(afero.WriteFile(fs, "/out/policy.txt", []byte("stale\nstale\nstale\n"), 0644), ShouldBeNil)
			So(WritePolicy(fs, "/out/policy.txt", table.Policy()), ShouldBeNil)
			So(len(readLines(fs, "/out/policy.txt")), ShouldEqual, 2)
		})

		Convey("The learning curve is written as html", func() {
			So(WriteLearningCurve(fs, "/out/curve.html", []int{40, 22, 9}), ShouldBeNil)
			data, err := afero.ReadFile(fs, "/out/curve.html")
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, "<html>")
			So(string(data), ShouldContainSubstring, "Episode length")
		})
	})

	Convey("When a write fails", t, func() {
		fs := afero.NewMemMapFs()
		So(afero.WriteFile(fs, "/out/values.txt", []byte("previous\n"), 0644), ShouldBeNil)
		errPartial := errors.New("disk full")

		err := writeFile(fs, "/out/values.txt", func(w io.Writer) error {
			_, _ = io.WriteString(w, "1 2 3\n")
			return errPartial
		})

		Convey("The error is returned", func() {
			So(errors.Is(err, errPartial), ShouldBeTrue)
		})

		Convey("The target is untouched and no temporary file remains", func() {
			So(readLines(fs, "/out/values.txt"), ShouldResemble, []string{"previous"})
			entries, readErr := afero.ReadDir(fs, "/out")
			So(readErr, ShouldBeNil)
			So(len(entries), ShouldEqual, 1)
		})
	})

	Convey("When the filesystem is read-only", t, func() {
		fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
		err := WriteValues(fs, "/out/values.txt", nil)
		So(err, ShouldNotBeNil)
		exists, _ := afero.Exists(fs, "/out/values.txt")
		So(exists, ShouldBeFalse)
	})
}
