package reinforcement

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/spf13/afero"
)

// formatValue returns the shortest representation that parses back to exactly @val.
func formatValue(val float64) string {
	return strconv.FormatFloat(val, 'g', -1, 64)
}

// WriteQValues writes one `<x> <y> <action> <q_value>` line per state-action pair.
func WriteQValues(fs afero.Fs, path string, qvalues []QValue) error {
	return writeFile(fs, path, func(w io.Writer) error {
		for _, qv := range qvalues {
			if _, err := fmt.Fprintf(w, "%d %d %d %s\n", qv.State.X, qv.State.Y, qv.Action, formatValue(qv.Value)); err != nil {
				return err
			}
		}
		return nil
	})
}

// WritePolicy writes one `<x> <y> <greedy_action>` line per state.
func WritePolicy(fs afero.Fs, path string, policy []Decision) error {
	return writeFile(fs, path, func(w io.Writer) error {
		for _, d := range policy {
			if _, err := fmt.Fprintf(w, "%d %d %d\n", d.State.X, d.State.Y, d.Action); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteValues writes one `<x> <y> <value>` line per state.
func WriteValues(fs afero.Fs, path string, values []StateValue) error {
	return writeFile(fs, path, func(w io.Writer) error {
		for _, sv := range values {
			if _, err := fmt.Fprintf(w, "%d %d %s\n", sv.State.X, sv.State.Y, formatValue(sv.Value)); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteLearningCurve renders the episode lengths as an html line chart.
func WriteLearningCurve(fs afero.Fs, path string, lengths []int) error {
	episodes := make([]int, len(lengths))
	items := make([]opts.LineData, len(lengths))
	for i, length := range lengths {
		episodes[i] = i + 1
		items[i] = opts.LineData{Value: length}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: "Episode length",
		}),
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Q-learning",
			Theme:     "shine",
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "episode"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "steps"}),
	)
	line.SetXAxis(episodes).AddSeries("length", items)

	page := components.NewPage()
	page.AddCharts(line)
	return writeFile(fs, path, page.Render)
}

// writeFile writes a file all-or-nothing: content goes to a temporary file in the target's
// directory, which replaces the target only once fully written. On failure the temporary
// file is removed and the target is left untouched.
func writeFile(fs afero.Fs, path string, write func(io.Writer) error) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := afero.TempFile(fs, dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = fs.Remove(tmp.Name())
			err = fmt.Errorf("write %s: %w", path, err)
		}
	}()

	buf := bufio.NewWriter(tmp)
	if err = write(buf); err != nil {
		return err
	}
	if err = buf.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return fs.Rename(tmp.Name(), path)
}
