package cell_views

import (
	"html/template"
	"strconv"

	"qmaze/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// Progress shows the episode count, the last episode's length and the exploration rate.
type Progress struct {
	name    string
	updates <-chan []fastview.EleUpdate
}

func NewProgress(
	done <-chan struct{},
	grids <-chan Grid,
) *Progress {
	pv := &Progress{name: "progress"}
	pv.updates = channerics.Convert(done, grids, pv.onUpdate)
	return pv
}

func (pv *Progress) Updates() <-chan []fastview.EleUpdate {
	return pv.updates
}

func (pv *Progress) Parse(parent *template.Template) (name string, err error) {
	name = pv.name
	_, err = parent.Parse(
		`{{ define "` + name + `" }}
		<p id="` + name + `" style="font-family: monospace;">
			episode <span id="progress-episode">{{ .Episode }}</span>
			&middot; length <span id="progress-length">{{ .EpisodeLength }}</span>
			&middot; epsilon <span id="progress-epsilon">{{ printf "%.3f" .Epsilon }}</span>
		</p>
		{{ end }}`)
	return
}

func (pv *Progress) onUpdate(grid Grid) []fastview.EleUpdate {
	text := func(id, val string) fastview.EleUpdate {
		return fastview.EleUpdate{
			EleId: id,
			Ops:   []fastview.Op{{Key: fastview.TextContent, Value: val}},
		}
	}
	return []fastview.EleUpdate{
		text("progress-episode", strconv.Itoa(grid.Episode)),
		text("progress-length", strconv.Itoa(grid.EpisodeLength)),
		text("progress-epsilon", strconv.FormatFloat(grid.Epsilon, 'f', 3, 64)),
	}
}
