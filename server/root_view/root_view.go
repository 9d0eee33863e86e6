package root_view

import (
	"context"
	"html/template"
	"time"

	"qmaze/reinforcement"
	"qmaze/server/cell_views"
	"qmaze/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// The window within which ele-updates are coalesced before being sent on.
const batchWindow = time.Millisecond * 20

// RootView is the main page's index.html, which is the container for all the
// view components and the wiring for their channels.
type RootView struct {
	views   []fastview.ViewComponent
	updates <-chan []fastview.EleUpdate
}

// NewRootView creates the main page and the views it contains, fed by policy snapshots.
// All channels close when @ctx is cancelled.
func NewRootView(
	ctx context.Context,
	layout cell_views.Layout,
	snapshots <-chan reinforcement.Snapshot,
) (*RootView, error) {
	views, err := fastview.NewViewBuilder[reinforcement.Snapshot, cell_views.Grid]().
		WithContext(ctx).
		WithModel(snapshots, cell_views.Converter(layout)).
		WithView(func(
			done <-chan struct{},
			grids <-chan cell_views.Grid) fastview.ViewComponent {
			return cell_views.NewProgress(done, grids)
		}).
		WithView(func(
			done <-chan struct{},
			grids <-chan cell_views.Grid) fastview.ViewComponent {
			return cell_views.NewValuesGrid(done, grids)
		}).
		Build()
	if err != nil {
		return nil, err
	}

	return &RootView{
		views:   views,
		updates: fanIn(ctx.Done(), views),
	}, nil
}

// Updates returns the main ele-update channel for all the views.
func (rv *RootView) Updates() <-chan []fastview.EleUpdate {
	return rv.updates
}

// Parse builds the main page's template, with websocket bootstrap code, and returns its name.
// It also sets up the func-map that the child components depend on.
func (rv *RootView) Parse(
	parent *template.Template,
) (name string, err error) {
	rt := parent.Funcs(
		template.FuncMap{
			"add":  func(i, j int) int { return i + j },
			"sub":  func(i, j int) int { return i - j },
			"mult": func(i, j int) int { return i * j },
			"div":  func(i, j int) int { return i / j },
		})

	var bodySpec string
	for _, vc := range rv.views {
		tname, parseErr := vc.Parse(rt)
		if parseErr != nil {
			return "", parseErr
		}
		bodySpec += `{{ template "` + tname + `" . }}`
	}

	// The main template bootstraps the rest: sets up client websocket and updates, aggregates views.
	name = "mainpage"
	indexTemplate := `
	{{ define "` + name + `" }}
	<!DOCTYPE html>
	<html>
		<head>
			<title>qmaze</title>
			<link rel="icon" href="data:,">
			<!--The server pushes new data to the view via websocket.-->
			<script>
				const ws = new WebSocket("ws://" + location.host + "/ws");
				ws.onopen = function (event) {
					console.log("Web socket opened")
				};

				ws.onerror = function (event) {
					console.log('WebSocket error: ', event);
				};

				// When the server pushes view updates, find these eles and update them.
				ws.onmessage = function (event) {
					const items = JSON.parse(event.data)
					for (const update of items) {
						const ele = document.getElementById(update.EleId)
						if (ele === null) {
							continue
						}
						for (const op of update.Ops) {
							if (op.Key === "textContent") {
								ele.textContent = op.Value;
							} else {
								ele.setAttribute(op.Key, op.Value)
							}
						}
					}
				}
			</script>
		</head>
		<body>
		` + bodySpec + `
		</body></html>
	{{ end }}
	`

	_, err = rt.Parse(indexTemplate)
	return
}

// fanIn aggregates the views' ele-update channels into a single, batched channel.
func fanIn(
	done <-chan struct{},
	views []fastview.ViewComponent,
) <-chan []fastview.EleUpdate {
	inputs := make([]<-chan []fastview.EleUpdate, len(views))
	for i, view := range views {
		inputs[i] = view.Updates()
	}
	return batchify(
		done,
		channerics.Merge(done, inputs...),
		batchWindow)
}

// batchify collects updates for @rate before sending them as one batch, over-writing
// previously received values for the same ele-id, so that only the latest values are sent.
// Pending updates are flushed when @source closes.
func batchify(
	done <-chan struct{},
	source <-chan []fastview.EleUpdate,
	rate time.Duration,
) <-chan []fastview.EleUpdate {
	output := make(chan []fastview.EleUpdate)

	go func() {
		defer close(output)

		data := map[string]fastview.EleUpdate{}
		send := func() bool {
			if len(data) == 0 {
				return true
			}
			select {
			case output <- slicedVals(data):
				data = map[string]fastview.EleUpdate{}
				return true
			case <-done:
				return false
			}
		}

		updates := channerics.OrDone(done, source)
		ticker := channerics.NewTicker(done, rate)
		for {
			select {
			case batch, ok := <-updates:
				if !ok {
					send()
					return
				}
				// Intentionally overwrites pre-existing values for an ele-id within this batch's time frame.
				for _, update := range batch {
					data[update.EleId] = update
				}
			case <-ticker:
				if !send() {
					return
				}
			}
		}
	}()

	return output
}

// returns the values of a map as a slice
func slicedVals[T1 comparable, T2 any](mp map[T1]T2) (sliced []T2) {
	for _, v := range mp {
		sliced = append(sliced, v)
	}
	return
}
