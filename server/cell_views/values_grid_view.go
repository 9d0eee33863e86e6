package cell_views

import (
	"fmt"
	"html/template"

	"qmaze/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// ValuesGrid draws the maze with each cell's greedy value and policy arrow.
type ValuesGrid struct {
	name    string
	updates <-chan []fastview.EleUpdate
}

// NewValuesGrid returns a values grid fed by @grids. Template names may not contain
// hyphens, which html/template's `template` directive does not accept.
func NewValuesGrid(
	done <-chan struct{},
	grids <-chan Grid,
) *ValuesGrid {
	vg := &ValuesGrid{name: "valuesgrid"}
	vg.updates = channerics.Convert(done, grids, vg.onUpdate)
	return vg
}

func (vg *ValuesGrid) Updates() <-chan []fastview.EleUpdate {
	return vg.updates
}

// Parse defines the grid's svg template in @parent, which must provide the arithmetic func-map.
func (vg *ValuesGrid) Parse(parent *template.Template) (name string, err error) {
	name = vg.name
	_, err = parent.Parse(
		`{{ define "` + name + `" }}
		<div id="state_values">
			{{ $cells := .Cells }}
			{{ $x_cells := len $cells }}
			{{ $y_cells := len (index $cells 0) }}
			{{ $cell_width := 60 }}
			{{ $cell_height := $cell_width }}
			{{ $width := mult $cell_width $x_cells }}
			{{ $height := mult $cell_height $y_cells }}
			{{ $half_height := div $cell_height 2 }}
			{{ $half_width := div $cell_width 2 }}
			<svg id="` + name + `"
				width="{{ add $width 1 }}px"
				height="{{ add $height 1 }}px"
				style="shape-rendering: crispEdges;">
				{{ range $col := $cells }}
					{{ range $cell := $col }}
					<g>
						<rect id="{{$cell.X}}-{{$cell.Y}}-cell"
							x="{{ mult $cell.X $cell_width }}"
							y="{{ mult $cell.Y $cell_height }}"
							width="{{ $cell_width }}"
							height="{{ $cell_height }}"
							fill="{{ $cell.Fill }}"
							stroke="black"
							stroke-width="1"/>
						{{ if $cell.HasValue }}
						<text id="{{$cell.X}}-{{$cell.Y}}-value-text"
							x="{{ add (mult $cell.X $cell_width) $half_width }}"
							y="{{ add (mult $cell.Y $cell_height) (sub $half_height 10) }}"
							font-size="12"
							dominant-baseline="text-top" text-anchor="middle"
							>{{ printf "%.2f" $cell.Max }}</text>
						{{ end }}
						{{ if $cell.ShowArrow }}
						<g transform="translate({{ add (mult $cell.X $cell_width) $half_width }}, {{ add (mult $cell.Y $cell_height) (add $half_height 12) }})">
							<text id="{{$cell.X}}-{{$cell.Y}}-policy-arrow"
							stroke="blue" stroke-width="1"
							dominant-baseline="central" text-anchor="middle"
							transform="rotate({{ $cell.PolicyArrowRotation }})"
							>&uarr;</text>
						</g>
						{{ end }}
					</g>
					{{ end }}
				{{ end }}
			</svg>
		</div>
		{{ end }}`)
	return
}

// onUpdate returns the set of view updates needed for the view to reflect the current values.
func (vg *ValuesGrid) onUpdate(grid Grid) (ops []fastview.EleUpdate) {
	for _, col := range grid.Cells {
		for _, cell := range col {
			if !cell.HasValue {
				continue
			}
			ops = append(ops,
				fastview.EleUpdate{
					EleId: fmt.Sprintf("%d-%d-cell", cell.X, cell.Y),
					Ops: []fastview.Op{
						{Key: "fill", Value: cell.Fill},
					},
				},
				fastview.EleUpdate{
					EleId: fmt.Sprintf("%d-%d-value-text", cell.X, cell.Y),
					Ops: []fastview.Op{
						{Key: fastview.TextContent, Value: fmt.Sprintf("%.2f", cell.Max)},
					},
				})
			if cell.ShowArrow {
				ops = append(ops, fastview.EleUpdate{
					EleId: fmt.Sprintf("%d-%d-policy-arrow", cell.X, cell.Y),
					Ops: []fastview.Op{
						{Key: "transform", Value: fmt.Sprintf("rotate(%d)", cell.PolicyArrowRotation)},
					},
				})
			}
		}
	}
	return
}
