package heatmap

import (
	"fmt"
	"strings"

	"github.com/rpay/rpay-insights/internal/normalize"
)

// DefaultPageSize is the number of entity rows per heatmap page.
const DefaultPageSize = 10

// Scope selects the values a page is coloured against.
type Scope string

// Scaling scopes. ScopeDataset keeps a value's colour identical on every page.
const (
	ScopeDataset Scope = "dataset"
	ScopePage    Scope = "page"
)

// ParseScope defaults to dataset.
func ParseScope(raw string) Scope {
	if Scope(strings.ToLower(strings.TrimSpace(raw))) == ScopePage {
		return ScopePage
	}
	return ScopeDataset
}

// Options controls Build.
type Options struct {
	Page     int
	PageSize int
	Scope    Scope
	Theme    string
	Mode     normalize.HeatmapMode
	// Noun names the rows in the summary line, e.g. "branches".
	Noun string
}

// Cell is one rendered grid cell.
type Cell struct {
	Period     string  `json:"period"`
	Value      float64 `json:"value"`
	Display    string  `json:"display"`
	Title      string  `json:"title"`
	Bucket     Bucket  `json:"bucket"`
	Background string  `json:"background"`
	Foreground string  `json:"foreground,omitempty"`
}

// Row is one rendered entity line.
type Row struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Cells []Cell `json:"cells"`
}

// LegendEntry explains one bucket colour.
type LegendEntry struct {
	Bucket Bucket `json:"bucket"`
	Label  string `json:"label"`
	Color  string `json:"color"`
}

// View is a coloured page of a heatmap.
type View struct {
	Mode       normalize.HeatmapMode `json:"mode"`
	Theme      string                `json:"theme"`
	Scope      Scope                 `json:"scope"`
	Periods    []string              `json:"periods"`
	Rows       []Row                 `json:"rows"`
	Pagination normalize.Pagination  `json:"pagination"`
	Showing    string                `json:"showing"`
	Min        float64               `json:"min"`
	Max        float64               `json:"max"`
	Legend     []LegendEntry         `json:"legend"`
}

// Paginate returns one page of matrix rows. page is 1-based and clamped.
func Paginate(matrix normalize.HeatmapMatrix, page, size int) (normalize.HeatmapMatrix, normalize.Pagination) {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(matrix.Rows)
	pages := (total + size - 1) / size
	if page < 1 {
		page = 1
	}
	if pages > 0 && page > pages {
		page = pages
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return normalize.HeatmapMatrix{Periods: matrix.Periods, Rows: matrix.Rows[start:end]},
		normalize.Pagination{Page: page, PageSize: size, TotalItems: total, TotalPages: pages}
}

// Build paginates matrix and colours the selected page.
func Build(matrix normalize.HeatmapMatrix, opts Options) View {
	mode := normalize.ParseHeatmapMode(string(opts.Mode))
	theme := ParseTheme(opts.Theme)
	scope := ParseScope(string(opts.Scope))
	palette := PaletteFor(theme)

	page, info := Paginate(matrix, opts.Page, opts.PageSize)
	scaleSource := matrix
	if scope == ScopePage {
		scaleSource = page
	}
	scale := NewScale(scaleSource.Values())
	format := NewFormatter()

	view := View{
		Mode:       mode,
		Theme:      theme,
		Scope:      scope,
		Periods:    matrix.Periods,
		Rows:       make([]Row, 0, len(page.Rows)),
		Pagination: info,
		Showing:    showing(info, len(page.Rows), opts.Noun),
		Min:        scale.Min,
		Max:        scale.Max,
		Legend: []LegendEntry{
			{Bucket: Low, Label: "Low", Color: palette.Low},
			{Bucket: Medium, Label: "Medium", Color: palette.Medium},
			{Bucket: High, Label: "High", Color: palette.High},
		},
	}
	if view.Periods == nil {
		view.Periods = []string{}
	}

	for _, src := range page.Rows {
		row := Row{Key: src.Key, Label: src.Label, Cells: make([]Cell, 0, len(matrix.Periods))}
		for _, period := range matrix.Periods {
			value := src.Value(period)
			bucket := scale.Bucket(value)
			cell := Cell{
				Period:     period,
				Value:      value,
				Display:    format.Cell(mode, value),
				Title:      fmt.Sprintf("%s - %s: %s", src.Label, period, format.Value(mode, value)),
				Bucket:     bucket,
				Background: palette.Color(bucket),
			}
			if value > 0 {
				cell.Foreground = palette.Text
			}
			row.Cells = append(row.Cells, cell)
		}
		view.Rows = append(view.Rows, row)
	}
	return view
}

func showing(info normalize.Pagination, onPage int, noun string) string {
	if noun == "" {
		noun = "rows"
	}
	if info.TotalItems == 0 {
		return fmt.Sprintf("Showing 0 of 0 %s", noun)
	}
	start := (info.Page-1)*info.PageSize + 1
	return fmt.Sprintf("Showing %d-%d of %d %s", start, start+onPage-1, info.TotalItems, noun)
}
