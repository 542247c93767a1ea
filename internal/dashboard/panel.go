package dashboard

import (
	"context"
	"errors"
	"strings"

	"github.com/rpay/rpay-insights/internal/backend"
	"github.com/rpay/rpay-insights/internal/heatmap"
	"github.com/rpay/rpay-insights/internal/normalize"
)

// PanelState is the resolved state of one dashboard panel.
type PanelState string

// Panel states.
const (
	StateOK          PanelState = "ok"
	StateEmpty       PanelState = "empty"
	StateError       PanelState = "error"
	StateUnavailable PanelState = "unavailable"
)

// User-facing panel and connection messages.
const (
	MessageEmpty        = "No data available"
	MessagePanic        = "Something went wrong"
	MessageUnavailable  = "Cannot connect to backend server. Is it running?"
	MessageBackendError = "Backend server error. Check if data is loaded."
)

// Panel kinds.
const (
	KindStats   = "stats"
	KindSeries  = "series"
	KindTable   = "table"
	KindHeatmap = "heatmap"
)

// Panel is one independently resolved section of a dashboard.
type Panel struct {
	Name    string                `json:"name"`
	Title   string                `json:"title"`
	Kind    string                `json:"kind"`
	State   PanelState            `json:"state"`
	Message string                `json:"message,omitempty"`
	Stats   []normalize.Stat      `json:"stats,omitempty"`
	Series  normalize.GraphSeries `json:"series,omitempty"`
	Table   *normalize.Table      `json:"table,omitempty"`
	Heatmap *heatmap.View         `json:"heatmap,omitempty"`
}

// panelSpec describes how a panel is fetched.
type panelSpec struct {
	name     string
	title    string
	kind     string
	endpoint string
}

func specsFor(kind backend.Kind) []panelSpec {
	specs := []panelSpec{
		{name: "stats", title: "stats", kind: KindStats, endpoint: "stats"},
		{name: "transaction-volume", title: "transaction volume", kind: KindSeries, endpoint: "transaction-volume"},
		{name: "transaction-count", title: "transaction count", kind: KindSeries, endpoint: "transaction-count"},
	}
	if kind == backend.KindAgents {
		specs = append(specs, panelSpec{name: "average-transactions", title: "average transactions", kind: KindSeries, endpoint: "average-transactions"})
	}
	specs = append(specs, panelSpec{name: "top-customers", title: "top customers", kind: KindTable, endpoint: "top-customers"})
	if top := kind.TopChildEndpoint(); top != "" {
		specs = append(specs, panelSpec{name: top, title: titleFromEndpoint(top), kind: KindTable, endpoint: top})
	}
	if kind == backend.KindAgents {
		specs = append(specs,
			panelSpec{name: "customer-segmentation", title: "customer segmentation", kind: KindTable, endpoint: "customer-segmentation"},
			panelSpec{name: "merchant-segmentation", title: "merchant segmentation", kind: KindTable, endpoint: "merchant-segmentation"},
		)
	}
	specs = append(specs, panelSpec{name: "transaction-frequency-analysis", title: "transaction frequency analysis", kind: KindTable, endpoint: "transaction-frequency-analysis"})
	if hm := kind.HeatmapEndpoint(); hm != "" {
		specs = append(specs, panelSpec{name: "heatmap", title: "heatmap data", kind: KindHeatmap, endpoint: hm})
	}
	return specs
}

func titleFromEndpoint(endpoint string) string {
	return strings.ReplaceAll(endpoint, "-", " ")
}

// resolve maps a fetch outcome onto a panel state.
func (p *Panel) resolve(err error, empty bool) {
	switch {
	case err == nil && empty:
		p.State = StateEmpty
		p.Message = MessageEmpty
	case err == nil:
		p.State = StateOK
	case errors.Is(err, backend.ErrUnavailable):
		p.State = StateUnavailable
		p.Message = MessageUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		p.State = StateError
		p.Message = "Timed out loading " + p.Title
	default:
		p.State = StateError
		p.Message = "Error loading " + p.Title
	}
}
