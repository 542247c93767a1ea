package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rpay/rpay-insights/internal/filters"
	"github.com/rpay/rpay-insights/internal/normalize"
	"github.com/rpay/rpay-insights/internal/query"
)

// Kind is a backend entity collection.
type Kind string

// Entity collections.
const (
	KindAgents    Kind = "agents"
	KindMerchants Kind = "merchants"
	KindBranches  Kind = "branch-admins"
	KindTerminals Kind = "terminals"
)

// Kinds lists every collection.
var Kinds = []Kind{KindAgents, KindMerchants, KindBranches, KindTerminals}

type kindInfo struct {
	// topChild is the top-N endpoint ranking the kind's children.
	topChild string
	heatmap  string
	children string
	noun     string
	hasList  bool
}

var kinds = map[Kind]kindInfo{
	KindAgents:    {topChild: "top-merchants", heatmap: "merchant-activity-heatmap", noun: "merchants", hasList: true},
	KindMerchants: {topChild: "top-branches", heatmap: "branch-activity-heatmap", children: "branches", noun: "branches", hasList: true},
	KindBranches:  {topChild: "top-terminals", heatmap: "terminal-activity-heatmap", children: "terminals", noun: "terminals", hasList: true},
	KindTerminals: {},
}

// ParseKind validates a collection name.
func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.TrimSpace(raw))
	if _, ok := kinds[kind]; !ok {
		return "", fmt.Errorf("%w: kind %q", ErrInvalidKind, raw)
	}
	return kind, nil
}

// HasList reports whether the collection can be listed.
func (k Kind) HasList() bool { return kinds[k].hasList }

// HeatmapEndpoint names the activity heatmap of the kind, "" when there is none.
func (k Kind) HeatmapEndpoint() string { return kinds[k].heatmap }

// TopChildEndpoint names the top-N ranking of the kind's children, "" when none.
func (k Kind) TopChildEndpoint() string { return kinds[k].topChild }

// ChildrenEndpoint names the paginated child list, "" when none.
func (k Kind) ChildrenEndpoint() string { return kinds[k].children }

// ChildNoun is the plural noun of the kind's children.
func (k Kind) ChildNoun() string {
	if noun := kinds[k].noun; noun != "" {
		return noun
	}
	return "rows"
}

// Trend metrics served as graph payloads.
var graphEndpoints = map[string]bool{
	"transaction-volume":   true,
	"transaction-count":    true,
	"average-transactions": true,
}

// Table metrics served as table payloads.
var tableEndpoints = map[string]bool{
	"top-customers":                  true,
	"top-merchants":                  true,
	"top-branches":                   true,
	"top-terminals":                  true,
	"customer-segmentation":          true,
	"merchant-segmentation":          true,
	"transaction-frequency-analysis": true,
}

// IsGraphEndpoint reports whether metric returns a graph payload.
func IsGraphEndpoint(metric string) bool { return graphEndpoints[metric] }

// IsTableEndpoint reports whether metric returns a table payload.
func IsTableEndpoint(metric string) bool { return tableEndpoints[metric] }

// IsTopEndpoint reports whether metric takes mode and limit parameters.
func IsTopEndpoint(metric string) bool { return strings.HasPrefix(metric, "top-") }

// Entity is a selectable agent, merchant, branch or terminal.
type Entity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var (
	entityIDFields   = []string{"id", "merchant_id", "branch_admin_id", "terminal_id", "agent_id"}
	entityNameFields = []string{"name", "merchant_name", "branch_name", "terminal_name", "agent_name"}
)

// EntityPath builds /{kind}/{id}/{endpoint}. An empty endpoint addresses the entity.
func EntityPath(kind Kind, id, endpoint string) string {
	path := fmt.Sprintf("/%s/%s", kind, url.PathEscape(id))
	if endpoint != "" {
		path += "/" + endpoint
	}
	return path
}

// List fetches every entity of kind.
func (c *Client) List(ctx context.Context, kind Kind) ([]Entity, error) {
	if !kind.HasList() {
		return nil, fmt.Errorf("%w: %s has no list", ErrInvalidKind, kind)
	}
	raw, err := c.Get(ctx, fmt.Sprintf("/%s/list", kind), nil)
	if err != nil {
		return nil, err
	}
	return DecodeEntities(raw), nil
}

// DecodeEntities reads an entity list, accepting either a bare array or a {data: [...]}
// envelope.
func DecodeEntities(raw []byte) []Entity {
	rows := normalize.ToPage(raw).Data
	out := make([]Entity, 0, len(rows))
	for _, row := range rows {
		id := firstField(row, entityIDFields)
		if id == "" {
			continue
		}
		name := firstField(row, entityNameFields)
		if name == "" {
			name = id
		}
		out = append(out, Entity{ID: id, Name: name})
	}
	return out
}

// IDs returns the entity ids in order.
func IDs(entities []Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	return out
}

// Count fetches the number of entities of kind as a stat.
func (c *Client) Count(ctx context.Context, kind Kind) ([]byte, error) {
	return c.Get(ctx, fmt.Sprintf("/%s/count", kind), nil)
}

// Ping checks connectivity with the cheapest endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Count(ctx, KindAgents)
	return err
}

// Entity fetches a single entity's details.
func (c *Client) Entity(ctx context.Context, kind Kind, id string) ([]byte, error) {
	return c.Get(ctx, EntityPath(kind, id, ""), nil)
}

// Panel fetches one dashboard endpoint of an entity.
func (c *Client) Panel(ctx context.Context, kind Kind, id, endpoint string, params query.Params) ([]byte, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: empty endpoint", ErrInvalidKind)
	}
	return c.Get(ctx, EntityPath(kind, id, endpoint), params)
}

// Children fetches a page of the entity's children.
func (c *Client) Children(ctx context.Context, kind Kind, id string, params query.Params) ([]byte, error) {
	endpoint := kind.ChildrenEndpoint()
	if endpoint == "" {
		return nil, fmt.Errorf("%w: %s has no children", ErrInvalidKind, kind)
	}
	return c.Get(ctx, EntityPath(kind, id, endpoint), params)
}

type questionBody struct {
	Query string `json:"query"`
}

// Ask sends a natural-language question to the entity's assistant.
func (c *Client) Ask(ctx context.Context, kind Kind, id, question string) ([]byte, error) {
	return c.Post(ctx, EntityPath(kind, id, "nl-filter-sql"), nil, questionBody{Query: strings.TrimSpace(question)})
}

// Discovery targets of an agent.
const (
	TargetCustomers = "customers"
	TargetMerchants = "merchants"
)

// Discover runs a natural-language target search over an agent's customers or
// merchants. Only the temporal filters are forwarded.
func (c *Client) Discover(ctx context.Context, agentID, target, question string, f filters.DateFilters) ([]byte, error) {
	if target != TargetCustomers && target != TargetMerchants {
		return nil, fmt.Errorf("%w: discovery target %q", ErrInvalidKind, target)
	}
	params := query.Filters(filters.WithoutChannel(f))
	return c.Post(ctx, EntityPath(KindAgents, agentID, "nl-filter-"+target), params, questionBody{Query: strings.TrimSpace(question)})
}

// Export downloads the agent data export for the filters.
func (c *Client) Export(ctx context.Context, agentID string, f filters.DateFilters) (*Download, error) {
	fallback := fmt.Sprintf("agent_%s_export.csv", agentID)
	return c.Download(ctx, EntityPath(KindAgents, agentID, "export"), query.Filters(f), fallback)
}

func firstField(row normalize.Row, fields []string) string {
	for _, field := range fields {
		value, ok := row[field]
		if !ok || value == nil {
			continue
		}
		var s string
		switch v := value.(type) {
		case string:
			s = v
		case float64:
			s = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			s = fmt.Sprint(v)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
