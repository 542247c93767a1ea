package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// HeatmapMode selects one of the parallel matrices returned by the heatmap endpoints.
type HeatmapMode string

// Heatmap modes.
const (
	HeatmapVolume  HeatmapMode = "volume"
	HeatmapCount   HeatmapMode = "count"
	HeatmapAverage HeatmapMode = "average"
)

// ParseHeatmapMode maps unknown values to volume.
func ParseHeatmapMode(raw string) HeatmapMode {
	switch HeatmapMode(strings.ToLower(strings.TrimSpace(raw))) {
	case HeatmapCount:
		return HeatmapCount
	case HeatmapAverage:
		return HeatmapAverage
	}
	return HeatmapVolume
}

// HeatmapPayload is the backend activity heatmap body.
type HeatmapPayload struct {
	Metric                  string           `json:"metric"`
	Periods                 []string         `json:"periods"`
	TransactionVolume       []map[string]any `json:"transaction_volume"`
	TransactionCount        []map[string]any `json:"transaction_count"`
	AverageTransactionValue []map[string]any `json:"average_transaction_value"`
}

// HeatmapRow is one entity line of the matrix.
type HeatmapRow struct {
	Key   string             `json:"key"`
	Label string             `json:"label"`
	Cells map[string]float64 `json:"cells"`
}

// HeatmapMatrix has ordered period columns and one row per entity.
type HeatmapMatrix struct {
	Periods []string     `json:"periods"`
	Rows    []HeatmapRow `json:"rows"`
}

// Entity identity fields, then display-name fields, in lookup order.
var (
	entityKeyFields   = []string{"merchant", "branch", "terminal", "customer", "agent", "name"}
	entityLabelFields = []string{"merchant_name", "branch_name", "terminal_name", "customer_name", "agent_name"}
)

// ToHeatmap selects the matrix for mode. Cells missing for a period are 0.
func ToHeatmap(payload HeatmapPayload, mode HeatmapMode) HeatmapMatrix {
	var source []map[string]any
	switch ParseHeatmapMode(string(mode)) {
	case HeatmapCount:
		source = payload.TransactionCount
	case HeatmapAverage:
		source = payload.AverageTransactionValue
	default:
		source = payload.TransactionVolume
	}

	periods := payload.Periods
	if periods == nil {
		periods = []string{}
	}
	matrix := HeatmapMatrix{Periods: periods, Rows: make([]HeatmapRow, 0, len(source))}
	for _, entry := range source {
		if entry == nil {
			continue
		}
		key := firstString(entry, entityKeyFields)
		label := firstString(entry, entityLabelFields)
		if label == "" {
			label = key
		}
		row := HeatmapRow{Key: key, Label: label, Cells: make(map[string]float64, len(periods))}
		for _, period := range periods {
			row.Cells[period] = number(entry[period])
		}
		matrix.Rows = append(matrix.Rows, row)
	}
	return matrix
}

// DecodeHeatmap decodes a raw heatmap body. Malformed input yields an empty matrix.
func DecodeHeatmap(raw []byte, mode HeatmapMode) HeatmapMatrix {
	var payload HeatmapPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return HeatmapMatrix{Periods: []string{}, Rows: []HeatmapRow{}}
	}
	return ToHeatmap(payload, mode)
}

// Value returns the cell at period, 0 when absent.
func (r HeatmapRow) Value(period string) float64 {
	return r.Cells[period]
}

// IsEmpty reports whether the matrix has no rows.
func (m HeatmapMatrix) IsEmpty() bool {
	return len(m.Rows) == 0
}

// Values flattens every cell in row then period order.
func (m HeatmapMatrix) Values() []float64 {
	out := make([]float64, 0, len(m.Rows)*len(m.Periods))
	for _, row := range m.Rows {
		for _, period := range m.Periods {
			out = append(out, row.Value(period))
		}
	}
	return out
}

func firstString(entry map[string]any, fields []string) string {
	for _, field := range fields {
		value, ok := entry[field]
		if !ok || value == nil {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(value)); s != "" {
			return s
		}
	}
	return ""
}

// number coerces JSON scalars to float64. Anything else is 0.
func number(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func isNumber(value any) bool {
	switch value.(type) {
	case float64, float32, int, int64, int32, json.Number:
		return true
	}
	return false
}
