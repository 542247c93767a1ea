package normalize

import (
	"bytes"
	"encoding/json"
)

// Stat is a single headline metric card.
type Stat struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
}

// ToStats decodes a stat list. A single object becomes one card; malformed input
// yields none.
func ToStats(raw []byte) []Stat {
	raw = bytes.TrimSpace(raw)
	stats := []Stat{}
	if len(raw) == 0 {
		return stats
	}
	switch raw[0] {
	case '[':
		var entries []map[string]any
		if err := json.Unmarshal(raw, &entries); err != nil {
			return stats
		}
		for _, entry := range entries {
			if stat, ok := toStat(entry); ok {
				stats = append(stats, stat)
			}
		}
	case '{':
		var entry map[string]any
		if err := json.Unmarshal(raw, &entry); err != nil {
			return stats
		}
		if stat, ok := toStat(entry); ok {
			stats = append(stats, stat)
		}
	}
	return stats
}

func toStat(entry map[string]any) (Stat, bool) {
	if entry == nil {
		return Stat{}, false
	}
	metric, _ := entry["metric"].(string)
	if metric == "" {
		return Stat{}, false
	}
	return Stat{Metric: metric, Value: number(entry["value"])}, true
}
