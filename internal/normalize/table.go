package normalize

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Row is one table record keyed by column name.
type Row map[string]any

// TablePayload is the backend shape of a table panel. Data is either one object or an
// array of objects.
type TablePayload struct {
	Metric string          `json:"metric"`
	Data   json.RawMessage `json:"data"`
}

// Table is a normalised table with columns in backend order.
type Table struct {
	Metric  string   `json:"metric,omitempty"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// ToTableRows returns the payload rows. A single object becomes a one-row slice.
func ToTableRows(payload TablePayload) []Row {
	return decodeRows(payload.Data)
}

// DecodeTable decodes a raw table body.
func DecodeTable(raw []byte) Table {
	var payload TablePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Table{Columns: []string{}, Rows: []Row{}}
	}
	rows := ToTableRows(payload)
	return Table{Metric: payload.Metric, Columns: columnsOf(payload.Data, rows), Rows: rows}
}

// TableFromRows builds a Table from rows already decoded.
func TableFromRows(rows []Row) Table {
	if rows == nil {
		rows = []Row{}
	}
	return Table{Columns: Columns(rows), Rows: rows}
}

func decodeRows(raw json.RawMessage) []Row {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Row{}
	}
	switch raw[0] {
	case '[':
		var rows []Row
		if err := json.Unmarshal(raw, &rows); err != nil {
			return []Row{}
		}
		out := rows[:0]
		for _, row := range rows {
			if row != nil {
				out = append(out, row)
			}
		}
		return out
	case '{':
		var row Row
		if err := json.Unmarshal(raw, &row); err != nil {
			return []Row{}
		}
		return []Row{row}
	}
	return []Row{}
}

// Columns returns the union of row keys in sorted order.
func Columns(rows []Row) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for key := range row {
			seen[key] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// columnsOf keeps the key order of the first object in raw, then appends keys that only
// appear in later rows.
func columnsOf(raw json.RawMessage, rows []Row) []string {
	ordered := firstObjectKeys(raw)
	seen := make(map[string]struct{}, len(ordered))
	for _, key := range ordered {
		seen[key] = struct{}{}
	}
	for _, key := range Columns(rows) {
		if _, ok := seen[key]; !ok {
			ordered = append(ordered, key)
		}
	}
	return ordered
}

func firstObjectKeys(raw json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return []string{}
	}
	if delim, ok := tok.(json.Delim); ok && delim == '[' {
		if tok, err = dec.Token(); err != nil {
			return []string{}
		}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return []string{}
	}
	keys := []string{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		key, ok := tok.(string)
		if !ok {
			return keys
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
	}
	return keys
}
