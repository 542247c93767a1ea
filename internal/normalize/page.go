package normalize

import (
	"bytes"
	"encoding/json"
)

// Pagination describes one page of a server-paginated list.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// Sort echoes the server-side ordering.
type Sort struct {
	SortBy    string `json:"sort_by,omitempty"`
	SortOrder string `json:"sort_order,omitempty"`
}

// Page is a normalised pagination envelope.
type Page struct {
	Data       []Row      `json:"data"`
	Pagination Pagination `json:"pagination"`
	Sort       Sort       `json:"sort"`
}

type pageWire struct {
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination"`
	Sort       *Sort           `json:"sort"`
}

// ToPage decodes a pagination envelope. A bare array is treated as a single page
// holding every item.
func ToPage(raw []byte) Page {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		rows := decodeRows(raw)
		return Page{Data: rows, Pagination: singlePage(len(rows))}
	}

	var wire pageWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Page{Data: []Row{}, Pagination: singlePage(0)}
	}
	page := Page{Data: decodeRows(wire.Data)}
	if wire.Pagination != nil {
		page.Pagination = *wire.Pagination
	} else {
		page.Pagination = singlePage(len(page.Data))
	}
	if wire.Sort != nil {
		page.Sort = *wire.Sort
	}
	return page
}

func singlePage(n int) Pagination {
	p := Pagination{Page: 1, PageSize: n, TotalItems: n}
	if n > 0 {
		p.TotalPages = 1
	}
	return p
}

// HasNext reports whether a later page exists.
func (p Pagination) HasNext() bool {
	return p.Page < p.TotalPages
}

// HasPrev reports whether an earlier page exists.
func (p Pagination) HasPrev() bool {
	return p.Page > 1
}
