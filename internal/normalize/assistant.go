package normalize

import (
	"bytes"
	"encoding/json"
)

// Reply types produced by the natural-language assistant.
const (
	ReplyText      = "text"
	ReplyTable     = "table"
	ReplyBarChart  = "bar_chart"
	ReplyAreaChart = "area_chart"
)

// FallbackText is shown when the assistant request fails.
const FallbackText = "Sorry I couldn't fulfil your request. Please try again or try something else"

// Axes names the chart columns of a chart reply.
type Axes struct {
	XAxisKey  string   `json:"x_axis_key"`
	YAxisKeys []string `json:"y_axis_keys"`
}

// Reply is one assistant chat message.
type Reply struct {
	From    string `json:"from"`
	Type    string `json:"type"`
	Text    string `json:"text"`
	Content []Row  `json:"content,omitempty"`
	Axes    *Axes  `json:"axes,omitempty"`
	Error   bool   `json:"error,omitempty"`
}

type replyWire struct {
	From    string          `json:"from"`
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Content json.RawMessage `json:"content"`
	Axes    *Axes           `json:"axes"`
}

// ToAssistantReply decodes an assistant response. Unknown types render as text and a
// chart without axes renders as a table. Undecodable bodies yield the fallback reply.
func ToAssistantReply(raw []byte) Reply {
	var wire replyWire
	if err := json.Unmarshal(bytes.TrimSpace(raw), &wire); err != nil {
		return FallbackReply()
	}
	reply := Reply{From: wire.From, Type: wire.Type, Text: wire.Text, Axes: wire.Axes}
	if reply.From == "" {
		reply.From = "ai"
	}
	switch reply.Type {
	case ReplyTable:
	case ReplyBarChart, ReplyAreaChart:
		if reply.Axes == nil || reply.Axes.XAxisKey == "" || len(reply.Axes.YAxisKeys) == 0 {
			reply.Type = ReplyTable
			reply.Axes = nil
		}
	default:
		reply.Type = ReplyText
		reply.Axes = nil
	}
	if reply.Type != ReplyText {
		reply.Content = decodeRows(wire.Content)
	}
	return reply
}

// FallbackReply is the assistant message used when a request fails.
func FallbackReply() Reply {
	return Reply{From: "ai", Type: ReplyText, Text: FallbackText, Error: true}
}

// UserMessage wraps a user question in the reply model so transcripts share one type.
func UserMessage(text string) Reply {
	return Reply{From: "user", Type: ReplyText, Text: text}
}
