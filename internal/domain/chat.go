package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message roles
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// Message represents one chat turn in a table's history
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // user, bot
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []Source  `json:"sources,omitempty"`
	Charts    Charts    `json:"charts,omitempty"`
	IsError   bool      `json:"is_error,omitempty"`
}

// Source represents a citation source
type Source struct {
	FileName    string      `json:"file_name"`
	PageNumbers PageNumbers `json:"page_numbers,omitempty"`
	FileLink    string      `json:"file_link,omitempty"`
}

// PageNumbers holds page references; upstream sends a number, a string or a list.
type PageNumbers []string

// UnmarshalJSON accepts scalars and arrays of numbers or strings.
func (p *PageNumbers) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = nil
	switch v := raw.(type) {
	case nil:
	case []any:
		for _, item := range v {
			*p = append(*p, pageString(item))
		}
	default:
		*p = PageNumbers{pageString(v)}
	}
	return nil
}

func (p PageNumbers) String() string {
	return strings.Join(p, ", ")
}

func pageString(v any) string {
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%g", n)
	case string:
		return n
	default:
		return fmt.Sprint(n)
	}
}

// ChartKind enumerates the supported chart types
type ChartKind string

const (
	ChartBar        ChartKind = "bar"
	ChartPie        ChartKind = "pie"
	ChartLine       ChartKind = "line"
	ChartScatter    ChartKind = "scatter"
	ChartTreemap    ChartKind = "treemap"
	ChartChoropleth ChartKind = "choropleth"
)

// Valid reports whether k is a kind the renderer understands.
func (k ChartKind) Valid() bool {
	switch k {
	case ChartBar, ChartPie, ChartLine, ChartScatter, ChartTreemap, ChartChoropleth:
		return true
	}
	return false
}

// ChartPayload is a chart as sent by the upstream. Data is either a single
// trace object or an array of traces.
type ChartPayload struct {
	Type   ChartKind       `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	Layout map[string]any  `json:"layout,omitempty"`
	Title  string          `json:"title,omitempty"`
	X      []any           `json:"x,omitempty"`
	Y      []any           `json:"y,omitempty"`
}

// Charts is a list of charts; upstream sends null, one chart, or a list.
type Charts []ChartPayload

// UnmarshalJSON accepts null, a single chart object or an array. Values of
// any other shape, and list entries that are not charts, are skipped.
func (c *Charts) UnmarshalJSON(data []byte) error {
	*c, _ = ParseCharts(data)
	return nil
}

// ParseCharts decodes a charts value leniently. It returns the charts that
// decoded and one error per value that was skipped.
func ParseCharts(data []byte) (Charts, []error) {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "" || trimmed == "null":
		return nil, nil

	case strings.HasPrefix(trimmed, "["):
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, []error{fmt.Errorf("charts: %w", err)}
		}
		var (
			out  Charts
			errs []error
		)
		for i, item := range items {
			var one ChartPayload
			if err := json.Unmarshal(item, &one); err != nil {
				errs = append(errs, fmt.Errorf("chart %d: %w", i, err))
				continue
			}
			out = append(out, one)
		}
		return out, errs

	case strings.HasPrefix(trimmed, "{"):
		var one ChartPayload
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, []error{fmt.Errorf("chart: %w", err)}
		}
		return Charts{one}, nil

	default:
		return nil, []error{fmt.Errorf("charts: unsupported value %.40s", trimmed)}
	}
}

// QueryRequest is the scoped chat query sent upstream
type QueryRequest struct {
	Query      string `json:"query"`
	Database   string `json:"database"`
	DatasetID  string `json:"dataset_id"`
	TableName  string `json:"table_name"`
	Visibility string `json:"visibility"`
}

// QueryResponse is the upstream answer to a scoped query
type QueryResponse struct {
	BotAnswer string   `json:"bot_answer"`
	Sources   []Source `json:"sources,omitempty"`
	Charts    Charts   `json:"charts,omitempty"`
}

// Notice levels
const (
	NoticeSuccess = "success"
	NoticeError   = "error"
)

// Notice is a transient user notification
type Notice struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// NewNotice creates a notice stamped with the current time
func NewNotice(level, message string) Notice {
	return Notice{Level: level, Message: message, At: time.Now()}
}
