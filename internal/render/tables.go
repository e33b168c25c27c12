// Package render turns upstream answers into grid- and plot-ready shapes.
package render

import (
	"regexp"
	"strings"

	"github.com/liliang-cn/tablechat/internal/domain"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SegmentKind tells the client how to display a segment
type SegmentKind string

const (
	SegmentText  SegmentKind = "text"
	SegmentTable SegmentKind = "table"
	SegmentHTML  SegmentKind = "html"
)

// Segment is one ordered piece of a bot answer
type Segment struct {
	Kind    SegmentKind `json:"kind"`
	Content string      `json:"content,omitempty"`
	Table   *TableData  `json:"table,omitempty"`
}

// ColumnDef describes one grid column
type ColumnDef struct {
	Field      string `json:"field"`
	HeaderName string `json:"headerName"`
	Filter     bool   `json:"filter"`
	Sortable   bool   `json:"sortable"`
	Resizable  bool   `json:"resizable"`
	Flex       int    `json:"flex"`
	MinWidth   int    `json:"minWidth"`
}

// TableData is a parsed HTML table ready for a data grid
type TableData struct {
	ColumnDefs []ColumnDef         `json:"columnDefs"`
	RowData    []map[string]string `json:"rowData"`
}

var tableBlock = regexp.MustCompile(`(?is)<table\b.*?</table\s*>`)

// Render splits a bot answer into display segments.
func Render(text string) []Segment {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "<table"):
		return ExtractTables(text)
	case strings.Contains(lower, "<div") || strings.Contains(lower, "<p"):
		return []Segment{{Kind: SegmentHTML, Content: text}}
	default:
		return []Segment{{Kind: SegmentText, Content: text}}
	}
}

// ExtractTables splits text on embedded <table> blocks, keeping order.
// Blocks that do not yield a usable table are kept as raw HTML. Text without
// any complete block comes back unchanged as a single segment.
func ExtractTables(text string) []Segment {
	locs := tableBlock.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []Segment{{Kind: SegmentText, Content: text}}
	}

	segments := make([]Segment, 0, 2*len(locs)+1)
	addText := func(s string) {
		if strings.TrimSpace(s) != "" {
			segments = append(segments, Segment{Kind: SegmentText, Content: s})
		}
	}

	last := 0
	for _, loc := range locs {
		addText(text[last:loc[0]])
		block := text[loc[0]:loc[1]]
		if data, err := ParseTable(block); err == nil {
			segments = append(segments, Segment{Kind: SegmentTable, Content: block, Table: data})
		} else {
			segments = append(segments, Segment{Kind: SegmentHTML, Content: block})
		}
		last = loc[1]
	}
	addText(text[last:])

	return segments
}

// ParseTable parses the first table in markup. It returns a *domain.ParseError
// when there is no table, no header row or no body rows.
func ParseTable(markup string) (*TableData, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, &domain.ParseError{Reason: err.Error()}
	}
	table := findFirst(doc, atom.Table)
	if table == nil {
		return nil, &domain.ParseError{Reason: "no table element"}
	}

	var headers []string
	var headerRow *html.Node
	if thead := findFirst(table, atom.Thead); thead != nil {
		for _, tr := range collect(thead, atom.Tr) {
			for _, cell := range cells(tr, atom.Th, atom.Td) {
				headers = append(headers, cellText(cell))
			}
		}
	}

	var bodyRows []*html.Node
	for _, section := range childElements(table, atom.Tbody) {
		bodyRows = append(bodyRows, childElements(section, atom.Tr)...)
	}

	if len(headers) == 0 && len(bodyRows) > 0 {
		first := bodyRows[0]
		if ths := cells(first, atom.Th); len(ths) > 0 && len(ths) == len(cells(first, atom.Th, atom.Td)) {
			for _, cell := range ths {
				headers = append(headers, cellText(cell))
			}
			headerRow = first
		}
	}
	if len(headers) == 0 {
		return nil, &domain.ParseError{Reason: "table has no header"}
	}

	data := &TableData{
		ColumnDefs: make([]ColumnDef, 0, len(headers)),
		RowData:    []map[string]string{},
	}
	for _, h := range headers {
		data.ColumnDefs = append(data.ColumnDefs, ColumnDef{
			Field:      h,
			HeaderName: h,
			Filter:     true,
			Sortable:   true,
			Resizable:  true,
			Flex:       1,
			MinWidth:   150,
		})
	}

	for _, tr := range bodyRows {
		if tr == headerRow {
			continue
		}
		tds := cells(tr, atom.Td)
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(tds) {
				row[h] = cellText(tds[i])
			} else {
				row[h] = ""
			}
		}
		data.RowData = append(data.RowData, row)
	}
	if len(data.RowData) == 0 {
		return nil, &domain.ParseError{Reason: "table has no rows"}
	}

	return data, nil
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func collect(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			out = append(out, c)
		}
		out = append(out, collect(c, a)...)
	}
	return out
}

func childElements(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			out = append(out, c)
		}
	}
	return out
}

func cells(tr *html.Node, kinds ...atom.Atom) []*html.Node {
	var out []*html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		for _, k := range kinds {
			if c.DataAtom == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func cellText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
