package domain

import (
	"encoding/json"
	"strings"
)

// Visibility is the private/public flag of a database context
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// ParseVisibility accepts both UI (private/public) and wire (local/global)
// vocabulary. Anything else is private.
func ParseVisibility(s string) Visibility {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public", "global":
		return VisibilityPublic
	default:
		return VisibilityPrivate
	}
}

// Wire returns the upstream vocabulary for v.
func (v Visibility) Wire() string {
	if v == VisibilityPublic {
		return "global"
	}
	return "local"
}

// TableRef identifies a selectable data table
type TableRef struct {
	Name     string `json:"name"`
	RowCount *int   `json:"row_count,omitempty"`
}

// UnmarshalJSON accepts either a bare table name or an object.
func (t *TableRef) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*t = TableRef{Name: name}
		return nil
	}

	type plain TableRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = TableRef(p)
	return nil
}

// TableNames returns the names of refs in order
func TableNames(refs []TableRef) []string {
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
	}
	return names
}

// Preview is a sample of table rows
type Preview struct {
	TableName string           `json:"table_name"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
}
