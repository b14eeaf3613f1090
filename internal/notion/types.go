package notion

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Parent identifies the container a page belongs to.
type Parent struct {
	Type       string `json:"type"`
	DatabaseID string `json:"database_id,omitempty"`
	PageID     string `json:"page_id,omitempty"`
}

// ParentTypeDatabase is the parent type for pages living in a database.
const ParentTypeDatabase = "database_id"

// DateValue is a date property payload.
type DateValue struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// Relation is a single reference inside a relation property.
type Relation struct {
	ID string `json:"id"`
}

// TextContent is the literal text inside a rich text fragment.
type TextContent struct {
	Content string `json:"content"`
}

// RichText is one fragment of a title or rich_text property.
type RichText struct {
	PlainText string       `json:"plain_text,omitempty"`
	Text      *TextContent `json:"text,omitempty"`
}

// PropertyValue is a page property as returned by the API. Only the fields
// this service reads are decoded; everything else is dropped.
type PropertyValue struct {
	Type     string     `json:"type"`
	Date     *DateValue `json:"date,omitempty"`
	Relation []Relation `json:"relation,omitempty"`
	Title    []RichText `json:"title,omitempty"`
}

// Properties holds a page's properties preserving the order of the API
// response. Property lookup heuristics depend on that order, and Go maps
// would lose it.
type Properties struct {
	names  []string
	values map[string]PropertyValue
}

// UnmarshalJSON decodes a JSON object keeping key order.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties: expected JSON object")
	}

	p.names = nil
	p.values = make(map[string]PropertyValue)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("properties: expected string key")
		}
		var v PropertyValue
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("properties: decode %q: %w", name, err)
		}
		p.names = append(p.names, name)
		p.values[name] = v
	}

	_, err = dec.Token() // closing brace
	return err
}

// Names returns property names in response order.
func (p Properties) Names() []string {
	return p.names
}

// Get returns the property with the given name.
func (p Properties) Get(name string) (PropertyValue, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Len returns the number of properties.
func (p Properties) Len() int {
	return len(p.names)
}

// Page is a Notion page as returned by the pages endpoints.
type Page struct {
	ID             string     `json:"id"`
	Parent         Parent     `json:"parent"`
	Properties     Properties `json:"properties"`
	LastEditedTime string     `json:"last_edited_time"`
}

// Database is a Notion database as returned by the databases endpoint.
type Database struct {
	ID             string     `json:"id"`
	Title          []RichText `json:"title"`
	LastEditedTime string     `json:"last_edited_time"`
}

// PlainTitle returns the database title as plain text, or "" if untitled.
func (d Database) PlainTitle() string {
	if len(d.Title) == 0 {
		return ""
	}
	return d.Title[0].PlainText
}

// DateEqualsFilter builds a query filter matching a date property exactly.
func DateEqualsFilter(property, date string) map[string]any {
	return map[string]any{
		"property": property,
		"date": map[string]any{
			"equals": date,
		},
	}
}

// DateProperty builds a date property payload for page writes.
func DateProperty(start string) map[string]any {
	return map[string]any{
		"date": map[string]any{
			"start": start,
		},
	}
}

// TitleProperty builds a title property payload for page writes.
func TitleProperty(content string) map[string]any {
	return map[string]any{
		"title": []map[string]any{
			{
				"text": map[string]any{
					"content": content,
				},
			},
		},
	}
}

// RelationProperty builds a relation property payload referencing the given
// page ids. Writing it replaces any existing references.
func RelationProperty(ids ...string) map[string]any {
	refs := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, map[string]any{"id": id})
	}
	return map[string]any{
		"relation": refs,
	}
}
