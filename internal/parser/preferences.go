package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PreferencesKey is the dataset key holding planning-structure workflow rows.
const PreferencesKey = "planning_structure_config"

// Preferences is a generic preferences dataset: PreferencesKey maps to a list of
// workflow rows, each a map of field name to string or list of strings.
type Preferences map[string]any

// Workflows returns the workflow rows of the dataset.
func (p Preferences) Workflows() []map[string]any {
	list, _ := p[PreferencesKey].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// ReadPreferencesFile parses a preferences dataset, choosing the format by extension
// (.yaml/.yml, anything else is read as XML).
func ReadPreferencesFile(path string) (Preferences, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParsePreferencesYAML(f)
	default:
		return ParsePreferencesXML(f)
	}
}

// ParsePreferencesYAML reads a YAML document with a top-level planning_structure_config list.
func ParsePreferencesYAML(r io.Reader) (Preferences, error) {
	var doc map[string]any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Preferences{PreferencesKey: []any{}}, nil
		}
		return nil, fmt.Errorf("parse preferences yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if _, ok := doc[PreferencesKey]; !ok {
		doc[PreferencesKey] = []any{}
	}
	if _, ok := doc[PreferencesKey].([]any); !ok {
		return nil, fmt.Errorf("parse preferences yaml: %s must be a list", PreferencesKey)
	}
	return Preferences(doc), nil
}

// xmlNode is a generic element tree.
type xmlNode struct {
	XMLName  xml.Name
	Content  string    `xml:",chardata"`
	Children []xmlNode `xml:",any"`
}

// ParsePreferencesXML collects every planning_structure_config element in the document.
// Leaf children become strings; children with nested elements become lists of their
// children's text, which is how repeated values such as structure names and
// expansion distances are written.
func ParsePreferencesXML(r io.Reader) (Preferences, error) {
	var root xmlNode
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("parse preferences xml: %w", err)
	}

	rows := []any{}
	var walk func(n xmlNode)
	walk = func(n xmlNode) {
		if n.XMLName.Local == PreferencesKey {
			rows = append(rows, xmlRow(n))
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)

	return Preferences{PreferencesKey: rows}, nil
}

func xmlRow(n xmlNode) map[string]any {
	row := make(map[string]any, len(n.Children))
	for _, field := range n.Children {
		if len(field.Children) == 0 {
			row[field.XMLName.Local] = strings.TrimSpace(field.Content)
			continue
		}
		values := make([]any, 0, len(field.Children))
		for _, v := range field.Children {
			if text := strings.TrimSpace(v.Content); text != "" {
				values = append(values, text)
			}
		}
		row[field.XMLName.Local] = values
	}
	return row
}
