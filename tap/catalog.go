package tap

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/iancoleman/strcase"
)

const (
	FullTable   = "FULL_TABLE"
	Incremental = "INCREMENTAL"
)

// MetadataEntry is a Singer catalog metadata item. An empty breadcrumb addresses the stream.
type MetadataEntry struct {
	Breadcrumb []string       `json:"breadcrumb"`
	Metadata   map[string]any `json:"metadata"`
}

type CatalogEntry struct {
	TapStreamID       string          `json:"tap_stream_id"`
	Stream            string          `json:"stream"`
	Title             string          `json:"title,omitempty"`
	Path              string          `json:"path"`
	Parent            string          `json:"parent_stream,omitempty"`
	KeyProperties     []string        `json:"key_properties"`
	ReplicationKey    string          `json:"replication_key,omitempty"`
	ReplicationMethod string          `json:"replication_method"`
	ExpandableKeys    []string        `json:"expandable_keys,omitempty"`
	Schema            map[string]any  `json:"schema"`
	Selected          *bool           `json:"selected,omitempty"`
	Metadata          []MetadataEntry `json:"metadata,omitempty"`
}

type Catalog struct {
	Streams []CatalogEntry `json:"streams"`
}

// Discover describes every stream of the graph. It makes no network calls.
func Discover(graph *StreamGraph, schemas SchemaSource) (Catalog, error) {
	var result Catalog
	for _, def := range graph.TopologicalOrder() {
		schema, err := schemas.Schema(def)
		if err != nil {
			return result, err
		}
		method := FullTable
		if def.ReplicationKey != "" {
			method = Incremental
		}
		streamMetadata := map[string]any{
			"inclusion":                 "available",
			"table-key-properties":      def.PrimaryKeys,
			"forced-replication-method": method,
		}
		if def.ReplicationKey != "" {
			streamMetadata["valid-replication-keys"] = []string{def.ReplicationKey}
		}
		if def.Parent != "" {
			streamMetadata["parent-tap-stream-id"] = def.Parent
		}
		result.Streams = append(result.Streams, CatalogEntry{
			TapStreamID:       def.Name,
			Stream:            def.Name,
			Title:             strcase.ToCamel(def.Name),
			Path:              def.Path,
			Parent:            def.Parent,
			KeyProperties:     def.PrimaryKeys,
			ReplicationKey:    def.ReplicationKey,
			ReplicationMethod: method,
			ExpandableKeys:    def.ExpandableKeys,
			Schema:            schema,
			Metadata:          []MetadataEntry{{Breadcrumb: []string{}, Metadata: streamMetadata}},
		})
	}
	return result, nil
}

func LoadCatalog(path string) (Catalog, error) {
	var result Catalog
	data, err := os.ReadFile(path)
	if err != nil {
		return result, fmt.Errorf("failed to read catalog file %w", err)
	}
	if err = json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("failed to parse catalog file %w", err)
	}
	return result, nil
}

// Selected returns the streams marked as selected, either on the entry, in its
// stream level metadata or, for older catalogs, in its schema.
func (c Catalog) Selected() []string {
	var result []string
	for _, entry := range c.Streams {
		if entry.isSelected() {
			name := entry.TapStreamID
			if name == "" {
				name = entry.Stream
			}
			result = append(result, NormalizeStreamName(name))
		}
	}
	return result
}

func (e CatalogEntry) isSelected() bool {
	if e.Selected != nil {
		return *e.Selected
	}
	for _, m := range e.Metadata {
		if len(m.Breadcrumb) == 0 {
			if selected, ok := m.Metadata["selected"].(bool); ok {
				return selected
			}
		}
	}
	selected, _ := e.Schema["selected"].(bool)
	return selected
}

// NormalizeStreamName accepts stream names in any common casing,
// e.g. OrderLineItems or order-line-items for order_line_items.
func NormalizeStreamName(name string) string {
	return strcase.ToSnake(strings.TrimSpace(name))
}
