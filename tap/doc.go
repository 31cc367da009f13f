package tap

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"slices"
	"strings"
)

// StreamDocRow is one row of the stream documentation.
type StreamDocRow struct {
	Stream         string
	Parent         string
	Path           string
	PrimaryKeys    string
	Replication    string
	ExpandableKeys string
	Selected       bool
	Notes          string
}

// StreamDocumentation lists the streams a configuration syncs.
type StreamDocumentation struct {
	MerchantID string
	Rows       []StreamDocRow
}

// GenerateStreamDocumentation documents every stream of the graph, parents first,
// noting the field transforms configured for each.
func GenerateStreamDocumentation(graph *StreamGraph, sc *SyncContext) StreamDocumentation {
	doc := StreamDocumentation{
		MerchantID: sc.Config.MerchantID,
		Rows:       []StreamDocRow{},
	}
	for _, def := range graph.TopologicalOrder() {
		replication := FullTable
		if def.ReplicationKey != "" {
			replication = fmt.Sprintf("%s (%s)", Incremental, def.ReplicationKey)
		}
		doc.Rows = append(doc.Rows, StreamDocRow{
			Stream:         def.Name,
			Parent:         def.Parent,
			Path:           def.Path,
			PrimaryKeys:    strings.Join(def.PrimaryKeys, ", "),
			Replication:    replication,
			ExpandableKeys: strings.Join(def.ExpandableKeys, ", "),
			Selected:       sc.IsSelected(def.Name),
			Notes:          transformNotes(sc.Config.FieldTransforms[def.Name]),
		})
	}
	return doc
}

// transformNotes describes the derived fields of a stream, in field order.
func transformNotes(transforms map[string]string) string {
	fields := make([]string, 0, len(transforms))
	for field := range transforms {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	notes := []string{}
	for _, field := range fields {
		_, modifiers := parseSourcePath(transforms[field])
		if len(modifiers) == 0 {
			notes = append(notes, fmt.Sprintf("%s copied from %s", field, transforms[field]))
			continue
		}
		described := make([]string, len(modifiers))
		for i, m := range modifiers {
			described[i] = formatModifierNote(m)
		}
		notes = append(notes, fmt.Sprintf("%s %s", field, strings.Join(described, ", ")))
	}
	return strings.Join(notes, " | ")
}

// parseSourcePath splits a transform into its source path and modifiers.
// e.g. "address.country|@countryName" -> ("address.country", ["@countryName"])
func parseSourcePath(value string) (string, []string) {
	if strings.HasPrefix(value, "`") {
		return value, nil
	}
	parts := strings.Split(value, "|")
	var modifiers []string
	for _, part := range parts[1:] {
		if strings.HasPrefix(part, "@") {
			modifiers = append(modifiers, part)
		}
	}
	if strings.HasPrefix(parts[0], "@") {
		return "", append([]string{parts[0]}, modifiers...)
	}
	return parts[0], modifiers
}

func formatModifierNote(modifier string) string {
	name, arg, _ := strings.Cut(modifier, ":")
	switch name {
	case "@currency":
		return fmt.Sprintf("converted from minor units (%s)", arg)
	case "@phone":
		return fmt.Sprintf("formatted as E.164 (default calling code %s)", arg)
	case "@countryName":
		return "converted to a country name"
	case "@timestamp":
		return "converted to RFC 3339"
	case "@now":
		return "set to the sync time"
	case "@contains":
		return fmt.Sprintf("true if it contains %q", arg)
	case "@gte":
		return fmt.Sprintf("true if >= %s", arg)
	default:
		return fmt.Sprintf("uses %s", modifier)
	}
}

// FormatCSV formats the stream documentation as CSV.
func (d StreamDocumentation) FormatCSV() (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{fmt.Sprintf("# Merchant: %s", d.MerchantID)}); err != nil {
		return "", err
	}
	headers := []string{"Stream", "Parent", "Path", "Primary Keys", "Replication", "Expand", "Selected", "Derived Fields"}
	if err := writer.Write(headers); err != nil {
		return "", err
	}
	for _, row := range d.Rows {
		selectedMark := ""
		if row.Selected {
			selectedMark = "✓"
		}
		record := []string{row.Stream, row.Parent, row.Path, row.PrimaryKeys, row.Replication, row.ExpandableKeys, selectedMark, row.Notes}
		if err := writer.Write(record); err != nil {
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
