package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/lowvolt/jkble/internal/protocol"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = fmt.Errorf("unsupported output format")

// formatRecord renders a decoded Record in the requested format.
func formatRecord(resp *protocol.Response, record protocol.Record, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatRecordJSON(resp, record)
	case formatTable:
		return formatRecordTable(resp, record), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatRecordJSON(resp *protocol.Response, record protocol.Record) (string, error) {
	out := struct {
		Response string          `json:"response"`
		Kind     string          `json:"kind"`
		Fields   protocol.Record `json:"fields"`
	}{
		Response: resp.Name,
		Kind:     resp.Kind,
		Fields:   record,
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(b), nil
}

func formatRecordTable(resp *protocol.Response, record protocol.Record) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "response: %s (kind: %s)\n", resp.Name, resp.Kind)

	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tVALUE")

	for _, key := range sortedKeys(record) {
		fmt.Fprintf(w, "%s\t%s\n", key, formatValue(record[key]))
	}

	// tabwriter.Flush never returns an error for a strings.Builder sink.
	_ = w.Flush()
	return strings.TrimRight(buf.String(), "\n")
}

func sortedKeys(record protocol.Record) []string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValue(v any) string {
	seq, ok := v.([]protocol.Value)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	parts := make([]string, len(seq))
	for i, item := range seq {
		parts[i] = fmt.Sprintf("%v", item)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
