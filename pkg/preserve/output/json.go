package output

import (
	"bytes"
	"encoding/json"
)

// JSONFormatter writes a single indented JSON document: the report in
// Result.Payload when there is one, the tabular view otherwise.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(document(r))
}

// document is the value structured formatters encode.
func document(r *Result) any {
	if r.Payload != nil {
		return r.Payload
	}
	return r
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

// Ensure JSONFormatter implements Formatter.
var _ Formatter = (*JSONFormatter)(nil)

// JSONLFormatter writes one compact JSON object per row, keyed by column
// name, for streaming into tools like jq.
type JSONLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONLFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, row := range r.Rows {
		obj := make(map[string]string, len(r.Columns))
		for i, c := range r.Columns {
			obj[c] = cellAt(row, i)
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("jsonl", func() Formatter {
		return &JSONLFormatter{}
	})
}

// Ensure JSONLFormatter implements Formatter.
var _ Formatter = (*JSONLFormatter)(nil)
