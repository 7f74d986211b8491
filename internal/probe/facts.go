package probe

import (
	"fmt"
	"strconv"
	"strings"
)

// FactTable maps a status or variable name to its raw value.
type FactTable map[string]string

// ParseTabular parses key<TAB>value command output into a FactTable.
//
// The first line (column header) and the last line (trailing newline) are
// always discarded. If a tool ever stops printing either one, the real first
// or last row is silently lost; callers rely on this exact behavior.
func ParseTabular(output string) (FactTable, error) {
	facts := make(FactTable)
	lines := strings.Split(output, "\n")
	if len(lines) < 3 {
		return facts, nil
	}
	for i, line := range lines[1 : len(lines)-1] {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, ExtractionFailure(fmt.Sprintf("malformed line %d: %q", i+2, line), nil)
		}
		facts[fields[0]] = fields[1]
	}
	return facts, nil
}

// Merge copies every key of src that is not already present in f.
func (f FactTable) Merge(src FactTable) {
	for k, v := range src {
		if _, ok := f[k]; !ok {
			f[k] = v
		}
	}
}

// String returns the raw value of key.
func (f FactTable) String(key string) (string, error) {
	v, ok := f[key]
	if !ok {
		return "", ExtractionFailure(fmt.Sprintf("missing fact %q", key), nil)
	}
	return v, nil
}

// Int returns the value of key parsed as a base-10 integer.
func (f FactTable) Int(key string) (int64, error) {
	v, err := f.String(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("fact %q: %w", key, err)
	}
	return n, nil
}

// Float returns the value of key parsed as a float.
func (f FactTable) Float(key string) (float64, error) {
	v, err := f.String(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("fact %q: %w", key, err)
	}
	return n, nil
}
