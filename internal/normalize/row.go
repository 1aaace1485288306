package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// Row is one raw export record with lower-cased, trimmed field names.
type Row map[string]any

// NewRow copies raw into a Row, normalizing field names.
// Empty field names are discarded.
func NewRow(raw map[string]any) Row {
	r := make(Row, len(raw))
	for k, v := range raw {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		r[key] = v
	}
	return r
}

// Has reports whether the row carries the field at all, empty or not.
func (r Row) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// Value returns the first non-empty value among aliases, or nil.
func (r Row) Value(aliases ...string) any {
	for _, a := range aliases {
		v, ok := r[a]
		if !ok || isEmpty(v) {
			continue
		}
		return v
	}
	return nil
}

// String returns the first non-empty alias value rendered as text.
func (r Row) String(aliases ...string) string {
	return stringify(r.Value(aliases...))
}

// isEmpty treats nil, "", and the spreadsheet placeholders "nan" and "None"
// as missing.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(t)
		return s == "" || s == "nan" || s == "None"
	case []any:
		return len(t) == 0
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	default:
		return fmt.Sprint(t)
	}
}
