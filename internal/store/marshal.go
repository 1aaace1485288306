package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/gigrank/internal/model"
)

// marshalStrings stores a string list as a JSON array. Nil becomes "[]".
func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal strings: %w", err)
	}
	return string(data), nil
}

func unmarshalStrings(data string) ([]string, error) {
	out := []string{}
	if data == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal strings: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func marshalReasons(r model.Reasons) (string, error) {
	if r.Codes == nil {
		r.Codes = []string{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal reasons: %w", err)
	}
	return string(data), nil
}

func unmarshalReasons(data string) (model.Reasons, error) {
	var r model.Reasons
	if data != "" {
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return r, fmt.Errorf("unmarshal reasons: %w", err)
		}
	}
	if r.Codes == nil {
		r.Codes = []string{}
	}
	return r, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
