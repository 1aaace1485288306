package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/normalize"
)

// section is a group of rows that share one entity kind.
type section struct {
	kind model.Dataset
	rows []normalize.Row
}

// document is the parsed content of one export file.
type document struct {
	keyword  string // explicit keyword carried by the file, if any
	dataset  model.Dataset
	sections []section
	skipped  int // array elements that were not objects
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readCSV parses a header-first CSV export. Short records are allowed; the
// missing trailing fields are simply absent from the row.
func readCSV(data []byte, dataset model.Dataset) (document, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return document{dataset: dataset}, nil
	}
	if err != nil {
		return document{}, fmt.Errorf("read csv header: %w", err)
	}

	sec := section{kind: dataset}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return document{}, fmt.Errorf("read csv: %w", err)
		}
		raw := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(record) {
				raw[name] = record[i]
			}
		}
		sec.rows = append(sec.rows, normalize.NewRow(raw))
	}
	return document{dataset: dataset, sections: []section{sec}}, nil
}

// readJSON parses either a top-level array of rows (entity kind from the file
// name) or a structured document with "jobs", "talent" and "projects" arrays,
// optionally nested under "data", and an optional "keyword".
func readJSON(data []byte, dataset model.Dataset) (document, error) {
	var top any
	if err := json.Unmarshal(data, &top); err != nil {
		return document{}, fmt.Errorf("decode json: %w", err)
	}

	switch v := top.(type) {
	case []any:
		rows, skipped := objectRows(v)
		return document{dataset: dataset, sections: []section{{kind: dataset, rows: rows}}, skipped: skipped}, nil
	case map[string]any:
		doc := document{dataset: model.DatasetMixed}
		if kw, ok := v["keyword"].(string); ok {
			doc.keyword = strings.TrimSpace(kw)
		}
		body := v
		if nested, ok := v["data"].(map[string]any); ok {
			body = nested
		}
		for _, part := range []struct {
			field string
			kind  model.Dataset
		}{
			{"jobs", model.DatasetListings},
			{"talent", model.DatasetProviders},
			{"projects", model.DatasetCatalog},
		} {
			items, ok := body[part.field].([]any)
			if !ok {
				continue
			}
			rows, skipped := objectRows(items)
			doc.skipped += skipped
			doc.sections = append(doc.sections, section{kind: part.kind, rows: rows})
		}
		return doc, nil
	default:
		return document{}, fmt.Errorf("decode json: unexpected top-level %T", top)
	}
}

func objectRows(items []any) ([]normalize.Row, int) {
	rows := make([]normalize.Row, 0, len(items))
	skipped := 0
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, normalize.NewRow(obj))
	}
	return rows, skipped
}
