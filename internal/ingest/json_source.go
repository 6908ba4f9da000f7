package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// JSONSource reads records from a JSON document. Selector is a JSONPath
// expression pointing at the record collection: an array of objects, or a
// single object standing for one record.
type JSONSource struct {
	Path     string
	Selector string
}

func NewJSONSource(path, selector string) *JSONSource {
	if selector == "" {
		selector = "$"
	}
	return &JSONSource{Path: path, Selector: selector}
}

// Load implements Source. Elements that are not objects become empty
// records, which the builder skips as malformed.
func (s *JSONSource) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x, err := jp.ParseString(s.Selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", s.Selector, err)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	root, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrStoreUnavailable, s.Path, err)
	}

	results := x.Get(root)
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s matched nothing in %s", ErrTableMissing, s.Selector, s.Path)
	}

	var records []Record
	for _, r := range results {
		switch v := r.(type) {
		case []any:
			for _, item := range v {
				records = append(records, recordFromAny(item))
			}
		default:
			records = append(records, recordFromAny(v))
		}
	}
	return records, nil
}

func recordFromAny(v any) Record {
	m, ok := v.(map[string]any)
	if !ok {
		return Record{}
	}
	return recordFromMap(m)
}

var _ Source = (*JSONSource)(nil)
