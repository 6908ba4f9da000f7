package ingest

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// field identifies a Record attribute independent of the column or key
// name a particular store uses for it.
type field int

const (
	fieldPath field = iota
	fieldParent
	fieldName
	fieldKind
	fieldCreated
	fieldModified
	fieldSize
	numFields
)

// fieldAliases lists accepted column names per field, preferred name first.
// The preferred names match the tables written by the indexer.
var fieldAliases = [numFields][]string{
	fieldPath:     {"Path", "path_abs", "file_path"},
	fieldParent:   {"Parent", "parent_path"},
	fieldName:     {"Name", "file_name"},
	fieldKind:     {"File_type", "kind", "type"},
	fieldCreated:  {"When_Created", "created_at", "ctime"},
	fieldModified: {"When_Last_Modified", "When_Modified", "modified_at", "mtime"},
	fieldSize:     {"Size_bytes", "size"},
}

// matchField maps a column or key name to the field it carries.
func matchField(name string) (field, bool) {
	for f, aliases := range fieldAliases {
		for _, a := range aliases {
			if strings.EqualFold(a, name) {
				return field(f), true
			}
		}
	}
	return 0, false
}

// recordFromValues converts raw per-field values into a Record. Absent
// fields default to empty or nil.
func recordFromValues(vals *[numFields]any) Record {
	return Record{
		Path:     toString(vals[fieldPath]),
		Parent:   toString(vals[fieldParent]),
		Name:     toString(vals[fieldName]),
		KindHint: toString(vals[fieldKind]),
		Created:  toTimestamp(vals[fieldCreated]),
		Modified: toTimestamp(vals[fieldModified]),
		Size:     toSize(vals[fieldSize]),
	}
}

// recordFromMap reads a decoded JSON object. Keys match case-insensitively;
// when several keys name the same field the preferred alias wins, then the
// lexically smallest key.
func recordFromMap(m map[string]any) Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var vals [numFields]any
	var rank [numFields]int
	for _, k := range keys {
		f, ok := matchField(k)
		if !ok {
			continue
		}
		r := aliasRank(f, k)
		if vals[f] == nil || r < rank[f] {
			vals[f] = m[k]
			rank[f] = r
		}
	}
	return recordFromValues(&vals)
}

func aliasRank(f field, name string) int {
	for i, a := range fieldAliases[f] {
		if a == name {
			return i * 2
		}
		if strings.EqualFold(a, name) {
			return i*2 + 1
		}
	}
	return len(fieldAliases[f]) * 2
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case time.Time:
		return float64(x.UnixNano()) / 1e9, true
	case string, []byte:
		s := strings.TrimSpace(toString(x))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// toTimestamp treats zero and unparseable values as unknown, matching the
// indexer, which writes 0 or "" when a timestamp was unavailable.
func toTimestamp(v any) *float64 {
	f, ok := toFloat(v)
	if !ok || f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func toSize(v any) *int64 {
	f, ok := toFloat(v)
	if !ok || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int64(f)
	return &n
}
