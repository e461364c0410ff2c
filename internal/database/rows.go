package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
)

// Recognized column names. Every other column becomes metadata.
const (
	ColumnUserID    = "user_id"
	ColumnImageURL  = "image_url"
	ColumnEmbedding = "embedding"
)

// columnAliases lets legacy "id"/"image" schemas be imported unchanged.
var columnAliases = map[string]string{
	"id":    ColumnUserID,
	"image": ColumnImageURL,
}

// ErrMissingColumn is returned when a query lacks required columns.
var ErrMissingColumn = errors.New("query result is missing a required column")

// Row is one enrollment candidate read from a source query. Err is set when
// the row could not be converted; UserID is filled in when known.
type Row struct {
	Index     int
	UserID    string
	ImageURL  string
	Embedding []float32
	Metadata  map[string]any
	Err       error
}

// EachRow runs query and calls fn for every row in result order. The query
// must return a user_id (or id) column plus image_url (or image) and/or
// embedding. Conversion problems are reported through Row.Err so a single
// bad row does not abort the import; an error from fn stops iteration.
func (p *Pool) EachRow(ctx context.Context, query string, fn func(Row) error) error {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("executing import query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("reading columns: %w", err)
	}
	names := canonicalColumns(columns)
	if err := checkColumns(names); err != nil {
		return err
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	index := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scanning row %d: %w", index, err)
		}
		if err := fn(convertRow(index, names, values)); err != nil {
			return err
		}
		index++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rows: %w", err)
	}
	return nil
}

func canonicalColumns(columns []string) []string {
	names := make([]string, len(columns))
	present := make(map[string]bool, len(columns))
	for i, c := range columns {
		names[i] = strings.ToLower(c)
		present[names[i]] = true
	}
	for i, n := range names {
		if alias, ok := columnAliases[n]; ok && !present[alias] {
			names[i] = alias
		}
	}
	return names
}

func checkColumns(names []string) error {
	var hasID, hasSource bool
	for _, n := range names {
		switch n {
		case ColumnUserID:
			hasID = true
		case ColumnImageURL, ColumnEmbedding:
			hasSource = true
		}
	}
	if !hasID {
		return fmt.Errorf("%w: %s", ErrMissingColumn, ColumnUserID)
	}
	if !hasSource {
		return fmt.Errorf("%w: %s or %s", ErrMissingColumn, ColumnImageURL, ColumnEmbedding)
	}
	return nil
}

func convertRow(index int, names []string, values []any) Row {
	row := Row{Index: index, Metadata: make(map[string]any)}
	for i, name := range names {
		v := values[i]
		switch name {
		case ColumnUserID:
			s, ok := scalarString(v)
			if !ok || s == "" {
				row.Err = fmt.Errorf("row %d: missing %s", index, ColumnUserID)
				continue
			}
			row.UserID = s
		case ColumnImageURL:
			row.ImageURL, _ = scalarString(v)
		case ColumnEmbedding:
			if v == nil {
				continue
			}
			emb, err := parseEmbedding(v)
			if err != nil && row.Err == nil {
				row.Err = fmt.Errorf("row %d: %w", index, err)
			}
			row.Embedding = emb
		default:
			if mv, ok := metadataValue(v); ok {
				row.Metadata[name] = mv
			}
		}
	}
	if row.Err == nil && row.ImageURL == "" && row.Embedding == nil {
		row.Err = fmt.Errorf("row %d: neither %s nor %s is set", index, ColumnImageURL, ColumnEmbedding)
	}
	return row
}

// parseEmbedding accepts the pgvector text form "[1,2,3]", which is also how
// JSON arrays are stored in MySQL and SQLite text columns.
func parseEmbedding(v any) ([]float32, error) {
	var s string
	switch val := v.(type) {
	case []byte:
		s = string(val)
	case string:
		s = val
	default:
		return nil, fmt.Errorf("unsupported embedding type %T", v)
	}
	s = strings.Join(strings.Fields(s), "")
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, errors.New("embedding is not a [..] vector literal")
	}
	if s == "[]" {
		return []float32{}, nil
	}

	var vec pgvector.Vector
	if err := vec.Scan(s); err != nil {
		return nil, fmt.Errorf("parsing embedding: %w", err)
	}
	return vec.Slice(), nil
}

func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case []byte:
		return strings.TrimSpace(string(val)), true
	case string:
		return strings.TrimSpace(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return strings.TrimSpace(fmt.Sprint(val)), true
	}
}

func metadataValue(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case []byte:
		return string(val), true
	case time.Time:
		return val.UTC().Format(time.RFC3339), true
	case string, bool, int64, float64:
		return val, true
	default:
		return fmt.Sprint(val), true
	}
}
