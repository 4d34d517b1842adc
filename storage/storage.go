package storage

import (
	"context"
	"sort"
	"strings"
)

// DefaultLimit is the row limit applied to a select when none is given.
const DefaultLimit = 100

// IDColumn is the column every mutable table must expose.
const IDColumn = "id"

// Row is a single record keyed by column name.
type Row map[string]any

// ID returns the row identifier. Rows without an id, with a null id or with
// a non-scalar id report false.
func (r Row) ID() (Value, bool) {
	raw, ok := r[IDColumn]
	if !ok || raw == nil {
		return Value{}, false
	}
	v, err := ValueOf(raw)
	if err != nil {
		return Value{}, false
	}
	return v, true
}

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection - anything other than "desc" (case-insensitive) sorts ascending
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Descending)) {
		return Descending
	}
	return Ascending
}

// Query describes a single-table select.
type Query struct {
	Columns   []string  // projection, empty means all columns
	Filters   Fields    // conjunctive equality filters
	OrderBy   string    // optional sort column
	Direction Direction // sort direction for OrderBy
	Limit     int       // row limit, zero means DefaultLimit
}

// RowLimit returns the effective row limit.
func (q Query) RowLimit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

// Storage is the table-scoped database access capability.
//
// Every method is a single synchronous round trip. Implementations report
// transport and query failures as errors carrying the backend message.
type Storage interface {
	// Select - rows matching the query
	Select(ctx context.Context, table string, query Query) ([]Row, error)

	// Insert - insert rows in one call, returns the inserted rows with server-assigned fields
	Insert(ctx context.Context, table string, rows []Row) ([]Row, error)

	// Update - apply set to every row matching match, returns the updated rows
	Update(ctx context.Context, table string, match Fields, set Fields) ([]Row, error)

	// Delete - delete every row matching match, returns the deleted rows
	Delete(ctx context.Context, table string, match Fields) ([]Row, error)

	// Call - invoke a named read-only remote procedure
	Call(ctx context.Context, function string, params map[string]any) ([]Row, error)

	Close() error
}

// Columns returns the sorted union of the keys of rows.
func Columns(rows []Row) []string {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for column := range row {
			seen[column] = struct{}{}
		}
	}

	columns := make([]string, 0, len(seen))
	for column := range seen {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	return columns
}
