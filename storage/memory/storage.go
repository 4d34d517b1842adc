// Package memory is an in-process implementation of storage.Storage.
// It backs the test suites and the "memory" backend used for local dry runs.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"supabasemcp/storage"
)

var _ storage.Storage = (*Storage)(nil)

// TableNotFoundError mirrors the error a real backend reports for an unknown relation.
type TableNotFoundError struct {
	Table string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("relation %q does not exist", e.Table)
}

// Storage keeps tables as ordered row slices. Rows get an auto-increment id
// when inserted without one.
type Storage struct {
	mu     sync.RWMutex
	tables map[string][]storage.Row
	nextID map[string]int64
	logger *slog.Logger
}

// New creates a store with the given empty tables.
func New(tables ...string) *Storage {
	s := &Storage{
		tables: map[string][]storage.Row{},
		nextID: map[string]int64{},
		logger: slog.Default(),
	}
	for _, table := range tables {
		s.tables[table] = []storage.Row{}
		s.nextID[table] = 1
	}
	return s
}

// CreateTable adds an empty table if it does not exist yet.
func (s *Storage) CreateTable(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[table]; !ok {
		s.tables[table] = []storage.Row{}
		s.nextID[table] = 1
	}
}

func (s *Storage) Select(_ context.Context, table string, query storage.Query) ([]storage.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.logger.Debug("memory: select", slog.String("table", table), slog.Any("filters", query.Filters))

	rows, ok := s.tables[table]
	if !ok {
		return nil, &TableNotFoundError{Table: table}
	}

	var matched []storage.Row
	for _, row := range rows {
		if query.Filters.Matches(row) {
			matched = append(matched, row)
		}
	}

	if query.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c := compare(matched[i][query.OrderBy], matched[j][query.OrderBy])
			if query.Direction == storage.Descending {
				return c > 0
			}
			return c < 0
		})
	}

	if limit := query.RowLimit(); len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]storage.Row, 0, len(matched))
	for _, row := range matched {
		out = append(out, project(row, query.Columns))
	}
	return out, nil
}

func (s *Storage) Insert(_ context.Context, table string, rows []storage.Row) ([]storage.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[table]; !ok {
		return nil, &TableNotFoundError{Table: table}
	}

	inserted := make([]storage.Row, 0, len(rows))
	for _, row := range rows {
		stored := clone(row)
		if _, ok := stored[storage.IDColumn]; !ok {
			stored[storage.IDColumn] = s.nextID[table]
			s.nextID[table]++
		} else if id, ok := integerID(stored); ok && id >= s.nextID[table] {
			// explicit ids move the sequence past them
			s.nextID[table] = id + 1
		}
		s.tables[table] = append(s.tables[table], stored)
		inserted = append(inserted, clone(stored))
	}

	s.logger.Debug("memory: insert", slog.String("table", table), slog.Int("count", len(inserted)))
	return inserted, nil
}

func (s *Storage) Update(_ context.Context, table string, match storage.Fields, set storage.Fields) ([]storage.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.tables[table]
	if !ok {
		return nil, &TableNotFoundError{Table: table}
	}

	var updated []storage.Row
	for _, row := range rows {
		if !match.Matches(row) {
			continue
		}
		for _, field := range set {
			row[field.Column] = field.Value.Any()
		}
		updated = append(updated, clone(row))
	}

	s.logger.Debug("memory: update", slog.String("table", table), slog.Int("count", len(updated)))
	return updated, nil
}

func (s *Storage) Delete(_ context.Context, table string, match storage.Fields) ([]storage.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.tables[table]
	if !ok {
		return nil, &TableNotFoundError{Table: table}
	}

	var kept, deleted []storage.Row
	for _, row := range rows {
		if match.Matches(row) {
			deleted = append(deleted, row)
			continue
		}
		kept = append(kept, row)
	}
	s.tables[table] = kept

	s.logger.Debug("memory: delete", slog.String("table", table), slog.Int("count", len(deleted)))
	return deleted, nil
}

// Call serves the catalog procedures installed by the migrations package.
func (s *Storage) Call(_ context.Context, function string, params map[string]any) ([]storage.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch function {
	case "get_table_list":
		names := make([]string, 0, len(s.tables))
		for name := range s.tables {
			names = append(names, name)
		}
		sort.Strings(names)

		rows := make([]storage.Row, 0, len(names))
		for _, name := range names {
			rows = append(rows, storage.Row{"table_schema": "public", "table_name": name})
		}
		return rows, nil

	case "check_table_exists":
		name, _ := params["table_name"].(string)
		_, ok := s.tables[name]
		return []storage.Row{{function: ok}}, nil

	case "get_table_schema":
		name, _ := params["table_name"].(string)
		rows, ok := s.tables[name]
		if !ok {
			return nil, &TableNotFoundError{Table: name}
		}
		columns := storage.Columns(rows)
		schema := make([]storage.Row, 0, len(columns))
		for _, column := range columns {
			schema = append(schema, storage.Row{"column_name": column, "data_type": "unknown", "is_nullable": "YES"})
		}
		return schema, nil

	default:
		return nil, fmt.Errorf("function %q does not exist", function)
	}
}

func (s *Storage) Close() error {
	return nil
}

func clone(row storage.Row) storage.Row {
	out := make(storage.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func project(row storage.Row, columns []string) storage.Row {
	if len(columns) == 0 {
		return clone(row)
	}
	out := make(storage.Row, len(columns))
	for _, column := range columns {
		if v, ok := row[column]; ok {
			out[column] = v
		}
	}
	return out
}

// compare orders by kind first, then numbers by value and the rest by text.
func compare(a, b any) int {
	va, errA := storage.ValueOf(a)
	vb, errB := storage.ValueOf(b)
	if errA != nil || errB != nil {
		return 0
	}
	if va.Kind() != vb.Kind() {
		return int(va.Kind()) - int(vb.Kind())
	}

	switch va.Kind() {
	case storage.KindNumber:
		fa, _ := toFloat(va.Any())
		fb, _ := toFloat(vb.Any())
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	default:
		switch sa, sb := va.String(), vb.String(); {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	}
}

func toFloat(x any) (float64, bool) {
	switch t := x.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func integerID(row storage.Row) (int64, bool) {
	id, ok := row.ID()
	if !ok || id.Kind() != storage.KindNumber {
		return 0, false
	}
	n, ok := id.Any().(int64)
	return n, ok
}
