package records

import (
	"context"
	"log/slog"
	"strings"
)

// Catalog procedures installed by the migrations package.
const (
	FnTableList   = "get_table_list"
	FnTableSchema = "get_table_schema"
	FnTableExists = "check_table_exists"
)

// DefaultSchema is the schema catalog lookups use unless configured otherwise.
const DefaultSchema = "public"

// ListTables returns one row per table visible to the service role.
func (s *Service) ListTables(ctx context.Context) Envelope {
	const op = "records: list tables"

	if s.storage == nil {
		return s.fail(op, "", newError(KindBackend, "records: storage is nil"))
	}

	rows, err := s.storage.Call(ctx, FnTableList, nil)
	if err != nil {
		return s.fail(op, "", backendError(err))
	}
	return Succeed("", rows)
}

// DescribeTable returns one row per column of table.
func (s *Service) DescribeTable(ctx context.Context, table string) Envelope {
	const op = "records: describe table"

	if strings.TrimSpace(table) == "" {
		return s.fail(op, table, invalid(MsgTableRequired))
	}
	if s.storage == nil {
		return s.fail(op, table, newError(KindBackend, "records: storage is nil"))
	}

	rows, err := s.storage.Call(ctx, FnTableSchema, s.catalogParams(table))
	if err != nil {
		return s.fail(op, table, backendError(err))
	}
	return Succeed(table, rows)
}

// TableExists reports whether table exists. Any failure counts as false.
func (s *Service) TableExists(ctx context.Context, table string) bool {
	if s.storage == nil || strings.TrimSpace(table) == "" {
		return false
	}

	rows, err := s.storage.Call(ctx, FnTableExists, s.catalogParams(table))
	if err != nil {
		s.logger.Info("records: check table failed", slog.String("table", table), slog.String("error", err.Error()))
		return false
	}
	if len(rows) == 0 {
		return false
	}

	exists, _ := rows[0][FnTableExists].(bool)
	return exists
}

// catalogParams names table and its schema. A qualified schema.table wins
// over the configured schema.
func (s *Service) catalogParams(table string) map[string]any {
	schema := s.schema
	if i := strings.LastIndex(table, "."); i > 0 && i < len(table)-1 {
		schema, table = table[:i], table[i+1:]
	}
	return map[string]any{"table_name": table, "schema_name": schema}
}
