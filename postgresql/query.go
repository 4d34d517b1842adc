package postgresql

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"

	"supabasemcp/storage"
)

var dialect = goqu.Dialect("postgres")

// builder renders prepared statements for tables of one default schema.
// A table name of the form schema.table overrides the default.
type builder struct {
	schema string
}

func (b builder) qualify(name string) (string, string) {
	if i := strings.IndexByte(name, '.'); i > 0 && i < len(name)-1 {
		return name[:i], name[i+1:]
	}
	return b.schema, name
}

func (b builder) table(name string) exp.IdentifierExpression {
	schema, table := b.qualify(name)
	if schema == "" {
		return goqu.T(table)
	}
	return goqu.S(schema).Table(table)
}

func where(match storage.Fields) goqu.Ex {
	ex := goqu.Ex{}
	for _, field := range match {
		ex[field.Column] = field.Value.Any()
	}
	return ex
}

func (b builder) selectSQL(table string, query storage.Query) (string, []any, error) {
	ds := dialect.From(b.table(table)).Prepared(true)

	if len(query.Columns) > 0 {
		columns := make([]any, 0, len(query.Columns))
		for _, column := range query.Columns {
			columns = append(columns, goqu.C(column))
		}
		ds = ds.Select(columns...)
	}
	if len(query.Filters) > 0 {
		ds = ds.Where(where(query.Filters))
	}
	if query.OrderBy != "" {
		order := goqu.I(query.OrderBy).Asc()
		if query.Direction == storage.Descending {
			order = goqu.I(query.OrderBy).Desc()
		}
		ds = ds.Order(order)
	}

	return ds.Limit(uint(query.RowLimit())).ToSQL()
}

// insertSQL renders a multi-row insert. Columns a row lacks take their
// default value.
func (b builder) insertSQL(table string, rows []storage.Row) (string, []any, error) {
	columns := storage.Columns(rows)
	if len(columns) == 0 {
		return "", nil, errors.New("no columns to insert")
	}

	records := make([]any, 0, len(rows))
	for _, row := range rows {
		record := goqu.Record{}
		for _, column := range columns {
			if v, ok := row[column]; ok {
				record[column] = param(v)
			} else {
				record[column] = goqu.Default()
			}
		}
		records = append(records, record)
	}

	return dialect.Insert(b.table(table)).Prepared(true).Rows(records...).Returning(goqu.Star()).ToSQL()
}

// defaultsSQL inserts a single row made only of default values.
func (b builder) defaultsSQL(table string) string {
	schema, name := b.qualify(table)
	ident := pgx.Identifier{name}
	if schema != "" {
		ident = pgx.Identifier{schema, name}
	}
	return "INSERT INTO " + ident.Sanitize() + " DEFAULT VALUES RETURNING *"
}

func (b builder) updateSQL(table string, match, set storage.Fields) (string, []any, error) {
	if len(set) == 0 {
		return "", nil, errors.New("no columns to update")
	}

	record := goqu.Record{}
	for _, field := range set {
		record[field.Column] = field.Value.Any()
	}

	ds := dialect.Update(b.table(table)).Prepared(true).Set(record)
	if len(match) > 0 {
		ds = ds.Where(where(match))
	}
	return ds.Returning(goqu.Star()).ToSQL()
}

func (b builder) deleteSQL(table string, match storage.Fields) (string, []any, error) {
	ds := dialect.Delete(b.table(table)).Prepared(true)
	if len(match) > 0 {
		ds = ds.Where(where(match))
	}
	return ds.Returning(goqu.Star()).ToSQL()
}

// callSQL renders a set-returning call with named arguments in name order.
// Catalog functions live in public unless the name is schema qualified.
func (b builder) callSQL(function string, params map[string]any) (string, []any) {
	schema, name := builder{schema: "public"}.qualify(function)

	names := make([]string, 0, len(params))
	for key := range params {
		names = append(names, key)
	}
	sort.Strings(names)

	args := make([]any, 0, len(names))
	placeholders := make([]string, 0, len(names))
	for i, key := range names {
		placeholders = append(placeholders, fmt.Sprintf("%s => $%d", pgx.Identifier{key}.Sanitize(), i+1))
		args = append(args, param(params[key]))
	}

	return fmt.Sprintf("SELECT * FROM %s(%s)", pgx.Identifier{schema, name}.Sanitize(), strings.Join(placeholders, ", ")), args
}

// param narrows decoded JSON numbers so integer columns accept them and
// encodes nested values as JSON text.
func param(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case storage.Value:
		return t.Any()
	case map[string]any, []any:
		// json and jsonb columns
		data, err := json.Marshal(t)
		if err != nil {
			return v
		}
		return string(data)
	}
	return v
}
