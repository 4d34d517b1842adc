// Package records implements the CRUD procedures exposed to the agent.
//
// Reads and inserts go straight to the storage backend. Updates and deletes
// first resolve the rows their filters address and then mutate them one id
// at a time, in resolution order. The loop is not atomic: when a mutation
// fails, the rows mutated before it stay mutated and the call reports only
// the failure.
package records

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"supabasemcp/storage"
)

// Service runs the record procedures against a storage backend.
type Service struct {
	storage      storage.Storage // database access capability
	resolveLimit int             // max rows a single update/delete may touch
	schema       string          // schema the catalog procedures look in
	logger       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithResolveLimit caps how many rows one update or delete resolves.
func WithResolveLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.resolveLimit = limit
		}
	}
}

// WithSchema sets the schema DescribeTable and TableExists look in.
func WithSchema(schema string) Option {
	return func(s *Service) {
		if schema = strings.TrimSpace(schema); schema != "" {
			s.schema = schema
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService - constructor
func NewService(store storage.Storage, opts ...Option) *Service {
	s := &Service{
		storage:      store,
		resolveLimit: storage.DefaultLimit,
		schema:       DefaultSchema,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the rows of table matching query.
func (s *Service) Read(ctx context.Context, table string, query storage.Query) Envelope {
	const op = "records: read"

	if err := validateRead(table, query); err != nil {
		return s.fail(op, table, err)
	}

	rows, err := s.resolve(ctx, table, query)
	if err != nil {
		return s.fail(op, table, err)
	}

	s.logger.Debug(op+" success", slog.String("table", table), slog.Int("count", len(rows)))
	return Succeed(table, rows)
}

// Create inserts rows in a single call and returns them as stored.
func (s *Service) Create(ctx context.Context, table string, rows []storage.Row) Envelope {
	const op = "records: create"

	if len(rows) == 0 {
		return s.fail(op, table, invalid(MsgNoRecords))
	}
	if strings.TrimSpace(table) == "" {
		return s.fail(op, table, invalid(MsgTableRequired))
	}

	payload := make([]storage.Row, len(rows))
	for i, row := range rows {
		if row == nil {
			row = storage.Row{}
		}
		payload[i] = row
	}

	if s.storage == nil {
		return s.fail(op, table, newError(KindBackend, "records: storage is nil"))
	}

	s.logger.Debug(op, slog.String("table", table), slog.Int("records", len(payload)))

	inserted, err := s.storage.Insert(ctx, table, payload)
	if err != nil {
		return s.fail(op, table, backendError(err))
	}

	s.logger.Debug(op+" success", slog.String("table", table), slog.Int("count", len(inserted)))
	return Succeed(table, inserted)
}

// Update sets updates on every row matching filters, one row at a time.
func (s *Service) Update(ctx context.Context, table string, updates, filters storage.Fields) Envelope {
	const op = "records: update"

	if len(updates) == 0 {
		return s.fail(op, table, invalid(MsgNoUpdates))
	}
	if len(filters) == 0 {
		return s.fail(op, table, invalid(MsgNoUpdateFilters))
	}
	if strings.TrimSpace(table) == "" {
		return s.fail(op, table, invalid(MsgTableRequired))
	}

	return s.mutateEach(ctx, op, "updated", table, filters, func(ctx context.Context, byID storage.Fields) ([]storage.Row, error) {
		return s.storage.Update(ctx, table, byID, updates)
	})
}

// Delete removes every row matching filters, one row at a time.
func (s *Service) Delete(ctx context.Context, table string, filters storage.Fields) Envelope {
	const op = "records: delete"

	if len(filters) == 0 {
		return s.fail(op, table, invalid(MsgNoDeleteFilters))
	}
	if strings.TrimSpace(table) == "" {
		return s.fail(op, table, invalid(MsgTableRequired))
	}

	return s.mutateEach(ctx, op, "deleted", table, filters, func(ctx context.Context, byID storage.Fields) ([]storage.Row, error) {
		return s.storage.Delete(ctx, table, byID)
	})
}

type mutation func(ctx context.Context, byID storage.Fields) ([]storage.Row, error)

// mutateEach resolves the ids addressed by filters and applies mutate to each
// of them sequentially. The first failing call aborts the loop.
func (s *Service) mutateEach(ctx context.Context, op, verb, table string, filters storage.Fields, mutate mutation) Envelope {
	ids, capped, err := s.resolveIDs(ctx, table, filters)
	if err != nil {
		return s.fail(op, table, err)
	}

	s.logger.Debug(op, slog.String("table", table), slog.Int("targets", len(ids)), slog.Bool("capped", capped))

	var out []storage.Row
	for i, id := range ids {
		rows, err := mutate(ctx, storage.Fields{{Column: storage.IDColumn, Value: id}})
		if err != nil {
			if i > 0 {
				s.logger.Warn(op+" aborted after partial application",
					slog.String("table", table), slog.Int("applied", i), slog.Int("targets", len(ids)))
			}
			return s.fail(op, table, backendError(err))
		}
		out = append(out, rows...)
	}

	env := Succeed(table, out)
	if capped {
		env.Warning = fmt.Sprintf("filters matched more than %d records; only the first %d were %s",
			s.resolveLimit, s.resolveLimit, verb)
		s.logger.Warn(op+" capped", slog.String("table", table), slog.Int("limit", s.resolveLimit))
	}

	s.logger.Debug(op+" success", slog.String("table", table), slog.Int("count", env.Count))
	return env
}

// resolveIDs returns the ids of the rows filters address, at most
// resolveLimit of them, and whether more rows matched than that.
func (s *Service) resolveIDs(ctx context.Context, table string, filters storage.Fields) ([]storage.Value, bool, error) {
	rows, err := s.resolve(ctx, table, storage.Query{
		Filters: filters,
		Limit:   s.resolveLimit + 1,
	})
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, newError(KindNotFound, MsgNoMatches)
	}

	capped := len(rows) > s.resolveLimit
	if capped {
		rows = rows[:s.resolveLimit]
	}

	ids := make([]storage.Value, 0, len(rows))
	for _, row := range rows {
		id, ok := row.ID()
		if !ok {
			return nil, false, newError(KindMissingID, MsgMissingID)
		}
		ids = append(ids, id)
	}

	return ids, capped, nil
}

// resolve is the row resolver shared by Read and the mutations.
func (s *Service) resolve(ctx context.Context, table string, query storage.Query) ([]storage.Row, error) {
	if s.storage == nil {
		return nil, newError(KindBackend, "records: storage is nil")
	}

	query.Direction = storage.ParseDirection(string(query.Direction))

	rows, err := s.storage.Select(ctx, table, query)
	if err != nil {
		return nil, backendError(err)
	}
	return rows, nil
}

func validateRead(table string, query storage.Query) error {
	if strings.TrimSpace(table) == "" {
		return invalid(MsgTableRequired)
	}
	if query.Limit < 0 {
		return invalid(MsgNegativeLimit)
	}
	for _, column := range query.Columns {
		if strings.TrimSpace(column) == "" {
			return invalid(MsgEmptyColumnName)
		}
	}
	if query.OrderBy != "" && strings.TrimSpace(query.OrderBy) == "" {
		return invalid(MsgEmptyOrderColumn)
	}
	return nil
}

func (s *Service) fail(op, table string, err error) Envelope {
	s.logger.Info(op+" failed",
		slog.String("table", table),
		slog.String("kind", string(KindOf(err))),
		slog.String("error", err.Error()))
	return Fail(table, err)
}
