// Package postgrest implements storage.Storage over the Supabase REST API
// (PostgREST) using the project URL and the service role key.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"supabasemcp/storage"
)

var _ storage.Storage = (*Storage)(nil)

// DefaultTimeout bounds a single REST round trip.
const DefaultTimeout = 30 * time.Second

const restPath = "/rest/v1/"

type Config struct {
	URL        string // project URL, e.g. https://xyz.supabase.co
	Key        string // service role key
	Schema     string // exposed schema, public when empty
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Storage struct {
	base   *url.URL
	key    string
	schema string
	client *http.Client
	logger *slog.Logger
}

// APIError is the error body PostgREST returns for failed requests.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgrest: url is empty")
	}
	if cfg.Key == "" {
		return nil, errors.New("postgrest: key is empty")
	}

	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("postgrest: invalid url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("postgrest: invalid url scheme %q", base.Scheme)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("postgrest: client initialized", slog.String("url", base.String()), slog.String("schema", cfg.Schema))

	return &Storage{
		base:   base,
		key:    cfg.Key,
		schema: cfg.Schema,
		client: client,
		logger: logger,
	}, nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) Select(ctx context.Context, table string, query storage.Query) ([]storage.Row, error) {
	params := selectParams(query)
	s.logger.Debug("postgrest: select", slog.String("table", table), slog.String("query", params.Encode()))

	rows, err := s.do(ctx, http.MethodGet, restPath+url.PathEscape(table), params, nil, "")
	if err != nil {
		return nil, s.failed("select", table, err)
	}
	return rows, nil
}

func (s *Storage) Insert(ctx context.Context, table string, rows []storage.Row) ([]storage.Row, error) {
	params := url.Values{}
	if columns := storage.Columns(rows); len(columns) > 0 {
		params.Set("columns", strings.Join(columns, ","))
	}
	s.logger.Debug("postgrest: insert", slog.String("table", table), slog.Int("records", len(rows)))

	inserted, err := s.do(ctx, http.MethodPost, restPath+url.PathEscape(table), params, rows, "return=representation,missing=default")
	if err != nil {
		return nil, s.failed("insert", table, err)
	}
	return inserted, nil
}

func (s *Storage) Update(ctx context.Context, table string, match storage.Fields, set storage.Fields) ([]storage.Row, error) {
	params := url.Values{}
	addFilters(params, match)
	s.logger.Debug("postgrest: update", slog.String("table", table), slog.String("query", params.Encode()))

	updated, err := s.do(ctx, http.MethodPatch, restPath+url.PathEscape(table), params, set, "return=representation")
	if err != nil {
		return nil, s.failed("update", table, err)
	}
	return updated, nil
}

func (s *Storage) Delete(ctx context.Context, table string, match storage.Fields) ([]storage.Row, error) {
	params := url.Values{}
	addFilters(params, match)
	s.logger.Debug("postgrest: delete", slog.String("table", table), slog.String("query", params.Encode()))

	deleted, err := s.do(ctx, http.MethodDelete, restPath+url.PathEscape(table), params, nil, "return=representation")
	if err != nil {
		return nil, s.failed("delete", table, err)
	}
	return deleted, nil
}

// Call invokes a database function through /rest/v1/rpc. A scalar result is
// returned as a single row keyed by the function name.
func (s *Storage) Call(ctx context.Context, function string, params map[string]any) ([]storage.Row, error) {
	if params == nil {
		params = map[string]any{}
	}
	s.logger.Debug("postgrest: rpc", slog.String("function", function))

	rows, err := s.doRPC(ctx, function, params)
	if err != nil {
		return nil, s.failed("rpc", function, err)
	}
	return rows, nil
}

func (s *Storage) failed(op, target string, err error) error {
	s.logger.Info("postgrest: "+op+" failed", slog.String("target", target), slog.String("error", err.Error()))
	return err
}

func (s *Storage) doRPC(ctx context.Context, function string, params map[string]any) ([]storage.Row, error) {
	body, err := s.send(ctx, http.MethodPost, restPath+"rpc/"+url.PathEscape(function), nil, params, "")
	if err != nil {
		return nil, err
	}
	return decodeRows(body, function)
}

func (s *Storage) do(ctx context.Context, method, path string, params url.Values, payload any, prefer string) ([]storage.Row, error) {
	body, err := s.send(ctx, method, path, params, payload, prefer)
	if err != nil {
		return nil, err
	}
	return decodeRows(body, "")
}

func (s *Storage) send(ctx context.Context, method, path string, params url.Values, payload any, prefer string) ([]byte, error) {
	endpoint := *s.base
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path
	if len(params) > 0 {
		endpoint.RawQuery = params.Encode()
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("postgrest: encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("postgrest: build request: %w", err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	if s.schema != "" && s.schema != "public" {
		if method == http.MethodGet || method == http.MethodHead {
			req.Header.Set("Accept-Profile", s.schema)
		} else {
			req.Header.Set("Content-Profile", s.schema)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("postgrest: read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeError(resp.StatusCode, body)
	}
	return body, nil
}

func decodeError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
	}
	return apiErr
}

// decodeRows accepts an array of objects, a single object, or, for RPC
// calls, a scalar that is wrapped as {scalarKey: value}.
func decodeRows(body []byte, scalarKey string) ([]storage.Row, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []storage.Row{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("postgrest: decode response: %w", err)
	}

	switch t := decoded.(type) {
	case []any:
		rows := make([]storage.Row, 0, len(t))
		for _, item := range t {
			obj, ok := item.(map[string]any)
			if !ok {
				if scalarKey == "" {
					return nil, errors.New("postgrest: unexpected non-object row")
				}
				obj = map[string]any{scalarKey: item}
			}
			rows = append(rows, storage.Row(obj))
		}
		return rows, nil
	case map[string]any:
		return []storage.Row{storage.Row(t)}, nil
	default:
		if scalarKey == "" {
			return nil, errors.New("postgrest: unexpected response shape")
		}
		return []storage.Row{{scalarKey: t}}, nil
	}
}

func selectParams(query storage.Query) url.Values {
	params := url.Values{}

	selection := "*"
	if len(query.Columns) > 0 {
		selection = strings.Join(query.Columns, ",")
	}
	params.Set("select", selection)

	addFilters(params, query.Filters)

	if query.OrderBy != "" {
		direction := "asc"
		if query.Direction == storage.Descending {
			direction = "desc"
		}
		params.Set("order", query.OrderBy+"."+direction)
	}

	params.Set("limit", strconv.Itoa(query.RowLimit()))
	return params
}

// addFilters puts the equality filters into one and=(...) tree. Column names
// never become query keys of their own, so a column called limit or order
// cannot collide with the request's own parameters.
func addFilters(params url.Values, filters storage.Fields) {
	if len(filters) == 0 {
		return
	}
	params.Set("and", filterTree(filters))
}

func filterTree(filters storage.Fields) string {
	conditions := make([]string, 0, len(filters))
	for _, field := range filters {
		if field.Value.IsNull() {
			conditions = append(conditions, quote(field.Column)+".is.null")
			continue
		}
		conditions = append(conditions, quote(field.Column)+".eq."+quote(field.Value.String()))
	}
	return "(" + strings.Join(conditions, ",") + ")"
}

// quote wraps s in double quotes for a logic tree, escaping \ and ".
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
