package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"supabasemcp/storage"
)

type captured struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   string
}

func newTestStorage(t *testing.T, status int, response string, schema string) (*Storage, *captured) {
	t.Helper()

	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.Query()
		got.header = r.Header.Clone()
		got.body = string(body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)

	s, err := NewStorage(Config{URL: srv.URL + "/", Key: "service-key", Schema: schema})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return s, got
}

func mustFields(t *testing.T, m map[string]any) storage.Fields {
	t.Helper()
	f, err := storage.FieldsOf(m)
	if err != nil {
		t.Fatalf("FieldsOf: %v", err)
	}
	return f
}

func TestNewStorageValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no url", Config{Key: "k"}},
		{"no key", Config{URL: "https://x.supabase.co"}},
		{"bad scheme", Config{URL: "ftp://x.supabase.co", Key: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStorage(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSelect(t *testing.T) {
	s, got := newTestStorage(t, http.StatusOK, `[{"id":1,"status":"new","total":10.5}]`, "")

	rows, err := s.Select(context.Background(), "orders", storage.Query{
		Columns:   []string{"id", "status"},
		Filters:   mustFields(t, map[string]any{"status": "new", "deleted_at": nil}),
		OrderBy:   "id",
		Direction: storage.Descending,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if got.method != http.MethodGet || got.path != "/rest/v1/orders" {
		t.Errorf("request = %s %s", got.method, got.path)
	}
	wantQuery := map[string]string{
		"select": "id,status",
		"and":    `("deleted_at".is.null,"status".eq."new")`,
		"order":  "id.desc",
		"limit":  "100",
	}
	for key, want := range wantQuery {
		if v := got.query[key]; len(v) != 1 || v[0] != want {
			t.Errorf("query %s = %v, want %s", key, v, want)
		}
	}
	if got.header.Get("apikey") != "service-key" || got.header.Get("Authorization") != "Bearer service-key" {
		t.Errorf("auth headers = %v", got.header)
	}
	if got.header.Get("Accept-Profile") != "" {
		t.Errorf("unexpected Accept-Profile %q", got.header.Get("Accept-Profile"))
	}

	if len(rows) != 1 {
		t.Fatalf("got %d rows", len(rows))
	}
	if id, ok := rows[0].ID(); !ok || !id.Equal(1) {
		t.Errorf("id = %v", rows[0]["id"])
	}
	if total, ok := rows[0]["total"].(json.Number); !ok || total.String() != "10.5" {
		t.Errorf("total = %#v", rows[0]["total"])
	}
}

func TestSelectDefaults(t *testing.T) {
	s, got := newTestStorage(t, http.StatusOK, `[]`, "billing")

	rows, err := s.Select(context.Background(), "orders", storage.Query{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows", len(rows))
	}
	if got.query["select"][0] != "*" || got.query["limit"][0] != "100" {
		t.Errorf("query = %v", got.query)
	}
	if _, ok := got.query["order"]; ok {
		t.Error("order must be omitted without order_by")
	}
	if got.header.Get("Accept-Profile") != "billing" {
		t.Errorf("Accept-Profile = %q", got.header.Get("Accept-Profile"))
	}
}

func TestSelectReservedColumnFilter(t *testing.T) {
	reserved := []string{"limit", "order", "select", "offset", "columns", "on_conflict", "and", "or", "not"}

	for _, column := range reserved {
		t.Run(column, func(t *testing.T) {
			s, got := newTestStorage(t, http.StatusOK, `[]`, "")

			_, err := s.Select(context.Background(), "orders", storage.Query{
				Filters:   mustFields(t, map[string]any{column: 5}),
				OrderBy:   "id",
				Direction: storage.Ascending,
				Limit:     10,
			})
			if err != nil {
				t.Fatalf("Select: %v", err)
			}

			want := url.Values{
				"select": {"*"},
				"and":    {`("` + column + `".eq."5")`},
				"order":  {"id.asc"},
				"limit":  {"10"},
			}
			if len(got.query) != len(want) {
				t.Errorf("query = %v, want %v", got.query, want)
			}
			for key, values := range want {
				if v := got.query[key]; len(v) != 1 || v[0] != values[0] {
					t.Errorf("query %s = %v, want %v", key, v, values)
				}
			}
		})
	}
}

func TestFilterTreeQuoting(t *testing.T) {
	tests := []struct {
		name    string
		filters map[string]any
		want    string
	}{
		{"null", map[string]any{"deleted_at": nil}, `("deleted_at".is.null)`},
		{"reserved chars in value", map[string]any{"note": "a,b.c(d)"}, `("note".eq."a,b.c(d)")`},
		{"quote and backslash", map[string]any{`we"ird`: `x\y"z`}, `("we\"ird".eq."x\\y\"z")`},
		{"bool", map[string]any{"active": true}, `("active".eq."true")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filterTree(mustFields(t, tt.filters)); got != tt.want {
				t.Errorf("filterTree = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestUpdateReservedColumnFilter(t *testing.T) {
	s, got := newTestStorage(t, http.StatusOK, `[]`, "")

	_, err := s.Update(context.Background(), "orders",
		mustFields(t, map[string]any{"select": "x", "or": 1}),
		mustFields(t, map[string]any{"status": "paid"}))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(got.query) != 1 || got.query.Get("and") != `("or".eq."1","select".eq."x")` {
		t.Errorf("query = %v", got.query)
	}
}

func TestInsert(t *testing.T) {
	s, got := newTestStorage(t, http.StatusCreated, `[{"id":1,"status":"new"},{"id":2,"total":3}]`, "")

	rows, err := s.Insert(context.Background(), "orders", []storage.Row{{"status": "new"}, {"total": 3}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got.method != http.MethodPost || got.path != "/rest/v1/orders" {
		t.Errorf("request = %s %s", got.method, got.path)
	}
	if got.query["columns"][0] != "status,total" {
		t.Errorf("columns = %v", got.query["columns"])
	}
	if got.header.Get("Prefer") != "return=representation,missing=default" {
		t.Errorf("Prefer = %q", got.header.Get("Prefer"))
	}
	if got.body != `[{"status":"new"},{"total":3}]` {
		t.Errorf("body = %s", got.body)
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows", len(rows))
	}
}

func TestUpdate(t *testing.T) {
	s, got := newTestStorage(t, http.StatusOK, `[{"id":7,"status":"paid"}]`, "billing")

	rows, err := s.Update(context.Background(), "orders",
		mustFields(t, map[string]any{"id": 7}),
		mustFields(t, map[string]any{"status": "paid", "note": nil}))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.method != http.MethodPatch || got.query.Get("and") != `("id".eq."7")` {
		t.Errorf("request = %s %v", got.method, got.query)
	}
	if got.body != `{"note":null,"status":"paid"}` {
		t.Errorf("body = %s", got.body)
	}
	if got.header.Get("Prefer") != "return=representation" || got.header.Get("Content-Profile") != "billing" {
		t.Errorf("headers = %v", got.header)
	}
	if len(rows) != 1 || rows[0]["status"] != "paid" {
		t.Errorf("rows = %v", rows)
	}
}

func TestDelete(t *testing.T) {
	s, got := newTestStorage(t, http.StatusOK, `[{"id":3}]`, "")

	rows, err := s.Delete(context.Background(), "orders", mustFields(t, map[string]any{"id": 3}))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got.method != http.MethodDelete || got.query.Get("and") != `("id".eq."3")` || got.body != "" {
		t.Errorf("request = %s %v %q", got.method, got.query, got.body)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %v", rows)
	}
}

func TestCall(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     int
	}{
		{"set of rows", `[{"table_schema":"public","table_name":"orders"}]`, 1},
		{"scalar", `true`, 1},
		{"empty", ``, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, got := newTestStorage(t, http.StatusOK, tt.response, "")

			rows, err := s.Call(context.Background(), "check_table_exists", map[string]any{"table_name": "orders"})
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if got.method != http.MethodPost || got.path != "/rest/v1/rpc/check_table_exists" {
				t.Errorf("request = %s %s", got.method, got.path)
			}
			if got.body != `{"table_name":"orders"}` {
				t.Errorf("body = %s", got.body)
			}
			if len(rows) != tt.want {
				t.Fatalf("got %d rows, want %d", len(rows), tt.want)
			}
			if tt.name == "scalar" && rows[0]["check_table_exists"] != true {
				t.Errorf("scalar row = %v", rows[0])
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response string
		want     string
	}{
		{
			name:     "postgrest body",
			status:   http.StatusNotFound,
			response: `{"code":"42P01","message":"relation \"public.nope\" does not exist","details":null,"hint":null}`,
			want:     `relation "public.nope" does not exist`,
		},
		{
			name:     "details appended",
			status:   http.StatusBadRequest,
			response: `{"code":"22P02","message":"invalid input syntax","details":"for type integer"}`,
			want:     "invalid input syntax: for type integer",
		},
		{
			name:     "plain text body",
			status:   http.StatusBadGateway,
			response: `upstream unavailable`,
			want:     "upstream unavailable",
		},
		{
			name:   "empty body",
			status: http.StatusUnauthorized,
			want:   "Unauthorized",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStorage(t, tt.status, tt.response, "")

			_, err := s.Select(context.Background(), "nope", storage.Query{})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %v is not *APIError", err)
			}
			if apiErr.Status != tt.status || err.Error() != tt.want {
				t.Errorf("got %d %q, want %d %q", apiErr.Status, err.Error(), tt.status, tt.want)
			}
		})
	}
}
