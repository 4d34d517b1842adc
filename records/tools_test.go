package records

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"supabasemcp/storage"
	"supabasemcp/storage/memory"
)

func callTool(t *testing.T, svc *Service, name string, args map[string]any) Envelope {
	t.Helper()

	var handler server.ToolHandlerFunc
	for _, tool := range svc.Tools() {
		if tool.Tool.Name == name {
			handler = tool.Handler
		}
	}
	if handler == nil {
		t.Fatalf("tool %s not registered", name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("%s returned a protocol error: %v", name, err)
	}
	env, ok := res.StructuredContent.(Envelope)
	if !ok {
		t.Fatalf("%s structured content is %T", name, res.StructuredContent)
	}
	return env
}

func TestToolsRegistered(t *testing.T) {
	svc := NewService(memory.New())

	want := map[string]bool{
		ToolRead: true, ToolCreate: true, ToolUpdate: true,
		ToolDelete: true, ToolListTables: true, ToolDescribeTable: true,
	}
	tools := svc.Tools()
	if len(tools) != len(want) {
		t.Fatalf("got %d tools, want %d", len(tools), len(want))
	}
	for _, tool := range tools {
		if !want[tool.Tool.Name] {
			t.Errorf("unexpected tool %s", tool.Tool.Name)
		}
		if tool.Tool.Description == "" {
			t.Errorf("%s has no description", tool.Tool.Name)
		}
	}
}

func TestToolAnnotations(t *testing.T) {
	type hints struct{ readOnly, destructive, idempotent, openWorld bool }

	want := map[string]hints{
		ToolRead:          {readOnly: true, idempotent: true},
		ToolCreate:        {destructive: false},
		ToolUpdate:        {destructive: true, idempotent: true},
		ToolDelete:        {destructive: true},
		ToolListTables:    {readOnly: true, idempotent: true},
		ToolDescribeTable: {readOnly: true, idempotent: true},
	}

	deref := func(b *bool) (bool, bool) {
		if b == nil {
			return false, false
		}
		return *b, true
	}

	for _, tool := range NewService(memory.New()).Tools() {
		t.Run(tool.Tool.Name, func(t *testing.T) {
			w, ok := want[tool.Tool.Name]
			if !ok {
				t.Fatalf("unexpected tool %s", tool.Tool.Name)
			}
			a := tool.Tool.Annotations
			checks := []struct {
				name string
				hint *bool
				want bool
			}{
				{"readOnlyHint", a.ReadOnlyHint, w.readOnly},
				{"destructiveHint", a.DestructiveHint, w.destructive},
				{"idempotentHint", a.IdempotentHint, w.idempotent},
				{"openWorldHint", a.OpenWorldHint, w.openWorld},
			}
			for _, c := range checks {
				got, set := deref(c.hint)
				if !set || got != c.want {
					t.Errorf("%s = %v (set %v), want %v", c.name, got, set, c.want)
				}
			}
		})
	}
}

func TestToolCRUDFlow(t *testing.T) {
	svc := NewService(memory.New("orders"))

	created := callTool(t, svc, ToolCreate, map[string]any{
		"table_name": "orders",
		"records": []any{
			map[string]any{"status": "new", "total": 10},
			map[string]any{"status": "new", "total": 20},
		},
	})
	if !created.Success || created.Count != 2 {
		t.Fatalf("create: %+v", created)
	}

	updated := callTool(t, svc, ToolUpdate, map[string]any{
		"table_name": "orders",
		"updates":    map[string]any{"status": "paid"},
		"filters":    map[string]any{"id": 2},
	})
	if !updated.Success || updated.Count != 1 || updated.Data[0]["status"] != "paid" {
		t.Fatalf("update: %+v", updated)
	}

	read := callTool(t, svc, ToolRead, map[string]any{
		"table_name":      "orders",
		"columns":         []any{"id", "status"},
		"order_by":        "id",
		"order_direction": "desc",
	})
	if !read.Success || read.Count != 2 || read.Data[0]["status"] != "paid" {
		t.Fatalf("read: %+v", read)
	}

	deleted := callTool(t, svc, ToolDelete, map[string]any{
		"table_name": "orders",
		"filters":    map[string]any{"status": "new"},
	})
	if !deleted.Success || deleted.Count != 1 {
		t.Fatalf("delete: %+v", deleted)
	}
}

func TestToolRejectsNestedFilters(t *testing.T) {
	svc := NewService(memory.New("orders"))

	env := callTool(t, svc, ToolDelete, map[string]any{
		"table_name": "orders",
		"filters":    map[string]any{"meta": map[string]any{"a": 1}},
	})
	if env.Success {
		t.Fatal("expected failure")
	}
	if !strings.HasPrefix(env.Error, MsgInvalidArgsPrefix) || env.Table != "orders" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestToolMissingFilters(t *testing.T) {
	svc := NewService(memory.New("orders"))

	env := callTool(t, svc, ToolUpdate, map[string]any{
		"table_name": "orders",
		"updates":    map[string]any{"status": "paid"},
	})
	if env.Success || env.Error != MsgNoUpdateFilters {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestCatalogTools(t *testing.T) {
	mem := memory.New("orders", "customers")
	if _, err := mem.Insert(context.Background(), "orders", []storage.Row{{"status": "new"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := NewService(mem)

	tables := callTool(t, svc, ToolListTables, nil)
	if !tables.Success || tables.Count != 2 {
		t.Fatalf("list tables: %+v", tables)
	}

	described := callTool(t, svc, ToolDescribeTable, map[string]any{"table_name": "orders"})
	if !described.Success || described.Count != 2 {
		t.Fatalf("describe: %+v", described)
	}

	if !svc.TableExists(context.Background(), "orders") || svc.TableExists(context.Background(), "nope") {
		t.Error("TableExists mismatch")
	}
}

func TestServerToolCall(t *testing.T) {
	svc := NewService(memory.New("orders"))
	srv := server.NewMCPServer("test", "0.0.0", server.WithToolCapabilities(false))
	svc.RegisterTools(srv)

	msg := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"delete_records","arguments":{"table_name":"orders","filters":{}}}}`
	resp := srv.HandleMessage(context.Background(), json.RawMessage(msg))

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var decoded struct {
		Result struct {
			StructuredContent Envelope `json:"structuredContent"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	env := decoded.Result.StructuredContent
	if env.Success || env.Error != MsgNoDeleteFilters || env.Table != "orders" {
		t.Errorf("unexpected envelope: %+v (%s)", env, data)
	}
}
