package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pterm/pterm"

	"supabasemcp/records"
	"supabasemcp/storage"
	"supabasemcp/storage/memory"
)

func TestHealthz(t *testing.T) {
	app := newHTTPApp(newMCPServer(records.NewService(memory.New())))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"status":"ok"}` {
		t.Errorf("got %d %s", resp.StatusCode, body)
	}
}

func TestMCPOverHTTP(t *testing.T) {
	app := newHTTPApp(newMCPServer(records.NewService(memory.New("orders"))))

	msg := `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(msg))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	for _, tool := range []string{records.ToolRead, records.ToolCreate, records.ToolUpdate, records.ToolDelete} {
		if !bytes.Contains(body, []byte(tool)) {
			t.Errorf("tools/list response lacks %s: %s", tool, body)
		}
	}
}

func TestMCPServerToolCall(t *testing.T) {
	srv := newMCPServer(records.NewService(memory.New("orders")))

	msg := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"create_records","arguments":{"table_name":"orders","records":[{"status":"new"}]}}}`
	resp := srv.HandleMessage(t.Context(), json.RawMessage(msg))

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Result struct {
			StructuredContent records.Envelope `json:"structuredContent"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	env := decoded.Result.StructuredContent
	if !env.Success || env.Count != 1 || env.Table != "orders" {
		t.Errorf("unexpected envelope %+v", env)
	}
}

func TestTableData(t *testing.T) {
	rows := []storage.Row{
		{"column_name": "id", "data_type": "bigint", "is_nullable": "NO", "extra": nil},
		{"column_name": "status", "data_type": "text", "is_nullable": "YES", "extra": "x"},
	}

	got := tableData(rows, []string{"column_name", "data_type", "is_nullable", "column_default"})

	want := pterm.TableData{
		{"column_name", "data_type", "is_nullable", "extra"},
		{"id", "bigint", "NO", ""},
		{"status", "text", "YES", "x"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d", len(got), len(want))
	}
	for i := range want {
		if strings.Join(got[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("line %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)

	if got := out.String(); got != serverName+" "+Version+"\n" {
		t.Errorf("version output %q", got)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "tables": false, "schema": false, "migrate": false, "auth": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %s not registered", name)
		}
	}
}
