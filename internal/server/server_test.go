package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/ironsheep/form-annotator-mcp/internal/session"
)

func TestNew_Defaults(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := New(Deps{}, Options{}, log)
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.cache == nil || s.sessions == nil || s.analyzer == nil || s.selector == nil {
		t.Fatal("New() did not initialize its dependencies")
	}
	if s.opts.Name != "form-annotator-mcp" {
		t.Errorf("Name: got %q", s.opts.Name)
	}
	if s.opts.IoUThreshold != 0.4 || s.opts.LineTolerance != 0.25 {
		t.Errorf("defaults: got iou %v, tolerance %v", s.opts.IoUThreshold, s.opts.LineTolerance)
	}
}

func TestMCPRequest_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantID     interface{}
		wantMethod string
	}{
		{
			"string id",
			`{"jsonrpc":"2.0","id":"req-7","method":"tools/call"}`,
			"req-7",
			"tools/call",
		},
		{
			"number id",
			`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
			float64(3),
			"ping",
		},
		{
			"null id",
			`{"jsonrpc":"2.0","id":null,"method":"initialize"}`,
			nil,
			"initialize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req MCPRequest
			if err := json.Unmarshal([]byte(tt.json), &req); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if req.ID != tt.wantID {
				t.Errorf("ID: got %v (%T), want %v (%T)", req.ID, req.ID, tt.wantID, tt.wantID)
			}
			if req.Method != tt.wantMethod {
				t.Errorf("Method: got %s, want %s", req.Method, tt.wantMethod)
			}
		})
	}
}

func TestMCPResponse_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(MCPResponse{JSONRPC: "2.0", ID: 1, Result: map[string]interface{}{}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(data), `"error"`) {
		t.Errorf("successful response should omit error: %s", data)
	}

	data, err = json.Marshal(MCPResponse{JSONRPC: "2.0", ID: 1, Error: &MCPError{Code: -32601, Message: "Method not found: x"}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(data), `"result"`) {
		t.Errorf("error response should omit result: %s", data)
	}
}

func TestHandleRequest_Initialize(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: "init-1", Method: "initialize"})

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if resp.ID != "init-1" {
		t.Errorf("ID: got %v, want init-1", resp.ID)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	if result["protocolVersion"] != ProtocolVersion {
		t.Errorf("protocolVersion: got %v", result["protocolVersion"])
	}
	info, ok := result["serverInfo"].(map[string]interface{})
	if !ok {
		t.Fatal("serverInfo should be a map")
	}
	if info["name"] != "form-annotator-mcp" || info["version"] != "1.2.3" {
		t.Errorf("serverInfo: got %v", info)
	}
}

func TestHandleRequest_Ping(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 9, Method: "ping"})
	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ID != 9 {
		t.Errorf("ID: got %v, want 9", resp.ID)
	}
}

func TestHandleRequest_NotificationsInitialized(t *testing.T) {
	s := newTestServer(t, nil)
	if resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", Method: "notifications/initialized"}); resp != nil {
		t.Error("notifications/initialized should not be answered")
	}
}

func TestHandleRequest_MethodNotFound(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "resources/list"})
	if resp == nil || resp.Error == nil {
		t.Fatal("expected an error response")
	}
	if resp.Error.Code != -32601 {
		t.Errorf("Error code: got %d, want -32601", resp.Error.Code)
	}
	if !strings.Contains(resp.Error.Message, "resources/list") {
		t.Errorf("message should name the method: %s", resp.Error.Message)
	}
}

func TestServe_AnswersEachRequestLine(t *testing.T) {
	s := newTestServer(t, nil)
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
	}, "\n")

	var out bytes.Buffer
	if err := s.Serve(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	var ids []float64
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestSize)
	for scanner.Scan() {
		var resp struct {
			ID    float64   `json:"id"`
			Error *MCPError `json:"error"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("bad response line %q: %v", scanner.Text(), err)
		}
		if resp.Error != nil {
			t.Errorf("request %v failed: %+v", resp.ID, resp.Error)
		}
		ids = append(ids, resp.ID)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("response ids: got %v, want [1 2 3]", ids)
	}
}

func TestServe_StopsWhenCancelled(t *testing.T) {
	s := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := s.Serve(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &out)
	if err != context.Canceled {
		t.Errorf("Serve: got %v, want context.Canceled", err)
	}
	if out.Len() != 0 {
		t.Errorf("no response expected after cancellation, got %s", out.String())
	}
}

func TestSweep_DropsExpiredSessions(t *testing.T) {
	log, _ := test.NewNullLogger()
	store := session.NewStore(time.Millisecond)
	store.New(&session.Document{})
	s := New(Deps{Sessions: store}, Options{}, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.sweep(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if store.Len() != 0 {
		t.Errorf("expired session was not swept, %d left", store.Len())
	}
}
