package server

import (
	"encoding/json"
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	expectedTools := []string{
		"form_analyze",
		"form_label",
		"form_fill",
		"form_fields",
		"form_close",
		"form_check_quality",
		"form_orient",
		"form_merge",
		"form_sort",
		"image_edge_detect",
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("tool count: got %d, want %d", len(tools), len(expectedTools))
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		if _, dup := toolMap[tool.Name]; dup {
			t.Errorf("tool %s defined twice", tool.Name)
		}
		toolMap[tool.Name] = tool
	}
	for _, name := range expectedTools {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}

			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			if !ok {
				t.Fatal("InputSchema properties should be a map")
			}

			required, _ := tool.InputSchema["required"].([]string)
			for _, name := range required {
				if _, ok := props[name]; !ok {
					t.Errorf("required property %s is not defined", name)
				}
			}
		})
	}
}

func TestToolDefinitions_RequiredArguments(t *testing.T) {
	tests := []struct {
		tool     string
		required []string
	}{
		{"form_analyze", []string{"path"}},
		{"form_label", []string{"session_id", "labels"}},
		{"form_fill", []string{"session_id"}},
		{"form_fields", []string{"session_id"}},
		{"form_close", []string{"session_id"}},
		{"form_check_quality", []string{"path"}},
		{"form_orient", []string{"path"}},
		{"form_merge", []string{"detections"}},
		{"form_sort", []string{"fields", "direction"}},
		{"image_edge_detect", []string{"path"}},
	}

	toolMap := make(map[string]Tool)
	for _, tool := range GetToolDefinitions() {
		toolMap[tool.Name] = tool
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			tool, ok := toolMap[tt.tool]
			if !ok {
				t.Fatalf("tool %s not found", tt.tool)
			}
			got, _ := tool.InputSchema["required"].([]string)
			if len(got) != len(tt.required) {
				t.Fatalf("required: got %v, want %v", got, tt.required)
			}
			for i := range got {
				if got[i] != tt.required[i] {
					t.Errorf("required[%d]: got %s, want %s", i, got[i], tt.required[i])
				}
			}
		})
	}
}

func TestToolDefinitions_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(GetToolDefinitions())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded []map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, tool := range decoded {
		if _, ok := tool["inputSchema"]; !ok {
			t.Errorf("tool %v is missing inputSchema", tool["name"])
		}
	}
}

func TestHandleToolsList(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.handleToolsList(&MCPRequest{JSONRPC: "2.0", ID: 1})

	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	tools, ok := result["tools"].([]Tool)
	if !ok {
		t.Fatal("tools should be a slice of Tool")
	}
	if len(tools) != len(GetToolDefinitions()) {
		t.Errorf("Tool count: got %d, want %d", len(tools), len(GetToolDefinitions()))
	}
}
