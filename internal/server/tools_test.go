package server

import (
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	if len(tools) == 0 {
		t.Fatal("GetToolDefinitions returned empty slice")
	}

	expectedTools := []string{
		"sheet_load",
		"sheet_locate_boundary",
		"sheet_edge_map",
		"sheet_rectify",
		"sheet_detect_answers",
		"sheet_grade",
		"sheet_overlay",
		"sheet_grid",
		"sheet_inspect_question",
		"sheet_batch",
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		if _, dup := toolMap[tool.Name]; dup {
			t.Errorf("Tool %s defined twice", tool.Name)
		}
		toolMap[tool.Name] = tool
	}

	for _, name := range expectedTools {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("Tool count: got %d, want %d", len(tools), len(expectedTools))
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	tools := GetToolDefinitions()

	for _, tool := range tools {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Name == "" {
				t.Error("Tool name is empty")
			}
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema == nil {
				t.Fatal("Tool InputSchema is nil")
			}

			if schemaType := tool.InputSchema["type"]; schemaType != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", schemaType)
			}

			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			if !ok || props == nil {
				t.Fatal("InputSchema properties should be a map")
			}

			// Every required parameter must be described.
			required, _ := tool.InputSchema["required"].([]string)
			for _, r := range required {
				if _, ok := props[r]; !ok {
					t.Errorf("required parameter %q has no schema", r)
				}
			}
		})
	}
}

func TestToolDefinitions_Required(t *testing.T) {
	want := map[string][]string{
		"sheet_load":             {"path"},
		"sheet_locate_boundary":  {"path"},
		"sheet_edge_map":         {"path"},
		"sheet_rectify":          {"path"},
		"sheet_detect_answers":   {"path", "template"},
		"sheet_grade":            {"key"},
		"sheet_overlay":          {"path", "template"},
		"sheet_grid":             {"path"},
		"sheet_inspect_question": {"path", "template", "question"},
		"sheet_batch":            {"paths", "template"},
	}

	for _, tool := range GetToolDefinitions() {
		required, ok := tool.InputSchema["required"].([]string)
		if !ok {
			t.Errorf("%s: required should be []string", tool.Name)
			continue
		}
		expected := want[tool.Name]
		if len(required) != len(expected) {
			t.Errorf("%s: required got %v, want %v", tool.Name, required, expected)
			continue
		}
		for i := range expected {
			if required[i] != expected[i] {
				t.Errorf("%s: required got %v, want %v", tool.Name, required, expected)
				break
			}
		}
	}
}

func TestToolDefinitions_OptionalDefaults(t *testing.T) {
	toolDefaults := map[string]map[string]interface{}{
		"sheet_detect_answers": {"aligned": false, "evidence": false},
		"sheet_overlay":        {"radius": 8, "labels": true},
		"sheet_grid":           {"spacing": 50, "labels": true, "color": "#ff0000"},
	}

	toolMap := make(map[string]Tool)
	for _, tool := range GetToolDefinitions() {
		toolMap[tool.Name] = tool
	}

	for toolName, expectedDefaults := range toolDefaults {
		tool, ok := toolMap[toolName]
		if !ok {
			t.Errorf("Tool %s not found", toolName)
			continue
		}

		props, ok := tool.InputSchema["properties"].(map[string]interface{})
		if !ok {
			t.Errorf("%s: properties should be a map", toolName)
			continue
		}

		for paramName, expectedDefault := range expectedDefaults {
			param, ok := props[paramName].(map[string]interface{})
			if !ok {
				t.Errorf("%s.%s: parameter not found or not a map", toolName, paramName)
				continue
			}

			actualDefault, ok := param["default"]
			if !ok {
				t.Errorf("%s.%s: missing default value", toolName, paramName)
				continue
			}
			if actualDefault != expectedDefault {
				t.Errorf("%s.%s: default got %v, want %v", toolName, paramName, actualDefault, expectedDefault)
			}
		}
	}
}

func TestToolDefinitions_CornersShape(t *testing.T) {
	var rectify Tool
	for _, tool := range GetToolDefinitions() {
		if tool.Name == "sheet_rectify" {
			rectify = tool
		}
	}

	props := rectify.InputSchema["properties"].(map[string]interface{})
	corners, ok := props["corners"].(map[string]interface{})
	if !ok {
		t.Fatal("sheet_rectify should have a corners parameter")
	}
	if corners["minItems"] != 4 || corners["maxItems"] != 4 {
		t.Errorf("corners should hold exactly 4 points, got min %v max %v", corners["minItems"], corners["maxItems"])
	}
}

func TestHandleToolsList(t *testing.T) {
	s := newTestServer()
	req := &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
	}

	resp := s.handleToolsList(req)

	if resp == nil {
		t.Fatal("handleToolsList returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}

	toolsList, ok := result["tools"].([]Tool)
	if !ok {
		t.Fatal("tools should be a slice of Tool")
	}

	if len(toolsList) != len(GetToolDefinitions()) {
		t.Errorf("Tool count: got %d, want %d", len(toolsList), len(GetToolDefinitions()))
	}
}
