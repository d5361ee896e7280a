package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var (
	pathProperty = map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the sheet image (PNG, JPEG, GIF, TIFF, BMP, WebP, or PDF; PDFs use their first page)",
	}
	templateProperty = map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the template file (JSON or YAML) mapping question IDs to option coordinates in canonical sheet space",
	}
	keyProperty = map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the answer key file (JSON or YAML) mapping question IDs to the correct option",
	}
	alignedProperty = map[string]interface{}{
		"type":        "boolean",
		"description": "Treat the image as an already rectified sheet and skip boundary detection",
		"default":     false,
	}
	cornersProperty = map[string]interface{}{
		"type": "array",
		"items": map[string]interface{}{
			"type":     "array",
			"items":    map[string]interface{}{"type": "integer"},
			"minItems": 2,
			"maxItems": 2,
		},
		"minItems":    4,
		"maxItems":    4,
		"description": "Optional sheet corners as [[x, y], ...] in any order. If omitted, the boundary is detected.",
	}
)

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Sheet Information
		{
			Name:        "sheet_load",
			Description: "Load a sheet image and return its dimensions, format, and color properties. The image stays cached for later calls.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},

		// Geometric Normalization
		{
			Name:        "sheet_locate_boundary",
			Description: "Find the four corners of the answer sheet in a photo. Returns corners ordered top-left, top-right, bottom-right, bottom-left and which strategy found them (polygon or bounding-box fallback).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "sheet_edge_map",
			Description: "Return the binary map used for boundary detection (Canny edges combined with an adaptive threshold) as base64 PNG. Use this to debug failed detections.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "sheet_rectify",
			Description: "Warp the sheet to an axis-aligned canonical image and return it as base64 PNG. Canonical width and height are the longer of each pair of opposing edges.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":    pathProperty,
					"corners": cornersProperty,
				},
				"required": []string{"path"},
			},
		},

		// Bubble Classification
		{
			Name:        "sheet_detect_answers",
			Description: "Detect the marked option of every template question. Each answer is null (unanswered), the option label, or {\"state\": \"multiple-marked\", \"options\": [...]}.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":     pathProperty,
					"template": templateProperty,
					"aligned":  alignedProperty,
					"evidence": map[string]interface{}{
						"type":        "boolean",
						"description": "Include per-option foreground pixel counts",
						"default":     false,
					},
				},
				"required": []string{"path", "template"},
			},
		},
		{
			Name:        "sheet_grade",
			Description: "Score detected answers against an answer key. Pass either a sheet (path and template) or previously detected answers.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"key":      keyProperty,
					"path":     pathProperty,
					"template": templateProperty,
					"aligned":  alignedProperty,
					"answers": map[string]interface{}{
						"type":        "object",
						"description": "Detected answers as returned by sheet_detect_answers. Takes precedence over path.",
					},
				},
				"required": []string{"key"},
			},
		},
		{
			Name:        "sheet_overlay",
			Description: "Draw detection results on the canonical sheet: green for the selected option, amber for multiple-marked options, red otherwise. Returns base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":     pathProperty,
					"template": templateProperty,
					"aligned":  alignedProperty,
					"radius": map[string]interface{}{
						"type":        "integer",
						"description": "Circle radius in pixels",
						"default":     8,
					},
					"labels": map[string]interface{}{
						"type":        "boolean",
						"description": "Draw question IDs next to each row",
						"default":     true,
					},
				},
				"required": []string{"path", "template"},
			},
		},

		// Template Authoring
		{
			Name:        "sheet_grid",
			Description: "Rectify the sheet and draw a labelled coordinate grid on it. Coordinates read off the grid are the canonical coordinates a template uses.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":    pathProperty,
					"aligned": alignedProperty,
					"spacing": map[string]interface{}{
						"type":        "integer",
						"description": "Pixels between grid lines",
						"default":     50,
					},
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Line colour as hex, e.g. \"#ff0000\"",
						"default":     "#ff0000",
					},
					"labels": map[string]interface{}{
						"type":        "boolean",
						"description": "Write the coordinate of each line along the edges",
						"default":     true,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "sheet_inspect_question",
			Description: "Crop the canonical sheet around one question's bubbles and return the crop with per-option evidence. Use this to check a doubtful decision.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":     pathProperty,
					"template": templateProperty,
					"aligned":  alignedProperty,
					"question": map[string]interface{}{
						"type":        "string",
						"description": "Question ID as it appears in the template",
					},
					"padding": map[string]interface{}{
						"type":        "integer",
						"description": "Extra pixels around the bubbles",
						"default":     10,
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Scale factor of the returned crop",
						"default":     2.0,
					},
				},
				"required": []string{"path", "template", "question"},
			},
		},

		// Batch Processing
		{
			Name:        "sheet_batch",
			Description: "Process many sheets against one template in parallel. A failing sheet reports its error without affecting the others.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"paths": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Absolute paths of the sheet images",
					},
					"template": templateProperty,
					"key":      keyProperty,
					"aligned":  alignedProperty,
					"workers": map[string]interface{}{
						"type":        "integer",
						"description": "Sheets processed at once (default: configured value or one per CPU)",
					},
				},
				"required": []string{"paths", "template"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
