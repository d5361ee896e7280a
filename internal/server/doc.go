// Package server implements the MCP (Model Context Protocol) server for
// answer sheet reading.
//
// This package provides a JSON-RPC 2.0 server that exposes the OMR pipeline
// through the MCP protocol, so MCP clients can locate, rectify, read, and
// grade photographed answer sheets.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Sheet Information:
//   - sheet_load: Load a sheet image and get metadata
//
// Geometric Normalization:
//   - sheet_locate_boundary: Find the four sheet corners
//   - sheet_edge_map: Binary map used for boundary detection
//   - sheet_rectify: Warp the sheet to its canonical rectangle
//
// Bubble Classification:
//   - sheet_detect_answers: Marked option per template question
//   - sheet_grade: Score answers against an answer key
//   - sheet_overlay: Draw the decisions on the canonical sheet
//
// Template Authoring:
//   - sheet_grid: Coordinate grid on the canonical sheet
//   - sheet_inspect_question: Crop and evidence for one question
//
// Batch Processing:
//   - sheet_batch: Read and optionally grade many sheets in parallel
//
// # Image Caching
//
// Loaded images are cached by path and reused across tool calls. Batch runs
// evict each sheet once it has been processed.
//
// # Error Handling
//
// Errors are returned as JSON-RPC error responses:
//   - -32601: unknown method
//   - -32602: tools/call params that are not valid JSON
//   - -32000: tool execution failure, with the Go error string as data
//
// # Usage
//
//	srv := server.New(cfg, logger, version)
//	if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil {
//	    logger.Error("server stopped", "error", err)
//	}
package server
