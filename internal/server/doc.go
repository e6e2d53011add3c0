// Package server implements the MCP (Model Context Protocol) server for the
// pond detector.
//
// This package provides a JSON-RPC 2.0 server that exposes the detection
// pipeline and its inspection helpers through the MCP protocol, so an MCP
// client can run detections, look at intermediate rasters and check why a
// polygon was or was not kept.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Logs go to stderr; stdout carries protocol traffic only.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Detection:
//   - pond_detect: Run the full pipeline and optionally export the ponds
//   - pond_edges: Run seed building and segmentation and render one round
//
// Scene Inspection:
//   - pond_scene_info: CRS, grid, extent and acquisition dates
//   - pond_sample: Reduce a band composite under a polygon
//   - pond_quicklook: Render a band or index as a color-mapped PNG
//
// Geometry:
//   - pond_shape_metrics: Area, perimeter, LSI and RPOC of a WKT polygon
//
// # Scene Caching
//
// Scenes are cached by path and reused across tool calls. The cache persists
// for the lifetime of the server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	srv := server.New(server.WithLogger(log), server.WithVersion(Version))
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
