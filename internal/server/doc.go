// Package server exposes form analysis and filling as MCP tools.
//
// The server speaks JSON-RPC 2.0 over stdio, one request per line, and
// answers initialize, tools/list, tools/call and ping.
//
// # Sessions
//
// form_analyze opens a session holding the upright page and its labeled
// fields. form_label, form_fill and form_fields work on that session by id
// until form_close or until it has gone unused for the session TTL.
//
//	form_analyze -> form_label (only without a labeling service)
//	             -> form_fill ... form_fill -> form_close
//
// The stateless tools (form_check_quality, form_orient, form_merge,
// form_sort, image_edge_detect) expose single pipeline steps.
//
// # Errors
//
// Malformed or missing arguments, unreadable images and unknown box ids
// are reported as -32602 Invalid params. Every other failure, including
// unknown sessions and labeling service errors, is -32000 Tool execution
// failed with the error text in data.
package server
