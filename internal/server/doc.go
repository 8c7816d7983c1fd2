// Package server implements the MCP (Model Context Protocol) server for the
// blind try-on tools.
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
// Detection:
//   - window_detect: Run the detector cascade (or ensemble) and store the mask
//   - window_preview: Photo with the mask tinted and candidate boxes drawn
//   - mask_info: Size and coverage of a stored mask
//
// Compositing:
//   - blind_apply: Blend a texture or solid color into the window region
//
// Diagnostics:
//   - detectors_list: Configured detectors in priority order
//
// A typical session calls window_detect once per photo and then blind_apply
// repeatedly with different textures. Masks are keyed by image_id, which
// defaults to a hash of the photo bytes, and survive restarts because the
// mask store writes them to disk.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// Detection itself never fails: when no backend finds a window the result
// carries a centered synthetic mask and found=false.
//
// # Usage
//
//	srv, err := server.New(server.Options{Cascade: cascade, Masks: masks, Logger: logger})
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx)
package server
