package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ironsheep/blind-tryon-mcp/internal/detection"
	"github.com/ironsheep/blind-tryon-mcp/internal/imaging"
	"github.com/ironsheep/blind-tryon-mcp/internal/overlay"
	"github.com/ironsheep/blind-tryon-mcp/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Name is reported to clients during initialize.
const Name = "blind-tryon-mcp"

// Server handles MCP protocol communication
type Server struct {
	cascade  *detection.Cascade
	ensemble *detection.Ensemble
	masks    *store.Masks
	photos   *imaging.PhotoCache
	blend    overlay.BlendConfig
	version  string
	logger   *zap.Logger

	// candidates remembers the last detection boxes per image id for
	// window_preview.
	mu         sync.Mutex
	candidates map[string][]detection.Candidate
}

// Options wires a Server. Cascade and Masks are required.
type Options struct {
	Cascade  *detection.Cascade
	Ensemble *detection.Ensemble
	Masks    *store.Masks
	Blend    overlay.BlendConfig
	Version  string
	Logger   *zap.Logger
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New creates a new MCP server instance
func New(opts Options) (*Server, error) {
	if opts.Cascade == nil {
		return nil, errors.New("server needs a detection cascade")
	}
	if opts.Masks == nil {
		return nil, errors.New("server needs a mask store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	return &Server{
		cascade:    opts.Cascade,
		ensemble:   opts.Ensemble,
		masks:      opts.Masks,
		photos:     imaging.NewPhotoCache(),
		blend:      opts.Blend,
		version:    version,
		logger:     logger.Named("server"),
		candidates: make(map[string][]detection.Candidate),
	}, nil
}

// Run serves stdin/stdout until stdin closes or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from r and writes responses to
// w. Requests are handled in order. Serve returns ctx.Err() as soon as ctx
// is done, even while r has nothing to read; the reader goroutine is then
// left blocked until r delivers data or is closed.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines, scanErr, done := readLines(r)
	defer close(done)

	encoder := json.NewEncoder(w)

	for {
		var line []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return errors.Wrap(err, "scanner error")
				}
				return nil
			}
			line = l
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("failed to parse request", zap.Error(err))
			if err := encoder.Encode(s.errorResponse(nil, -32700, "Parse error", err.Error())); err != nil {
				return errors.Wrap(err, "writing response")
			}
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				return errors.Wrap(err, "writing response")
			}
		}
	}
}

// readLines scans r on its own goroutine and delivers non-empty lines.
// lines is closed at end of input, after the scanner error (possibly nil)
// has been sent on scanErr. Closing done stops delivery.
func readLines(r io.Reader) (lines <-chan []byte, scanErr <-chan error, done chan<- struct{}) {
	out := make(chan []byte)
	errc := make(chan error, 1)
	stop := make(chan struct{})

	go func() {
		scanner := bufio.NewScanner(r)
		// Increase buffer size for large requests
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 4*1024*1024)

		for scanner.Scan() {
			if len(scanner.Bytes()) == 0 {
				continue
			}
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case out <- line:
			case <-stop:
				return
			}
		}
		errc <- scanner.Err()
		close(out)
	}()
	return out, errc, stop
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return s.errorResponse(req.ID, -32601, fmt.Sprintf("Method not found: %s", req.Method), "")
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    Name,
				"version": s.version,
			},
		},
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	e := &MCPError{Code: code, Message: message}
	if data != "" {
		e.Data = data
	}
	return &MCPResponse{JSONRPC: "2.0", ID: id, Error: e}
}

func (s *Server) rememberCandidates(id string, c []detection.Candidate) {
	s.mu.Lock()
	s.candidates[id] = append([]detection.Candidate(nil), c...)
	s.mu.Unlock()
}

func (s *Server) lastCandidates(id string) []detection.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candidates[id]
}
