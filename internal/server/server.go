package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/form-annotator-mcp/internal/imaging"
	"github.com/ironsheep/form-annotator-mcp/internal/orientation"
	"github.com/ironsheep/form-annotator-mcp/internal/pipeline"
	"github.com/ironsheep/form-annotator-mcp/internal/session"
)

// ProtocolVersion is the MCP revision the server speaks.
const ProtocolVersion = "2024-11-05"

// maxRequestSize bounds one request line. Signature images travel inline as
// base64, so the limit is well above typical JSON-RPC traffic.
const maxRequestSize = 32 * 1024 * 1024

// Server handles MCP protocol communication
type Server struct {
	cache    *imaging.ImageCache
	sessions *session.Store
	analyzer *pipeline.Analyzer
	selector *orientation.Selector
	opts     Options
	log      logrus.FieldLogger
}

// Options configures a Server.
type Options struct {
	Name    string
	Version string

	// IoUThreshold and LineTolerance are the defaults for form_merge and
	// form_sort when a call does not give its own.
	IoUThreshold  float64
	LineTolerance float64

	// SweepInterval is how often expired sessions are purged while Serve
	// runs. Zero disables the sweeper.
	SweepInterval time.Duration
}

// DefaultOptions returns the standard server settings.
func DefaultOptions() Options {
	return Options{
		Name:          "form-annotator-mcp",
		Version:       "dev",
		IoUThreshold:  0.4,
		LineTolerance: 0.25,
		SweepInterval: time.Minute,
	}
}

// Deps are the components the tools run on. A nil Analyzer gets one with no
// orientation, OCR or labeling stages; a nil Sessions gets a store with the
// default TTL.
type Deps struct {
	Analyzer *pipeline.Analyzer
	Selector *orientation.Selector
	Sessions *session.Store
	Cache    *imaging.ImageCache
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

// New creates a server over deps.
func New(deps Deps, opts Options, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if deps.Cache == nil {
		deps.Cache = imaging.NewImageCache()
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewStore(session.DefaultTTL)
	}
	if deps.Analyzer == nil {
		deps.Analyzer = pipeline.NewAnalyzer(pipeline.Deps{}, pipeline.DefaultOptions(), log)
	}
	if deps.Selector == nil {
		deps.Selector = orientation.NewSelector(nil, orientation.DefaultOptions(), log)
	}
	defaults := DefaultOptions()
	if opts.Name == "" {
		opts.Name = defaults.Name
	}
	if opts.Version == "" {
		opts.Version = defaults.Version
	}
	if opts.IoUThreshold <= 0 {
		opts.IoUThreshold = defaults.IoUThreshold
	}
	if opts.LineTolerance <= 0 {
		opts.LineTolerance = defaults.LineTolerance
	}
	return &Server{
		cache:    deps.Cache,
		sessions: deps.Sessions,
		analyzer: deps.Analyzer,
		selector: deps.Selector,
		opts:     opts,
		log:      log,
	}
}

// Run serves stdin to stdout until input ends or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from r and writes responses to
// w. Requests are handled in order.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.opts.SweepInterval > 0 {
		go s.sweep(ctx, s.opts.SweepInterval)
	}

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxRequestSize)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.WithError(err).Warn("failed to parse request")
			continue
		}

		resp := s.handleRequestContext(ctx, &req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.log.WithError(err).Error("failed to encode response")
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

func (s *Server) sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.SweepExpired(); n > 0 {
				s.log.WithField("expired", n).Debug("swept sessions")
			}
		}
	}
}

func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	return s.handleRequestContext(context.Background(), req)
}

func (s *Server) handleRequestContext(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
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
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    s.opts.Name,
				"version": s.opts.Version,
			},
		},
	}
}

func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
