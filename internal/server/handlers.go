package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/form-annotator-mcp/internal/detection"
	"github.com/ironsheep/form-annotator-mcp/internal/fusion"
	"github.com/ironsheep/form-annotator-mcp/internal/imaging"
	"github.com/ironsheep/form-annotator-mcp/internal/layout"
	"github.com/ironsheep/form-annotator-mcp/internal/orientation"
	"github.com/ironsheep/form-annotator-mcp/internal/pipeline"
	"github.com/ironsheep/form-annotator-mcp/internal/render"
	"github.com/ironsheep/form-annotator-mcp/internal/session"
)

// errInvalidArgs marks argument errors, reported as JSON-RPC -32602.
var errInvalidArgs = errors.New("invalid arguments")

func invalidArgs(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errInvalidArgs, fmt.Sprintf(format, args...))
}

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "form_analyze", "form_fill").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall runs one tool and wraps its result in MCP's content
// format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Bad arguments are answered with -32602, every other tool failure with
// -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	log := s.log.WithField("tool", params.Name)
	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		log.WithError(err).Warn("tool call failed")
		if errors.Is(err, errInvalidArgs) {
			return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}
	log.Debug("tool call finished")

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches to the handler for name.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Form sessions
	case "form_analyze":
		return s.handleFormAnalyze(ctx, args)
	case "form_label":
		return s.handleFormLabel(args)
	case "form_fill":
		return s.handleFormFill(args)
	case "form_fields":
		return s.handleFormFields(args)
	case "form_close":
		return s.handleFormClose(args)

	// Stateless steps
	case "form_check_quality":
		return s.handleFormCheckQuality(args)
	case "form_orient":
		return s.handleFormOrient(args)
	case "form_merge":
		return s.handleFormMerge(args)
	case "form_sort":
		return s.handleFormSort(args)
	case "image_edge_detect":
		return s.handleImageEdgeDetect(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON renders v as indented JSON, or "" if it cannot be encoded.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, v); err != nil {
		return invalidArgs("%v", err)
	}
	return nil
}

func (s *Server) loadImage(path string) (image.Image, error) {
	if path == "" {
		return nil, invalidArgs("path is required")
	}
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, invalidArgs("%v", err)
	}
	return img, nil
}

func parseOptionalDirection(s string) (layout.Direction, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	dir, err := layout.ParseDirection(s)
	if err != nil {
		return "", invalidArgs("%v", err)
	}
	return dir, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func signatureIDs(fields []fusion.Field) []string {
	ids := []string{}
	for _, f := range fusion.SignatureFields(fields) {
		ids = append(ids, f.BoxID)
	}
	return ids
}

// === Form session handlers ===

// AnalyzeResult is returned by form_analyze.
type AnalyzeResult struct {
	SessionID       string                `json:"session_id"`
	Angle           int                   `json:"angle"`
	Direction       layout.Direction      `json:"direction"`
	Width           int                   `json:"width"`
	Height          int                   `json:"height"`
	Labeled         bool                  `json:"labeled"`
	Explanation     string                `json:"explanation"`
	Fields          []fusion.Field        `json:"fields"`
	SignatureFields []string              `json:"signature_fields"`
	Candidates      []layout.OrderedField `json:"candidates"`
	OverlayBase64   string                `json:"overlay_base64,omitempty"`
	MimeType        string                `json:"mime_type,omitempty"`
}

func (s *Server) handleFormAnalyze(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var p struct {
		Path            string                   `json:"path"`
		Detections      []detection.RawDetection `json:"detections"`
		Direction       string                   `json:"direction"`
		SkipOrientation bool                     `json:"skip_orientation"`
		IncludeOverlay  *bool                    `json:"include_overlay"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	dir, err := parseOptionalDirection(p.Direction)
	if err != nil {
		return nil, err
	}
	img, err := s.loadImage(p.Path)
	if err != nil {
		return nil, err
	}

	analysis, err := s.analyzer.Analyze(ctx, img, pipeline.AnalyzeOptions{
		Detections:      p.Detections,
		Direction:       dir,
		SkipOrientation: p.SkipOrientation,
	})
	if err != nil {
		return nil, err
	}

	doc := &session.Document{
		SourcePath:  p.Path,
		Image:       analysis.Image,
		Angle:       analysis.Angle,
		Direction:   analysis.Direction,
		Ordered:     analysis.Ordered,
		Overlay:     analysis.Overlay,
		Fields:      analysis.Fields,
		Explanation: analysis.Explanation,
		Values:      render.Values{},
	}
	id := s.sessions.New(doc)
	s.log.WithFields(logrus.Fields{
		"session": id,
		"path":    p.Path,
		"fields":  len(doc.Fields),
		"labeled": analysis.Labeled,
	}).Info("session opened")

	b := analysis.Image.Bounds()
	result := &AnalyzeResult{
		SessionID:       id,
		Angle:           analysis.Angle,
		Direction:       analysis.Direction,
		Width:           b.Dx(),
		Height:          b.Dy(),
		Labeled:         analysis.Labeled,
		Explanation:     analysis.Explanation,
		Fields:          analysis.Fields,
		SignatureFields: signatureIDs(analysis.Fields),
		Candidates:      analysis.Ordered,
	}
	if boolOr(p.IncludeOverlay, true) && len(analysis.Overlay) > 0 {
		result.OverlayBase64 = base64.StdEncoding.EncodeToString(analysis.Overlay)
		result.MimeType = "image/png"
	}
	return result, nil
}

// FieldsResult is returned by form_label and form_fields.
type FieldsResult struct {
	SessionID       string           `json:"session_id"`
	Angle           int              `json:"angle"`
	Direction       layout.Direction `json:"direction"`
	Explanation     string           `json:"explanation"`
	Fields          []fusion.Field   `json:"fields"`
	SignatureFields []string         `json:"signature_fields"`
	Values          render.Values    `json:"values"`
	Signed          string           `json:"signature_box_id,omitempty"`
}

func fieldsResult(id string, doc *session.Document) *FieldsResult {
	values := render.Values{}
	for k, v := range doc.Values {
		values[k] = v
	}
	r := &FieldsResult{
		SessionID:       id,
		Angle:           doc.Angle,
		Direction:       doc.Direction,
		Explanation:     doc.Explanation,
		Fields:          append([]fusion.Field{}, doc.Fields...),
		SignatureFields: signatureIDs(doc.Fields),
		Values:          values,
	}
	if doc.Signature != nil {
		r.Signed = doc.Signature.BoxID
	}
	return r
}

func (s *Server) handleFormLabel(args json.RawMessage) (interface{}, error) {
	var p struct {
		SessionID   string         `json:"session_id"`
		Labels      []fusion.Label `json:"labels"`
		Explanation *string        `json:"explanation"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidArgs("session_id is required")
	}

	var result *FieldsResult
	err := s.sessions.Update(p.SessionID, func(doc *session.Document) error {
		doc.Fields = s.analyzer.Label(doc.Ordered, p.Labels)
		if p.Explanation != nil {
			doc.Explanation = *p.Explanation
		}
		// Box ids are positional; values for ids that no longer exist go.
		for id := range doc.Values {
			if _, ok := doc.Field(id); !ok {
				delete(doc.Values, id)
			}
		}
		if doc.Signature != nil {
			if _, ok := doc.Field(doc.Signature.BoxID); !ok {
				doc.Signature = nil
			}
		}
		result = fieldsResult(p.SessionID, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Server) handleFormFields(args json.RawMessage) (interface{}, error) {
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidArgs("session_id is required")
	}

	var result *FieldsResult
	err := s.sessions.Update(p.SessionID, func(doc *session.Document) error {
		result = fieldsResult(p.SessionID, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FillResult is returned by form_fill.
type FillResult struct {
	SessionID   string   `json:"session_id"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	Filled      []string `json:"filled"`
	Ignored     []string `json:"ignored,omitempty"`
	Signed      string   `json:"signature_box_id,omitempty"`
	OutputPath  string   `json:"output_path,omitempty"`
	ImageBase64 string   `json:"image_base64,omitempty"`
	MimeType    string   `json:"mime_type"`
}

func (s *Server) handleFormFill(args json.RawMessage) (interface{}, error) {
	var p struct {
		SessionID       string        `json:"session_id"`
		Values          render.Values `json:"values"`
		SignatureBase64 string        `json:"signature_base64"`
		SignatureBoxID  string        `json:"signature_box_id"`
		Reset           bool          `json:"reset"`
		OutputPath      string        `json:"output_path"`
		IncludeImage    *bool         `json:"include_image"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidArgs("session_id is required")
	}

	var sigImage []byte
	if p.SignatureBase64 != "" {
		data, err := decodeImageBase64(p.SignatureBase64)
		if err != nil {
			return nil, err
		}
		sigImage = data
	}

	var (
		img     image.Image
		fields  []fusion.Field
		values  render.Values
		sig     *render.Signature
		ignored []string
	)
	err := s.sessions.Update(p.SessionID, func(doc *session.Document) error {
		if p.Reset {
			doc.Values = render.Values{}
			doc.Signature = nil
		}
		if doc.Values == nil {
			doc.Values = render.Values{}
		}
		for id, v := range p.Values {
			if _, ok := doc.Field(id); !ok {
				ignored = append(ignored, id)
				continue
			}
			if v == (render.Value{}) {
				delete(doc.Values, id)
				continue
			}
			doc.Values[id] = v
		}

		if sigImage != nil {
			boxID := p.SignatureBoxID
			if boxID == "" {
				candidates := fusion.SignatureFields(doc.Fields)
				if len(candidates) == 0 {
					return invalidArgs("no signature field found; pass signature_box_id")
				}
				boxID = candidates[0].BoxID
			} else if _, ok := doc.Field(boxID); !ok {
				return invalidArgs("unknown signature_box_id %q", boxID)
			}
			doc.Signature = &render.Signature{BoxID: boxID, Image: sigImage}
		}

		img = doc.Image
		fields = append([]fusion.Field{}, doc.Fields...)
		values = render.Values{}
		for k, v := range doc.Values {
			values[k] = v
		}
		sig = doc.Signature
		return nil
	})
	if err != nil {
		return nil, err
	}

	data, err := s.analyzer.Fill(img, fields, values, sig)
	if err != nil {
		return nil, err
	}

	sort.Strings(ignored)
	filled := make([]string, 0, len(values))
	for id := range values {
		filled = append(filled, id)
	}
	sort.Strings(filled)

	b := img.Bounds()
	result := &FillResult{
		SessionID: p.SessionID,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Filled:    filled,
		Ignored:   ignored,
		MimeType:  "image/png",
	}
	if sig != nil {
		result.Signed = sig.BoxID
	}
	if p.OutputPath != "" {
		if err := os.WriteFile(p.OutputPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write filled form: %w", err)
		}
		result.OutputPath = p.OutputPath
	}
	if boolOr(p.IncludeImage, p.OutputPath == "") {
		result.ImageBase64 = base64.StdEncoding.EncodeToString(data)
	}

	s.log.WithFields(logrus.Fields{
		"session": p.SessionID,
		"filled":  len(filled),
		"ignored": len(ignored),
	}).Info("form filled")
	return result, nil
}

// decodeImageBase64 accepts plain base64 or a data URI and checks that the
// payload is a decodable image.
func decodeImageBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, invalidArgs("malformed data URI")
		}
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, invalidArgs("signature_base64: %v", err)
	}
	if _, err := imaging.DecodeBytes(data); err != nil {
		return nil, invalidArgs("signature_base64: %v", err)
	}
	return data, nil
}

func (s *Server) handleFormClose(args json.RawMessage) (interface{}, error) {
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, invalidArgs("session_id is required")
	}

	if doc, err := s.sessions.Get(p.SessionID); err == nil {
		s.cache.Evict(doc.SourcePath)
	}
	closed := s.sessions.Delete(p.SessionID)
	if closed {
		s.log.WithField("session", p.SessionID).Info("session closed")
	}
	return map[string]interface{}{
		"session_id": p.SessionID,
		"closed":     closed,
	}, nil
}

// === Stateless handlers ===

func (s *Server) handleFormCheckQuality(args json.RawMessage) (interface{}, error) {
	var p struct {
		Path string `json:"path"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	img, err := s.loadImage(p.Path)
	if err != nil {
		return nil, err
	}
	report := imaging.AssessQuality(img)
	return &report, nil
}

// OrientResult is returned by form_orient.
type OrientResult struct {
	Angle       int                 `json:"angle"`
	Fallback    bool                `json:"fallback"`
	Scores      []orientation.Score `json:"scores"`
	Width       int                 `json:"width"`
	Height      int                 `json:"height"`
	ImageBase64 string              `json:"image_base64,omitempty"`
	MimeType    string              `json:"mime_type,omitempty"`
}

func (s *Server) handleFormOrient(args json.RawMessage) (interface{}, error) {
	var p struct {
		Path         string `json:"path"`
		IncludeImage bool   `json:"include_image"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	img, err := s.loadImage(p.Path)
	if err != nil {
		return nil, err
	}

	res := s.selector.Select(img)
	b := res.Image.Bounds()
	result := &OrientResult{
		Angle:    res.Angle,
		Fallback: res.Fallback,
		Scores:   res.Scores,
		Width:    b.Dx(),
		Height:   b.Dy(),
	}
	if p.IncludeImage {
		data, err := render.EncodePNG(res.Image)
		if err != nil {
			return nil, err
		}
		result.ImageBase64 = base64.StdEncoding.EncodeToString(data)
		result.MimeType = "image/png"
	}
	return result, nil
}

func (s *Server) handleFormMerge(args json.RawMessage) (interface{}, error) {
	var p struct {
		Detections   []detection.RawDetection `json:"detections"`
		IoUThreshold *float64                 `json:"iou_threshold"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	threshold := s.opts.IoUThreshold
	if p.IoUThreshold != nil {
		threshold = *p.IoUThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, invalidArgs("iou_threshold must be within [0, 1], got %v", threshold)
	}

	fields := detection.Merge(p.Detections, threshold)
	return map[string]interface{}{
		"fields":        fields,
		"count":         len(fields),
		"iou_threshold": threshold,
	}, nil
}

func (s *Server) handleFormSort(args json.RawMessage) (interface{}, error) {
	var p struct {
		Fields        []detection.MergedField `json:"fields"`
		Direction     string                  `json:"direction"`
		LineTolerance *float64                `json:"line_tolerance"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	dir, err := parseOptionalDirection(p.Direction)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, invalidArgs("direction is required")
	}
	tolerance := s.opts.LineTolerance
	if p.LineTolerance != nil {
		tolerance = *p.LineTolerance
	}
	if tolerance < 0 {
		return nil, invalidArgs("line_tolerance must not be negative")
	}

	return map[string]interface{}{
		"direction": dir,
		"fields":    layout.Sort(p.Fields, dir, tolerance),
	}, nil
}

func (s *Server) handleImageEdgeDetect(args json.RawMessage) (interface{}, error) {
	var p struct {
		Path          string `json:"path"`
		ThresholdLow  int    `json:"threshold_low"`
		ThresholdHigh int    `json:"threshold_high"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if p.ThresholdLow == 0 {
		p.ThresholdLow = 50
	}
	if p.ThresholdHigh == 0 {
		p.ThresholdHigh = 150
	}
	if p.ThresholdLow > p.ThresholdHigh {
		return nil, invalidArgs("threshold_low %d exceeds threshold_high %d", p.ThresholdLow, p.ThresholdHigh)
	}
	img, err := s.loadImage(p.Path)
	if err != nil {
		return nil, err
	}
	return imaging.EdgeDetect(img, p.ThresholdLow, p.ThresholdHigh)
}
