package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"

	"github.com/ironsheep/blind-tryon-mcp/internal/detection"
	"github.com/ironsheep/blind-tryon-mcp/internal/imaging"
	"github.com/ironsheep/blind-tryon-mcp/internal/mask"
	"github.com/ironsheep/blind-tryon-mcp/internal/overlay"
	"github.com/ironsheep/blind-tryon-mcp/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// defaultTintStrength applies when color and texture_path are both given.
const defaultTintStrength = 0.5

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "window_detect", "blind_apply").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", zap.String("tool", params.Name), zap.Error(err))
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

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

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	case "window_detect":
		return s.handleWindowDetect(ctx, args)
	case "window_preview":
		return s.handleWindowPreview(args)
	case "mask_info":
		return s.handleMaskInfo(args)
	case "blind_apply":
		return s.handleBlindApply(args)
	case "detectors_list":
		return s.handleDetectorsList()
	default:
		return nil, errors.Errorf("unknown tool: %s", name)
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// loadPhoto reads path through the cache and resolves the mask id: the
// explicit one when given, otherwise the photo's content id.
func (s *Server) loadPhoto(path, id string) (*imaging.Photo, string, error) {
	if path == "" {
		return nil, "", errors.New("path is required")
	}
	p, err := s.photos.Load(path)
	if err != nil {
		return nil, "", err
	}
	if id == "" {
		id = p.ID
	}
	if err := store.ValidateID(id); err != nil {
		return nil, "", err
	}
	return p, id, nil
}

// === Detection Handlers ===

type windowDetectArgs struct {
	Path    string `json:"path"`
	ImageID string `json:"image_id"`
	Mode    string `json:"mode"`
}

type candidateResult struct {
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

type attemptResult struct {
	Backend    string `json:"backend"`
	Found      bool   `json:"found"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type windowDetectResult struct {
	ImageID         string            `json:"image_id"`
	Mode            string            `json:"mode"`
	Backend         string            `json:"backend"`
	Found           bool              `json:"found"`
	Synthetic       bool              `json:"synthetic"`
	CoveragePercent float64           `json:"coverage_percent"`
	Width           int               `json:"width"`
	Height          int               `json:"height"`
	MaskPath        string            `json:"mask_path"`
	Candidates      []candidateResult `json:"candidates"`
	Attempts        []attemptResult   `json:"attempts"`
}

func (s *Server) handleWindowDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a windowDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Mode == "" {
		a.Mode = "cascade"
	}
	photo, id, err := s.loadPhoto(a.Path, a.ImageID)
	if err != nil {
		return nil, err
	}

	var out *detection.Outcome
	switch a.Mode {
	case "cascade":
		out = s.cascade.Detect(ctx, photo)
	case "ensemble":
		if s.ensemble == nil {
			return nil, errors.New("ensemble mode is not enabled")
		}
		out = s.ensemble.Detect(ctx, photo)
	default:
		return nil, errors.Errorf("unknown mode %q, use cascade or ensemble", a.Mode)
	}

	if err := s.masks.Save(id, out.Mask); err != nil {
		return nil, err
	}
	s.rememberCandidates(id, out.Candidates)
	path, _ := s.masks.Path(id)

	s.logger.Info("window detected",
		zap.String("image_id", id),
		zap.String("backend", out.Backend),
		zap.Bool("found", out.Found),
		zap.Float64("coverage", out.Coverage()))

	result := &windowDetectResult{
		ImageID:         id,
		Mode:            a.Mode,
		Backend:         out.Backend,
		Found:           out.Found,
		Synthetic:       out.Synthetic,
		CoveragePercent: out.Coverage(),
		Width:           photo.Width(),
		Height:          photo.Height(),
		MaskPath:        path,
		Candidates:      make([]candidateResult, 0, len(out.Candidates)),
		Attempts:        make([]attemptResult, 0, len(out.Attempts)),
	}
	for _, c := range out.Candidates {
		result.Candidates = append(result.Candidates, candidateResult{
			X1: c.Rect.Min.X, Y1: c.Rect.Min.Y, X2: c.Rect.Max.X, Y2: c.Rect.Max.Y,
			Confidence: c.Confidence,
			Source:     c.Source,
		})
	}
	for _, at := range out.Attempts {
		ar := attemptResult{Backend: at.Backend, Found: at.Found, DurationMS: at.Duration.Milliseconds()}
		if at.Err != nil {
			ar.Error = at.Err.Error()
		}
		result.Attempts = append(result.Attempts, ar)
	}
	return result, nil
}

type windowPreviewArgs struct {
	Path    string `json:"path"`
	ImageID string `json:"image_id"`
}

type imageResult struct {
	ImageID     string `json:"image_id"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Boxes       int    `json:"boxes,omitempty"`
	OutputPath  string `json:"output_path,omitempty"`
	ImageBase64 string `json:"image_base64"`
}

func (s *Server) handleWindowPreview(args json.RawMessage) (interface{}, error) {
	var a windowPreviewArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	photo, id, err := s.loadPhoto(a.Path, a.ImageID)
	if err != nil {
		return nil, err
	}
	m, err := s.masks.ForSize(id, photo.Width(), photo.Height())
	if err != nil {
		return nil, err
	}

	var boxes []imaging.PreviewBox
	for _, c := range s.lastCandidates(id) {
		boxes = append(boxes, imaging.PreviewBox{Rect: c.Rect, Label: fmt.Sprintf("%.0f%%", c.Confidence*100)})
	}
	if len(boxes) == 0 {
		// Mask loaded from disk by an earlier process.
		if box, ok := mask.BoundingBox(m); ok {
			boxes = append(boxes, imaging.PreviewBox{Rect: box})
		}
	}

	preview := imaging.RenderPreview(photo.Image, m, boxes, imaging.DefaultPreviewStyle)
	encoded, err := imaging.EncodeBase64PNG(preview)
	if err != nil {
		return nil, err
	}
	return &imageResult{
		ImageID:     id,
		Width:       photo.Width(),
		Height:      photo.Height(),
		Boxes:       len(boxes),
		ImageBase64: encoded,
	}, nil
}

type maskInfoArgs struct {
	ImageID string `json:"image_id"`
}

func (s *Server) handleMaskInfo(args json.RawMessage) (interface{}, error) {
	var a maskInfoArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return s.masks.Info(a.ImageID)
}

type detectorsListResult struct {
	Cascade  []string `json:"cascade"`
	Ensemble []string `json:"ensemble,omitempty"`
}

func (s *Server) handleDetectorsList() (interface{}, error) {
	r := &detectorsListResult{Cascade: s.cascade.Names()}
	if s.ensemble != nil {
		r.Ensemble = s.ensemble.Names()
	}
	return r, nil
}

// === Compositing Handlers ===

type blindApplyArgs struct {
	Path         string   `json:"path"`
	ImageID      string   `json:"image_id"`
	TexturePath  string   `json:"texture_path"`
	Color        string   `json:"color"`
	TintStrength *float64 `json:"tint_strength"`
	Alpha        *float64 `json:"alpha"`
	Shadow       *float64 `json:"shadow"`
	OutputPath   string   `json:"output_path"`
}

func (s *Server) handleBlindApply(args json.RawMessage) (interface{}, error) {
	var a blindApplyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	cfg := s.blend
	if a.Alpha != nil {
		cfg.Alpha = *a.Alpha
	}
	if a.Shadow != nil {
		cfg.ShadowIntensity = *a.Shadow
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	photo, id, err := s.loadPhoto(a.Path, a.ImageID)
	if err != nil {
		return nil, err
	}
	m, err := s.masks.ForSize(id, photo.Width(), photo.Height())
	if err != nil {
		if errors.Is(err, store.ErrMaskNotFound) {
			return nil, errors.Wrap(err, "run window_detect first")
		}
		return nil, err
	}

	ov, err := s.overlayFor(a, photo.Width(), photo.Height())
	if err != nil {
		return nil, err
	}

	result := overlay.Composite(photo.Image, m, ov, cfg)
	if a.OutputPath != "" {
		if err := imaging.SavePNG(result, a.OutputPath); err != nil {
			return nil, err
		}
	}
	encoded, err := imaging.EncodeBase64PNG(result)
	if err != nil {
		return nil, err
	}

	s.logger.Info("blind applied",
		zap.String("image_id", id),
		zap.Float64("alpha", cfg.Alpha),
		zap.Float64("shadow", cfg.ShadowIntensity))

	return &imageResult{
		ImageID:     id,
		Width:       result.Bounds().Dx(),
		Height:      result.Bounds().Dy(),
		OutputPath:  a.OutputPath,
		ImageBase64: encoded,
	}, nil
}

// overlayFor builds the overlay bitmap: a texture (optionally tinted) or a
// solid color.
func (s *Server) overlayFor(a blindApplyArgs, width, height int) (image.Image, error) {
	switch {
	case a.TexturePath != "":
		tex, err := overlay.Load(a.TexturePath)
		if err != nil {
			return nil, err
		}
		if a.Color == "" {
			return tex, nil
		}
		strength := defaultTintStrength
		if a.TintStrength != nil {
			strength = *a.TintStrength
		}
		return overlay.Tint(tex, a.Color, strength)
	case a.Color != "":
		return overlay.Solid(a.Color, width, height)
	default:
		return nil, errors.New("texture_path or color is required")
	}
}
