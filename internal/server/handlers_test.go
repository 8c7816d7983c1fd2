package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

// callTool runs a tools/call request and returns the response.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()
	params, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  params,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// callToolOK runs a tool, fails on error and decodes its JSON text into v.
func callToolOK(t *testing.T, s *Server, name string, args map[string]interface{}, v interface{}) {
	t.Helper()
	resp := callTool(t, s, name, args)
	if resp.Error != nil {
		t.Fatalf("%s failed: %s (%v)", name, resp.Error.Message, resp.Error.Data)
	}
	content := resp.Result.(map[string]interface{})["content"].([]map[string]interface{})
	text := content[0]["text"].(string)
	if err := json.Unmarshal([]byte(text), v); err != nil {
		t.Fatalf("decode %s result: %v", name, err)
	}
}

func callToolErr(t *testing.T, s *Server, name string, args map[string]interface{}) string {
	t.Helper()
	resp := callTool(t, s, name, args)
	if resp.Error == nil {
		t.Fatalf("%s: expected an error", name)
	}
	if resp.Error.Code != -32000 {
		t.Errorf("%s: expected code -32000, got %d", name, resp.Error.Code)
	}
	data, _ := resp.Error.Data.(string)
	return data
}

func decodePNG(t *testing.T, b64 string) image.Image {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode png: %v", err)
	}
	return img
}

func TestHandleToolsCall_WindowDetect(t *testing.T) {
	s := newTestServer(t, false)
	imgPath := createTestImageFile(t, 200, 100, color.White)

	var result windowDetectResult
	callToolOK(t, s, "window_detect", map[string]interface{}{"path": imgPath, "image_id": "living-room"}, &result)

	if result.ImageID != "living-room" {
		t.Errorf("image_id: got %s", result.ImageID)
	}
	if result.Backend != "stub" || !result.Found || result.Synthetic {
		t.Errorf("unexpected outcome: %+v", result)
	}
	if result.Mode != "cascade" {
		t.Errorf("default mode should be cascade, got %s", result.Mode)
	}
	if result.Width != 200 || result.Height != 100 {
		t.Errorf("dimensions: got %dx%d", result.Width, result.Height)
	}
	// Window covers a quarter of the photo, slightly eroded.
	if result.CoveragePercent < 20 || result.CoveragePercent > 27 {
		t.Errorf("coverage: got %.2f", result.CoveragePercent)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].X2 != 100 {
		t.Errorf("candidates: got %+v", result.Candidates)
	}
	if len(result.Attempts) != 1 || result.Attempts[0].Error != "" {
		t.Errorf("attempts: got %+v", result.Attempts)
	}
	if _, err := os.Stat(result.MaskPath); err != nil {
		t.Errorf("mask file not written: %v", err)
	}
}

func TestHandleToolsCall_WindowDetectDefaultID(t *testing.T) {
	s := newTestServer(t, false)
	imgPath := createTestImageFile(t, 64, 48, color.White)

	var result windowDetectResult
	callToolOK(t, s, "window_detect", map[string]interface{}{"path": imgPath}, &result)

	if len(result.ImageID) != 16 {
		t.Errorf("expected a 16 hex digit content id, got %q", result.ImageID)
	}

	var again windowDetectResult
	callToolOK(t, s, "window_detect", map[string]interface{}{"path": imgPath}, &again)
	if again.ImageID != result.ImageID {
		t.Errorf("content id should be stable: %s vs %s", result.ImageID, again.ImageID)
	}
}

func TestHandleToolsCall_WindowDetectModes(t *testing.T) {
	imgPath := createTestImageFile(t, 64, 48, color.White)

	s := newTestServer(t, false)
	data := callToolErr(t, s, "window_detect", map[string]interface{}{"path": imgPath, "mode": "ensemble"})
	if !strings.Contains(data, "ensemble") {
		t.Errorf("unexpected error: %s", data)
	}
	callToolErr(t, s, "window_detect", map[string]interface{}{"path": imgPath, "mode": "vote"})

	s = newTestServer(t, true)
	var result windowDetectResult
	callToolOK(t, s, "window_detect", map[string]interface{}{"path": imgPath, "mode": "ensemble"}, &result)
	if result.Backend != "stub" {
		t.Errorf("ensemble backend: got %s", result.Backend)
	}
}

func TestHandleToolsCall_WindowDetectErrors(t *testing.T) {
	s := newTestServer(t, false)

	callToolErr(t, s, "window_detect", map[string]interface{}{})
	callToolErr(t, s, "window_detect", map[string]interface{}{"path": "/nonexistent/photo.png"})

	bad := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	callToolErr(t, s, "window_detect", map[string]interface{}{"path": bad})

	imgPath := createTestImageFile(t, 64, 48, color.White)
	callToolErr(t, s, "window_detect", map[string]interface{}{"path": imgPath, "image_id": "../escape"})
}

func TestHandleToolsCall_MaskInfo(t *testing.T) {
	s := newTestServer(t, false)
	imgPath := createTestImageFile(t, 120, 80, color.White)
	var detected windowDetectResult
	callToolOK(t, s, "window_detect", map[string]interface{}{"path": imgPath, "image_id": "room"}, &detected)

	var info struct {
		ImageID         string  `json:"image_id"`
		Width           int     `json:"width"`
		Height          int     `json:"height"`
		CoveragePercent float64 `json:"coverage_percent"`
	}
	callToolOK(t, s, "mask_info", map[string]interface{}{"image_id": "room"}, &info)

	if info.Width != 120 || info.Height != 80 {
		t.Errorf("mask size: got %dx%d", info.Width, info.Height)
	}
	if info.CoveragePercent != detected.CoveragePercent {
		t.Errorf("coverage mismatch: %f vs %f", info.CoveragePercent, detected.CoveragePercent)
	}

	callToolErr(t, s, "mask_info", map[string]interface{}{"image_id": "missing"})
}

func TestHandleToolsCall_BlindApplyColor(t *testing.T) {
	s := newTestServer(t, false)
	imgPath := createTestImageFile(t, 200, 100, color.White)
	var detected windowDetectResult
	callToolOK(t, s, "window_detect", map[string]interface{}{"path": imgPath, "image_id": "room"}, &detected)

	var result imageResult
	callToolOK(t, s, "blind_apply", map[string]interface{}{
		"path": imgPath, "image_id": "room", "color": "#0000ff", "alpha": 1.0,
	}, &result)

	img := decodePNG(t, result.ImageBase64)
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 100 {
		t.Fatalf("result size: %v", img.Bounds())
	}
	inside := color.NRGBAModel.Convert(img.At(50, 50)).(color.NRGBA)
	if inside.B < 250 || inside.R > 5 {
		t.Errorf("window area should be blue, got %v", inside)
	}
	outside := color.NRGBAModel.Convert(img.At(150, 50)).(color.NRGBA)
	if outside != (color.NRGBA{255, 255, 255, 255}) {
		t.Errorf("wall should be untouched, got %v", outside)
	}
}

func TestHandleToolsCall_BlindApplyTexture(t *testing.T) {
	s := newTestServer(t, false)
	imgPath := createTestImageFile(t, 100, 100, color.White)
	var detected windowDetectResult
	callToolOK(t, s, "window_detect", map[string]interface{}{"path": imgPath, "image_id": "room"}, &detected)

	texPath := filepath.Join(t.TempDir(), "slats.png")
	if err := imaging.Save(imaging.New(16, 16, color.NRGBA{120, 120, 120, 255}), texPath); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(t.TempDir(), "tryon.png")

	var result imageResult
	callToolOK(t, s, "blind_apply", map[string]interface{}{
		"path":          imgPath,
		"image_id":      "room",
		"texture_path":  texPath,
		"color":         "#8B4513",
		"tint_strength": 1.0,
		"shadow":        0.2,
		"output_path":   outPath,
	}, &result)

	if result.OutputPath != outPath {
		t.Errorf("output_path: got %s", result.OutputPath)
	}
	saved, err := imaging.Open(outPath)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	c := color.NRGBAModel.Convert(saved.At(25, 50)).(color.NRGBA)
	if c.R <= c.B {
		t.Errorf("tinted texture should be brown, got %v", c)
	}
}

func TestHandleToolsCall_BlindApplyErrors(t *testing.T) {
	s := newTestServer(t, false)
	imgPath := createTestImageFile(t, 64, 48, color.White)

	data := callToolErr(t, s, "blind_apply", map[string]interface{}{"path": imgPath, "image_id": "nomask", "color": "#fff"})
	if !strings.Contains(data, "window_detect") {
		t.Errorf("missing mask error should point to window_detect: %s", data)
	}

	var detected windowDetectResult
	callToolOK(t, s, "window_detect", map[string]interface{}{"path": imgPath, "image_id": "room"}, &detected)

	callToolErr(t, s, "blind_apply", map[string]interface{}{"path": imgPath, "image_id": "room"})
	callToolErr(t, s, "blind_apply", map[string]interface{}{"path": imgPath, "image_id": "room", "color": "#fff", "alpha": 1.5})
	callToolErr(t, s, "blind_apply", map[string]interface{}{"path": imgPath, "image_id": "room", "color": "#fff", "shadow": 0.9})
	callToolErr(t, s, "blind_apply", map[string]interface{}{"path": imgPath, "image_id": "room", "color": "beige"})
	callToolErr(t, s, "blind_apply", map[string]interface{}{"path": imgPath, "image_id": "room", "texture_path": "/nonexistent.png"})
}

func TestHandleToolsCall_BlindApplyZeroAlpha(t *testing.T) {
	s := newTestServer(t, false)
	imgPath := createTestImageFile(t, 40, 30, color.RGBA{10, 200, 30, 255})
	var detected windowDetectResult
	callToolOK(t, s, "window_detect", map[string]interface{}{"path": imgPath, "image_id": "room"}, &detected)

	var result imageResult
	callToolOK(t, s, "blind_apply", map[string]interface{}{
		"path": imgPath, "image_id": "room", "color": "#ff0000", "alpha": 0.0,
	}, &result)

	img := decodePNG(t, result.ImageBase64)
	c := color.NRGBAModel.Convert(img.At(10, 15)).(color.NRGBA)
	if c != (color.NRGBA{10, 200, 30, 255}) {
		t.Errorf("alpha 0 must leave the photo unchanged, got %v", c)
	}
}

func TestHandleToolsCall_WindowPreview(t *testing.T) {
	s := newTestServer(t, false)
	imgPath := createTestImageFile(t, 120, 80, color.White)
	var detected windowDetectResult
	callToolOK(t, s, "window_detect", map[string]interface{}{"path": imgPath, "image_id": "room"}, &detected)

	var result imageResult
	callToolOK(t, s, "window_preview", map[string]interface{}{"path": imgPath, "image_id": "room"}, &result)

	if result.Boxes != 1 {
		t.Errorf("expected 1 box, got %d", result.Boxes)
	}
	img := decodePNG(t, result.ImageBase64)
	if img.Bounds().Dx() != 120 {
		t.Errorf("preview width: got %d", img.Bounds().Dx())
	}

	callToolErr(t, s, "window_preview", map[string]interface{}{"path": imgPath, "image_id": "other"})
}

func TestHandleToolsCall_WindowPreviewFromDisk(t *testing.T) {
	s := newTestServer(t, false)
	imgPath := createTestImageFile(t, 120, 80, color.White)
	var detected windowDetectResult
	callToolOK(t, s, "window_detect", map[string]interface{}{"path": imgPath, "image_id": "room"}, &detected)

	// A second server over the same directory has no remembered candidates.
	other, err := New(Options{Cascade: s.cascade, Masks: s.masks})
	if err != nil {
		t.Fatal(err)
	}
	var result imageResult
	callToolOK(t, other, "window_preview", map[string]interface{}{"path": imgPath, "image_id": "room"}, &result)
	if result.Boxes != 1 {
		t.Errorf("expected the mask bounding box, got %d boxes", result.Boxes)
	}
}

func TestHandleToolsCall_DetectorsList(t *testing.T) {
	s := newTestServer(t, true)

	var result detectorsListResult
	callToolOK(t, s, "detectors_list", nil, &result)
	if len(result.Cascade) != 1 || result.Cascade[0] != "stub" {
		t.Errorf("cascade: got %v", result.Cascade)
	}
	if len(result.Ensemble) != 1 {
		t.Errorf("ensemble: got %v", result.Ensemble)
	}
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t, false)
	data := callToolErr(t, s, "window_segment", map[string]interface{}{})
	if !strings.Contains(data, "unknown tool") {
		t.Errorf("unexpected error: %s", data)
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t, false)
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("expected invalid params, got %+v", resp)
	}
}
