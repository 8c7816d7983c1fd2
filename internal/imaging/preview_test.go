package imaging

import (
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func TestRenderPreview(t *testing.T) {
	img := uniformImage(60, 40, color.RGBA{255, 255, 255, 255})
	mask := image.NewGray(image.Rect(0, 0, 60, 40))
	for y := 10; y < 30; y++ {
		for x := 10; x < 50; x++ {
			mask.SetGray(x, y, color.Gray{255})
		}
	}

	out := RenderPreview(img, mask, []PreviewBox{{Rect: image.Rect(5, 5, 55, 35), Label: "0.90"}}, DefaultPreviewStyle)

	if out.Bounds() != image.Rect(0, 0, 60, 40) {
		t.Fatalf("bounds: got %v", out.Bounds())
	}
	// Tinted region is no longer white and is bluish.
	c := out.RGBAAt(30, 20)
	if c.B <= c.R {
		t.Errorf("mask region not tinted blue: %v", c)
	}
	// Outside mask and box the photo is untouched.
	if c := out.RGBAAt(1, 1); c != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("untouched pixel changed: %v", c)
	}
	// Outline on the right edge of the box.
	if c := out.RGBAAt(54, 20); c != (color.RGBA{0xFF, 0x8C, 0x00, 255}) {
		t.Errorf("outline color: got %v", c)
	}
	// Source image must not be modified.
	if img.RGBAAt(30, 20) != (color.RGBA{255, 255, 255, 255}) {
		t.Error("RenderPreview modified its input")
	}
}

func TestRenderPreview_MismatchedMaskIgnored(t *testing.T) {
	img := uniformImage(20, 20, color.RGBA{0, 0, 0, 255})
	mask := image.NewGray(image.Rect(0, 0, 10, 10))
	out := RenderPreview(img, mask, nil, PreviewStyle{})
	if out.RGBAAt(5, 5) != (color.RGBA{0, 0, 0, 255}) {
		t.Error("mismatched mask should be ignored")
	}
}

func TestEncodeBase64PNG(t *testing.T) {
	s, err := EncodeBase64PNG(uniformImage(8, 4, color.RGBA{1, 2, 3, 255}))
	if err != nil {
		t.Fatalf("EncodeBase64PNG failed: %v", err)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	img, err := png.Decode(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
		t.Errorf("decoded size %v", img.Bounds())
	}
}

func TestSavePNG(t *testing.T) {
	path := t.TempDir() + "/out.jpg"
	if err := SavePNG(uniformImage(8, 6, color.RGBA{10, 20, 30, 255}), path); err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}

	p, err := LoadPhoto(path)
	if err != nil {
		t.Fatalf("LoadPhoto failed: %v", err)
	}
	if p.Format != "png" {
		t.Errorf("expected png regardless of extension, got %s", p.Format)
	}
	if p.Width() != 8 || p.Height() != 6 {
		t.Errorf("unexpected size %dx%d", p.Width(), p.Height())
	}
}

func TestSavePNG_BadPath(t *testing.T) {
	if err := SavePNG(uniformImage(2, 2, color.RGBA{}), t.TempDir()+"/missing/dir/out.png"); err == nil {
		t.Error("expected error for missing directory")
	}
}
