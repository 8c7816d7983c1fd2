package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/draw"
	"os"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// PreviewBox is one rectangle drawn on a detection preview.
type PreviewBox struct {
	Rect  image.Rectangle
	Label string
}

// PreviewStyle controls RenderPreview colors. Colors are hex strings such
// as "#1E90FF"; invalid values fall back to the defaults.
type PreviewStyle struct {
	MaskColor    string
	MaskOpacity  float64
	OutlineColor string
}

// DefaultPreviewStyle tints the mask blue and outlines candidates in orange.
var DefaultPreviewStyle = PreviewStyle{
	MaskColor:    "#1E90FF",
	MaskOpacity:  0.4,
	OutlineColor: "#FF8C00",
}

// RenderPreview draws a detection result over a copy of img: the mask area is
// tinted and each box is outlined with its label in the top-left corner.
// mask may be nil; when present it must match img's size.
func RenderPreview(img image.Image, mask *image.Gray, boxes []PreviewBox, style PreviewStyle) *image.RGBA {
	bounds := img.Bounds()
	result := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(result, result.Bounds(), img, bounds.Min, draw.Src)

	tint := hexOr(style.MaskColor, DefaultPreviewStyle.MaskColor)
	outline := toRGBA(hexOr(style.OutlineColor, DefaultPreviewStyle.OutlineColor), 255)

	if mask != nil && mask.Bounds().Dx() == bounds.Dx() && mask.Bounds().Dy() == bounds.Dy() {
		opacity := style.MaskOpacity
		if opacity <= 0 || opacity > 1 {
			opacity = DefaultPreviewStyle.MaskOpacity
		}
		for y := 0; y < bounds.Dy(); y++ {
			for x := 0; x < bounds.Dx(); x++ {
				w := float64(mask.Pix[y*mask.Stride+x]) / 255 * opacity
				if w == 0 {
					continue
				}
				i := y*result.Stride + x*4
				base := colorful.Color{
					R: float64(result.Pix[i]) / 255,
					G: float64(result.Pix[i+1]) / 255,
					B: float64(result.Pix[i+2]) / 255,
				}
				r, g, b := base.BlendRgb(tint, w).Clamped().RGB255()
				result.Pix[i], result.Pix[i+1], result.Pix[i+2] = r, g, b
			}
		}
	}

	labelColor := color.RGBA{255, 255, 255, 255}
	bgColor := color.RGBA{0, 0, 0, 180}
	for _, box := range boxes {
		drawRect(result, box.Rect, outline, 2)
		if box.Label != "" {
			drawLabel(result, box.Rect.Min.X+3, box.Rect.Min.Y+3, box.Label, labelColor, bgColor)
		}
	}
	return result
}

// EncodeBase64PNG encodes img as PNG and returns it base64 encoded.
func EncodeBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", errors.Wrap(err, "failed to encode image")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// SavePNG writes img to path as PNG whatever the file extension.
func SavePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create output file")
	}
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to encode image")
	}
	return errors.Wrap(f.Close(), "failed to write output file")
}

func hexOr(hex, fallback string) colorful.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		c, _ = colorful.Hex(fallback)
	}
	return c
}

func toRGBA(c colorful.Color, a uint8) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: a}
}

// drawRect outlines r with the given stroke width, clipped to img.
func drawRect(img *image.RGBA, r image.Rectangle, c color.RGBA, stroke int) {
	r = r.Canon().Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+stroke),
		image.Rect(r.Min.X, r.Max.Y-stroke, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+stroke, r.Max.Y),
		image.Rect(r.Max.X-stroke, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(r), &image.Uniform{C: c}, image.Point{}, draw.Src)
	}
}

// drawLabel draws a label with a tiny 3x5 pixel font. Only digits, '.', ','
// and '%' have glyphs; other characters leave a gap.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	glyphs := map[rune][]string{
		'0': {"111", "101", "101", "101", "111"},
		'1': {"010", "110", "010", "010", "111"},
		'2': {"111", "001", "111", "100", "111"},
		'3': {"111", "001", "111", "001", "111"},
		'4': {"101", "101", "111", "001", "001"},
		'5': {"111", "100", "111", "001", "111"},
		'6': {"111", "100", "111", "101", "111"},
		'7': {"111", "001", "001", "001", "001"},
		'8': {"111", "101", "111", "101", "111"},
		'9': {"111", "101", "111", "001", "111"},
		',': {"000", "000", "000", "010", "010"},
		'.': {"000", "000", "000", "000", "010"},
		'%': {"101", "001", "010", "100", "101"},
	}

	bounds := img.Bounds()
	charWidth := 4
	labelWidth := len(text) * charWidth
	labelHeight := 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			px, py := x+dx, y+dy
			if image.Pt(px, py).In(bounds) {
				img.SetRGBA(px, py, bg)
			}
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' {
					px, py := cx+col, y+row
					if image.Pt(px, py).In(bounds) {
						img.SetRGBA(px, py, fg)
					}
				}
			}
		}
		cx += charWidth
	}
}
