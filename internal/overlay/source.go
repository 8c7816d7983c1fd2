package overlay

import (
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// ParseColor accepts "#rrggbb", "rrggbb" and the short "#rgb" form.
func ParseColor(hex string) (colorful.Color, error) {
	hex = strings.TrimSpace(hex)
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return colorful.Color{}, errors.Wrapf(err, "invalid color %q", hex)
	}
	return c, nil
}

// Solid returns an opaque width x height overlay of one color.
func Solid(hex string, width, height int) (*image.NRGBA, error) {
	c, err := ParseColor(hex)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid overlay size %dx%d", width, height)
	}
	r, g, b := c.RGB255()
	return imaging.New(width, height, color.NRGBA{R: r, G: g, B: b, A: 255}), nil
}

// Tint shifts a texture toward a color in Lab space, keeping its alpha and
// most of its shading. strength 0 returns a copy, 1 replaces every color.
func Tint(texture image.Image, hex string, strength float64) (*image.NRGBA, error) {
	target, err := ParseColor(hex)
	if err != nil {
		return nil, err
	}
	strength = clampFloat(strength, 0, 1)

	out := imaging.Clone(texture)
	if strength == 0 {
		return out, nil
	}
	for i := 0; i+3 < len(out.Pix); i += 4 {
		src := colorful.Color{
			R: float64(out.Pix[i]) / 255,
			G: float64(out.Pix[i+1]) / 255,
			B: float64(out.Pix[i+2]) / 255,
		}
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = src.BlendLab(target, strength).Clamped().RGB255()
	}
	return out, nil
}

// Load reads a texture image from disk.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "loading overlay %s", path)
	}
	return img, nil
}
