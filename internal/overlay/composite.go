package overlay

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/ironsheep/blind-tryon-mcp/internal/mask"
)

// shadowSpread widens the shadow blur relative to the mask smoothing sigma.
const shadowSpread = 3.0

// Composite blends overlay onto photo through m and returns a new image the
// size of photo. m is resized with nearest-neighbor sampling and overlay with
// Lanczos when their sizes differ from the photo. The overlay's own alpha
// channel scales the mask weight, so transparent overlay pixels never cover
// the photo. The photo's alpha is kept. cfg is clamped into range.
//
// A non-zero ShadowIntensity darkens a halo around the covered region, not
// the region itself: the shadow is a wider blur of the mask, weighted by
// (1 - mask weight), so the blind keeps its own color and only the wall and
// frame next to it get darker.
//
// Composite never fails; a nil mask or overlay returns a copy of photo.
func Composite(photo image.Image, m *image.Gray, overlay image.Image, cfg BlendConfig) *image.NRGBA {
	out := imaging.Clone(photo)
	cfg = cfg.Clamped()
	if cfg.Alpha == 0 || m == nil || overlay == nil {
		return out
	}

	b := out.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return out
	}
	weights := mask.ResizeNearest(m, w, h)
	if mask.IsZero(weights) {
		return out
	}
	ov := imaging.Resize(overlay, w, h, imaging.Lanczos)

	var shadow *image.Gray
	if cfg.ShadowIntensity > 0 {
		shadow = shadowOf(weights)
	}

	for y := 0; y < h; y++ {
		po := y * out.Stride
		oo := y * ov.Stride
		mo := y * weights.Stride
		for x := 0; x < w; x++ {
			p := out.Pix[po+4*x : po+4*x+4 : po+4*x+4]
			o := ov.Pix[oo+4*x : oo+4*x+4 : oo+4*x+4]

			w := float64(weights.Pix[mo+x]) / 255
			a := w * float64(o[3]) / 255 * cfg.Alpha
			dark := 1.0
			if shadow != nil {
				// The halo falls outside the covered area only.
				dark = 1 - cfg.ShadowIntensity*float64(shadow.Pix[y*shadow.Stride+x])/255*(1-w)
			}
			if a == 0 && dark == 1 {
				continue
			}
			for c := 0; c < 3; c++ {
				v := (float64(p[c])*(1-a) + float64(o[c])*a) * dark
				p[c] = toByte(v)
			}
		}
	}
	return out
}

// shadowOf blurs the mask wider than the edge smoothing does, giving the
// soft footprint of the blind's cast shadow.
func shadowOf(weights *image.Gray) *image.Gray {
	b := weights.Bounds()
	sigma := shadowSpread * mask.AutoSigma(b.Dx(), b.Dy())
	return mask.ToGray(imaging.Blur(weights, sigma))
}

func toByte(v float64) uint8 {
	v = math.Round(v)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
