package mask

import (
	"bytes"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ToGray converts img to a mask by taking its red channel. Images produced
// by the drawing libraries used in this module are either gray already or
// carry identical R, G and B values, so no luminance weighting is applied.
func ToGray(img image.Image) *image.Gray {
	switch src := img.(type) {
	case *image.Gray:
		return Clone(src)
	case *image.RGBA:
		return fromInterleaved(src.Pix, src.Stride, src.Rect)
	case *image.NRGBA:
		return fromInterleaved(src.Pix, src.Stride, src.Rect)
	}

	b := img.Bounds()
	out := New(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out.Pix[y*out.Stride+x] = uint8(r >> 8)
		}
	}
	return out
}

func fromInterleaved(pix []uint8, stride int, rect image.Rectangle) *image.Gray {
	out := New(rect.Dx(), rect.Dy())
	for y := 0; y < rect.Dy(); y++ {
		row := pix[y*stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < rect.Dx(); x++ {
			dst[x] = row[x*4]
		}
	}
	return out
}

// Encode writes m as an 8-bit grayscale PNG.
func Encode(w io.Writer, m *image.Gray) error {
	return errors.Wrap(imaging.Encode(w, m, imaging.PNG), "encoding mask")
}

// EncodePNG returns m as PNG bytes.
func EncodePNG(m *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a mask image. Color images are accepted and reduced with
// ToGray.
func Decode(r io.Reader) (*image.Gray, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decoding mask")
	}
	return ToGray(img), nil
}

// DecodePNG is Decode over a byte slice.
func DecodePNG(data []byte) (*image.Gray, error) {
	return Decode(bytes.NewReader(data))
}
