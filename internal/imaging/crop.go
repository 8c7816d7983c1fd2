package imaging

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// FitForAnalysis downscales img so neither side exceeds maxSide, preserving
// the aspect ratio. Images that already fit are cloned unchanged. scale is
// the factor that maps analysis coordinates back to the original image
// (>= 1).
func FitForAnalysis(img image.Image, maxSide int) (fitted *image.NRGBA, scale float64) {
	b := img.Bounds()
	if maxSide <= 0 || (b.Dx() <= maxSide && b.Dy() <= maxSide) {
		return imaging.Clone(img), 1
	}
	fitted = imaging.Fit(img, maxSide, maxSide, imaging.Box)
	return fitted, float64(b.Dx()) / float64(fitted.Bounds().Dx())
}

// Upload is a photo prepared for a remote detector. Coordinates returned by
// the remote service refer to Width x Height, which may be smaller than the
// photo itself.
type Upload struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// PrepareUpload returns the photo bytes to send to a remote API. Photos
// within maxSide whose format the APIs accept are sent as-is; anything else,
// including photos whose EXIF orientation rotated or flipped the raster, is
// re-encoded as JPEG from the oriented raster so returned coordinates match
// Image.
func PrepareUpload(p *Photo, maxSide int) (*Upload, error) {
	w, h := p.Width(), p.Height()
	fits := maxSide <= 0 || (w <= maxSide && h <= maxSide)
	if (p.Format == "jpeg" || p.Format == "png") && fits && !p.Oriented {
		return &Upload{Data: p.Data, MIMEType: p.MIMEType(), Width: w, Height: h}, nil
	}

	fitted, _ := FitForAnalysis(p.Image, maxSide)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, errors.Wrap(err, "re-encoding photo for upload")
	}
	return &Upload{
		Data:     buf.Bytes(),
		MIMEType: "image/jpeg",
		Width:    fitted.Bounds().Dx(),
		Height:   fitted.Bounds().Dy(),
	}, nil
}
