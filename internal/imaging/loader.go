package imaging

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ErrImageDecode is returned when photo bytes cannot be decoded at all. It is
// the only error the detection cascade lets escape.
var ErrImageDecode = errors.New("image cannot be decoded")

// Photo is a decoded room photo together with the bytes it came from.
//
// The decoded Image is never modified by this module; operations that need
// to draw on it work on a clone.
type Photo struct {
	// ID is a stable identifier derived from the photo bytes. Callers may
	// use it as the key for stored masks when they have no id of their own.
	ID string

	// Data holds the original encoded bytes, sent as-is to remote detectors.
	Data []byte

	// Format is the name reported by the decoder: "png", "jpeg" or "gif".
	Format string

	// Image is the decoded raster with EXIF orientation applied.
	Image image.Image

	// Oriented reports that EXIF orientation changed the raster, so Data no
	// longer has the same pixel layout as Image.
	Oriented bool
}

// Width returns the photo width in pixels.
func (p *Photo) Width() int { return p.Image.Bounds().Dx() }

// Height returns the photo height in pixels.
func (p *Photo) Height() int { return p.Image.Bounds().Dy() }

// Bounds returns the photo rectangle rebased at the origin.
func (p *Photo) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.Width(), p.Height())
}

// MIMEType maps Format to a content type for upload.
func (p *Photo) MIMEType() string {
	switch p.Format {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// DecodePhoto decodes photo bytes. Every failure wraps ErrImageDecode.
func DecodePhoto(data []byte) (*Photo, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrImageDecode, "empty input")
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrImageDecode, "%v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(ErrImageDecode, "%v", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.Wrap(ErrImageDecode, "zero-sized image")
	}

	sum := sha256.Sum256(data)
	return &Photo{
		ID:       hex.EncodeToString(sum[:8]),
		Data:     data,
		Format:   format,
		Image:    img,
		Oriented: format == "jpeg" && reoriented(data, img),
	}, nil
}

// exifScanLimit bounds the search for an EXIF segment; APP1 sits right
// after SOI in every camera JPEG.
const exifScanLimit = 64 << 10

// reoriented reports whether img, decoded with auto-orientation, differs
// from the raw raster in data.
func reoriented(data []byte, img image.Image) bool {
	head := data
	if len(head) > exifScanLimit {
		head = head[:exifScanLimit]
	}
	if !bytes.Contains(head, []byte("Exif\x00\x00")) {
		return false
	}
	raw, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return false
	}
	if raw.Bounds().Size() != img.Bounds().Size() {
		return true
	}
	return !bytes.Equal(imaging.Clone(raw).Pix, imaging.Clone(img).Pix)
}

// FromImage wraps an in-memory raster as a Photo, encoding it as PNG so
// remote detectors have bytes to send.
func FromImage(img image.Image) (*Photo, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, errors.Wrap(err, "encoding photo")
	}
	return DecodePhoto(buf.Bytes())
}

// LoadPhoto reads and decodes the photo at path.
func LoadPhoto(path string) (*Photo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open image")
	}
	return DecodePhoto(data)
}

// PhotoCache provides thread-safe caching of loaded photos to avoid redundant
// disk reads and decodes.
//
// Photos are keyed by the exact path string given to Load. Cached photos stay
// in memory until Evict or Clear is called.
type PhotoCache struct {
	mu     sync.RWMutex
	photos map[string]*Photo
}

// NewPhotoCache creates an empty cache.
func NewPhotoCache() *PhotoCache {
	return &PhotoCache{
		photos: make(map[string]*Photo),
	}
}

// Load returns the cached photo for path or reads it from disk.
func (c *PhotoCache) Load(path string) (*Photo, error) {
	c.mu.RLock()
	if p, ok := c.photos[path]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	p, err := LoadPhoto(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.photos[path] = p
	c.mu.Unlock()

	return p, nil
}

// Len returns the number of cached photos.
func (c *PhotoCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.photos)
}

// Clear removes all photos from the cache.
func (c *PhotoCache) Clear() {
	c.mu.Lock()
	c.photos = make(map[string]*Photo)
	c.mu.Unlock()
}

// Evict removes the photo loaded from path. Unknown paths are ignored.
func (c *PhotoCache) Evict(path string) {
	c.mu.Lock()
	delete(c.photos, path)
	c.mu.Unlock()
}
