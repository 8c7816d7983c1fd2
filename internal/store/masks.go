// Package store persists window masks as 8-bit grayscale PNG files keyed by
// image id.
//
// Stored masks are immutable: Save keeps its own copy and every read hands
// out a fresh one, resized on request, so callers never share pixels.
package store

import (
	"image"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/ironsheep/blind-tryon-mcp/internal/mask"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrMaskNotFound is returned when no mask exists for an id.
	ErrMaskNotFound = errors.New("mask not found")

	// ErrInvalidID is returned for ids that cannot be used as file names.
	ErrInvalidID = errors.New("invalid image id")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateID reports whether id is safe to use as a mask key.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.Wrapf(ErrInvalidID, "%q", id)
	}
	return nil
}

// Info describes a stored mask.
type Info struct {
	ID              string  `json:"image_id"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	CoveragePercent float64 `json:"coverage_percent"`
	Path            string  `json:"path"`
}

// Masks is a directory of mask PNGs with an in-memory copy of every mask it
// has read or written.
type Masks struct {
	dir    string
	logger *zap.Logger

	mu    sync.RWMutex
	masks map[string]*image.Gray
}

// NewMasks opens (creating if needed) the mask directory dir.
func NewMasks(dir string, logger *zap.Logger) (*Masks, error) {
	if dir == "" {
		return nil, errors.New("mask directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating mask directory")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Masks{
		dir:    dir,
		logger: logger.Named("store"),
		masks:  make(map[string]*image.Gray),
	}, nil
}

// Dir returns the mask directory.
func (s *Masks) Dir() string { return s.dir }

// Path returns the file a mask with id is stored in.
func (s *Masks) Path(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id+"_mask.png"), nil
}

// Save writes m under id, replacing any previous mask. The file is written to
// a temporary name and renamed so readers never see a partial PNG.
func (s *Masks) Save(id string, m *image.Gray) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	if m == nil || m.Bounds().Empty() {
		return errors.New("refusing to store an empty mask")
	}

	own := mask.Clone(m)
	data, err := mask.EncodePNG(own)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, id+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "writing mask")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "writing mask")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "storing mask")
	}

	s.mu.Lock()
	s.masks[id] = own
	s.mu.Unlock()

	s.logger.Debug("mask saved", zap.String("id", id), zap.String("path", path),
		zap.Float64("coverage", mask.CoveragePercent(own)))
	return nil
}

// Load returns a copy of the mask stored under id.
func (s *Masks) Load(id string) (*image.Gray, error) {
	m, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return mask.Clone(m), nil
}

// ForSize returns a copy of the mask under id resized to width x height with
// nearest-neighbor sampling. The stored mask is left at its own resolution.
func (s *Masks) ForSize(id string, width, height int) (*image.Gray, error) {
	m, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return mask.ResizeNearest(m, width, height), nil
}

// Info describes the mask stored under id.
func (s *Masks) Info(id string) (*Info, error) {
	m, err := s.get(id)
	if err != nil {
		return nil, err
	}
	path, _ := s.Path(id)
	b := m.Bounds()
	return &Info{
		ID:              id,
		Width:           b.Dx(),
		Height:          b.Dy(),
		CoveragePercent: mask.CoveragePercent(m),
		Path:            path,
	}, nil
}

// Delete removes the mask stored under id. Missing masks are not an error.
func (s *Masks) Delete(id string) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.masks, id)
	s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing mask")
	}
	return nil
}

// get returns the shared stored mask; callers must not modify it.
func (s *Masks) get(id string) (*image.Gray, error) {
	path, err := s.Path(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	m, ok := s.masks[id]
	s.mu.RUnlock()
	if ok {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrMaskNotFound, "%s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading mask")
	}
	m, err = mask.DecodePNG(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding mask %s", id)
	}

	s.mu.Lock()
	s.masks[id] = m
	s.mu.Unlock()
	return m, nil
}
