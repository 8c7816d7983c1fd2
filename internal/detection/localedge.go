package detection

import (
	"context"
	"image"
	"sort"

	"github.com/ironsheep/blind-tryon-mcp/internal/imaging"
	"github.com/ironsheep/blind-tryon-mcp/internal/mask"
	"go.uber.org/zap"
)

// LocalEdgeName identifies the offline edge-analysis backend.
const LocalEdgeName = "localedge"

const (
	minRegionFraction = 0.02
	maxRegionFraction = 0.95
	minAspect         = 0.3
	maxAspect         = 5.0

	frameScore   = 0.6
	contourScore = 0.4
	centerScore  = 0.1
)

// LocalEdgeConfig tunes the local analysis.
type LocalEdgeConfig struct {
	// MaxSide bounds the analysis resolution; larger photos are downscaled
	// first. Zero analyzes at full resolution.
	MaxSide int
}

// LocalEdge finds windows from edge structure alone, with no network. It
// never fails: when nothing window-like is found it returns the centered
// half-size region with Found set to false.
//
// The pipeline runs on a downscaled copy:
//
//  1. union of Canny (three threshold pairs), Sobel and Laplacian edges
//  2. morphological opening with long horizontal and vertical lines, which
//     keeps frame and mullion lines and drops texture
//  3. dilation to close gaps, then the largest line component is filled
//  4. otherwise the largest raw edge component with a sane aspect ratio
//  5. otherwise the center region
type LocalEdge struct {
	cfg    LocalEdgeConfig
	logger *zap.Logger

	// analyze is the pipeline; swapped in tests.
	analyze func(img image.Image) (*image.Gray, []Candidate, bool)
}

// NewLocalEdge returns a LocalEdge backend.
func NewLocalEdge(cfg LocalEdgeConfig, logger *zap.Logger) *LocalEdge {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &LocalEdge{cfg: cfg, logger: logger.Named(LocalEdgeName)}
	l.analyze = l.pipeline
	return l
}

// Name implements Detector.
func (l *LocalEdge) Name() string { return LocalEdgeName }

// Detect implements Detector.
func (l *LocalEdge) Detect(ctx context.Context, photo *imaging.Photo) (res Result) {
	w, h := photo.Width(), photo.Height()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("edge analysis panicked, using center region", zap.Any("panic", r))
			res = centerResult(w, h)
		}
	}()

	if err := ctx.Err(); err != nil {
		return Failure(LocalEdgeName, err)
	}

	fitted, _ := imaging.FitForAnalysis(photo.Image, l.cfg.MaxSide)
	m, candidates, found := l.analyze(fitted)
	if m == nil {
		return centerResult(w, h)
	}
	return Success(LocalEdgeName, m, candidates, found)
}

func centerResult(width, height int) Result {
	return Success(LocalEdgeName, mask.Center(width, height), []Candidate{{
		Rect:       mask.CenterRect(width, height),
		Confidence: centerScore,
		Source:     LocalEdgeName + "/center",
	}}, false)
}

// pipeline analyzes img and returns a mask at img's resolution.
func (l *LocalEdge) pipeline(img image.Image) (*image.Gray, []Candidate, bool) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	short := width
	if height < short {
		short = height
	}
	total := width * height
	minArea := int(minRegionFraction * float64(total))
	maxArea := int(maxRegionFraction * float64(total))

	edges := imaging.UnionEdges(
		imaging.Canny(img, 30, 100),
		imaging.Canny(img, 50, 150),
		imaging.Canny(img, 100, 200),
		imaging.SobelEdges(img, 60),
		imaging.LaplacianEdges(img, 12),
	)

	// Frame lines.
	length := short / 20
	if length < 9 {
		length = 9
	}
	lines := imaging.UnionEdges(openLine(edges, length, true), openLine(edges, length, false))
	radius := short / 100
	if radius < 2 {
		radius = 2
	}
	frame := dilateSquare(lines, radius)

	if regions := findContours(frame, length); len(regions) > 0 {
		filled := fillHoles(regions[0].paint(width, height))
		area := countSet(filled)
		l.logger.Debug("frame region", zap.Int("area", area), zap.Int("min", minArea))
		if area >= minArea && area <= maxArea {
			if box, ok := mask.BoundingBox(filled); ok {
				return filled, []Candidate{{Rect: box, Confidence: frameScore, Source: LocalEdgeName + "/frame"}}, true
			}
		}
	}

	// Largest plausible raw contour.
	for _, r := range byBoundsArea(findContours(dilateSquare(edges, 1), 10)) {
		if r.Area() < minArea {
			break
		}
		if r.Area() > maxArea || r.Aspect() < minAspect || r.Aspect() > maxAspect {
			continue
		}
		rect := r.Bounds
		return mask.FromRectangles([]image.Rectangle{rect}, width, height),
			[]Candidate{{Rect: rect, Confidence: contourScore, Source: LocalEdgeName + "/contour"}}, true
	}

	return nil, nil, false
}

func byBoundsArea(regions []region) []region {
	out := append([]region(nil), regions...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Area() > out[j].Area()
	})
	return out
}
