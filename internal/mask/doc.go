// Package mask implements single-channel coverage masks and the geometric
// operations applied to them between detection and compositing.
//
// A coverage mask is an *image.Gray whose values are read as a weight in
// [0,255]: 255 means the pixel fully belongs to the window region and should
// receive the overlay, 0 means it is untouched. Every operation in this
// package returns a new mask; inputs are never modified, so a stored mask can
// be shared between requests without locking.
//
// # Pipeline
//
// Detectors rasterize their candidates with FromRectangles (or produce a raw
// mask of their own) at whatever resolution they work in. Normalize then
// brings the mask to the photo's native resolution and softens it:
//
//  1. ResizeNearest to the photo size, so binary edges stay binary
//  2. SmoothEdges with a sigma proportional to the photo size (AutoSigma)
//  3. ErodeSlightly to keep the overlay from bleeding onto the frame
//
// # Thresholds
//
// Consumers that need a yes/no answer compare against Threshold (128, i.e.
// 50% coverage). CoveragePercent uses the same rule.
package mask
