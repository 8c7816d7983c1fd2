// Package detection finds the window region in a room photo.
//
// Three Detector implementations exist, tried in this priority order:
//
//   - CloudVision: a hosted image-analysis API. Labeled objects, large
//     objects and captions are interpreted heuristically.
//   - Generative: a multimodal model prompted to return window boxes as JSON.
//   - LocalEdge: offline edge and line analysis. It always yields a mask,
//     falling back to the center of the photo.
//
// A Detector never panics or returns an error across its boundary; failures
// are values (Failure) carrying a reason for logs.
//
// # Cascade and Ensemble
//
// Cascade calls detectors one after another and stops at the first one that
// reports a found window. Ensemble calls all of them concurrently and
// applies the same priority rule once every detector has answered or timed
// out. Both always produce an Outcome whose mask matches the photo size:
// when no detector claims a window, the last guess is used; when none
// produced any mask, the centered half-size region is synthesized.
//
// # Coordinates
//
// Detectors may work on a downscaled copy. Result masks and candidate
// rectangles share the detector's resolution; Outcome values are always in
// photo pixels.
package detection
