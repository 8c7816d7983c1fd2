// Package overlay composites a blind texture onto a room photo through a
// window coverage mask.
//
// The blend is a straight per-channel alpha composite computed in floating
// point:
//
//	weight = mask/255 * overlayAlpha/255
//	out    = photo*(1 - weight*alpha) + overlay*weight*alpha
//
// Mask and overlay are resized to the photo first, whatever their size. A
// zero mask or a zero alpha leaves the photo untouched.
package overlay
