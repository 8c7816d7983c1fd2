// Package imaging provides the raster plumbing around window detection:
// decoding room photos, caching them, preparing them for analysis and upload,
// computing edge maps, and rendering detection previews.
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner. For
// rectangles Min is inclusive and Max is exclusive, matching image.Rectangle.
//
// # Photos
//
// A Photo keeps both the decoded raster and the original bytes. Remote
// detectors upload the bytes (see PrepareUpload), local analysis works on the
// raster. Decoding failures wrap ErrImageDecode so callers can tell a broken
// input apart from every other failure.
//
// # Edge maps
//
// Canny, SobelEdges and LaplacianEdges each return a binary *image.Gray (0 or
// 255). They react differently to soft lighting and texture, so callers
// usually combine several of them with UnionEdges.
//
// # Thread Safety
//
// PhotoCache is safe for concurrent use. Every other function is stateless
// and never modifies its inputs.
package imaging
