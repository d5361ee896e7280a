// Package detection locates the answer sheet inside a photo.
//
// The BoundaryLocator builds a binary map that combines Canny edges with an
// adaptive threshold, extracts the external contours of that map, and asks a
// fixed sequence of strategies for four corners:
//
//  1. PolygonStrategy: the largest contour that simplifies to exactly four
//     vertices with a non-degenerate corner ordering.
//  2. BoundingBoxStrategy: the axis-aligned bounding rectangle of the largest
//     contour. It always succeeds when a contour exists.
//
// The Boundary result reports which tier produced the corners so callers can
// flag sheets that needed the fallback.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// Corners are returned in the coordinate space of the image passed to
// Locate, even when detection ran on a downscaled copy.
//
// # Limitations
//
// These algorithms work best when the sheet contrasts with its surroundings
// or carries a printed frame. A sheet photographed on white paper with no
// frame may only produce the bounding-box fallback.
package detection
