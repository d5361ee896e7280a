// Package geometry provides the planar primitives shared by the sheet
// normalization stages.
//
// It defines integer pixel points, ordered quadrilaterals, polygon measures
// used to rank and simplify contours, and the projective transform used to
// rectify a photographed sheet.
//
// # Coordinate System
//
// All coordinates follow the image convention used across this module:
//   - Origin (0, 0) at the top-left corner
//   - X increases rightward
//   - Y increases downward
//
// # Corner Order
//
// A Quad is always ordered top-left, top-right, bottom-right, bottom-left.
// OrderPoints produces that order from the unordered corners a detector
// returns, and fails rather than guessing when the corners are degenerate.
package geometry
