// Package imaging provides the raster operations the answer-sheet pipeline
// is built from.
//
// This package implements image loading (with an in-memory cache), grayscale
// conversion, histogram equalization, Canny edge detection, global, Otsu and
// adaptive thresholding, cropping, and PNG encoding of intermediate results. All
// operations work with standard Go image types and use a coordinate system
// where (0,0) is at the top-left corner, X increases rightward, and Y
// increases downward.
//
// # Gray Images
//
// Every processing function accepts or returns *image.Gray whose bounds start
// at (0,0). ToGray performs that normalization once so downstream code can
// index Pix directly:
//
//	offset := y*g.Stride + x
//
// # Binary Maps
//
// Thresholding and edge functions return binary *image.Gray maps where 255
// marks foreground (an edge, or ink darker than the threshold) and 0 marks
// background. Or combines two such maps.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Individual image operations
// are stateless and can be called concurrently on different images; they
// never mutate their inputs.
//
// # Supported Formats
//
// PNG, JPEG, GIF, TIFF, BMP and WebP are decoded natively. PDF scans are
// rasterized from their first page.
package imaging
