package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// PDFRenderDPI is the resolution used to rasterize PDF scans.
const PDFRenderDPI = 200

var (
	// ErrUnsupportedFormat is returned when a file cannot be decoded as an image.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrImageTooLarge is returned when an image exceeds the pixel limit
	// passed to DecodeLimited.
	ErrImageTooLarge = errors.New("image too large")
)

// ImageCache provides thread-safe caching of loaded sheet images to avoid
// redundant disk reads.
//
// The cache stores decoded image.Image objects keyed by their file path. Once
// an image is loaded, subsequent Load() calls for the same path return the
// cached copy without disk I/O. Cached images are shared, so callers must
// treat them as read-only.
//
// # Memory Management
//
// Cached images remain in memory until explicitly removed via Evict() or
// Clear(). Batch runs over many sheets should evict each sheet once it has
// been processed.
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]image.Image),
	}
}

// Load retrieves an image from the cache or loads it from disk if not cached.
//
// Parameters:
//   - path: Absolute or relative file path. Raster formats are decoded
//     directly; ".pdf" files are rendered from their first page at
//     PDFRenderDPI.
//
// Returns:
//   - image.Image: The decoded image. The concrete type depends on the format.
//   - error: Non-nil if the file cannot be opened or decoded. Decoding
//     failures wrap ErrUnsupportedFormat.
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Clear removes all images from the cache, freeing the associated memory.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
// If the path is not in the cache, this method does nothing.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// decodeFile reads a single sheet image from disk.
func decodeFile(path string) (image.Image, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return renderPDF(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w: %v", ErrUnsupportedFormat, err)
	}
	return img, nil
}

// Decode decodes an in-memory sheet, such as an upload. Data starting with
// the PDF signature is rendered from its first page.
func Decode(data []byte) (image.Image, error) {
	return DecodeLimited(data, 0)
}

// DecodeLimited is Decode with a bound on width*height. The dimensions are
// read from the header (or the PDF page box) before any pixel is decoded.
// A maxPixels of zero or less disables the check.
func DecodeLimited(data []byte, maxPixels int) (image.Image, error) {
	if bytes.HasPrefix(data, pdfMagic) {
		doc, err := fitz.NewFromMemory(data)
		if err != nil {
			return nil, fmt.Errorf("failed to open pdf: %w: %v", ErrUnsupportedFormat, err)
		}
		defer doc.Close()

		if maxPixels > 0 && doc.NumPage() > 0 {
			box, err := doc.Bound(0)
			if err != nil {
				return nil, fmt.Errorf("failed to read pdf page: %w: %v", ErrUnsupportedFormat, err)
			}
			// Page boxes are in points, 72 per inch.
			scale := float64(PDFRenderDPI) / 72
			w, h := int(float64(box.Dx())*scale), int(float64(box.Dy())*scale)
			if err := checkPixels(w, h, maxPixels); err != nil {
				return nil, err
			}
		}
		return firstPage(doc)
	}

	if maxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode image: %w: %v", ErrUnsupportedFormat, err)
		}
		if err := checkPixels(cfg.Width, cfg.Height, maxPixels); err != nil {
			return nil, err
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w: %v", ErrUnsupportedFormat, err)
	}
	return img, nil
}

func checkPixels(width, height, maxPixels int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("failed to decode image: %w: empty %dx%d image", ErrUnsupportedFormat, width, height)
	}
	if width > maxPixels/height {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, width, height, maxPixels)
	}
	return nil
}

var pdfMagic = []byte("%PDF-")

// renderPDF rasterizes the first page of a scanned PDF file.
func renderPDF(path string) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w: %v", ErrUnsupportedFormat, err)
	}
	defer doc.Close()
	return firstPage(doc)
}

// firstPage renders page 0 at PDFRenderDPI. Further pages are ignored; one
// document is one sheet.
func firstPage(doc *fitz.Document) (image.Image, error) {
	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("failed to render pdf: %w: no pages", ErrUnsupportedFormat)
	}

	img, err := doc.ImageDPI(0, PDFRenderDPI)
	if err != nil {
		return nil, fmt.Errorf("failed to render pdf page: %w", err)
	}
	return img, nil
}

// ImageInfo contains metadata about a loaded sheet image.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the format detected from the file extension: "png", "jpeg",
	// "gif", "tiff", "bmp", "webp", "pdf", or "unknown".
	Format string `json:"format"`

	// ColorDepth indicates the bit depth per channel: "8-bit" or "16-bit".
	ColorDepth string `json:"color_depth"`

	// HasAlpha indicates whether the image has an alpha (transparency) channel.
	HasAlpha bool `json:"has_alpha"`

	// Grayscale reports whether the decoded image is already single-channel.
	Grayscale bool `json:"grayscale"`

	// FileSizeBytes is the size of the file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadImageInfo loads an image and returns metadata about it.
//
// The image is loaded into the cache (if not already cached), so a following
// pipeline call on the same path does not hit the disk again.
func LoadImageInfo(cache *ImageCache, path string) (*ImageInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	hasAlpha := false
	grayscale := false
	colorDepth := "8-bit"
	switch img.(type) {
	case *image.RGBA, *image.NRGBA:
		hasAlpha = true
	case *image.RGBA64, *image.NRGBA64:
		hasAlpha = true
		colorDepth = "16-bit"
	case *image.Gray:
		grayscale = true
	case *image.Gray16:
		grayscale = true
		colorDepth = "16-bit"
	}

	return &ImageInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        formatFromExt(path),
		ColorDepth:    colorDepth,
		HasAlpha:      hasAlpha,
		Grayscale:     grayscale,
		FileSizeBytes: stat.Size(),
	}, nil
}

// formatFromExt maps a file extension to a format name.
func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".gif":
		return "gif"
	case ".tif", ".tiff":
		return "tiff"
	case ".bmp":
		return "bmp"
	case ".webp":
		return "webp"
	case ".pdf":
		return "pdf"
	}
	return "unknown"
}
