// Package httpapi exposes sheet detection over HTTP for clients that do not
// speak MCP.
package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ironsheep/omr-tools-mcp/internal/bubble"
	"github.com/ironsheep/omr-tools-mcp/internal/detection"
	"github.com/ironsheep/omr-tools-mcp/internal/grading"
	"github.com/ironsheep/omr-tools-mcp/internal/imaging"
	"github.com/ironsheep/omr-tools-mcp/internal/overlay"
	"github.com/ironsheep/omr-tools-mcp/internal/pipeline"
	"github.com/ironsheep/omr-tools-mcp/internal/rectify"
	"github.com/ironsheep/omr-tools-mcp/internal/template"
)

// Health handles /healthz.
func Health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	switch c.Request.Method {
	case http.MethodHead:
		c.Status(http.StatusOK)
	case http.MethodOptions:
		c.Status(http.StatusNoContent)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// DetectHandler reads uploaded sheets.
type DetectHandler struct {
	pipeline       *pipeline.Pipeline
	alignedVariant *pipeline.Pipeline
	maxUpload      int64
	maxPixels      int
	logger         *slog.Logger
}

// NewDetectHandler creates the handler. aligned is used for requests with
// aligned=true. maxUpload bounds each uploaded file in bytes and maxPixels
// the decoded image size.
func NewDetectHandler(p, aligned *pipeline.Pipeline, maxUpload int64, maxPixels int, logger *slog.Logger) *DetectHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DetectHandler{pipeline: p, alignedVariant: aligned, maxUpload: maxUpload, maxPixels: maxPixels, logger: logger}
}

// DetectResponse is the body of a successful detection.
type DetectResponse struct {
	Answers   *bubble.DetectionResult `json:"answers"`
	Tier      string                  `json:"tier,omitempty"`
	Threshold uint8                   `json:"threshold"`
	Width     int                     `json:"canonical_width"`
	Height    int                     `json:"canonical_height"`
	Report    *grading.Report         `json:"report,omitempty"`
	Overlay   *imaging.PNGResult      `json:"overlay,omitempty"`
}

type detectForm struct {
	Image    *multipart.FileHeader `form:"image" binding:"required"`
	Template *multipart.FileHeader `form:"template" binding:"required"`
	Key      *multipart.FileHeader `form:"key"`
	Aligned  bool                  `form:"aligned"`
	Overlay  bool                  `form:"overlay"`
}

// Detect handles POST /v1/sheets/detect.
//
// Multipart fields: image (required), template (required), key (optional),
// aligned and overlay (optional booleans).
func (h *DetectHandler) Detect(c *gin.Context) {
	var form detectForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	imgData, err := h.readPart(form.Image)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	img, err := imaging.DecodeLimited(imgData, h.maxPixels)
	if err != nil {
		status := http.StatusUnsupportedMediaType
		if errors.Is(err, imaging.ErrImageTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	tmplData, err := h.readPart(form.Template)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	tmpl, err := template.Parse(tmplData)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var key *grading.Key
	if form.Key != nil {
		keyData, err := h.readPart(form.Key)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		if key, err = grading.ParseKey(keyData); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	p := h.pipeline
	if form.Aligned {
		p = h.alignedVariant
	}
	res, err := p.Process(c.Request.Context(), img, tmpl)
	if err != nil {
		h.logger.Warn("detection failed", "error", err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	out := DetectResponse{
		Answers:   res.Answers,
		Threshold: res.Threshold,
		Width:     res.Canonical.Width,
		Height:    res.Canonical.Height,
	}
	if res.Boundary != nil {
		out.Tier = res.Boundary.Tier.String()
	}
	if key != nil {
		out.Report = grading.Evaluate(res.Answers, key)
	}
	if form.Overlay {
		if out.Overlay, err = overlay.Render(res.Canonical.Image, tmpl, res.Answers, overlay.DefaultOptions()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, out)
}

var errTooLarge = errors.New("upload too large")

func (h *DetectHandler) readPart(fh *multipart.FileHeader) ([]byte, error) {
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", errTooLarge, fh.Filename, fh.Size, h.maxUpload)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// statusFor maps pipeline and upload errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, detection.ErrNoBoundary), errors.Is(err, rectify.ErrDegenerateQuad):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
