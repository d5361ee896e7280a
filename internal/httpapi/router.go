package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ironsheep/omr-tools-mcp/internal/config"
	"github.com/ironsheep/omr-tools-mcp/internal/pipeline"
)

// NewRouter builds the HTTP API:
//
//	GET|HEAD|OPTIONS /healthz
//	POST             /v1/sheets/detect
func NewRouter(cfg *config.Config, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := pipeline.OptionsFromConfig(cfg)
	p := pipeline.New(opts, logger)
	opts.AlignedInput = true
	aligned := pipeline.New(opts, logger)

	maxUpload := int64(cfg.HTTP.MaxUploadMB) << 20
	detect := NewDetectHandler(p, aligned, maxUpload, cfg.HTTP.MaxMegapixels*1_000_000, logger)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	r.Use(cors.New(corsConfig(cfg.HTTP.AllowOrigins)))
	r.MaxMultipartMemory = maxUpload

	r.GET("/healthz", Health)
	r.HEAD("/healthz", Health)

	v1 := r.Group("/v1")
	{
		v1.POST("/sheets/detect", detect.Detect)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}
