package httpapi

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/omr-tools-mcp/internal/config"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func setupRouter() *gin.Engine {
	return NewRouter(config.Default(), nil)
}

func sheetPNG(t *testing.T, filled ...image.Rectangle) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for _, r := range filled {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartBody builds a form with files and plain fields.
func multipartBody(t *testing.T, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := w.CreateFormFile(name, name+".bin")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for name, value := range fields {
		require.NoError(t, w.WriteField(name, value))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func postDetect(t *testing.T, router *gin.Engine, files map[string][]byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, files, fields)
	req := httptest.NewRequest(http.MethodPost, "/v1/sheets/detect", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const testTemplate = `{"1": {"A": [50, 50], "B": [150, 150]}, "2": {"A": [50, 150], "B": [150, 50]}}`

func TestHealth(t *testing.T) {
	t.Parallel()

	router := setupRouter()
	tests := []struct {
		method string
		status int
	}{
		{http.MethodGet, http.StatusOK},
		{http.MethodHead, http.StatusOK},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tt.method, "/healthz", nil))

		assert.Equal(t, tt.status, w.Code, tt.method)
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"), tt.method)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}

func TestDetect_Aligned(t *testing.T) {
	t.Parallel()

	w := postDetect(t, setupRouter(),
		map[string][]byte{
			"image":    sheetPNG(t, image.Rect(40, 40, 60, 60), image.Rect(40, 140, 60, 160), image.Rect(140, 40, 160, 60)),
			"template": []byte(testTemplate),
			"key":      []byte("\"1\": A\n\"2\": B\n"),
		},
		map[string]string{"aligned": "true", "overlay": "true"},
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Answers map[string]json.RawMessage `json:"answers"`
		Width   int                        `json:"canonical_width"`
		Tier    string                     `json:"tier"`
		Report  struct {
			Score    int     `json:"score"`
			Accuracy float64 `json:"accuracy"`
		} `json:"report"`
		Overlay struct {
			MimeType string `json:"mime_type"`
		} `json:"overlay"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.JSONEq(t, `"A"`, string(resp.Answers["1"]))
	assert.JSONEq(t, `{"state": "multiple-marked", "options": ["A", "B"]}`, string(resp.Answers["2"]))
	assert.Equal(t, 200, resp.Width)
	assert.Empty(t, resp.Tier)
	assert.Equal(t, 1, resp.Report.Score)
	assert.Equal(t, 50.0, resp.Report.Accuracy)
	assert.Equal(t, "image/png", resp.Overlay.MimeType)
}

func TestDetect_Errors(t *testing.T) {
	t.Parallel()

	router := setupRouter()
	blank := make([]byte, 0)
	dark := func() []byte {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 40, 40))))
		return buf.Bytes()
	}()

	tests := []struct {
		name   string
		files  map[string][]byte
		status int
	}{
		{"missing template", map[string][]byte{"image": sheetPNG(t)}, http.StatusBadRequest},
		{"missing image", map[string][]byte{"template": []byte(testTemplate)}, http.StatusBadRequest},
		{"not an image", map[string][]byte{"image": []byte("nope"), "template": []byte(testTemplate)}, http.StatusUnsupportedMediaType},
		{"empty image", map[string][]byte{"image": blank, "template": []byte(testTemplate)}, http.StatusUnsupportedMediaType},
		{"bad template", map[string][]byte{"image": sheetPNG(t), "template": []byte(`[1, 2]`)}, http.StatusBadRequest},
		{"bad key", map[string][]byte{"image": sheetPNG(t), "template": []byte(testTemplate), "key": []byte(`[]`)}, http.StatusBadRequest},
		{"no sheet in photo", map[string][]byte{"image": dark, "template": []byte(testTemplate)}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		w := postDetect(t, router, tt.files, nil)
		assert.Equal(t, tt.status, w.Code, tt.name)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), tt.name)
		assert.NotEmpty(t, body["error"], tt.name)
	}
}

func TestDetect_UploadLimit(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.HTTP.MaxUploadMB = 1
	router := NewRouter(cfg, nil)

	w := postDetect(t, router, map[string][]byte{
		"image":    make([]byte, 2<<20),
		"template": []byte(testTemplate),
	}, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestDetect_PixelLimit(t *testing.T) {
	t.Parallel()

	router := NewRouter(config.Default(), nil)
	handler := NewDetectHandler(nil, nil, 1<<20, 100*100, nil)
	r := gin.New()
	r.POST("/v1/sheets/detect", handler.Detect)

	// 200x200 is within the byte limit but over 10,000 pixels.
	w := postDetect(t, r, map[string][]byte{
		"image":    sheetPNG(t),
		"template": []byte(testTemplate),
	}, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "image too large")

	// The default limit accepts the same upload.
	w = postDetect(t, router, map[string][]byte{
		"image":    sheetPNG(t),
		"template": []byte(testTemplate),
	}, map[string]string{"aligned": "true"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestCORS(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.HTTP.AllowOrigins = []string{"https://grader.example.com"}
	router := NewRouter(cfg, nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/sheets/detect", nil)
	req.Header.Set("Origin", "https://grader.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://grader.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/v1/sheets/detect", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
