package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/ironsheep/omr-tools-mcp/internal/bubble"
	"github.com/ironsheep/omr-tools-mcp/internal/detection"
	"github.com/ironsheep/omr-tools-mcp/internal/geometry"
	"github.com/ironsheep/omr-tools-mcp/internal/grading"
	"github.com/ironsheep/omr-tools-mcp/internal/imaging"
	"github.com/ironsheep/omr-tools-mcp/internal/overlay"
	"github.com/ironsheep/omr-tools-mcp/internal/pipeline"
	"github.com/ironsheep/omr-tools-mcp/internal/rectify"
	"github.com/ironsheep/omr-tools-mcp/internal/template"
)

// errMissingArgument is returned when a required tool argument is empty.
var errMissingArgument = errors.New("missing required argument")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "sheet_load", "sheet_detect_answers").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, codeToolFailed, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	switch name {
	// Sheet Information
	case "sheet_load":
		return s.handleSheetLoad(args)

	// Geometric Normalization
	case "sheet_locate_boundary":
		return s.handleLocateBoundary(args)
	case "sheet_edge_map":
		return s.handleEdgeMap(args)
	case "sheet_rectify":
		return s.handleRectify(ctx, args)

	// Bubble Classification
	case "sheet_detect_answers":
		return s.handleDetectAnswers(ctx, args)
	case "sheet_grade":
		return s.handleGrade(ctx, args)
	case "sheet_overlay":
		return s.handleOverlay(ctx, args)

	// Template Authoring
	case "sheet_grid":
		return s.handleGrid(ctx, args)
	case "sheet_inspect_question":
		return s.handleInspectQuestion(ctx, args)

	// Batch Processing
	case "sheet_batch":
		return s.handleBatch(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// pipelineFor returns the configured pipeline, or a variant when the caller
// overrides aligned input.
func (s *Server) pipelineFor(aligned *bool) *pipeline.Pipeline {
	if aligned == nil || *aligned == s.cfg.Rectify.AlignedInput {
		return s.pipeline
	}
	opts := pipeline.OptionsFromConfig(s.cfg)
	opts.AlignedInput = *aligned
	return pipeline.New(opts, s.logger)
}

func (s *Server) loadImage(path string) (image.Image, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path", errMissingArgument)
	}
	return s.cache.Load(path)
}

func loadTemplate(path string) (*template.Template, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: template", errMissingArgument)
	}
	return template.LoadFile(path)
}

func loadKey(path string) (*grading.Key, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: key", errMissingArgument)
	}
	return grading.LoadKey(path)
}

// === Sheet Information Handlers ===

type sheetPathArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleSheetLoad(args json.RawMessage) (interface{}, error) {
	var a sheetPathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, fmt.Errorf("%w: path", errMissingArgument)
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

// === Geometric Normalization Handlers ===

type boundaryResult struct {
	Corners  geometry.Quad  `json:"corners"`
	Tier     detection.Tier `json:"tier"`
	Contours int            `json:"contours"`
	Scale    float64        `json:"scale"`

	// Canonical size the sheet rectifies to.
	Width  int `json:"canonical_width"`
	Height int `json:"canonical_height"`
}

func newBoundaryResult(b *detection.Boundary) *boundaryResult {
	w, h := rectify.Size(b.Quad)
	return &boundaryResult{
		Corners:  b.Quad,
		Tier:     b.Tier,
		Contours: b.Contours,
		Scale:    b.Scale,
		Width:    w,
		Height:   h,
	}
}

func (s *Server) handleLocateBoundary(args json.RawMessage) (interface{}, error) {
	var a sheetPathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}

	b, err := s.pipeline.Locator().Locate(img)
	if err != nil {
		return nil, err
	}
	return newBoundaryResult(b), nil
}

func (s *Server) handleEdgeMap(args json.RawMessage) (interface{}, error) {
	var a sheetPathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.EncodePNG(s.pipeline.Locator().EdgeMap(img))
}

type rectifyArgs struct {
	Path    string   `json:"path"`
	Corners [][2]int `json:"corners"`
}

type rectifyResult struct {
	Width    int                `json:"width"`
	Height   int                `json:"height"`
	Corners  geometry.Quad      `json:"corners"`
	Boundary *boundaryResult    `json:"boundary,omitempty"`
	Image    *imaging.PNGResult `json:"image"`
}

func (s *Server) handleRectify(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a rectifyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}

	out := &rectifyResult{}
	var quad geometry.Quad
	if len(a.Corners) > 0 {
		pts := make([]geometry.Point, len(a.Corners))
		for i, c := range a.Corners {
			pts[i] = geometry.Point{X: c[0], Y: c[1]}
		}
		if quad, err = geometry.OrderPoints(pts); err != nil {
			return nil, fmt.Errorf("invalid corners: %w", err)
		}
	} else {
		b, err := s.pipeline.Locator().Locate(img)
		if err != nil {
			return nil, err
		}
		quad = b.Quad
		out.Boundary = newBoundaryResult(b)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canonical, err := s.pipeline.Rectifier().Rectify(img, quad)
	if err != nil {
		return nil, err
	}
	png, err := imaging.EncodePNG(canonical.Image)
	if err != nil {
		return nil, err
	}

	out.Width, out.Height = canonical.Width, canonical.Height
	out.Corners = canonical.Quad
	out.Image = png
	return out, nil
}

// === Bubble Classification Handlers ===

type detectArgs struct {
	Path     string `json:"path"`
	Template string `json:"template"`
	Aligned  *bool  `json:"aligned"`
	Evidence bool   `json:"evidence"`
}

type detectResult struct {
	Answers   *bubble.DetectionResult      `json:"answers"`
	Summary   map[string]int               `json:"summary"`
	Threshold uint8                        `json:"threshold"`
	Width     int                          `json:"canonical_width"`
	Height    int                          `json:"canonical_height"`
	Boundary  *boundaryResult              `json:"boundary,omitempty"`
	Evidence  map[string][]bubble.Evidence `json:"evidence,omitempty"`
}

func newDetectResult(res *pipeline.Result, withEvidence bool) *detectResult {
	out := &detectResult{
		Answers:   res.Answers,
		Summary:   summarize(res.Answers),
		Threshold: res.Threshold,
		Width:     res.Canonical.Width,
		Height:    res.Canonical.Height,
	}
	if res.Boundary != nil {
		out.Boundary = newBoundaryResult(res.Boundary)
	}
	if withEvidence {
		out.Evidence = make(map[string][]bubble.Evidence, res.Answers.Len())
		for _, e := range res.Answers.Entries() {
			out.Evidence[e.QuestionID] = e.Answer.Evidence()
		}
	}
	return out
}

func summarize(r *bubble.DetectionResult) map[string]int {
	counts := r.Counts()
	summary := make(map[string]int, len(counts))
	for _, st := range []bubble.State{bubble.StateSingle, bubble.StateMultipleMarked, bubble.StateUnanswered} {
		summary[st.String()] = counts[st]
	}
	return summary
}

// process loads the sheet and template and runs the pipeline.
func (s *Server) process(ctx context.Context, path, templatePath string, aligned *bool) (*pipeline.Result, *template.Template, error) {
	tmpl, err := loadTemplate(templatePath)
	if err != nil {
		return nil, nil, err
	}
	img, err := s.loadImage(path)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.pipelineFor(aligned).Process(ctx, img, tmpl)
	if err != nil {
		return nil, nil, err
	}
	return res, tmpl, nil
}

func (s *Server) handleDetectAnswers(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a detectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	res, _, err := s.process(ctx, a.Path, a.Template, a.Aligned)
	if err != nil {
		return nil, err
	}
	return newDetectResult(res, a.Evidence), nil
}

type gradeArgs struct {
	Key      string          `json:"key"`
	Answers  json.RawMessage `json:"answers"`
	Path     string          `json:"path"`
	Template string          `json:"template"`
	Aligned  *bool           `json:"aligned"`
}

type gradeResult struct {
	Answers *bubble.DetectionResult `json:"answers"`
	Report  *grading.Report         `json:"report"`
}

func (s *Server) handleGrade(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a gradeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	key, err := loadKey(a.Key)
	if err != nil {
		return nil, err
	}

	var answers *bubble.DetectionResult
	if len(a.Answers) > 0 && string(a.Answers) != "null" {
		answers = bubble.NewDetectionResult()
		if err := json.Unmarshal(a.Answers, answers); err != nil {
			return nil, fmt.Errorf("invalid answers: %w", err)
		}
	} else {
		res, _, err := s.process(ctx, a.Path, a.Template, a.Aligned)
		if err != nil {
			return nil, err
		}
		answers = res.Answers
	}

	return &gradeResult{Answers: answers, Report: grading.Evaluate(answers, key)}, nil
}

type overlayArgs struct {
	Path     string `json:"path"`
	Template string `json:"template"`
	Aligned  *bool  `json:"aligned"`
	Radius   int    `json:"radius"`
	Labels   *bool  `json:"labels"`
}

type overlayResult struct {
	Answers *bubble.DetectionResult `json:"answers"`
	Image   *imaging.PNGResult      `json:"image"`
}

func (s *Server) handleOverlay(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a overlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	opts := overlay.DefaultOptions()
	if a.Radius > 0 {
		opts.Radius = a.Radius
	}
	if a.Labels != nil {
		opts.Labels = *a.Labels
	}

	res, tmpl, err := s.process(ctx, a.Path, a.Template, a.Aligned)
	if err != nil {
		return nil, err
	}
	png, err := overlay.Render(res.Canonical.Image, tmpl, res.Answers, opts)
	if err != nil {
		return nil, err
	}
	return &overlayResult{Answers: res.Answers, Image: png}, nil
}

// === Template Authoring Handlers ===

type gridArgs struct {
	Path    string `json:"path"`
	Aligned *bool  `json:"aligned"`
	Spacing int    `json:"spacing"`
	Color   string `json:"color"`
	Labels  *bool  `json:"labels"`
}

func (s *Server) handleGrid(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a gridArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	opts := overlay.DefaultGridOptions()
	if a.Spacing > 0 {
		opts.Spacing = a.Spacing
	}
	if a.Labels != nil {
		opts.Labels = *a.Labels
	}
	colour, err := overlay.ParseColour(a.Color)
	if err != nil {
		return nil, err
	}
	opts.Colour = colour

	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}
	_, canonical, err := s.pipelineFor(a.Aligned).Normalize(ctx, img)
	if err != nil {
		return nil, err
	}
	return overlay.RenderGrid(canonical.Image, opts)
}

type inspectArgs struct {
	Path     string   `json:"path"`
	Template string   `json:"template"`
	Aligned  *bool    `json:"aligned"`
	Question string   `json:"question"`
	Padding  *int     `json:"padding"`
	Scale    *float64 `json:"scale"`
}

type inspectResult struct {
	Question string             `json:"question"`
	Answer   bubble.Answer      `json:"answer"`
	Evidence []bubble.Evidence  `json:"evidence"`
	Region   [4]int             `json:"region"`
	Image    *imaging.PNGResult `json:"image"`
}

func (s *Server) handleInspectQuestion(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a inspectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Question == "" {
		return nil, fmt.Errorf("%w: question", errMissingArgument)
	}
	padding, scale := 10, 2.0
	if a.Padding != nil {
		padding = max(*a.Padding, 0)
	}
	if a.Scale != nil {
		scale = *a.Scale
	}

	res, tmpl, err := s.process(ctx, a.Path, a.Template, a.Aligned)
	if err != nil {
		return nil, err
	}
	q, ok := tmpl.Question(a.Question)
	if !ok {
		return nil, fmt.Errorf("question %q not in template", a.Question)
	}

	half := s.pipelineFor(a.Aligned).Classifier().Options().HalfSize
	region := image.Rectangle{}
	for _, opt := range q.Options {
		if !opt.Valid {
			continue
		}
		r := image.Rect(opt.Point.X-half, opt.Point.Y-half, opt.Point.X+half, opt.Point.Y+half)
		region = region.Union(r)
	}
	if region.Empty() {
		return nil, fmt.Errorf("question %q has no usable options", a.Question)
	}
	region = region.Inset(-padding)

	crop, err := imaging.Crop(res.Canonical.Image, region, scale)
	if err != nil {
		return nil, err
	}
	png, err := imaging.EncodePNG(crop)
	if err != nil {
		return nil, err
	}

	answer, _ := res.Answers.Answer(q.ID)
	region = region.Intersect(res.Canonical.Image.Bounds())
	return &inspectResult{
		Question: q.ID,
		Answer:   answer,
		Evidence: answer.Evidence(),
		Region:   [4]int{region.Min.X, region.Min.Y, region.Max.X, region.Max.Y},
		Image:    png,
	}, nil
}

// === Batch Processing Handlers ===

type batchArgs struct {
	Paths    []string `json:"paths"`
	Template string   `json:"template"`
	Key      string   `json:"key"`
	Aligned  *bool    `json:"aligned"`
	Workers  int      `json:"workers"`
}

type batchSheet struct {
	Path       string                  `json:"path"`
	Answers    *bubble.DetectionResult `json:"answers,omitempty"`
	Report     *grading.Report         `json:"report,omitempty"`
	Error      string                  `json:"error,omitempty"`
	DurationMS int64                   `json:"duration_ms"`
}

type batchResult struct {
	Sheets    []batchSheet `json:"sheets"`
	Processed int          `json:"processed"`
	Failed    int          `json:"failed"`
	Workers   int          `json:"workers"`
}

func (s *Server) handleBatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a batchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if len(a.Paths) == 0 {
		return nil, fmt.Errorf("%w: paths", errMissingArgument)
	}
	tmpl, err := loadTemplate(a.Template)
	if err != nil {
		return nil, err
	}

	opts := pipeline.BatchOptions{
		Workers:      s.cfg.Batch.Workers,
		SheetTimeout: s.cfg.Batch.SheetTimeout,
	}
	if a.Workers > 0 {
		opts.Workers = a.Workers
	}
	if a.Key != "" {
		if opts.Key, err = grading.LoadKey(a.Key); err != nil {
			return nil, err
		}
	}

	jobs := make([]pipeline.Job, len(a.Paths))
	for i, p := range a.Paths {
		jobs[i] = pipeline.Job{ID: p, Path: p}
	}

	batch := pipeline.NewBatch(s.pipelineFor(a.Aligned), s.cache, opts, s.logger)
	outcomes, err := batch.Run(ctx, tmpl, jobs)
	if err != nil {
		return nil, err
	}

	out := &batchResult{Sheets: make([]batchSheet, len(outcomes)), Workers: batch.Workers()}
	for i, o := range outcomes {
		sheet := batchSheet{Path: o.Job.Path, DurationMS: o.Duration.Milliseconds()}
		if o.Err != nil {
			sheet.Error = o.Err.Error()
			out.Failed++
		} else {
			sheet.Answers = o.Result.Answers
			sheet.Report = o.Report
			out.Processed++
		}
		out.Sheets[i] = sheet
	}
	return out, nil
}
