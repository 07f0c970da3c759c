// handlers.go - HTTP handlers for statement batches and the merged ledger.

package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bosocmputer/statement_ledger/internal/batch"
	"github.com/bosocmputer/statement_ledger/internal/common"
	"github.com/bosocmputer/statement_ledger/internal/extract"
	"github.com/bosocmputer/statement_ledger/internal/ledger"
	"github.com/gin-gonic/gin"
)

// MaxUploadBytes caps a single uploaded statement file.
const MaxUploadBytes = 32 << 20

// CreateBatchRequest is the JSON form of an upload: already extracted text,
// or page images.
type CreateBatchRequest struct {
	Filename  string          `json:"filename"`
	Text      string          `json:"text"`
	Images    []extract.Image `json:"images"`
	ChunkSize int             `json:"chunk_size"`
}

// MergeRequest optionally overrides the opening balance.
type MergeRequest struct {
	OpeningBalance string `json:"opening_balance"`
}

// EditCellRequest sets one ledger cell.
type EditCellRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

// OpeningBalanceRequest sets the opening balance of the merged ledger.
type OpeningBalanceRequest struct {
	Value string `json:"value" binding:"required"`
}

// IncludeRequest selects a chunk for merging.
type IncludeRequest struct {
	Included *bool `json:"included" binding:"required"`
}

// Handler serves the batch API.
type Handler struct {
	manager  *batch.Manager
	language string
}

// NewHandler creates a handler; language is the default for error messages.
func NewHandler(manager *batch.Manager, language string) *Handler {
	return &Handler{manager: manager, language: language}
}

// RegisterRoutes mounts the API on router.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1/batches")
	v1.POST("", h.CreateBatch)
	v1.GET("", h.ListBatches)
	v1.GET("/:id", h.GetBatch)
	v1.DELETE("/:id", h.DeleteBatch)
	v1.POST("/:id/run", h.RunBatch)
	v1.POST("/:id/cancel", h.CancelBatch)
	v1.POST("/:id/chunks/:index/retry", h.RetryChunk)
	v1.PUT("/:id/chunks/:index/include", h.IncludeChunk)
	v1.POST("/:id/merge", h.MergeBatch)
	v1.PATCH("/:id/ledger/rows/:row", h.EditCell)
	v1.DELETE("/:id/ledger/rows/:row", h.DeleteRow)
	v1.PUT("/:id/ledger/opening", h.SetOpeningBalance)
	v1.POST("/:id/ledger/undo", h.Undo)
	v1.POST("/:id/ledger/dismiss-warning", h.DismissWarning)
	v1.GET("/:id/export", h.Export)
}

// CORSMiddleware allows the configured origins.
func CORSMiddleware(allowedOrigins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept-Language")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// CreateBatch accepts a multipart file upload or a JSON body and returns the
// chunked, idle batch.
func (h *Handler) CreateBatch(c *gin.Context) {
	var (
		filename  string
		doc       *extract.Document
		chunkSize int
		err       error
	)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		filename, doc, chunkSize, err = readUpload(c)
	} else {
		var req CreateBatchRequest
		if err = c.ShouldBindJSON(&req); err != nil {
			err = &ledger.InputError{Field: "body", Err: err}
		} else {
			filename, doc, chunkSize, err = fromJSON(req)
		}
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	b, err := h.manager.Create(c.Request.Context(), filename, doc, chunkSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, batchResponse(b))
}

func readUpload(c *gin.Context) (string, *extract.Document, int, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return "", nil, 0, &ledger.InputError{Field: "file", Err: err}
	}
	if file.Size > MaxUploadBytes {
		return "", nil, 0, &ledger.InputError{Field: "file", Err: fmt.Errorf("file is larger than %d bytes", MaxUploadBytes)}
	}

	chunkSize := 0
	if raw := c.PostForm("chunk_size"); raw != "" {
		if chunkSize, err = strconv.Atoi(raw); err != nil {
			return "", nil, 0, &ledger.InputError{Field: "chunk_size", Err: err}
		}
	}

	f, err := file.Open()
	if err != nil {
		return "", nil, 0, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxUploadBytes))
	if err != nil {
		return "", nil, 0, fmt.Errorf("failed to read upload: %w", err)
	}

	filename := filepath.Base(file.Filename)
	doc, err := extract.Extract(filename, data)
	if err != nil {
		return "", nil, 0, err
	}
	return filename, doc, chunkSize, nil
}

func fromJSON(req CreateBatchRequest) (string, *extract.Document, int, error) {
	filename := req.Filename
	switch {
	case strings.TrimSpace(req.Text) != "" && len(req.Images) > 0:
		return "", nil, 0, &ledger.InputError{Field: "body", Err: errors.New("send either text or images, not both")}
	case len(req.Images) > 0:
		for i, img := range req.Images {
			if img.Data == "" || !strings.HasPrefix(img.MimeType, "image/") {
				return "", nil, 0, &ledger.InputError{Field: "images", Err: fmt.Errorf("image %d needs data and an image/* mime_type", i+1)}
			}
		}
		if filename == "" {
			filename = "images"
		}
		return filename, &extract.Document{Images: req.Images}, req.ChunkSize, nil
	case strings.TrimSpace(req.Text) != "":
		if filename == "" {
			filename = "statement.txt"
		}
		return filename, extract.FromText(req.Text), req.ChunkSize, nil
	}
	return "", nil, 0, &ledger.InputError{Field: "body", Err: errors.New("text or images is required")}
}

// ListBatches returns stored batch summaries, newest first.
func (h *Handler) ListBatches(c *gin.Context) {
	list, err := h.manager.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []batch.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"batches": list})
}

// GetBatch returns the batch with its chunks, progress and ledger.
func (h *Handler) GetBatch(c *gin.Context) {
	b, err := h.manager.Get(c.Request.Context(), c.Param("id"))
	h.respond(c, http.StatusOK, b, err)
}

// DeleteBatch cancels and removes a batch.
func (h *Handler) DeleteBatch(c *gin.Context) {
	if err := h.manager.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RunBatch starts processing every unfinished chunk in the background.
func (h *Handler) RunBatch(c *gin.Context) {
	b, err := h.manager.Start(c.Request.Context(), c.Param("id"))
	h.respond(c, http.StatusAccepted, b, err)
}

// CancelBatch stops the run and resets every chunk to pending.
func (h *Handler) CancelBatch(c *gin.Context) {
	b, err := h.manager.Cancel(c.Request.Context(), c.Param("id"))
	h.respond(c, http.StatusOK, b, err)
}

// RetryChunk reprocesses one chunk.
func (h *Handler) RetryChunk(c *gin.Context) {
	index, err := intParam(c, "index")
	if err != nil {
		h.fail(c, err)
		return
	}
	b, err := h.manager.RetryChunk(c.Request.Context(), c.Param("id"), index)
	h.respond(c, http.StatusAccepted, b, err)
}

// IncludeChunk selects or deselects a chunk for the next merge.
func (h *Handler) IncludeChunk(c *gin.Context) {
	index, err := intParam(c, "index")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req IncludeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, &ledger.InputError{Field: "included", Err: err})
		return
	}
	b, err := h.manager.SetIncluded(c.Request.Context(), c.Param("id"), index, *req.Included)
	h.respond(c, http.StatusOK, b, err)
}

// MergeBatch merges the selected completed chunks into the ledger.
func (h *Handler) MergeBatch(c *gin.Context) {
	var req MergeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, &ledger.InputError{Field: "body", Err: err})
			return
		}
	}
	b, err := h.manager.Merge(c.Request.Context(), c.Param("id"), req.OpeningBalance)
	h.respond(c, http.StatusOK, b, err)
}

// EditCell changes one cell of one ledger row.
func (h *Handler) EditCell(c *gin.Context) {
	row, err := intParam(c, "row")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req EditCellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, &ledger.InputError{Field: "body", Err: err})
		return
	}
	b, err := h.manager.EditCell(c.Request.Context(), c.Param("id"), row, req.Field, req.Value)
	h.respond(c, http.StatusOK, b, err)
}

// DeleteRow removes one ledger row.
func (h *Handler) DeleteRow(c *gin.Context) {
	row, err := intParam(c, "row")
	if err != nil {
		h.fail(c, err)
		return
	}
	b, err := h.manager.DeleteRow(c.Request.Context(), c.Param("id"), row)
	h.respond(c, http.StatusOK, b, err)
}

// SetOpeningBalance overrides the ledger's opening balance.
func (h *Handler) SetOpeningBalance(c *gin.Context) {
	var req OpeningBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, &ledger.InputError{Field: "opening_balance", Err: err})
		return
	}
	b, err := h.manager.SetOpeningBalance(c.Request.Context(), c.Param("id"), req.Value)
	h.respond(c, http.StatusOK, b, err)
}

// Undo reverts the last ledger edit.
func (h *Handler) Undo(c *gin.Context) {
	b, err := h.manager.Undo(c.Request.Context(), c.Param("id"))
	h.respond(c, http.StatusOK, b, err)
}

// DismissWarning hides the balance mismatch warning.
func (h *Handler) DismissWarning(c *gin.Context) {
	b, err := h.manager.DismissWarning(c.Request.Context(), c.Param("id"))
	h.respond(c, http.StatusOK, b, err)
}

// Export downloads the merged ledger as csv, tsv or xlsx.
func (h *Handler) Export(c *gin.Context) {
	b, err := h.manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	l := b.Ledger()
	if l == nil {
		h.fail(c, batch.ErrNotMerged)
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	var (
		contentType string
		write       func(io.Writer, *ledger.Ledger) error
	)
	switch format {
	case "csv":
		contentType, write = "text/csv; charset=utf-8", ledger.WriteCSV
	case "tsv":
		contentType, write = "text/tab-separated-values; charset=utf-8", ledger.WriteTSV
	case "xlsx":
		contentType, write = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ledger.WriteXLSX
	default:
		h.fail(c, &ledger.InputError{Field: "format", Err: fmt.Errorf("unsupported export format %q", format)})
		return
	}

	name := strings.TrimSuffix(b.Filename, filepath.Ext(b.Filename)) + "_ledger." + format
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Status(http.StatusOK)
	if err := write(c.Writer, l); err != nil {
		log.Printf("❌ Export of batch %s failed: %v", b.ID, err)
	}
}

func (h *Handler) respond(c *gin.Context, status int, b *batch.Batch, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, batchResponse(b))
}

// fail writes the localized error body for err.
func (h *Handler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	body := common.ErrorResponse(err, h.lang(c))
	if status == http.StatusBadRequest {
		body["detail"] = err.Error()
	}
	c.JSON(status, body)
}

func (h *Handler) lang(c *gin.Context) string {
	if l := c.Query("lang"); l != "" {
		return strings.ToLower(l)
	}
	if al := c.GetHeader("Accept-Language"); al != "" {
		return strings.ToLower(al[:min(2, len(al))])
	}
	return h.language
}

// StatusFor maps an error category onto an HTTP status.
func StatusFor(err error) int {
	switch common.CategoryOf(err) {
	case common.CategoryInvalidInput:
		return http.StatusBadRequest
	case common.CategoryNotFound:
		return http.StatusNotFound
	case common.CategoryBusy, common.CategoryNothingToMerge, common.CategoryCancelled:
		return http.StatusConflict
	case common.CategoryNoChunk:
		return http.StatusUnprocessableEntity
	case common.CategoryQuota:
		return http.StatusTooManyRequests
	case common.CategoryNetwork, common.CategoryExhausted, common.CategoryTimeout:
		return http.StatusServiceUnavailable
	case common.CategoryFatal, common.CategoryEmptyResponse, common.CategoryMalformedOutput:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func batchResponse(b *batch.Batch) gin.H {
	return gin.H{
		"batch":    b,
		"ledger":   b.Ledger(),
		"can_undo": b.CanUndo(),
		"percent":  b.Progress.Percent(),
	}
}

func intParam(c *gin.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, &ledger.InputError{Field: name, Err: err}
	}
	return v, nil
}
