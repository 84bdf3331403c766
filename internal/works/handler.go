package works

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ivioje/globe-scholars/internal/shared/server/middleware"
	"github.com/ivioje/globe-scholars/internal/shared/server/respond"
)

const maxFormOverhead = 1 << 20

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc       *Service
	Uploaders UploaderDirectory
	// BaseURL prefixes download links; when empty it is derived from the request.
	BaseURL string
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, uploaders UploaderDirectory, baseURL string) *Handler {
	return &Handler{Svc: svc, Uploaders: uploaders, BaseURL: baseURL}
}

// RegisterRoutes attaches work routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/works", h.list)
	rg.GET("/works/:id", h.detail)

	authed := rg.Group("", middleware.RequireAuth())
	authed.POST("/works/upload", h.upload)
	authed.GET("/works/:id/download", h.download)
	authed.DELETE("/works/:id", h.delete)
	authed.POST("/works/:id/react", h.react)
	authed.GET("/works/:id/conversion-status", h.conversionStatus)
}

// RegisterInternalRoutes attaches converter callbacks guarded by the worker token.
func (h *Handler) RegisterInternalRoutes(rg *gin.RouterGroup, workerToken string) {
	internal := rg.Group("/internal", middleware.WorkerToken(workerToken))
	internal.POST("/works/:id/conversion", h.reportConversion)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxFileSize+maxFormOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Validation(c, "File size cannot exceed 20 MB.", "file")
			return
		}
		respond.Validation(c, "file is required", "file")
		return
	}

	year, err := strconv.Atoi(strings.TrimSpace(c.PostForm("publication_year")))
	if err != nil {
		respond.Validation(c, "publication_year must be an integer", "publication_year")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Validation(c, "unable to read file", "file")
		return
	}
	defer file.Close()

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	w, err := h.Svc.Create(ctx, CreateInput{
		Title:               c.PostForm("title"),
		Authors:             c.PostForm("authors"),
		PublicationYear:     year,
		Description:         c.PostForm("description"),
		Keywords:            c.PostForm("keywords"),
		UploaderID:          userID,
		FileName:            fileHeader.Filename,
		DeclaredContentType: declaredContentType(fileHeader),
		Size:                fileHeader.Size,
		Body:                file,
	})
	if err != nil {
		writeError(c, err, "failed to upload work")
		return
	}
	c.Set("workId", w.ID)
	c.Set("statusTransition", "->"+string(w.ConversionStatus))

	respond.Created(c, "/api/v1/works/"+w.ID, h.detailResponse(c, w, ReactionInfo{}))
}

func declaredContentType(fh *multipart.FileHeader) string {
	ct := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return ct
}

func (h *Handler) list(c *gin.Context) {
	q := ListQuery{
		FileType: FileType(strings.TrimSpace(c.Query("file_type"))),
		Author:   c.Query("author"),
		Search:   c.Query("search"),
		Ordering: strings.TrimSpace(c.Query("ordering")),
	}
	if v := strings.TrimSpace(c.Query("publication_year")); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			respond.Validation(c, "publication_year must be an integer", "publication_year")
			return
		}
		q.PublicationYear = year
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			q.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			q.Offset = parsed
		}
	}

	items, err := h.Svc.List(c.Request.Context(), q)
	if err != nil {
		writeError(c, err, "failed to list works")
		return
	}

	ids := make([]string, 0, len(items))
	uploaderIDs := make([]string, 0, len(items))
	for _, w := range items {
		ids = append(ids, w.ID)
		uploaderIDs = append(uploaderIDs, w.UploaderID)
	}
	reactions, err := h.Svc.ReactionState(c.Request.Context(), ids, middleware.UserIDFromContext(c))
	if err != nil {
		writeError(c, err, "failed to list works")
		return
	}
	uploaders := h.lookupUploaders(c, uploaderIDs)

	resp := make([]ListItemResponse, 0, len(items))
	for _, w := range items {
		resp = append(resp, toListItem(w, uploaders[w.UploaderID], reactions[w.ID]))
	}
	respond.OK(c, resp)
}

func (h *Handler) detail(c *gin.Context) {
	w, ok := h.loadWork(c)
	if !ok {
		return
	}
	reactions, err := h.Svc.ReactionState(c.Request.Context(), []string{w.ID}, middleware.UserIDFromContext(c))
	if err != nil {
		writeError(c, err, "failed to fetch work")
		return
	}
	respond.OK(c, h.detailResponse(c, w, reactions[w.ID]))
}

func (h *Handler) conversionStatus(c *gin.Context) {
	h.detail(c)
}

func (h *Handler) download(c *gin.Context) {
	id := c.Param("id")
	c.Set("workId", id)

	servable, _, err := h.Svc.ResolveServable(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to load file")
		return
	}
	defer servable.Body.Close()

	c.Header("Content-Type", servable.ContentType)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": servable.Filename}))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, servable.Body)
}

func (h *Handler) delete(c *gin.Context) {
	id := c.Param("id")
	c.Set("workId", id)

	if err := h.Svc.Delete(c.Request.Context(), id, middleware.UserIDFromContext(c)); err != nil {
		writeError(c, err, "failed to delete work")
		return
	}
	respond.NoContent(c)
}

func (h *Handler) react(c *gin.Context) {
	id := c.Param("id")
	c.Set("workId", id)

	res, err := h.Svc.ToggleReaction(c.Request.Context(), id, middleware.UserIDFromContext(c))
	if err != nil {
		writeError(c, err, "failed to toggle reaction")
		return
	}
	respond.OK(c, ReactionResponse{
		Message:       reactionMessage(res.Outcome),
		ReactionCount: res.Count,
	})
}

func (h *Handler) reportConversion(c *gin.Context) {
	id := c.Param("id")
	c.Set("workId", id)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxFileSize*4+maxFormOverhead)

	status, err := ParseStatus(strings.TrimSpace(c.PostForm("status")))
	if err != nil {
		writeError(c, err, "invalid status")
		return
	}
	progress, err := strconv.Atoi(strings.TrimSpace(c.DefaultPostForm("progress", "0")))
	if err != nil {
		respond.Validation(c, "progress must be an integer", "progress")
		return
	}

	var body io.Reader
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			respond.Validation(c, "unable to read file", "file")
			return
		}
		defer f.Close()
		body = f
	}

	w, err := h.Svc.ReportConversion(c.Request.Context(), id, status, progress, body)
	if err != nil {
		writeError(c, err, "failed to apply conversion report")
		return
	}
	c.Set("statusTransition", "->"+string(w.ConversionStatus))
	respond.OK(c, gin.H{
		"id":                 w.ID,
		"conversionStatus":   w.ConversionStatus,
		"conversionProgress": w.ConversionProgress,
	})
}

func (h *Handler) loadWork(c *gin.Context) (Work, bool) {
	id := c.Param("id")
	c.Set("workId", id)
	w, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to fetch work")
		return Work{}, false
	}
	return w, true
}

func (h *Handler) detailResponse(c *gin.Context, w Work, r ReactionInfo) DetailResponse {
	uploaders := h.lookupUploaders(c, []string{w.UploaderID})
	return toDetail(w, uploaders[w.UploaderID], r, h.baseURL(c))
}

func (h *Handler) lookupUploaders(c *gin.Context, ids []string) map[string]Uploader {
	if h.Uploaders == nil || len(ids) == 0 {
		return map[string]Uploader{}
	}
	out, err := h.Uploaders.Uploaders(c.Request.Context(), ids)
	if err != nil || out == nil {
		return map[string]Uploader{}
	}
	return out
}

func (h *Handler) baseURL(c *gin.Context) string {
	if h.BaseURL != "" {
		return h.BaseURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + c.Request.Host
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidFile), errors.Is(err, ErrInvalidInput):
		respond.Validation(c, err.Error(), "")
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "work not found", nil)
	case errors.Is(err, ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", "You can only delete your own files.", nil)
	case errors.Is(err, ErrArtifactMissing):
		respond.Error(c, http.StatusNotFound, "artifact_missing", "File not found.", nil)
	case errors.Is(err, ErrInvalidTransition):
		respond.Error(c, http.StatusConflict, "invalid_transition", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
