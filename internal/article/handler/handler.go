package handler

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"github.com/lumenpress/lumen/backend/go-services/internal/article/service"
	"github.com/lumenpress/lumen/backend/go-services/pkg/logger"
	"github.com/lumenpress/lumen/backend/go-services/pkg/middleware"
)

// multipart framing allowance on top of the file size limit
const formOverhead = 1 << 20

// ArticleHandler exposes the article service over HTTP.
type ArticleHandler struct {
	svc       *service.Service
	maxUpload int64
}

func NewArticleHandler(svc *service.Service, maxUpload int64) *ArticleHandler {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &ArticleHandler{svc: svc, maxUpload: maxUpload}
}

// Register mounts the routes under rg/articles. auth guards every write and
// every draft read.
func (h *ArticleHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	a := rg.Group("/articles")
	a.GET("", h.ListPublished)
	a.GET("/drafts", auth, h.ListDrafts)
	a.GET("/admin/:id", auth, h.GetAdmin)
	a.GET("/:slug", h.GetPublic)

	a.POST("", auth, h.Create)
	a.POST("/uploads", auth, h.Upload)
	a.PATCH("/:id", auth, h.Update)
	a.PUT("/:id/sections", auth, h.UpdateSections)
	a.POST("/:id/publish", auth, h.Publish)
	a.DELETE("/:id", auth, h.Delete)
}

func principal(c *gin.Context) article.Principal {
	return article.PrincipalFromClaims(middleware.Claims(c))
}

// writeError maps error kinds to status codes.
func writeError(c *gin.Context, err error) {
	status, kind := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, article.ErrValidation):
		status, kind = http.StatusBadRequest, "validation"
	case errors.Is(err, article.ErrUnauthenticated):
		status, kind = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, article.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, article.ErrSlugConflict):
		status, kind = http.StatusConflict, "conflict"
	case article.IsFatal(err):
		status, kind = http.StatusServiceUnavailable, "unavailable"
	}
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "kind": kind})
}

func bindJSON(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return article.Invalidf("invalid body: %v", err)
	}
	return nil
}

func (h *ArticleHandler) Create(c *gin.Context) {
	var in article.CreateInput
	if err := bindJSON(c, &in); err != nil {
		writeError(c, err)
		return
	}
	d, err := h.svc.CreateDocument(c.Request.Context(), principal(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"article": d})
}

func (h *ArticleHandler) Update(c *gin.Context) {
	var in article.UpdateInput
	if err := bindJSON(c, &in); err != nil {
		writeError(c, err)
		return
	}
	d, err := h.svc.UpdateDocument(c.Request.Context(), principal(c), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"article": d})
}

// UpdateSections accepts {"sections": [...]}. A missing body or sections
// value is answered as a no-op.
func (h *ArticleHandler) UpdateSections(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		writeError(c, article.Invalidf("read body: %v", err))
		return
	}
	var body struct {
		Sections json.RawMessage `json:"sections"`
	}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			writeError(c, article.Invalidf("invalid body: %v", err))
			return
		}
	}
	res, err := h.svc.UpdateSections(c.Request.Context(), principal(c), c.Param("id"), body.Sections)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"success": true, "partial": res.Partial(), "result": res}
	if !res.Applied {
		resp["message"] = "No sections to update"
	}
	c.JSON(http.StatusOK, resp)
}

// Publish accepts {"publish": bool} or {"status": "draft"|"published"}.
func (h *ArticleHandler) Publish(c *gin.Context) {
	var body struct {
		Publish *bool   `json:"publish"`
		Status  *string `json:"status"`
	}
	if err := bindJSON(c, &body); err != nil {
		writeError(c, err)
		return
	}
	ctx, p, id := c.Request.Context(), principal(c), c.Param("id")
	var (
		d   *article.Document
		err error
	)
	switch {
	case body.Status != nil:
		var target article.Status
		if target, err = article.ParseStatus(*body.Status); err == nil {
			d, err = h.svc.Transition(ctx, p, id, target)
		}
	case body.Publish != nil:
		d, err = h.svc.SetPublished(ctx, p, id, *body.Publish)
	default:
		err = article.Invalidf("publish is required")
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"article": d})
}

func (h *ArticleHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteDocument(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ArticleHandler) GetPublic(c *gin.Context) {
	h.writeView(c, func(ctx context.Context) (*article.DocumentView, error) {
		return h.svc.GetPublicDocument(ctx, c.Param("slug"))
	})
}

func (h *ArticleHandler) GetAdmin(c *gin.Context) {
	h.writeView(c, func(ctx context.Context) (*article.DocumentView, error) {
		return h.svc.GetAdminDocument(ctx, principal(c), c.Param("id"))
	})
}

func (h *ArticleHandler) writeView(c *gin.Context, load func(context.Context) (*article.DocumentView, error)) {
	v, err := load(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if v == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "article not found", "kind": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"article": v})
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("pageSize"))
	return page, size
}

func (h *ArticleHandler) ListPublished(c *gin.Context) {
	page, size := pageParams(c)
	res, err := h.svc.ListPublished(c.Request.Context(), page, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ArticleHandler) ListDrafts(c *gin.Context) {
	page, size := pageParams(c)
	res, err := h.svc.ListDrafts(c.Request.Context(), principal(c), page, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Upload takes a multipart form with "file", "kind" and optional
// "documentId" and "sectionId".
func (h *ArticleHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+formOverhead)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, article.Invalidf("file exceeds %d bytes", h.maxUpload))
			return
		}
		writeError(c, article.Invalidf("file is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, article.Invalidf("open upload: %v", err))
		return
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename))); byExt != "" {
			contentType = byExt
		}
	}
	res, err := h.svc.Upload(c.Request.Context(), principal(c), service.UploadInput{
		Kind:        c.PostForm("kind"),
		DocumentID:  c.PostForm("documentId"),
		SectionID:   c.PostForm("sectionId"),
		FileName:    fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
