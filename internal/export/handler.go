package export

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ivioje/globe-scholars/internal/accounts"
	"github.com/ivioje/globe-scholars/internal/shared/server/respond"
	"github.com/ivioje/globe-scholars/internal/shared/telemetry"
)

// ProfileSource resolves public profiles of active scholars.
type ProfileSource interface {
	PublicProfile(ctx context.Context, id string) (accounts.PublicProfile, error)
}

// Handler serves profile exports.
type Handler struct {
	Profiles ProfileSource
}

// NewHandler constructs a Handler.
func NewHandler(profiles ProfileSource) *Handler {
	return &Handler{Profiles: profiles}
}

// RegisterRoutes attaches the export route. Exports are public.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/accounts/scholars/:id/export", h.export)
}

func (h *Handler) export(c *gin.Context) {
	id := c.Param("id")
	p, err := h.Profiles.PublicProfile(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "User not found.", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to export profile", nil)
		return
	}

	pdf, err := RenderProfile(p)
	if err != nil {
		telemetry.Error("export.render_failed", map[string]any{"user_id": id, "error": err.Error()})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to export profile", nil)
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": Filename(p.Username)}))
	c.Header("Content-Length", strconv.Itoa(len(pdf)))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
