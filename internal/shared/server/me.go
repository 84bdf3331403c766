package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ivioje/globe-scholars/internal/shared/server/middleware"
	"github.com/ivioje/globe-scholars/internal/shared/server/respond"
)

// sessionResponse describes the caller as seen by the auth middleware. The
// frontend polls it to decide between the guest and scholar layouts, so an
// anonymous caller gets a 200 rather than a 401.
type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId,omitempty"`
	Email         string `json:"email,omitempty"`
	Username      string `json:"username,omitempty"`
}

func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

func meHandler(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.OK(c, sessionResponse{})
		return
	}
	c.Header("Cache-Control", "no-store")
	respond.JSON(c, http.StatusOK, sessionResponse{
		Authenticated: true,
		UserID:        userID,
		Email:         middleware.UserEmailFromContext(c),
		Username:      middleware.UsernameFromContext(c),
	})
}
