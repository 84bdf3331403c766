package accounts

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ivioje/globe-scholars/internal/shared/auth"
	"github.com/ivioje/globe-scholars/internal/shared/server/middleware"
	"github.com/ivioje/globe-scholars/internal/shared/server/respond"
	"github.com/ivioje/globe-scholars/internal/works"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches account routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/accounts")
	g.POST("/signup", h.signup)
	g.POST("/login", h.login)
	g.POST("/token/refresh", h.refresh)
	g.GET("/scholars", h.scholars)
	g.GET("/scholars/:id", h.scholar)

	authed := g.Group("", middleware.RequireAuth())
	authed.POST("/logout", h.logout)
	authed.GET("/profile", h.profile)
	authed.PATCH("/profile", h.updateProfile)
}

type signupRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Bio         string `json:"bio"`
	Affiliation string `json:"affiliation"`
	Country     string `json:"country"`
	Website     string `json:"website"`
	Password    string `json:"password"`
	Password2   string `json:"password2"`
}

func (h *Handler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Validation(c, "invalid request body", "")
		return
	}

	a, pair, err := h.Svc.Signup(c.Request.Context(), SignupInput{
		Email:           req.Email,
		Username:        req.Username,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Bio:             req.Bio,
		Affiliation:     req.Affiliation,
		Country:         req.Country,
		Website:         req.Website,
		Password:        req.Password,
		PasswordConfirm: req.Password2,
	})
	if err != nil {
		writeError(c, err, "failed to create account")
		return
	}
	respond.JSON(c, http.StatusCreated, SessionResponse{
		Message: "Account created successfully.",
		User:    toProfileResponse(a, works.UploaderStats{}),
		Tokens:  pair,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respond.Validation(c, "email and password are required", "")
		return
	}

	a, pair, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err, "failed to log in")
		return
	}
	_, stats, err := h.Svc.Profile(c.Request.Context(), a.ID)
	if err != nil {
		writeError(c, err, "failed to log in")
		return
	}
	respond.OK(c, SessionResponse{
		Message: "Login successful.",
		User:    toProfileResponse(a, stats),
		Tokens:  pair,
	})
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (h *Handler) logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Refresh) == "" {
		respond.Validation(c, "Refresh token is required.", "refresh")
		return
	}
	if err := h.Svc.Logout(c.Request.Context(), middleware.UserIDFromContext(c), req.Refresh); err != nil {
		writeError(c, err, "failed to log out")
		return
	}
	respond.Message(c, http.StatusOK, "Logged out successfully.")
}

func (h *Handler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Refresh) == "" {
		respond.Validation(c, "Refresh token is required.", "refresh")
		return
	}
	pair, err := h.Svc.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		writeError(c, err, "failed to refresh token")
		return
	}
	respond.OK(c, pair)
}

func (h *Handler) profile(c *gin.Context) {
	a, stats, err := h.Svc.Profile(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		writeError(c, err, "failed to fetch profile")
		return
	}
	respond.OK(c, toProfileResponse(a, stats))
}

type profilePatchRequest struct {
	Username    *string `json:"username"`
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	Bio         *string `json:"bio"`
	Affiliation *string `json:"affiliation"`
	Country     *string `json:"country"`
	Website     *string `json:"website"`
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req profilePatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Validation(c, "invalid request body", "")
		return
	}
	userID := middleware.UserIDFromContext(c)
	if _, err := h.Svc.UpdateProfile(c.Request.Context(), userID, ProfilePatch{
		Username:    req.Username,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Bio:         req.Bio,
		Affiliation: req.Affiliation,
		Country:     req.Country,
		Website:     req.Website,
	}); err != nil {
		writeError(c, err, "failed to update profile")
		return
	}
	a, stats, err := h.Svc.Profile(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "failed to update profile")
		return
	}
	respond.OK(c, gin.H{
		"message": "Profile updated successfully.",
		"user":    toProfileResponse(a, stats),
	})
}

func (h *Handler) scholars(c *gin.Context) {
	q := ListQuery{
		Search:   c.Query("search"),
		Ordering: strings.TrimSpace(c.Query("ordering")),
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

	list, err := h.Svc.Scholars(c.Request.Context(), q)
	if err != nil {
		writeError(c, err, "failed to list scholars")
		return
	}
	resp := make([]PublicProfileResponse, 0, len(list))
	for _, a := range list {
		stats, err := h.Svc.stats(c.Request.Context(), a.ID)
		if err != nil {
			writeError(c, err, "failed to list scholars")
			return
		}
		resp = append(resp, toPublicResponse(toPublicProfile(a, stats)))
	}
	respond.OK(c, resp)
}

func (h *Handler) scholar(c *gin.Context) {
	p, err := h.Svc.PublicProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to fetch scholar")
		return
	}
	respond.OK(c, toPublicResponse(p))
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Validation(c, err.Error(), "")
	case errors.Is(err, ErrEmailTaken):
		respond.Validation(c, "An account with this email already exists.", "email")
	case errors.Is(err, ErrUsernameTaken):
		respond.Validation(c, "This username is already taken.", "username")
	case errors.Is(err, ErrInvalidCredentials):
		respond.Error(c, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password.", nil)
	case errors.Is(err, ErrInactive):
		respond.Error(c, http.StatusForbidden, "account_disabled", "Account is disabled.", nil)
	case errors.Is(err, ErrTokenRevoked), errors.Is(err, auth.ErrInvalidToken):
		respond.Error(c, http.StatusUnauthorized, "token_not_valid", "Token is invalid or expired.", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "User not found.", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
