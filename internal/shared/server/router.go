package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ivioje/globe-scholars/internal/accounts"
	googleauth "github.com/ivioje/globe-scholars/internal/auth"
	"github.com/ivioje/globe-scholars/internal/export"
	"github.com/ivioje/globe-scholars/internal/services/health"
	"github.com/ivioje/globe-scholars/internal/shared/config"
	"github.com/ivioje/globe-scholars/internal/shared/metrics"
	"github.com/ivioje/globe-scholars/internal/shared/server/middleware"
	"github.com/ivioje/globe-scholars/internal/shared/server/respond"
	"github.com/ivioje/globe-scholars/internal/works"
)

// Rate limit groups.
const (
	groupDefault = "DEFAULT"
	groupAuth    = "AUTH"
	groupUpload  = "UPLOAD"
	groupPolling = "POLLING"
	groupWorker  = "WORKER"
)

// RouterDeps carries the handlers mounted by NewRouter. Nil handlers are skipped.
type RouterDeps struct {
	Config          config.Config
	Tokens          middleware.TokenVerifier
	Health          *health.Service
	WorksHandler    *works.Handler
	AccountsHandler *accounts.Handler
	ExportHandler   *export.Handler
	GoogleAuth      *googleauth.GoogleService
	RateLimiter     *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(deps.Tokens),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:        defaultRateLimits(),
			DefaultGroup: groupDefault,
			GroupFor:     rateLimitGroup,
			Limiter:      deps.RateLimiter,
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService(nil)
	}
	api.GET("/health", func(c *gin.Context) {
		status, ok := healthSvc.Status(c.Request.Context())
		code := http.StatusOK
		if !ok {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, status)
	})
	registerMeRoutes(api)

	if deps.WorksHandler != nil {
		deps.WorksHandler.RegisterRoutes(api)
		if token := strings.TrimSpace(deps.Config.WorkerToken); token != "" {
			deps.WorksHandler.RegisterInternalRoutes(api, token)
		}
	}
	if deps.AccountsHandler != nil {
		deps.AccountsHandler.RegisterRoutes(api)
	}
	if deps.ExportHandler != nil {
		deps.ExportHandler.RegisterRoutes(api)
	}
	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}

	return r
}

func defaultRateLimits() map[string]middleware.RateLimitRule {
	return map[string]middleware.RateLimitRule{
		groupDefault: {Rate: 10, Burst: 60},
		groupAuth:    {Rate: 0.2, Burst: 10},
		groupUpload:  {Rate: 0.1, Burst: 5},
		groupPolling: {Rate: 2, Burst: 30},
	}
}

func rateLimitGroup(c *gin.Context) string {
	path := c.FullPath()
	switch {
	case strings.HasPrefix(path, "/api/v1/internal/"):
		return groupWorker
	case c.Request.Method == http.MethodPost && (path == "/api/v1/accounts/login" || path == "/api/v1/accounts/signup" || path == "/api/v1/accounts/token/refresh"):
		return groupAuth
	case c.Request.Method == http.MethodPost && path == "/api/v1/works/upload":
		return groupUpload
	case c.Request.Method == http.MethodGet && path == "/api/v1/works/:id/conversion-status":
		return groupPolling
	default:
		return groupDefault
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
