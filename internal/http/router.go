package http

import (
	"log/slog"
	"net/http"

	"github.com/geocoder89/ninjafinder/internal/auth"
	"github.com/geocoder89/ninjafinder/internal/cache"
	"github.com/geocoder89/ninjafinder/internal/config"
	"github.com/geocoder89/ninjafinder/internal/http/handlers"
	"github.com/geocoder89/ninjafinder/internal/http/middlewares"
	"github.com/geocoder89/ninjafinder/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "ninjafinder-api"

type UserStore interface {
	handlers.UserReader
	handlers.UserWriter
}

// Deps are the stores and clients built in cmd/api. Jobs, Prom and Gatherer
// may be nil; Denylist defaults to an in-process one.
type Deps struct {
	Users    UserStore
	Ninjas   handlers.NinjaStore
	Jobs     handlers.JobEnqueuer
	Denylist cache.Denylist
	Checks   map[string]handlers.Check
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
}

func NewRouter(log *slog.Logger, deps Deps, cfg config.Config) *gin.Engine {
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	handlers.RegisterValidators()

	if deps.Denylist == nil {
		deps.Denylist = cache.NewMemoryDenylist()
	}

	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORS(cfg.CORSOrigins))

	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	// health
	h := handlers.NewHealthHandler(deps.Checks)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.JWTTTL())
	authMW := middlewares.NewAuthMiddleware(jwtManager, deps.Denylist)

	bodyGuards := []gin.HandlerFunc{
		middlewares.MaxBodyBytes(middlewares.DefaultMaxBody),
		middlewares.RequireJSON(),
	}

	// auth
	authHandler := handlers.NewAuthHandler(deps.Users, deps.Users, jwtManager, deps.Denylist, deps.Jobs, deps.Prom, log)

	authGroup := r.Group("/auth")
	{
		// AUTH_RATE_LIMIT=0 turns limiting off
		var limited gin.HandlerFunc = func(ctx *gin.Context) { ctx.Next() }
		if cfg.AuthRateLimit > 0 {
			limited = middlewares.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow()).
				RateLimiterMiddleware(middlewares.KeyByIP)
		}

		credentials := authGroup.Group("")
		credentials.Use(limited)
		credentials.Use(bodyGuards...)

		credentials.POST("/signup", authHandler.SignUp)
		credentials.POST("/login", authHandler.Login)

		// the token is checked before anything looks at the body
		protected := authGroup.Group("")
		protected.Use(authMW.RequireAuth())
		protected.Use(bodyGuards...)

		protected.POST("/logout", authHandler.Logout)
		protected.GET("/data/:email", authHandler.GetUserByEmail)
	}

	// ninjas
	ninjasHandler := handlers.NewNinjasHandler(deps.Ninjas, deps.Prom, log)

	api := r.Group("/api")
	{
		api.GET("/ninjas", ninjasHandler.Nearby)
		api.GET("/ninjas/:id", ninjasHandler.GetNinjaByID)

		protected := api.Group("")
		protected.Use(authMW.RequireAuth())
		protected.Use(bodyGuards...)

		protected.POST("/ninjas", ninjasHandler.CreateNinja)
		protected.PUT("/ninjas/:id", ninjasHandler.UpdateNinja)
		protected.DELETE("/ninjas/:id", ninjasHandler.DeleteNinja)
	}

	r.NoRoute(func(ctx *gin.Context) {
		handlers.RespondError(ctx, http.StatusNotFound, "not_found", "Route not found", nil)
	})

	return r
}
