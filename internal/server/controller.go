package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"suibison/internal/api"
	"suibison/internal/api/middleware"
	"suibison/internal/bisonapi"
	"suibison/internal/metrics"
	"suibison/internal/worker"
)

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(http.StatusTooManyRequests, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
}

// NewRouter mounts every route. limiter may be nil, which disables rate limiting.
func NewRouter(app *bisonapi.App, handlers *api.App, limiter gin.HandlerFunc) *gin.Engine {
	if limiter == nil {
		limiter = func(c *gin.Context) { c.Next() }
	}
	router := gin.New()
	router.Use(gin.Recovery(), accessLog())
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.Use(cors.New(cors.Config{
		AllowOrigins:  app.Env.CorsOrigins,
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Requested-With", "X-Service-Token"},
		ExposeHeaders: []string{"Content-Length"},
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		MaxAge:        24 * time.Hour,
	}))
	router.Use(func(c *gin.Context) {
		c.Set("app", handlers)
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/ws", limiter, wsHandler(app.Rdb, handlers))
	router.GET("/pool", limiter, api.GetPool)
	router.GET("/stats", limiter, api.GetStats)

	service := middleware.Service(app.Env.ServiceToken)
	auth := router.Group("/auth/")
	{
		auth.POST("/register", service, api.Register)
	}
	admin := router.Group("/admin/").Use(service)
	{
		admin.POST("/users/:id/block", api.SetBlocked)
		admin.PUT("/meter", api.ConfigureMeter)
	}
	users := router.Group("/users/").Use(middleware.Auth(handlers.JwtSecret))
	{
		users.GET("/me", limiter, api.GetUser)
		users.PUT("/me", limiter, api.UpdateUser)
		users.GET("/ref", limiter, api.GetReferrals)
		users.GET("/activities", limiter, api.GetActivities)
	}
	tx := router.Group("/tx/").Use(middleware.Auth(handlers.JwtSecret))
	{
		tx.POST("/stake", limiter, api.Stake)
		tx.POST("/withdraw", limiter, api.Withdraw)
	}
	return router
}

func rateLimiter(e *bisonapi.Env) gin.HandlerFunc {
	store := ratelimit.RedisStore(&ratelimit.RedisOptions{
		RedisClient: redis.NewClient(&redis.Options{
			Addr:     e.RedisAddr,
			Password: e.RedisPassword,
			DB:       1,
		}),
		Rate:  time.Second,
		Limit: e.RateLimit,
	})
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})
}

// ApiInit runs the REST and websocket server until SIGINT or SIGTERM.
func ApiInit() error {
	app, err := bisonapi.Init()
	if err != nil {
		return err
	}
	if app.Env.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers := &api.App{
		Ledger:       buildEngine(app),
		Tasks:        app.Aqc,
		Results:      app.Aqi,
		JwtSecret:    []byte(app.Env.JwtSecret),
		StakeTimeout: app.Env.StakeTimeout,
	}
	srv := &http.Server{
		Addr:    ":" + app.Env.Port,
		Handler: NewRouter(app, handlers, rateLimiter(app.Env)),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	Logger.Info("api listening on " + srv.Addr)
	app.Log.WithField("addr", srv.Addr).Info("[ Bison api is up ]")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to run api on %s: %w", srv.Addr, err)
	}
	Logger.Info("api stopped")
	return app.Aqc.Close()
}

// WorkerInit runs the asynq server and the periodic scheduler until SIGINT or SIGTERM.
func WorkerInit() error {
	app, err := bisonapi.InitWorker()
	if err != nil {
		return err
	}
	mux := newWorkerMux(app, buildEngine(app))

	scheduler, err := worker.NewScheduler(app.Env.RedisOpt(), app.Log)
	if err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Shutdown()

	srv := bisonapi.SetupAsynqServer(app.Env, app.Log)
	Logger.Info("worker started")
	app.Log.Info("[ Bison worker is up ]")
	// Run blocks until a termination signal, then drains in-flight tasks.
	if err := srv.Run(mux); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	Logger.Info("worker stopped")
	return app.Aqc.Close()
}
