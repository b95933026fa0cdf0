package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/academy-backend/internal/http/handlers"
	httpMW "github.com/yungbote/academy-backend/internal/http/middleware"
	"github.com/yungbote/academy-backend/internal/platform/logger"
)

type RouterConfig struct {
	AuthHandler    *httpH.AuthHandler
	AuthMiddleware *httpMW.AuthMiddleware
	UserHandler    *httpH.UserHandler
	CourseHandler  *httpH.CourseHandler
	LessonHandler  *httpH.LessonHandler

	HealthHandler *httpH.HealthHandler

	Log         *logger.Logger
	ServiceName string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			api.POST("/register", cfg.AuthHandler.Register)
			api.POST("/login", cfg.AuthHandler.Login)
		}
	}

	protected := api.Group("/")
	{
		// Middleware
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Auth (protected)
		if cfg.AuthHandler != nil {
			protected.POST("/refresh", cfg.AuthHandler.Refresh)
			protected.POST("/logout", cfg.AuthHandler.Logout)
		}

		// User (Me)
		if cfg.UserHandler != nil {
			protected.GET("/me", cfg.UserHandler.GetMe)
			protected.GET("/users", cfg.UserHandler.ListUsers)
		}

		// Courses
		if cfg.CourseHandler != nil {
			protected.GET("/courses", cfg.CourseHandler.ListCourses)
			protected.GET("/courses/:id", cfg.CourseHandler.GetCourse)
			protected.POST("/courses", cfg.CourseHandler.CreateCourse)
		}

		// Lessons and watch-time telemetry
		if cfg.LessonHandler != nil {
			protected.GET("/lessons/:id", cfg.LessonHandler.OpenLesson)
			protected.GET("/lessons/:id/progress", cfg.LessonHandler.GetProgress)
			protected.PATCH("/lessons/:id/progress", cfg.LessonHandler.ApplyProgress)
			protected.PATCH("/lessons/:id/finalize", cfg.LessonHandler.Finalize)
			protected.POST("/lessons/:id/violation", cfg.LessonHandler.MarkViolation)
			protected.POST("/lessons/:id/violation/reset", cfg.LessonHandler.ResetViolation)
		}
	}

	return r
}
