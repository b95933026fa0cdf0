package app

import (
	"gorm.io/gorm"

	academyhttp "github.com/yungbote/academy-backend/internal/http"
	httpH "github.com/yungbote/academy-backend/internal/http/handlers"
	httpMW "github.com/yungbote/academy-backend/internal/http/middleware"
	"github.com/yungbote/academy-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health *httpH.HealthHandler
	Auth   *httpH.AuthHandler
	User   *httpH.UserHandler
	Course *httpH.CourseHandler
	Lesson *httpH.LessonHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(db),
		Auth:   httpH.NewAuthHandler(services.Auth),
		User:   httpH.NewUserHandler(services.User),
		Course: httpH.NewCourseHandler(log, services.Course),
		Lesson: httpH.NewLessonHandler(services.LessonProgress),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *academyhttp.Server {
	return academyhttp.NewServer(academyhttp.RouterConfig{
		HealthHandler:  handlers.Health,
		AuthHandler:    handlers.Auth,
		AuthMiddleware: middleware.Auth,
		UserHandler:    handlers.User,
		CourseHandler:  handlers.Course,
		LessonHandler:  handlers.Lesson,
		Log:            log,
		ServiceName:    cfg.ServiceName,
	})
}
