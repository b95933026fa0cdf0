package app

import (
	"fmt"

	"gorm.io/gorm"

	redisclient "github.com/yungbote/academy-backend/internal/clients/redis"
	"github.com/yungbote/academy-backend/internal/platform/logger"
	"github.com/yungbote/academy-backend/internal/progress"
	"github.com/yungbote/academy-backend/internal/services"
)

type Services struct {
	Auth services.AuthService
	User services.UserService

	Course         services.CourseService
	SessionTokens  services.SessionTokenService
	LessonProgress services.LessonProgressService
	CourseProgress services.CourseProgressService

	// Kept here so App.Close can release the connection.
	Cache redisclient.Cache
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos) (Services, error) {
	log.Info("Wiring services...")

	authService := services.NewAuthService(
		db, log,
		repos.User,
		repos.UserToken,
		cfg.JWTSecretKey,
		cfg.AccessTokenTTL,
		cfg.RefreshTokenTTL,
	)

	userService := services.NewUserService(db, log, repos.User)

	policy := progress.DefaultPolicy()
	if cfg.PolicyPath != "" {
		loaded, err := progress.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return Services{}, fmt.Errorf("load progress policy: %w", err)
		}
		policy = loaded
	}

	cache, err := redisclient.NewCache(log)
	if err != nil {
		// Course progress caching degrades to DB reads without redis.
		log.Warn("redis unavailable, continuing without cache", "error", err)
		cache = nil
	}

	sessionTokens := services.NewSessionTokenService(log, cfg.JWTSecretKey, cfg.SessionTokenTTL)

	courseProgressService := services.NewCourseProgressService(
		db, log,
		repos.Lesson,
		repos.LessonProgress,
		repos.CourseProgress,
		cache,
	)

	lessonProgressService := services.NewLessonProgressService(
		db, log,
		policy,
		repos.Lesson,
		repos.Course,
		repos.LessonProgress,
		sessionTokens,
		courseProgressService,
	)

	courseService := services.NewCourseService(
		db, log,
		repos.Course,
		repos.Lesson,
		repos.LessonProgress,
		repos.CourseProgress,
	)

	return Services{
		Auth:           authService,
		User:           userService,
		Course:         courseService,
		SessionTokens:  sessionTokens,
		LessonProgress: lessonProgressService,
		CourseProgress: courseProgressService,
		Cache:          cache,
	}, nil
}
