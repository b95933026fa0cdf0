package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	redisclient "github.com/yungbote/academy-backend/internal/clients/redis"
	"github.com/yungbote/academy-backend/internal/platform/logger"
	"github.com/yungbote/academy-backend/internal/repos"
	"github.com/yungbote/academy-backend/internal/types"
)

const courseProgressCacheTTL = 5 * time.Minute

type CourseProgressService interface {
	Recompute(ctx context.Context, userID, courseID uuid.UUID) (*types.CourseProgress, error)
	RecomputeAllForCourse(ctx context.Context, courseID uuid.UUID) error
	GetForUser(ctx context.Context, userID, courseID uuid.UUID) (*types.CourseProgress, error)
}

type courseProgressService struct {
	db                 *gorm.DB
	log                *logger.Logger
	lessonRepo         repos.LessonRepo
	lessonProgressRepo repos.LessonProgressRepo
	courseProgressRepo repos.CourseProgressRepo
	cache              redisclient.Cache
}

func NewCourseProgressService(
	db *gorm.DB,
	baseLog *logger.Logger,
	lessonRepo repos.LessonRepo,
	lessonProgressRepo repos.LessonProgressRepo,
	courseProgressRepo repos.CourseProgressRepo,
	cache redisclient.Cache,
) CourseProgressService {
	serviceLog := baseLog.With("service", "CourseProgressService")
	return &courseProgressService{
		db:                 db,
		log:                serviceLog,
		lessonRepo:         lessonRepo,
		lessonProgressRepo: lessonProgressRepo,
		courseProgressRepo: courseProgressRepo,
		cache:              cache,
	}
}

func courseProgressCacheKey(userID, courseID uuid.UUID) string {
	return fmt.Sprintf("course_progress:%s:%s", userID, courseID)
}

// Recompute derives the course row from the lesson rows. Every lesson in the
// course counts, mandatory or not. Percent is kept to two decimals and only
// an exact 100 flips is_completed.
func (cp *courseProgressService) Recompute(ctx context.Context, userID, courseID uuid.UUID) (*types.CourseProgress, error) {
	if userID == uuid.Nil || courseID == uuid.Nil {
		return nil, fmt.Errorf("user id and course id required")
	}

	lessons, err := cp.lessonRepo.GetByCourseID(ctx, nil, courseID)
	if err != nil {
		return nil, fmt.Errorf("fetch course lessons: %w", err)
	}

	var row *types.CourseProgress
	txErr := cp.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, gErr := cp.courseProgressRepo.GetByUserAndCourseID(ctx, tx, userID, courseID)
		if gErr != nil {
			return fmt.Errorf("fetch course progress: %w", gErr)
		}
		if existing == nil {
			existing = &types.CourseProgress{
				ID:       uuid.New(),
				UserID:   userID,
				CourseID: courseID,
			}
		}

		// A course with no lessons degrades to a zeroed row rather than
		// erroring: course progress is advisory, derived data.
		percent := 0.0
		completedCount := 0
		if len(lessons) > 0 {
			lessonIDs := make([]uuid.UUID, 0, len(lessons))
			for _, l := range lessons {
				lessonIDs = append(lessonIDs, l.ID)
			}
			progressRows, pErr := cp.lessonProgressRepo.GetByUserAndLessonIDs(ctx, tx, userID, lessonIDs)
			if pErr != nil {
				return fmt.Errorf("fetch lesson progress: %w", pErr)
			}
			for _, lp := range progressRows {
				if lp.Completed {
					completedCount++
				}
			}
			percent = math.Round(100*100*float64(completedCount)/float64(len(lessons))) / 100
		}

		isCompleted := len(lessons) > 0 && completedCount == len(lessons)
		existing.CompletionPercent = percent
		switch {
		case isCompleted && !existing.IsCompleted:
			now := time.Now().UTC()
			existing.CompletedAt = &now
		case !isCompleted:
			existing.CompletedAt = nil
		}
		existing.IsCompleted = isCompleted

		if uErr := cp.courseProgressRepo.Upsert(ctx, tx, existing); uErr != nil {
			return fmt.Errorf("upsert course progress: %w", uErr)
		}
		row = existing
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	if cp.cache != nil {
		key := courseProgressCacheKey(userID, courseID)
		if cErr := cp.cache.SetJSON(ctx, key, row, courseProgressCacheTTL); cErr != nil {
			cp.log.Warn("Course progress cache write failed", "key", key, "error", cErr)
		}
	}
	return row, nil
}

// RecomputeAllForCourse rebuilds every affected user's course row, e.g.
// after lessons are added to a published course.
func (cp *courseProgressService) RecomputeAllForCourse(ctx context.Context, courseID uuid.UUID) error {
	lessons, err := cp.lessonRepo.GetByCourseID(ctx, nil, courseID)
	if err != nil {
		return fmt.Errorf("fetch course lessons: %w", err)
	}
	lessonIDs := make([]uuid.UUID, 0, len(lessons))
	for _, l := range lessons {
		lessonIDs = append(lessonIDs, l.ID)
	}
	userIDs, uErr := cp.lessonProgressRepo.GetUserIDsByLessonIDs(ctx, nil, lessonIDs)
	if uErr != nil {
		return fmt.Errorf("fetch affected users: %w", uErr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			if _, rErr := cp.Recompute(gctx, userID, courseID); rErr != nil {
				return fmt.Errorf("recompute user %s: %w", userID, rErr)
			}
			return nil
		})
	}
	return g.Wait()
}

func (cp *courseProgressService) GetForUser(ctx context.Context, userID, courseID uuid.UUID) (*types.CourseProgress, error) {
	if cp.cache != nil {
		var cached types.CourseProgress
		key := courseProgressCacheKey(userID, courseID)
		if cErr := cp.cache.GetJSON(ctx, key, &cached); cErr == nil {
			return &cached, nil
		} else if !errors.Is(cErr, redisclient.ErrCacheMiss) {
			cp.log.Warn("Course progress cache read failed", "key", key, "error", cErr)
		}
	}

	row, err := cp.courseProgressRepo.GetByUserAndCourseID(ctx, nil, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("fetch course progress: %w", err)
	}
	if row == nil {
		return &types.CourseProgress{UserID: userID, CourseID: courseID}, nil
	}
	if cp.cache != nil {
		key := courseProgressCacheKey(userID, courseID)
		if cErr := cp.cache.SetJSON(ctx, key, row, courseProgressCacheTTL); cErr != nil {
			cp.log.Warn("Course progress cache write failed", "key", key, "error", cErr)
		}
	}
	return row, nil
}
