package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/academy-backend/internal/platform/apierr"
	"github.com/yungbote/academy-backend/internal/platform/logger"
	"github.com/yungbote/academy-backend/internal/progress"
	"github.com/yungbote/academy-backend/internal/repos"
	"github.com/yungbote/academy-backend/internal/requestdata"
	"github.com/yungbote/academy-backend/internal/types"
)

// CourseSummary is a catalog row: the course plus the caller's progress.
type CourseSummary struct {
	Course            *types.Course `json:"course"`
	TotalLessons      int           `json:"total_lessons"`
	CompletionPercent float64       `json:"completion_percent"`
	IsCompleted       bool          `json:"is_completed"`
}

// LessonView is one playlist entry with the caller's progress and whether
// sequential gating allows opening it.
type LessonView struct {
	Lesson    *types.Lesson         `json:"lesson"`
	Progress  *types.LessonProgress `json:"progress,omitempty"`
	Unlocked  bool                  `json:"unlocked"`
	Completed bool                  `json:"completed"`
}

type CourseDetail struct {
	Course            *types.Course `json:"course"`
	Lessons           []*LessonView `json:"lessons"`
	CompletionPercent float64       `json:"completion_percent"`
	IsCompleted       bool          `json:"is_completed"`
}

type CourseService interface {
	CreateCourse(ctx context.Context, course *types.Course, lessons []*types.Lesson) (*types.Course, error)
	ListCourses(ctx context.Context, filter repos.CourseFilter, page, pageSize int) ([]*CourseSummary, int, error)
	GetCourseDetail(ctx context.Context, courseID uuid.UUID) (*CourseDetail, error)
}

type courseService struct {
	db                 *gorm.DB
	log                *logger.Logger
	courseRepo         repos.CourseRepo
	lessonRepo         repos.LessonRepo
	lessonProgressRepo repos.LessonProgressRepo
	courseProgressRepo repos.CourseProgressRepo
}

func NewCourseService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courseRepo repos.CourseRepo,
	lessonRepo repos.LessonRepo,
	lessonProgressRepo repos.LessonProgressRepo,
	courseProgressRepo repos.CourseProgressRepo,
) CourseService {
	serviceLog := baseLog.With("service", "CourseService")
	return &courseService{
		db:                 db,
		log:                serviceLog,
		courseRepo:         courseRepo,
		lessonRepo:         lessonRepo,
		lessonProgressRepo: lessonProgressRepo,
		courseProgressRepo: courseProgressRepo,
	}
}

func (cs *courseService) CreateCourse(ctx context.Context, course *types.Course, lessons []*types.Lesson) (*types.Course, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.New(401, "unauthorized", fmt.Errorf("request data not set in context"))
	}
	if rd.Role != types.RoleAdmin && rd.Role != types.RoleManager {
		return nil, apierr.Forbidden("forbidden", fmt.Errorf("role %q cannot create courses", rd.Role))
	}
	if course == nil || course.Title == "" {
		return nil, apierr.Invalid("invalid_input", fmt.Errorf("course title required"))
	}
	for i, l := range lessons {
		if l == nil || l.Title == "" {
			return nil, apierr.Invalid("invalid_input", fmt.Errorf("lesson %d incomplete", i))
		}
		if !types.ValidLessonType(l.Type) {
			return nil, apierr.Invalid("invalid_input", fmt.Errorf("lesson %d has unknown type %q", i, l.Type))
		}
	}

	if err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		course.ID = uuid.New()
		course.CreatedBy = rd.UserID
		if _, cErr := cs.courseRepo.Create(ctx, tx, []*types.Course{course}); cErr != nil {
			return fmt.Errorf("create course: %w", cErr)
		}
		for i, l := range lessons {
			l.ID = uuid.New()
			l.CourseID = course.ID
			l.OrderIndex = i
		}
		if _, lErr := cs.lessonRepo.Create(ctx, tx, lessons); lErr != nil {
			return fmt.Errorf("create lessons: %w", lErr)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return course, nil
}

func (cs *courseService) ListCourses(ctx context.Context, filter repos.CourseFilter, page, pageSize int) ([]*CourseSummary, int, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, 0, apierr.New(401, "unauthorized", fmt.Errorf("request data not set in context"))
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	published, err := cs.courseRepo.ListPublished(ctx, nil, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	visible := make([]*types.Course, 0, len(published))
	courseIDs := make([]uuid.UUID, 0, len(published))
	for _, c := range published {
		if c == nil || !c.RoleAllowed(rd.Role) {
			continue
		}
		visible = append(visible, c)
		courseIDs = append(courseIDs, c.ID)
	}
	total := len(visible)

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	pageCourses := visible[start:end]

	progressRows, pErr := cs.courseProgressRepo.GetByUserAndCourseIDs(ctx, nil, rd.UserID, courseIDs)
	if pErr != nil {
		return nil, 0, fmt.Errorf("load course progress: %w", pErr)
	}
	progressByCourse := make(map[uuid.UUID]*types.CourseProgress, len(progressRows))
	for _, cp := range progressRows {
		progressByCourse[cp.CourseID] = cp
	}

	out := make([]*CourseSummary, 0, len(pageCourses))
	for _, c := range pageCourses {
		count, cntErr := cs.lessonRepo.CountByCourseID(ctx, nil, c.ID)
		if cntErr != nil {
			return nil, 0, fmt.Errorf("count lessons: %w", cntErr)
		}
		summary := &CourseSummary{Course: c, TotalLessons: int(count)}
		if cp := progressByCourse[c.ID]; cp != nil {
			summary.CompletionPercent = cp.CompletionPercent
			summary.IsCompleted = cp.IsCompleted
		}
		out = append(out, summary)
	}
	return out, total, nil
}

func (cs *courseService) GetCourseDetail(ctx context.Context, courseID uuid.UUID) (*CourseDetail, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.New(401, "unauthorized", fmt.Errorf("request data not set in context"))
	}
	if courseID == uuid.Nil {
		return nil, apierr.Invalid("invalid_input", fmt.Errorf("course id required"))
	}

	course, err := cs.courseRepo.GetByIDWithLessons(ctx, nil, courseID)
	if err != nil {
		return nil, fmt.Errorf("fetch course: %w", err)
	}
	if course == nil || !course.IsPublished {
		return nil, apierr.NotFound("course_not_found", fmt.Errorf("course does not exist"))
	}
	if !course.RoleAllowed(rd.Role) {
		return nil, apierr.Forbidden("forbidden", fmt.Errorf("role %q cannot view this course", rd.Role))
	}

	lessonIDs := make([]uuid.UUID, 0, len(course.Lessons))
	for _, l := range course.Lessons {
		lessonIDs = append(lessonIDs, l.ID)
	}
	progressRows, pErr := cs.lessonProgressRepo.GetByUserAndLessonIDs(ctx, nil, rd.UserID, lessonIDs)
	if pErr != nil {
		return nil, fmt.Errorf("load lesson progress: %w", pErr)
	}
	progressByLesson := make(map[uuid.UUID]*types.LessonProgress, len(progressRows))
	for _, lp := range progressRows {
		progressByLesson[lp.LessonID] = lp
	}

	completed := make([]bool, len(course.Lessons))
	for i := range course.Lessons {
		if lp := progressByLesson[course.Lessons[i].ID]; lp != nil {
			completed[i] = lp.Completed
		}
	}
	unlocked := progress.ResolveUnlocks(completed)

	views := make([]*LessonView, len(course.Lessons))
	for i := range course.Lessons {
		lesson := course.Lessons[i]
		views[i] = &LessonView{
			Lesson:    &lesson,
			Progress:  progressByLesson[lesson.ID],
			Unlocked:  unlocked[i],
			Completed: completed[i],
		}
	}

	detail := &CourseDetail{Course: course, Lessons: views}
	if cp, cpErr := cs.courseProgressRepo.GetByUserAndCourseID(ctx, nil, rd.UserID, courseID); cpErr == nil && cp != nil {
		detail.CompletionPercent = cp.CompletionPercent
		detail.IsCompleted = cp.IsCompleted
	}
	return detail, nil
}
