package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	redisclient "github.com/yungbote/academy-backend/internal/clients/redis"
	"github.com/yungbote/academy-backend/internal/platform/apierr"
	"github.com/yungbote/academy-backend/internal/platform/logger"
	"github.com/yungbote/academy-backend/internal/progress"
	"github.com/yungbote/academy-backend/internal/repos"
	"github.com/yungbote/academy-backend/internal/requestdata"
	"github.com/yungbote/academy-backend/internal/types"
)

// ---- in-memory repo fakes ----

type fakeLessonRepo struct {
	lessons map[uuid.UUID]*types.Lesson
}

func newFakeLessonRepo() *fakeLessonRepo {
	return &fakeLessonRepo{lessons: map[uuid.UUID]*types.Lesson{}}
}

func (f *fakeLessonRepo) Create(ctx context.Context, tx *gorm.DB, lessons []*types.Lesson) ([]*types.Lesson, error) {
	for _, l := range lessons {
		cp := *l
		f.lessons[l.ID] = &cp
	}
	return lessons, nil
}

func (f *fakeLessonRepo) GetByIDs(ctx context.Context, tx *gorm.DB, lessonIDs []uuid.UUID) ([]*types.Lesson, error) {
	var out []*types.Lesson
	for _, id := range lessonIDs {
		if l, ok := f.lessons[id]; ok {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLessonRepo) GetByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.Lesson, error) {
	var out []*types.Lesson
	for _, l := range f.lessons {
		if l.CourseID == courseID {
			cp := *l
			out = append(out, &cp)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].OrderIndex < out[i].OrderIndex {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeLessonRepo) CountByCourseID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (int64, error) {
	rows, _ := f.GetByCourseID(ctx, tx, courseID)
	return int64(len(rows)), nil
}

type fakeCourseRepo struct {
	courses map[uuid.UUID]*types.Course
	// when set, GetByIDWithLessons resolves the playlist from here
	lessonSource *fakeLessonRepo
}

func newFakeCourseRepo() *fakeCourseRepo {
	return &fakeCourseRepo{courses: map[uuid.UUID]*types.Course{}}
}

func (f *fakeCourseRepo) Create(ctx context.Context, tx *gorm.DB, courses []*types.Course) ([]*types.Course, error) {
	for _, c := range courses {
		cp := *c
		f.courses[c.ID] = &cp
	}
	return courses, nil
}

func (f *fakeCourseRepo) GetByIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*types.Course, error) {
	var out []*types.Course
	for _, id := range courseIDs {
		if c, ok := f.courses[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCourseRepo) GetByIDWithLessons(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.Course, error) {
	c, ok := f.courses[courseID]
	if !ok {
		return nil, nil
	}
	cp := *c
	if f.lessonSource != nil {
		rows, _ := f.lessonSource.GetByCourseID(ctx, tx, courseID)
		for _, l := range rows {
			cp.Lessons = append(cp.Lessons, *l)
		}
	}
	return &cp, nil
}

func (f *fakeCourseRepo) ListPublished(ctx context.Context, tx *gorm.DB, filter repos.CourseFilter) ([]*types.Course, error) {
	var out []*types.Course
	for _, c := range f.courses {
		if c.IsPublished {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCourseRepo) Update(ctx context.Context, tx *gorm.DB, course *types.Course) error {
	cp := *course
	f.courses[course.ID] = &cp
	return nil
}

type progressKey struct {
	userID   uuid.UUID
	lessonID uuid.UUID
}

type fakeLessonProgressRepo struct {
	rows map[progressKey]*types.LessonProgress
}

func newFakeLessonProgressRepo() *fakeLessonProgressRepo {
	return &fakeLessonProgressRepo{rows: map[progressKey]*types.LessonProgress{}}
}

func cloneProgress(row *types.LessonProgress) *types.LessonProgress {
	if row == nil {
		return nil
	}
	cp := *row
	if row.CoverageJSON != nil {
		cp.CoverageJSON = append([]byte(nil), row.CoverageJSON...)
	}
	return &cp
}

func (f *fakeLessonProgressRepo) GetByUserAndLessonID(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (*types.LessonProgress, error) {
	return cloneProgress(f.rows[progressKey{userID, lessonID}]), nil
}

func (f *fakeLessonProgressRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (*types.LessonProgress, error) {
	return cloneProgress(f.rows[progressKey{userID, lessonID}]), nil
}

func (f *fakeLessonProgressRepo) GetByUserAndLessonIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lessonIDs []uuid.UUID) ([]*types.LessonProgress, error) {
	var out []*types.LessonProgress
	for _, id := range lessonIDs {
		if row, ok := f.rows[progressKey{userID, id}]; ok {
			out = append(out, cloneProgress(row))
		}
	}
	return out, nil
}

func (f *fakeLessonProgressRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.LessonProgress, error) {
	var out []*types.LessonProgress
	for k, row := range f.rows {
		if k.userID == userID {
			out = append(out, cloneProgress(row))
		}
	}
	return out, nil
}

func (f *fakeLessonProgressRepo) GetUserIDsByLessonIDs(ctx context.Context, tx *gorm.DB, lessonIDs []uuid.UUID) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, id := range lessonIDs {
		for k := range f.rows {
			if k.lessonID == id && !seen[k.userID] {
				seen[k.userID] = true
				out = append(out, k.userID)
			}
		}
	}
	return out, nil
}

func (f *fakeLessonProgressRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.LessonProgress) error {
	f.rows[progressKey{row.UserID, row.LessonID}] = cloneProgress(row)
	return nil
}

func (f *fakeLessonProgressRepo) Save(ctx context.Context, tx *gorm.DB, row *types.LessonProgress) error {
	f.rows[progressKey{row.UserID, row.LessonID}] = cloneProgress(row)
	return nil
}

type courseKey struct {
	userID   uuid.UUID
	courseID uuid.UUID
}

type fakeCourseProgressRepo struct {
	rows map[courseKey]*types.CourseProgress
}

func newFakeCourseProgressRepo() *fakeCourseProgressRepo {
	return &fakeCourseProgressRepo{rows: map[courseKey]*types.CourseProgress{}}
}

func (f *fakeCourseProgressRepo) GetByUserAndCourseID(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.CourseProgress, error) {
	row, ok := f.rows[courseKey{userID, courseID}]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeCourseProgressRepo) GetByUserAndCourseIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, courseIDs []uuid.UUID) ([]*types.CourseProgress, error) {
	var out []*types.CourseProgress
	for _, id := range courseIDs {
		if row, ok := f.rows[courseKey{userID, id}]; ok {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCourseProgressRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.CourseProgress, error) {
	var out []*types.CourseProgress
	for k, row := range f.rows {
		if k.userID == userID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCourseProgressRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.CourseProgress) error {
	cp := *row
	f.rows[courseKey{row.UserID, row.CourseID}] = &cp
	return nil
}

var _ redisclient.Cache = (*noopCache)(nil)

type noopCache struct{}

func (noopCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	return nil
}
func (noopCache) GetJSON(ctx context.Context, key string, dest any) error {
	return redisclient.ErrCacheMiss
}
func (noopCache) Del(ctx context.Context, keys ...string) error { return nil }
func (noopCache) Close() error                                  { return nil }

// ---- environment ----

type progressEnv struct {
	t          *testing.T
	svc        LessonProgressService
	agg        CourseProgressService
	tokens     SessionTokenService
	lessonRows *fakeLessonProgressRepo
	courseRows *fakeCourseProgressRepo
	userID     uuid.UUID
	courseID   uuid.UUID
	lessonIDs  []uuid.UUID
}

type lessonSpec struct {
	kind     string
	duration int
}

func newProgressEnv(t *testing.T, specs ...lessonSpec) *progressEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	lessonRepo := newFakeLessonRepo()
	courseRepo := newFakeCourseRepo()
	lessonRows := newFakeLessonProgressRepo()
	courseRows := newFakeCourseProgressRepo()

	courseID := uuid.New()
	course := &types.Course{ID: courseID, Title: "Onboarding", IsPublished: true}
	if _, err := courseRepo.Create(context.Background(), nil, []*types.Course{course}); err != nil {
		t.Fatalf("seed course: %v", err)
	}
	var lessonIDs []uuid.UUID
	for i, spec := range specs {
		l := &types.Lesson{
			ID:              uuid.New(),
			CourseID:        courseID,
			Title:           "Lesson",
			Type:            spec.kind,
			DurationSeconds: spec.duration,
			OrderIndex:      i,
		}
		if _, err := lessonRepo.Create(context.Background(), nil, []*types.Lesson{l}); err != nil {
			t.Fatalf("seed lesson: %v", err)
		}
		lessonIDs = append(lessonIDs, l.ID)
	}

	tokens := NewSessionTokenService(log, "test-secret", time.Hour)
	agg := NewCourseProgressService(db, log, lessonRepo, lessonRows, courseRows, noopCache{})
	svc := NewLessonProgressService(db, log, progress.DefaultPolicy(), lessonRepo, courseRepo, lessonRows, tokens, agg)

	return &progressEnv{
		t:          t,
		svc:        svc,
		agg:        agg,
		tokens:     tokens,
		lessonRows: lessonRows,
		courseRows: courseRows,
		userID:     uuid.New(),
		courseID:   courseID,
		lessonIDs:  lessonIDs,
	}
}

func (e *progressEnv) ctx() context.Context {
	return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{
		UserID: e.userID,
		Role:   types.RoleUser,
	})
}

func (e *progressEnv) adminCtx() context.Context {
	return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{
		UserID: uuid.New(),
		Role:   types.RoleAdmin,
	})
}

func (e *progressEnv) token(lessonID uuid.UUID) string {
	e.t.Helper()
	tok, err := e.tokens.Mint(e.userID, lessonID)
	if err != nil {
		e.t.Fatalf("mint session token: %v", err)
	}
	return tok
}

func (e *progressEnv) apply(lessonID uuid.UUID, report ProgressReport) *ProgressView {
	e.t.Helper()
	report.SessionToken = e.token(lessonID)
	view, err := e.svc.ApplyProgress(e.ctx(), lessonID, report)
	if err != nil {
		e.t.Fatalf("ApplyProgress: %v", err)
	}
	return view
}

// ---- tests ----

func TestApplyProgressMonotonic(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypeVideo, duration: 600})
	id := env.lessonIDs[0]

	v := env.apply(id, ProgressReport{WatchedSeconds: 100, LastPositionSec: 100})
	if v.WatchedSeconds != 100 {
		t.Fatalf("watched = %d, want 100", v.WatchedSeconds)
	}

	// A client restart reporting less must not erase prior credit.
	v = env.apply(id, ProgressReport{WatchedSeconds: 40, LastPositionSec: 40})
	if v.WatchedSeconds != 100 {
		t.Fatalf("watched after lower report = %d, want 100", v.WatchedSeconds)
	}

	v = env.apply(id, ProgressReport{WatchedSeconds: 250.9, LastPositionSec: 251})
	if v.WatchedSeconds != 250 {
		t.Fatalf("watched = %d, want floor(250.9) = 250", v.WatchedSeconds)
	}
}

func TestCompletionThreshold(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypeVideo, duration: 600})
	id := env.lessonIDs[0]

	v := env.apply(id, ProgressReport{WatchedSeconds: 587, LastPositionSec: 587})
	if v.Completed {
		t.Fatalf("587/600 should not complete (ratio 0.9783)")
	}
	v = env.apply(id, ProgressReport{WatchedSeconds: 588, LastPositionSec: 588})
	if !v.Completed {
		t.Fatalf("588/600 should complete (ratio 0.98)")
	}
	if v.CompletedAt == nil {
		t.Fatalf("completed_at not stamped")
	}
}

func TestApplyProgressIdempotentOnCompleted(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypeVideo, duration: 600})
	id := env.lessonIDs[0]

	first := env.apply(id, ProgressReport{WatchedSeconds: 600, LastPositionSec: 600})
	if !first.Completed {
		t.Fatalf("expected completion")
	}
	completedAt := first.CompletedAt

	after := env.apply(id, ProgressReport{WatchedSeconds: 10, LastPositionSec: 10})
	if !after.Completed || after.WatchedSeconds != first.WatchedSeconds {
		t.Fatalf("completed lesson accepted telemetry: %+v", after)
	}
	if after.CompletedAt == nil || !after.CompletedAt.Equal(*completedAt) {
		t.Fatalf("completed_at changed on replay")
	}
}

func TestFinalizeEpsilon(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypeVideo, duration: 600})
	id := env.lessonIDs[0]

	report := ProgressReport{LastPositionSec: 599.2, SessionToken: env.token(id)}
	v, err := env.svc.Finalize(env.ctx(), id, report)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !v.Completed {
		t.Fatalf("599.2 within 1s of 600 should complete")
	}
	if v.WatchedSeconds != 600 {
		t.Fatalf("watched = %d, want forced 600", v.WatchedSeconds)
	}
}

func TestFinalizeBelowEpsilonFallsBackToThreshold(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypeVideo, duration: 600})
	id := env.lessonIDs[0]

	report := ProgressReport{LastPositionSec: 400, SessionToken: env.token(id)}
	v, err := env.svc.Finalize(env.ctx(), id, report)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if v.Completed {
		t.Fatalf("400/600 must not complete on finalize")
	}
	if v.WatchedSeconds != 400 {
		t.Fatalf("watched = %d, want 400 (position credited)", v.WatchedSeconds)
	}
}

func TestViolationLock(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypeVideo, duration: 600})
	id := env.lessonIDs[0]

	env.apply(id, ProgressReport{WatchedSeconds: 300, LastPositionSec: 300})

	v, err := env.svc.MarkViolation(env.ctx(), id, types.ViolationReasonSeek, true, nil)
	if err != nil {
		t.Fatalf("MarkViolation: %v", err)
	}
	if !v.Violated || v.WatchedSeconds != 0 || v.LastPositionSec != 0 {
		t.Fatalf("violation did not reset: %+v", v)
	}

	// Telemetry against a locked row is a frozen no-op with position 0.
	after := env.apply(id, ProgressReport{WatchedSeconds: 500, LastPositionSec: 500})
	if after.WatchedSeconds != 0 || after.Completed || after.LastPositionSec != 0 {
		t.Fatalf("locked row accepted telemetry: %+v", after)
	}

	// Finalize does not lift the lock either.
	fv, err := env.svc.Finalize(env.ctx(), id, ProgressReport{LastPositionSec: 599.5, SessionToken: env.token(id)})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if fv.Completed || fv.WatchedSeconds != 0 {
		t.Fatalf("finalize overrode violation lock: %+v", fv)
	}
}

func TestViolationReasonWidens(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypeVideo, duration: 600})
	id := env.lessonIDs[0]

	if _, err := env.svc.MarkViolation(env.ctx(), id, types.ViolationReasonSeek, true, nil); err != nil {
		t.Fatalf("MarkViolation: %v", err)
	}
	v, err := env.svc.MarkViolation(env.ctx(), id, types.ViolationReasonRate, true, nil)
	if err != nil {
		t.Fatalf("MarkViolation: %v", err)
	}
	if v.ViolationReason != types.ViolationReasonBoth {
		t.Fatalf("reason = %q, want %q", v.ViolationReason, types.ViolationReasonBoth)
	}
}

func TestViolationRevokesCompletion(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypeVideo, duration: 600})
	id := env.lessonIDs[0]

	env.apply(id, ProgressReport{WatchedSeconds: 600, LastPositionSec: 600})
	if _, err := env.agg.Recompute(env.ctx(), env.userID, env.courseID); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	v, err := env.svc.MarkViolation(env.ctx(), id, types.ViolationReasonSeek, true, nil)
	if err != nil {
		t.Fatalf("MarkViolation: %v", err)
	}
	if v.Completed || v.WatchedSeconds != 0 {
		t.Fatalf("moderation violation did not revoke credit: %+v", v)
	}

	cp, err := env.agg.GetForUser(env.ctx(), env.userID, env.courseID)
	if err != nil {
		t.Fatalf("GetForUser: %v", err)
	}
	if cp.IsCompleted || cp.CompletionPercent != 0 {
		t.Fatalf("course progress not regressed: %+v", cp)
	}
}

func TestInlineViolationBeatsCompletion(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypeVideo, duration: 600})
	id := env.lessonIDs[0]

	v := env.apply(id, ProgressReport{
		WatchedSeconds:  600,
		LastPositionSec: 600,
		Violation:       true,
		ViolationReason: types.ViolationReasonRate,
	})
	if v.Completed {
		t.Fatalf("violation in same report must lock, not complete")
	}
	if !v.Violated || v.ViolationReason != types.ViolationReasonRate {
		t.Fatalf("violation not stamped: %+v", v)
	}
}

func TestCoverageCapsWatchedTime(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypeVideo, duration: 600})
	id := env.lessonIDs[0]

	v := env.apply(id, ProgressReport{
		WatchedSeconds:  300,
		LastPositionSec: 120,
		Coverage: []progress.Segment{
			{Start: 0, End: 80},
			{Start: 100, End: 140},
		},
	})
	if v.WatchedSeconds != 120 {
		t.Fatalf("watched = %d, want coverage-capped 120", v.WatchedSeconds)
	}
}

func TestNegativeTelemetryClamped(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypeVideo, duration: 600})
	id := env.lessonIDs[0]

	env.apply(id, ProgressReport{WatchedSeconds: 50, LastPositionSec: 50})
	v := env.apply(id, ProgressReport{WatchedSeconds: -20, LastPositionSec: -5})
	if v.WatchedSeconds != 50 {
		t.Fatalf("watched = %d, want 50 (negative clamped to 0, monotonic keeps 50)", v.WatchedSeconds)
	}
	if v.LastPositionSec != 0 {
		t.Fatalf("position = %d, want clamped 0", v.LastPositionSec)
	}
}

func TestDocumentProgressNoImplicitCompletion(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypePDF})
	id := env.lessonIDs[0]

	v := env.apply(id, ProgressReport{PDFCurrentPage: 5, PDFCompletedPages: 5, PDFTotalPages: 5})
	if v.Completed {
		t.Fatalf("document completion must only come from Finalize")
	}
	if v.PDFCompletedPages != 5 || v.PDFTotalPages != 5 {
		t.Fatalf("page counters not stored: %+v", v)
	}
}

func TestDocumentFinalizeCompletes(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypePDF})
	id := env.lessonIDs[0]

	env.apply(id, ProgressReport{PDFCurrentPage: 3, PDFCompletedPages: 2, PDFTotalPages: 5})
	v, err := env.svc.Finalize(env.ctx(), id, ProgressReport{PDFTotalPages: 5})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !v.Completed {
		t.Fatalf("document finalize must complete")
	}
	if v.PDFCompletedPages != 5 {
		t.Fatalf("pdf_completed_pages = %d, want total 5", v.PDFCompletedPages)
	}
}

func TestDocumentIgnoresViolation(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypePDF})
	id := env.lessonIDs[0]

	v, err := env.svc.MarkViolation(env.ctx(), id, types.ViolationReasonSeek, true, nil)
	if err != nil {
		t.Fatalf("document violation must be a benign ack, got %v", err)
	}
	if v.Violated {
		t.Fatalf("document lessons cannot be violated")
	}
}

func TestResetViolationRequiresElevatedRole(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypeVideo, duration: 600})
	id := env.lessonIDs[0]

	if _, err := env.svc.MarkViolation(env.ctx(), id, types.ViolationReasonSeek, true, nil); err != nil {
		t.Fatalf("MarkViolation: %v", err)
	}

	if _, err := env.svc.ResetViolation(env.ctx(), env.userID, id); apierr.StatusOf(err) != 403 {
		t.Fatalf("plain user reset should be forbidden, got %v", err)
	}

	v, err := env.svc.ResetViolation(env.adminCtx(), env.userID, id)
	if err != nil {
		t.Fatalf("admin ResetViolation: %v", err)
	}
	if v.Violated || v.WatchedSeconds != 0 {
		t.Fatalf("reset did not clear lock: %+v", v)
	}

	// The row accepts telemetry again.
	after := env.apply(id, ProgressReport{WatchedSeconds: 30, LastPositionSec: 30})
	if after.WatchedSeconds != 30 {
		t.Fatalf("row still frozen after reset: %+v", after)
	}
}

func TestOpenLessonSequentialGating(t *testing.T) {
	env := newProgressEnv(t,
		lessonSpec{kind: types.LessonTypeVideo, duration: 600},
		lessonSpec{kind: types.LessonTypeVideo, duration: 300},
	)
	first, second := env.lessonIDs[0], env.lessonIDs[1]

	if _, err := env.svc.OpenLesson(env.ctx(), second); apierr.StatusOf(err) != 403 {
		t.Fatalf("second lesson should be locked, got %v", err)
	}

	session, err := env.svc.OpenLesson(env.ctx(), first)
	if err != nil {
		t.Fatalf("OpenLesson first: %v", err)
	}
	if session.SessionToken == "" {
		t.Fatalf("no session token minted")
	}

	env.apply(first, ProgressReport{WatchedSeconds: 600, LastPositionSec: 600})

	if _, err := env.svc.OpenLesson(env.ctx(), second); err != nil {
		t.Fatalf("second lesson should unlock after first completes: %v", err)
	}
}

func TestUnknownLessonNotFound(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypeVideo, duration: 600})

	if _, err := env.svc.GetProgress(env.ctx(), uuid.New()); apierr.StatusOf(err) != 404 {
		t.Fatalf("unknown lesson should be 404, got %v", err)
	}
}

func TestSessionTokenBoundToLesson(t *testing.T) {
	env := newProgressEnv(t,
		lessonSpec{kind: types.LessonTypeVideo, duration: 600},
		lessonSpec{kind: types.LessonTypeVideo, duration: 300},
	)
	first, second := env.lessonIDs[0], env.lessonIDs[1]

	report := ProgressReport{WatchedSeconds: 10, LastPositionSec: 10, SessionToken: env.token(second)}
	if _, err := env.svc.ApplyProgress(env.ctx(), first, report); apierr.StatusOf(err) != 403 {
		t.Fatalf("token for another lesson should be rejected, got %v", err)
	}
}
