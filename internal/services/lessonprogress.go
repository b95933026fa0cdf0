package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/academy-backend/internal/platform/apierr"
	"github.com/yungbote/academy-backend/internal/platform/logger"
	"github.com/yungbote/academy-backend/internal/progress"
	"github.com/yungbote/academy-backend/internal/repos"
	"github.com/yungbote/academy-backend/internal/requestdata"
	"github.com/yungbote/academy-backend/internal/types"
)

// ProgressReport is the telemetry payload a player sends. Video lessons use
// WatchedSeconds/LastPositionSec and optionally a coverage snapshot; document
// lessons use the page fields.
type ProgressReport struct {
	SessionToken      string             `json:"session_token,omitempty"`
	WatchedSeconds    float64            `json:"watched_seconds"`
	LastPositionSec   float64            `json:"last_position_sec"`
	Coverage          []progress.Segment `json:"coverage,omitempty"`
	Violation         bool               `json:"violation,omitempty"`
	ViolationReason   string             `json:"violation_reason,omitempty"`
	PDFCurrentPage    int                `json:"pdf_current_page,omitempty"`
	PDFCompletedPages int                `json:"pdf_completed_pages,omitempty"`
	PDFTotalPages     int                `json:"pdf_total_pages,omitempty"`
}

// sanitize clamps malformed numeric telemetry to zero instead of rejecting
// the report; a clamped value cannot corrupt monotonic state.
func (r *ProgressReport) sanitize() {
	clamp := func(v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return 0
		}
		return v
	}
	r.WatchedSeconds = clamp(r.WatchedSeconds)
	r.LastPositionSec = clamp(r.LastPositionSec)
	if r.PDFCurrentPage < 0 {
		r.PDFCurrentPage = 0
	}
	if r.PDFCompletedPages < 0 {
		r.PDFCompletedPages = 0
	}
	if r.PDFTotalPages < 0 {
		r.PDFTotalPages = 0
	}
}

// ProgressView is what clients see. While a video lesson is violation-locked
// the reported resume position is always zero, regardless of what is stored.
type ProgressView struct {
	LessonID          uuid.UUID  `json:"lesson_id"`
	WatchedSeconds    int        `json:"watched_seconds"`
	LastPositionSec   int        `json:"last_position_sec"`
	CompletionRatio   float64    `json:"completion_ratio"`
	Completed         bool       `json:"completed"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Violated          bool       `json:"violated"`
	ViolationReason   string     `json:"violation_reason,omitempty"`
	PDFCurrentPage    int        `json:"pdf_current_page"`
	PDFCompletedPages int        `json:"pdf_completed_pages"`
	PDFTotalPages     int        `json:"pdf_total_pages"`
}

// LessonSession is returned when a lesson is opened: the lesson, the caller's
// progress, and a short-lived token that must accompany telemetry.
type LessonSession struct {
	Lesson       *types.Lesson `json:"lesson"`
	Progress     *ProgressView `json:"progress"`
	SessionToken string        `json:"session_token"`
}

type LessonProgressService interface {
	OpenLesson(ctx context.Context, lessonID uuid.UUID) (*LessonSession, error)
	GetProgress(ctx context.Context, lessonID uuid.UUID) (*ProgressView, error)
	ApplyProgress(ctx context.Context, lessonID uuid.UUID, report ProgressReport) (*ProgressView, error)
	Finalize(ctx context.Context, lessonID uuid.UUID, report ProgressReport) (*ProgressView, error)
	MarkViolation(ctx context.Context, lessonID uuid.UUID, reason string, reset bool, coverage []progress.Segment) (*ProgressView, error)
	ResetViolation(ctx context.Context, userID, lessonID uuid.UUID) (*ProgressView, error)
}

type lessonProgressService struct {
	db                 *gorm.DB
	log                *logger.Logger
	policy             progress.Policy
	lessonRepo         repos.LessonRepo
	courseRepo         repos.CourseRepo
	lessonProgressRepo repos.LessonProgressRepo
	sessionTokens      SessionTokenService
	courseProgress     CourseProgressService
}

func NewLessonProgressService(
	db *gorm.DB,
	baseLog *logger.Logger,
	policy progress.Policy,
	lessonRepo repos.LessonRepo,
	courseRepo repos.CourseRepo,
	lessonProgressRepo repos.LessonProgressRepo,
	sessionTokens SessionTokenService,
	courseProgress CourseProgressService,
) LessonProgressService {
	serviceLog := baseLog.With("service", "LessonProgressService")
	return &lessonProgressService{
		db:                 db,
		log:                serviceLog,
		policy:             policy,
		lessonRepo:         lessonRepo,
		courseRepo:         courseRepo,
		lessonProgressRepo: lessonProgressRepo,
		sessionTokens:      sessionTokens,
		courseProgress:     courseProgress,
	}
}

// loadLesson fetches the lesson and enforces visibility: the parent course
// must be published and allow the caller's role.
func (ls *lessonProgressService) loadLesson(ctx context.Context, rd *requestdata.RequestData, lessonID uuid.UUID) (*types.Lesson, error) {
	if lessonID == uuid.Nil {
		return nil, apierr.Invalid("invalid_input", fmt.Errorf("lesson id required"))
	}
	lessons, err := ls.lessonRepo.GetByIDs(ctx, nil, []uuid.UUID{lessonID})
	if err != nil {
		return nil, fmt.Errorf("fetch lesson: %w", err)
	}
	if len(lessons) == 0 || lessons[0] == nil {
		return nil, apierr.NotFound("lesson_not_found", fmt.Errorf("lesson does not exist"))
	}
	lesson := lessons[0]

	courses, cErr := ls.courseRepo.GetByIDs(ctx, nil, []uuid.UUID{lesson.CourseID})
	if cErr != nil {
		return nil, fmt.Errorf("fetch parent course: %w", cErr)
	}
	if len(courses) == 0 || courses[0] == nil || !courses[0].IsPublished {
		return nil, apierr.NotFound("lesson_not_found", fmt.Errorf("parent course unavailable"))
	}
	if !courses[0].RoleAllowed(rd.Role) {
		return nil, apierr.Forbidden("forbidden", fmt.Errorf("role %q cannot access this lesson", rd.Role))
	}
	return lesson, nil
}

func requireRequestData(ctx context.Context) (*requestdata.RequestData, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.New(401, "unauthorized", fmt.Errorf("request data not set in context"))
	}
	return rd, nil
}

func decodeCoverage(raw datatypes.JSON) []progress.Segment {
	if len(raw) == 0 {
		return nil
	}
	var segs []progress.Segment
	if err := json.Unmarshal(raw, &segs); err != nil {
		return nil
	}
	return segs
}

func encodeCoverage(segs []progress.Segment) datatypes.JSON {
	if len(segs) == 0 {
		return nil
	}
	raw, err := json.Marshal(segs)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func (ls *lessonProgressService) view(lesson *types.Lesson, row *types.LessonProgress) *ProgressView {
	v := &ProgressView{LessonID: lesson.ID, PDFCurrentPage: 1}
	if row == nil {
		return v
	}
	v.WatchedSeconds = row.WatchedSeconds
	v.LastPositionSec = row.LastPositionSec
	v.Completed = row.Completed
	v.CompletedAt = row.CompletedAt
	v.Violated = row.Violated()
	v.ViolationReason = row.ViolationReason
	v.PDFCurrentPage = row.PDFCurrentPage
	v.PDFCompletedPages = row.PDFCompleted
	v.PDFTotalPages = row.PDFTotalPages
	if lesson.IsVideo() {
		if lesson.DurationSeconds > 0 {
			v.CompletionRatio = math.Min(1, float64(row.WatchedSeconds)/float64(lesson.DurationSeconds))
		}
		// A locked lesson always resumes from the start.
		if v.Violated {
			v.LastPositionSec = 0
		}
	} else if row.PDFTotalPages > 0 {
		v.CompletionRatio = math.Min(1, float64(row.PDFCompleted)/float64(row.PDFTotalPages))
	}
	if v.Completed {
		v.CompletionRatio = 1
	}
	return v
}

func (ls *lessonProgressService) OpenLesson(ctx context.Context, lessonID uuid.UUID) (*LessonSession, error) {
	rd, err := requireRequestData(ctx)
	if err != nil {
		return nil, err
	}
	lesson, err := ls.loadLesson(ctx, rd, lessonID)
	if err != nil {
		return nil, err
	}

	// Sequential gating: every earlier lesson in the course must be finished.
	siblings, sErr := ls.lessonRepo.GetByCourseID(ctx, nil, lesson.CourseID)
	if sErr != nil {
		return nil, fmt.Errorf("fetch course lessons: %w", sErr)
	}
	siblingIDs := make([]uuid.UUID, 0, len(siblings))
	for _, l := range siblings {
		siblingIDs = append(siblingIDs, l.ID)
	}
	rows, rErr := ls.lessonProgressRepo.GetByUserAndLessonIDs(ctx, nil, rd.UserID, siblingIDs)
	if rErr != nil {
		return nil, fmt.Errorf("fetch sibling progress: %w", rErr)
	}
	completedByLesson := make(map[uuid.UUID]bool, len(rows))
	for _, r := range rows {
		completedByLesson[r.LessonID] = r.Completed
	}
	completed := make([]bool, len(siblings))
	idx := -1
	for i, l := range siblings {
		completed[i] = completedByLesson[l.ID]
		if l.ID == lesson.ID {
			idx = i
		}
	}
	unlocked := progress.ResolveUnlocks(completed)
	if idx >= 0 && !unlocked[idx] {
		return nil, apierr.Forbidden("lesson_locked", fmt.Errorf("previous lesson not completed"))
	}

	row, pErr := ls.lessonProgressRepo.GetByUserAndLessonID(ctx, nil, rd.UserID, lessonID)
	if pErr != nil {
		return nil, fmt.Errorf("fetch progress: %w", pErr)
	}

	token, tErr := ls.sessionTokens.Mint(rd.UserID, lessonID)
	if tErr != nil {
		return nil, fmt.Errorf("mint session token: %w", tErr)
	}
	return &LessonSession{
		Lesson:       lesson,
		Progress:     ls.view(lesson, row),
		SessionToken: token,
	}, nil
}

func (ls *lessonProgressService) GetProgress(ctx context.Context, lessonID uuid.UUID) (*ProgressView, error) {
	rd, err := requireRequestData(ctx)
	if err != nil {
		return nil, err
	}
	lesson, err := ls.loadLesson(ctx, rd, lessonID)
	if err != nil {
		return nil, err
	}
	row, pErr := ls.lessonProgressRepo.GetByUserAndLessonID(ctx, nil, rd.UserID, lessonID)
	if pErr != nil {
		return nil, fmt.Errorf("fetch progress: %w", pErr)
	}
	return ls.view(lesson, row), nil
}

// lockRow loads the tracking row under FOR UPDATE, creating it on first use.
func (ls *lessonProgressService) lockRow(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lesson *types.Lesson) (*types.LessonProgress, error) {
	row, err := ls.lessonProgressRepo.GetForUpdate(ctx, tx, userID, lesson.ID)
	if err != nil {
		return nil, fmt.Errorf("lock progress row: %w", err)
	}
	if row == nil {
		row = &types.LessonProgress{
			ID:             uuid.New(),
			UserID:         userID,
			LessonID:       lesson.ID,
			PDFCurrentPage: 1,
		}
		if uErr := ls.lessonProgressRepo.Upsert(ctx, tx, row); uErr != nil {
			return nil, fmt.Errorf("create progress row: %w", uErr)
		}
		locked, lErr := ls.lessonProgressRepo.GetForUpdate(ctx, tx, userID, lesson.ID)
		if lErr != nil {
			return nil, fmt.Errorf("relock progress row: %w", lErr)
		}
		if locked != nil {
			row = locked
		}
	}
	return row, nil
}

func (ls *lessonProgressService) verifySession(rd *requestdata.RequestData, lesson *types.Lesson, token string) error {
	if !lesson.IsVideo() {
		return nil
	}
	if err := ls.sessionTokens.Verify(token, rd.UserID, lesson.ID); err != nil {
		return apierr.Forbidden("invalid_session", err)
	}
	return nil
}

func (ls *lessonProgressService) ApplyProgress(ctx context.Context, lessonID uuid.UUID, report ProgressReport) (*ProgressView, error) {
	rd, err := requireRequestData(ctx)
	if err != nil {
		return nil, err
	}
	lesson, err := ls.loadLesson(ctx, rd, lessonID)
	if err != nil {
		return nil, err
	}
	if err := ls.verifySession(rd, lesson, report.SessionToken); err != nil {
		return nil, err
	}
	report.sanitize()

	var out *ProgressView
	var becameCompleted bool
	txErr := ls.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, lErr := ls.lockRow(ctx, tx, rd.UserID, lesson)
		if lErr != nil {
			return lErr
		}

		// Completed rows never move again; replays are acknowledged as-is.
		// Locked video rows likewise stay frozen until an explicit reset.
		if row.Completed || (lesson.IsVideo() && row.Violated()) {
			out = ls.view(lesson, row)
			return nil
		}

		if lesson.IsVideo() {
			ls.applyVideo(row, lesson, report)
			if report.Violation {
				// A violation reported alongside apparent completion still
				// locks the lesson; the lock wins.
				ls.stampViolation(row, report.ViolationReason)
				row.Completed = false
				row.CompletedAt = nil
			}
		} else {
			ls.applyDocument(row, report)
		}
		now := time.Now().UTC()
		row.LastSeenAt = &now
		becameCompleted = row.Completed

		if sErr := ls.lessonProgressRepo.Save(ctx, tx, row); sErr != nil {
			return fmt.Errorf("save progress: %w", sErr)
		}
		out = ls.view(lesson, row)
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	if becameCompleted {
		ls.recompute(ctx, rd.UserID, lesson.CourseID)
	}
	return out, nil
}

// applyVideo folds one telemetry report into the row. Watched time only
// moves forward; when the report carries a coverage snapshot the claimed
// total is additionally capped by the union of distinct intervals.
func (ls *lessonProgressService) applyVideo(row *types.LessonProgress, lesson *types.Lesson, report ProgressReport) {
	duration := lesson.DurationSeconds

	candidate := int(math.Floor(report.WatchedSeconds))
	if len(report.Coverage) > 0 {
		merged := progress.MergeAll(decodeCoverage(row.CoverageJSON), report.Coverage)
		row.CoverageJSON = encodeCoverage(merged)
		covered := int(math.Ceil(progress.SumDistinct(merged)))
		if candidate > covered {
			candidate = covered
		}
	}
	if duration > 0 && candidate > duration {
		candidate = duration
	}
	if candidate > row.WatchedSeconds {
		row.WatchedSeconds = candidate
	}

	position := int(math.Floor(report.LastPositionSec))
	if duration > 0 && position > duration {
		position = duration
	}
	row.LastPositionSec = position

	if duration > 0 && float64(row.WatchedSeconds) >= ls.policy.CompleteThreshold*float64(duration) {
		now := time.Now().UTC()
		row.Completed = true
		row.CompletedAt = &now
	}
}

// finalizeVideo handles the natural-end signal: a position within epsilon of
// the end forces full credit; otherwise the usual ratio test decides, with
// the final position itself counting towards watched time.
func (ls *lessonProgressService) finalizeVideo(row *types.LessonProgress, lesson *types.Lesson, report ProgressReport) {
	duration := lesson.DurationSeconds
	if duration <= 0 {
		return
	}

	if report.LastPositionSec >= float64(duration)-ls.policy.FinalizeEpsilonSec {
		now := time.Now().UTC()
		row.WatchedSeconds = duration
		row.LastPositionSec = duration
		row.Completed = true
		row.CompletedAt = &now
		return
	}

	candidate := int(math.Floor(report.LastPositionSec))
	if candidate > duration {
		candidate = duration
	}
	if candidate > row.WatchedSeconds {
		row.WatchedSeconds = candidate
	}
	row.LastPositionSec = candidate
	if float64(row.WatchedSeconds) >= ls.policy.CompleteThreshold*float64(duration) {
		now := time.Now().UTC()
		row.Completed = true
		row.CompletedAt = &now
	}
}

// applyDocument only moves counters; document completion happens exclusively
// through Finalize when the reader reaches the last page.
func (ls *lessonProgressService) applyDocument(row *types.LessonProgress, report ProgressReport) {
	if report.PDFTotalPages > row.PDFTotalPages {
		row.PDFTotalPages = report.PDFTotalPages
	}
	if report.PDFCurrentPage > row.PDFCurrentPage {
		row.PDFCurrentPage = report.PDFCurrentPage
	}
	if report.PDFCompletedPages > row.PDFCompleted {
		row.PDFCompleted = report.PDFCompletedPages
	}
	if row.PDFTotalPages > 0 && row.PDFCompleted > row.PDFTotalPages {
		row.PDFCompleted = row.PDFTotalPages
	}
}

func (ls *lessonProgressService) finalizeDocument(row *types.LessonProgress, report ProgressReport) {
	ls.applyDocument(row, report)
	// Reaching finalize is proof of full coverage.
	if row.PDFTotalPages > 0 {
		row.PDFCompleted = row.PDFTotalPages
		row.PDFCurrentPage = row.PDFTotalPages
	}
	row.Completed = true
	if row.CompletedAt == nil {
		now := time.Now().UTC()
		row.CompletedAt = &now
	}
}

func (ls *lessonProgressService) Finalize(ctx context.Context, lessonID uuid.UUID, report ProgressReport) (*ProgressView, error) {
	rd, err := requireRequestData(ctx)
	if err != nil {
		return nil, err
	}
	lesson, err := ls.loadLesson(ctx, rd, lessonID)
	if err != nil {
		return nil, err
	}
	if err := ls.verifySession(rd, lesson, report.SessionToken); err != nil {
		return nil, err
	}
	report.sanitize()

	var out *ProgressView
	var becameCompleted bool
	txErr := ls.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, lErr := ls.lockRow(ctx, tx, rd.UserID, lesson)
		if lErr != nil {
			return lErr
		}

		// Finalize never lifts a violation lock.
		if row.Completed || (lesson.IsVideo() && row.Violated()) {
			out = ls.view(lesson, row)
			return nil
		}

		if lesson.IsVideo() {
			ls.finalizeVideo(row, lesson, report)
		} else {
			ls.finalizeDocument(row, report)
		}
		now := time.Now().UTC()
		row.LastSeenAt = &now
		becameCompleted = row.Completed

		if sErr := ls.lessonProgressRepo.Save(ctx, tx, row); sErr != nil {
			return fmt.Errorf("save progress: %w", sErr)
		}
		out = ls.view(lesson, row)
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	if becameCompleted {
		ls.recompute(ctx, rd.UserID, lesson.CourseID)
	}
	return out, nil
}

// stampViolation records the lock. A second violation with a different
// reason widens the stored reason rather than replacing it.
func (ls *lessonProgressService) stampViolation(row *types.LessonProgress, reason string) {
	switch reason {
	case types.ViolationReasonSeek, types.ViolationReasonRate:
	default:
		reason = types.ViolationReasonSeek
	}
	now := time.Now().UTC()
	if row.Violated() && row.ViolationReason != "" && row.ViolationReason != reason {
		row.ViolationReason = types.ViolationReasonBoth
	} else {
		row.ViolationReason = reason
	}
	row.ViolatedAt = &now
}

func (ls *lessonProgressService) MarkViolation(ctx context.Context, lessonID uuid.UUID, reason string, reset bool, coverage []progress.Segment) (*ProgressView, error) {
	rd, err := requireRequestData(ctx)
	if err != nil {
		return nil, err
	}
	lesson, err := ls.loadLesson(ctx, rd, lessonID)
	if err != nil {
		return nil, err
	}
	switch reason {
	case types.ViolationReasonSeek, types.ViolationReasonRate:
	default:
		return nil, apierr.Invalid("invalid_input", fmt.Errorf("unknown violation reason %q", reason))
	}

	var out *ProgressView
	var uncompleted bool
	txErr := ls.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, lErr := ls.lockRow(ctx, tx, rd.UserID, lesson)
		if lErr != nil {
			return lErr
		}

		// Only timed playback can cheat; document lessons acknowledge and
		// move on.
		if !lesson.IsVideo() {
			out = ls.view(lesson, row)
			return nil
		}

		// Unlike telemetry, a violation lands even on a completed lesson so
		// moderation can revoke credit.
		ls.stampViolation(row, reason)
		if reset {
			uncompleted = row.Completed
			row.WatchedSeconds = 0
			row.LastPositionSec = 0
			row.CoverageJSON = nil
			row.Completed = false
			row.CompletedAt = nil
		} else if len(coverage) > 0 {
			merged := progress.MergeAll(decodeCoverage(row.CoverageJSON), coverage)
			row.CoverageJSON = encodeCoverage(merged)
		}

		if sErr := ls.lessonProgressRepo.Save(ctx, tx, row); sErr != nil {
			return fmt.Errorf("save violation: %w", sErr)
		}
		out = ls.view(lesson, row)
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	if uncompleted {
		ls.recompute(ctx, rd.UserID, lesson.CourseID)
	}
	ls.log.Warn("Lesson violation recorded",
		"user_id", rd.UserID, "lesson_id", lessonID, "reason", reason, "reset", reset)
	return out, nil
}

// ResetViolation clears the lock and returns the lesson to an unstarted
// state. It is a moderation action, so elevated roles can target any user.
func (ls *lessonProgressService) ResetViolation(ctx context.Context, userID, lessonID uuid.UUID) (*ProgressView, error) {
	rd, err := requireRequestData(ctx)
	if err != nil {
		return nil, err
	}
	if rd.Role != types.RoleAdmin && rd.Role != types.RoleManager {
		return nil, apierr.Forbidden("forbidden", fmt.Errorf("role %q cannot reset violations", rd.Role))
	}
	if userID == uuid.Nil {
		return nil, apierr.Invalid("invalid_input", fmt.Errorf("user id required"))
	}
	lesson, err := ls.loadLesson(ctx, rd, lessonID)
	if err != nil {
		return nil, err
	}

	var out *ProgressView
	var uncompleted bool
	txErr := ls.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, lErr := ls.lockRow(ctx, tx, userID, lesson)
		if lErr != nil {
			return lErr
		}
		uncompleted = row.Completed
		row.ViolatedAt = nil
		row.ViolationReason = ""
		row.WatchedSeconds = 0
		row.LastPositionSec = 0
		row.CoverageJSON = nil
		row.Completed = false
		row.CompletedAt = nil

		if sErr := ls.lessonProgressRepo.Save(ctx, tx, row); sErr != nil {
			return fmt.Errorf("save reset: %w", sErr)
		}
		out = ls.view(lesson, row)
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	if uncompleted {
		ls.recompute(ctx, userID, lesson.CourseID)
	}
	return out, nil
}

// recompute is best-effort: course progress is derived data and any later
// completion event repairs it.
func (ls *lessonProgressService) recompute(ctx context.Context, userID, courseID uuid.UUID) {
	if ls.courseProgress == nil {
		return
	}
	if _, err := ls.courseProgress.Recompute(ctx, userID, courseID); err != nil {
		ls.log.Warn("Course progress recompute failed",
			"user_id", userID, "course_id", courseID, "error", err)
	}
}
