package services

import (
	"testing"
	"time"

	"github.com/yungbote/academy-backend/internal/types"
)

func TestRecomputePercentages(t *testing.T) {
	env := newProgressEnv(t,
		lessonSpec{kind: types.LessonTypeVideo, duration: 100},
		lessonSpec{kind: types.LessonTypeVideo, duration: 100},
		lessonSpec{kind: types.LessonTypeVideo, duration: 100},
		lessonSpec{kind: types.LessonTypeVideo, duration: 100},
	)

	for _, id := range env.lessonIDs[:3] {
		env.apply(id, ProgressReport{WatchedSeconds: 100, LastPositionSec: 100})
	}

	cp, err := env.agg.Recompute(env.ctx(), env.userID, env.courseID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if cp.CompletionPercent != 75.00 {
		t.Fatalf("percent = %v, want 75.00", cp.CompletionPercent)
	}
	if cp.IsCompleted {
		t.Fatalf("3/4 must not mark the course completed")
	}
	if cp.CompletedAt != nil {
		t.Fatalf("completed_at set on incomplete course")
	}

	env.apply(env.lessonIDs[3], ProgressReport{WatchedSeconds: 100, LastPositionSec: 100})
	cp, err = env.agg.Recompute(env.ctx(), env.userID, env.courseID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if cp.CompletionPercent != 100.00 || !cp.IsCompleted {
		t.Fatalf("4/4 should be 100.00/completed, got %+v", cp)
	}
	if cp.CompletedAt == nil {
		t.Fatalf("completed_at not stamped on completion")
	}
}

func TestRecomputeRounding(t *testing.T) {
	env := newProgressEnv(t,
		lessonSpec{kind: types.LessonTypeVideo, duration: 100},
		lessonSpec{kind: types.LessonTypeVideo, duration: 100},
		lessonSpec{kind: types.LessonTypeVideo, duration: 100},
	)

	env.apply(env.lessonIDs[0], ProgressReport{WatchedSeconds: 100, LastPositionSec: 100})

	cp, err := env.agg.Recompute(env.ctx(), env.userID, env.courseID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	// 1/3 rounds to two decimals, never up to a misleading whole number.
	if cp.CompletionPercent != 33.33 {
		t.Fatalf("percent = %v, want 33.33", cp.CompletionPercent)
	}
}

func TestRecomputePreservesCompletedAt(t *testing.T) {
	env := newProgressEnv(t, lessonSpec{kind: types.LessonTypeVideo, duration: 100})

	env.apply(env.lessonIDs[0], ProgressReport{WatchedSeconds: 100, LastPositionSec: 100})
	first, err := env.agg.Recompute(env.ctx(), env.userID, env.courseID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if first.CompletedAt == nil {
		t.Fatalf("completed_at not stamped")
	}
	stamp := *first.CompletedAt

	time.Sleep(5 * time.Millisecond)
	second, err := env.agg.Recompute(env.ctx(), env.userID, env.courseID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if second.CompletedAt == nil || !second.CompletedAt.Equal(stamp) {
		t.Fatalf("completed_at not preserved across recompute: %v vs %v", second.CompletedAt, stamp)
	}
}

func TestRecomputeEmptyCourseZeroed(t *testing.T) {
	env := newProgressEnv(t)

	cp, err := env.agg.Recompute(env.ctx(), env.userID, env.courseID)
	if err != nil {
		t.Fatalf("Recompute on empty course: %v", err)
	}
	if cp.CompletionPercent != 0 || cp.IsCompleted {
		t.Fatalf("empty course should derive a zeroed row, got %+v", cp)
	}
}

func TestRecomputeAllForCourse(t *testing.T) {
	env := newProgressEnv(t,
		lessonSpec{kind: types.LessonTypeVideo, duration: 100},
		lessonSpec{kind: types.LessonTypeVideo, duration: 100},
	)

	env.apply(env.lessonIDs[0], ProgressReport{WatchedSeconds: 100, LastPositionSec: 100})

	if err := env.agg.RecomputeAllForCourse(env.ctx(), env.courseID); err != nil {
		t.Fatalf("RecomputeAllForCourse: %v", err)
	}
	cp, err := env.agg.GetForUser(env.ctx(), env.userID, env.courseID)
	if err != nil {
		t.Fatalf("GetForUser: %v", err)
	}
	if cp.CompletionPercent != 50.00 {
		t.Fatalf("percent = %v, want 50.00", cp.CompletionPercent)
	}
}
