package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/academy-backend/internal/http/response"
	"github.com/yungbote/academy-backend/internal/progress"
	"github.com/yungbote/academy-backend/internal/services"
)

type LessonHandler struct {
	progressService services.LessonProgressService
}

func NewLessonHandler(progressService services.LessonProgressService) *LessonHandler {
	return &LessonHandler{progressService: progressService}
}

func lessonID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_lesson_id", err)
		return uuid.Nil, false
	}
	return id, true
}

// GET /lessons/:id
func (h *LessonHandler) OpenLesson(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	session, err := h.progressService.OpenLesson(c.Request.Context(), id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, session)
}

// GET /lessons/:id/progress
func (h *LessonHandler) GetProgress(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	view, err := h.progressService.GetProgress(c.Request.Context(), id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// PATCH /lessons/:id/progress
func (h *LessonHandler) ApplyProgress(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	var report services.ProgressReport
	if err := c.ShouldBindJSON(&report); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.progressService.ApplyProgress(c.Request.Context(), id, report)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// PATCH /lessons/:id/finalize
func (h *LessonHandler) Finalize(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	var report services.ProgressReport
	if err := c.ShouldBindJSON(&report); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.progressService.Finalize(c.Request.Context(), id, report)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// POST /lessons/:id/violation
func (h *LessonHandler) MarkViolation(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	var req struct {
		Reason   string             `json:"reason"`
		Reset    bool               `json:"reset"`
		Coverage []progress.Segment `json:"coverage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.progressService.MarkViolation(c.Request.Context(), id, req.Reason, req.Reset, req.Coverage)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// POST /lessons/:id/violation/reset
func (h *LessonHandler) ResetViolation(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.progressService.ResetViolation(c.Request.Context(), req.UserID, id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, view)
}
