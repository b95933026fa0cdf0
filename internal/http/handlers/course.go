package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/academy-backend/internal/http/response"
	"github.com/yungbote/academy-backend/internal/platform/logger"
	"github.com/yungbote/academy-backend/internal/repos"
	"github.com/yungbote/academy-backend/internal/services"
	"github.com/yungbote/academy-backend/internal/types"
)

type CourseHandler struct {
	log           *logger.Logger
	courseService services.CourseService
}

func NewCourseHandler(log *logger.Logger, courseService services.CourseService) *CourseHandler {
	return &CourseHandler{
		log:           log.With("handler", "CourseHandler"),
		courseService: courseService,
	}
}

// GET /courses
func (h *CourseHandler) ListCourses(c *gin.Context) {
	filter := repos.CourseFilter{
		Category: c.Query("category"),
		Level:    c.Query("level"),
		Search:   c.Query("search"),
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	courses, total, err := h.courseService.ListCourses(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"courses":   courses,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GET /courses/:id
func (h *CourseHandler) GetCourse(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_course_id", err)
		return
	}
	detail, err := h.courseService.GetCourseDetail(c.Request.Context(), courseID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, detail)
}

type createLessonRequest struct {
	Title           string `json:"title"`
	Type            string `json:"type"`
	DurationSeconds int    `json:"duration_seconds"`
	IsMandatory     *bool  `json:"is_mandatory"`
	VideoURL        string `json:"video_url"`
	PDFURL          string `json:"pdf_url"`
	SlideURL        string `json:"slide_url"`
	TextContent     string `json:"text_content"`
}

type createCourseRequest struct {
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Category     string                `json:"category"`
	Level        string                `json:"level"`
	IsRequired   bool                  `json:"is_required"`
	IsPublished  bool                  `json:"is_published"`
	AllowedRoles []string              `json:"allowed_roles"`
	Lessons      []createLessonRequest `json:"lessons"`
}

// POST /courses
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	course := &types.Course{
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Level:        req.Level,
		IsRequired:   req.IsRequired,
		IsPublished:  req.IsPublished,
		AllowedRoles: req.AllowedRoles,
	}
	lessons := make([]*types.Lesson, 0, len(req.Lessons))
	for _, l := range req.Lessons {
		mandatory := true
		if l.IsMandatory != nil {
			mandatory = *l.IsMandatory
		}
		lessons = append(lessons, &types.Lesson{
			Title:           l.Title,
			Type:            l.Type,
			DurationSeconds: l.DurationSeconds,
			IsMandatory:     mandatory,
			VideoURL:        l.VideoURL,
			PDFURL:          l.PDFURL,
			SlideURL:        l.SlideURL,
			TextContent:     l.TextContent,
		})
	}
	created, err := h.courseService.CreateCourse(c.Request.Context(), course, lessons)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"course": created})
}
