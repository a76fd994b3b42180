package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type timetableGenerator interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	GenerateSchool(ctx context.Context, req dto.GenerateSchoolRequest) (*dto.GenerateSchoolResponse, error)
	GenerateSchoolAsync(ctx context.Context, req dto.GenerateSchoolRequest) (*dto.GenerationJobResponse, error)
	JobStatus(id string) (*jobs.Status, error)
	Get(ctx context.Context, schoolID, classID, termID string) (*dto.TimetableView, error)
	List(ctx context.Context, schoolID, termID string, query dto.TimetableListQuery) ([]dto.TimetableView, *models.Pagination, error)
	Export(ctx context.Context, schoolID, classID, termID, format string) (*dto.TimetableFile, error)
}

type timetableVerifier interface {
	Verify(ctx context.Context, schoolID, termID string) (*scheduler.Report, error)
}

// TimetableHandler exposes timetable generation and verification endpoints.
type TimetableHandler struct {
	generator timetableGenerator
	verifier  timetableVerifier
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(generator *service.TimetableGeneratorService, verifier *service.TimetableVerifierService) *TimetableHandler {
	return &TimetableHandler{generator: generator, verifier: verifier}
}

// Generate godoc
// @Summary Generate the timetable of one class
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generate timetable payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	resp, err := h.generator.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil, map[string]interface{}{"unplaced": len(resp.Unplaced)})
}

// GenerateSchool godoc
// @Summary Generate the timetables of every class of a school
// @Description With async=true the batch is queued and a job id is returned.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param schoolId path string true "School ID"
// @Param termId path string true "Term ID"
// @Param async query bool false "Queue the batch"
// @Param maxPerDay query int false "Per-day cap for each subject"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /schools/{schoolId}/terms/{termId}/timetables/generate [post]
func (h *TimetableHandler) GenerateSchool(c *gin.Context) {
	req := dto.GenerateSchoolRequest{SchoolID: c.Param("schoolId"), TermID: c.Param("termId")}
	if raw := c.Query("maxPerDay"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "maxPerDay must be a number"))
			return
		}
		req.MaxPerDay = value
	}

	async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))
	if async {
		job, err := h.generator.GenerateSchoolAsync(c.Request.Context(), req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, job)
		return
	}

	resp, err := h.generator.GenerateSchool(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// JobStatus godoc
// @Summary Progress of a queued school generation
// @Tags Timetables
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/jobs/{jobId} [get]
func (h *TimetableHandler) JobStatus(c *gin.Context) {
	status, err := h.generator.JobStatus(c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// List godoc
// @Summary List stored timetables of a term
// @Tags Timetables
// @Produce json
// @Param schoolId path string true "School ID"
// @Param termId path string true "Term ID"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/terms/{termId}/timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	var query dto.TimetableListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	views, pagination, err := h.generator.List(c.Request.Context(), c.Param("schoolId"), c.Param("termId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, pagination)
}

// Verify godoc
// @Summary Check stored timetables for teacher double bookings
// @Tags Timetables
// @Produce json
// @Param schoolId path string true "School ID"
// @Param termId path string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/terms/{termId}/timetables/verify [get]
func (h *TimetableHandler) Verify(c *gin.Context) {
	report, err := h.verifier.Verify(c.Request.Context(), c.Param("schoolId"), c.Param("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Get godoc
// @Summary Stored timetable of a class
// @Tags Timetables
// @Produce json
// @Param schoolId path string true "School ID"
// @Param termId path string true "Term ID"
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schools/{schoolId}/terms/{termId}/classes/{classId}/timetable [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	view, err := h.generator.Get(c.Request.Context(), c.Param("schoolId"), c.Param("classId"), c.Param("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Export godoc
// @Summary Download the timetable of a class
// @Tags Timetables
// @Produce text/csv
// @Produce application/pdf
// @Param schoolId path string true "School ID"
// @Param termId path string true "Term ID"
// @Param classId path string true "Class ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /schools/{schoolId}/terms/{termId}/classes/{classId}/timetable/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	file, err := h.generator.Export(c.Request.Context(), c.Param("schoolId"), c.Param("classId"), c.Param("termId"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.ContentType, file.Filename, file.Body)
}

// Register mounts the timetable routes on group.
func (h *TimetableHandler) Register(group *gin.RouterGroup) {
	group.POST("/timetables/generate", h.Generate)
	group.GET("/timetables/jobs/:jobId", h.JobStatus)

	term := group.Group("/schools/:schoolId/terms/:termId")
	term.POST("/timetables/generate", h.GenerateSchool)
	term.GET("/timetables", h.List)
	term.GET("/timetables/verify", h.Verify)
	term.GET("/classes/:classId/timetable", h.Get)
	term.GET("/classes/:classId/timetable/export", h.Export)
}
