package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

type timetableGeneratorMock struct {
	generateReq dto.GenerateTimetableRequest
	schoolReq   dto.GenerateSchoolRequest
	asyncCalled bool
	listQuery   dto.TimetableListQuery
	exportArgs  []string
	err         error
}

func (m *timetableGeneratorMock) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	m.generateReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.GenerateTimetableResponse{PlacedPeriods: 5, Unplaced: []dto.UnplacedLesson{{SubjectID: "chem", Reason: "NO_FREE_SLOT"}}}, nil
}

func (m *timetableGeneratorMock) GenerateSchool(ctx context.Context, req dto.GenerateSchoolRequest) (*dto.GenerateSchoolResponse, error) {
	m.schoolReq = req
	return &dto.GenerateSchoolResponse{SchoolID: req.SchoolID, TermID: req.TermID}, nil
}

func (m *timetableGeneratorMock) GenerateSchoolAsync(ctx context.Context, req dto.GenerateSchoolRequest) (*dto.GenerationJobResponse, error) {
	m.schoolReq = req
	m.asyncCalled = true
	return &dto.GenerationJobResponse{JobID: "job-1", State: string(jobs.StateQueued)}, nil
}

func (m *timetableGeneratorMock) JobStatus(id string) (*jobs.Status, error) {
	if id != "job-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
	}
	return &jobs.Status{ID: id, State: jobs.StateSucceeded}, nil
}

func (m *timetableGeneratorMock) Get(ctx context.Context, schoolID, classID, termID string) (*dto.TimetableView, error) {
	if classID == "missing" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	return &dto.TimetableView{SchoolID: schoolID, ClassID: classID, TermID: termID}, nil
}

func (m *timetableGeneratorMock) List(ctx context.Context, schoolID, termID string, query dto.TimetableListQuery) ([]dto.TimetableView, *models.Pagination, error) {
	m.listQuery = query
	return []dto.TimetableView{{ClassID: "c1"}}, &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: 1}, nil
}

func (m *timetableGeneratorMock) Export(ctx context.Context, schoolID, classID, termID, format string) (*dto.TimetableFile, error) {
	m.exportArgs = []string{schoolID, classID, termID, format}
	return &dto.TimetableFile{Filename: "timetable-x-a-term-1.csv", ContentType: "text/csv", Body: []byte("Period,Time\n")}, nil
}

type timetableVerifierMock struct {
	report scheduler.Report
}

func (m *timetableVerifierMock) Verify(ctx context.Context, schoolID, termID string) (*scheduler.Report, error) {
	return &m.report, nil
}

func newTimetableRouter(gen *timetableGeneratorMock, ver *timetableVerifierMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := &TimetableHandler{generator: gen, verifier: ver}
	handler.Register(router.Group("/api/v1"))
	return router
}

func serve(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTimetableHandlerGenerate(t *testing.T) {
	gen := &timetableGeneratorMock{}
	router := newTimetableRouter(gen, &timetableVerifierMock{})

	w := serve(router, http.MethodPost, "/api/v1/timetables/generate", []byte(`{"schoolId":"s1","classId":"c1","termId":"term-1","maxPerDay":2}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.GenerateTimetableRequest{SchoolID: "s1", ClassID: "c1", TermID: "term-1", MaxPerDay: 2}, gen.generateReq)

	var body struct {
		Data dto.GenerateTimetableResponse `json:"data"`
		Meta map[string]interface{}        `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 5, body.Data.PlacedPeriods)
	assert.Equal(t, float64(1), body.Meta["unplaced"])
}

func TestTimetableHandlerGenerateErrors(t *testing.T) {
	gen := &timetableGeneratorMock{}
	router := newTimetableRouter(gen, &timetableVerifierMock{})

	w := serve(router, http.MethodPost, "/api/v1/timetables/generate", []byte(`{"schoolId":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	gen.err = appErrors.ErrGenerationLocked
	w = serve(router, http.MethodPost, "/api/v1/timetables/generate", []byte(`{"schoolId":"s1","classId":"c1","termId":"term-1"}`))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "GENERATION_LOCKED")
}

func TestTimetableHandlerGenerateSchool(t *testing.T) {
	gen := &timetableGeneratorMock{}
	router := newTimetableRouter(gen, &timetableVerifierMock{})

	w := serve(router, http.MethodPost, "/api/v1/schools/s1/terms/term-1/timetables/generate?maxPerDay=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, gen.asyncCalled)
	assert.Equal(t, dto.GenerateSchoolRequest{SchoolID: "s1", TermID: "term-1", MaxPerDay: 2}, gen.schoolReq)

	w = serve(router, http.MethodPost, "/api/v1/schools/s1/terms/term-1/timetables/generate?async=true", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, gen.asyncCalled)
	assert.Contains(t, w.Body.String(), `"jobId":"job-1"`)

	w = serve(router, http.MethodPost, "/api/v1/schools/s1/terms/term-1/timetables/generate?maxPerDay=two", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerJobStatus(t *testing.T) {
	router := newTimetableRouter(&timetableGeneratorMock{}, &timetableVerifierMock{})

	w := serve(router, http.MethodGet, "/api/v1/timetables/jobs/job-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"SUCCEEDED"`)

	w = serve(router, http.MethodGet, "/api/v1/timetables/jobs/job-2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimetableHandlerReadEndpoints(t *testing.T) {
	gen := &timetableGeneratorMock{}
	ver := &timetableVerifierMock{report: scheduler.Report{HasConflicts: true, Conflicts: []scheduler.Conflict{{TeacherID: "t1", Day: "MONDAY"}}}}
	router := newTimetableRouter(gen, ver)

	w := serve(router, http.MethodGet, "/api/v1/schools/s1/terms/term-1/timetables?page=2&page_size=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.TimetableListQuery{Page: 2, PageSize: 5}, gen.listQuery)
	assert.Contains(t, w.Body.String(), `"total_count":1`)

	w = serve(router, http.MethodGet, "/api/v1/schools/s1/terms/term-1/timetables/verify", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"hasConflicts":true`)

	w = serve(router, http.MethodGet, "/api/v1/schools/s1/terms/term-1/classes/c1/timetable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"classId":"c1"`)

	w = serve(router, http.MethodGet, "/api/v1/schools/s1/terms/term-1/classes/missing/timetable", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimetableHandlerExport(t *testing.T) {
	gen := &timetableGeneratorMock{}
	router := newTimetableRouter(gen, &timetableVerifierMock{})

	w := serve(router, http.MethodGet, "/api/v1/schools/s1/terms/term-1/classes/c1/timetable/export?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"s1", "c1", "term-1", "csv"}, gen.exportArgs)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="timetable-x-a-term-1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Period,Time\n", w.Body.String())
}
