package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/internal/service"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
	"github.com/noah-isme/student-records-api/pkg/response"
	"github.com/noah-isme/student-records-api/pkg/spreadsheet"
)

const importFormField = "file"

type studentService interface {
	List(ctx context.Context) ([]models.Student, error)
	Get(ctx context.Context, id string) (*models.Student, error)
	Stats(ctx context.Context) (*models.StudentStats, bool, error)
	Create(ctx context.Context, req service.CreateStudentRequest) (*models.Student, error)
	Delete(ctx context.Context, id string) error
	Truncate(ctx context.Context) error
	Import(ctx context.Context, data []byte, mimeType string) (*models.ImportResult, error)
	Export(ctx context.Context, format service.ExportFormat) (*service.ExportFile, error)
}

// ImportResponse is the body returned by a completed import. Row failures do not
// change the status code.
type ImportResponse struct {
	Message string `json:"message"`
	*models.ImportResult
}

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students      studentService
	maxUploadSize int64
}

// NewStudentHandler constructs StudentHandler. maxUploadSize caps import uploads in bytes.
func NewStudentHandler(students studentService, maxUploadSize int64) *StudentHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = 5 << 20
	}
	return &StudentHandler{students: students, maxUploadSize: maxUploadSize}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	students, err := h.students.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, map[string]interface{}{"total": len(students)})
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// Stats godoc
// @Summary Student counters
// @Description Total, active and graduated counts
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /students/stats [get]
func (h *StudentHandler) Stats(c *gin.Context) {
	stats, cached, err := h.students.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, map[string]interface{}{"cache": cached})
}

// Create godoc
// @Summary Create student
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}
	student, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Delete godoc
// @Summary Delete student
// @Tags Students
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Truncate godoc
// @Summary Delete every student
// @Tags Students
// @Security BearerAuth
// @Success 204
// @Router /students/truncate [delete]
func (h *StudentHandler) Truncate(c *gin.Context) {
	if err := h.students.Truncate(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Import godoc
// @Summary Import students from a spreadsheet
// @Description Upload a CSV or Excel file with columns nombre_estudiante, anio_inicio, nue, estado, promedio_graduacion. Rows are validated and inserted one by one; rejected rows are reported without failing the request.
// @Tags Students
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "CSV or Excel file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /students/import [post]
func (h *StudentHandler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+(1<<20))

	fileHeader, err := c.FormFile(importFormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, appErrors.ErrPayloadTooLarge)
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "no file provided"))
		return
	}
	if fileHeader.Size > h.maxUploadSize {
		response.Error(c, appErrors.ErrPayloadTooLarge)
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if !spreadsheet.Accepts(mimeType) {
		response.Error(c, appErrors.ErrInvalidFileType)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnreadableFile.Code, appErrors.ErrUnreadableFile.Status, "failed to open uploaded file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnreadableFile.Code, appErrors.ErrUnreadableFile.Status, "failed to read uploaded file"))
		return
	}

	result, err := h.students.Import(c.Request.Context(), data, mimeType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ImportResponse{Message: "import completed", ImportResult: result})
}

// Export godoc
// @Summary Download the roster
// @Description CSV and XLSX downloads use the import template columns.
// @Tags Students
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv, xlsx or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /students/export [get]
func (h *StudentHandler) Export(c *gin.Context) {
	format := service.ExportFormat(strings.TrimSpace(c.DefaultQuery("format", string(service.ExportFormatCSV))))
	file, err := h.students.Export(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Data)
}
