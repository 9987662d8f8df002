package service

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/pkg/spreadsheet"
)

// Column keys of the import template. Renaming any of them breaks existing upload files.
const (
	ColumnStudentName       = "nombre_estudiante"
	ColumnStartYear         = "anio_inicio"
	ColumnNUE               = "nue"
	ColumnStatus            = "estado"
	ColumnGraduationAverage = "promedio_graduacion"
)

// RequiredImportColumns lists the template columns in their canonical order.
var RequiredImportColumns = []string{
	ColumnStudentName,
	ColumnStartYear,
	ColumnNUE,
	ColumnStatus,
	ColumnGraduationAverage,
}

// statusTokens maps the spreadsheet vocabulary onto statuses. Keys are lower case.
var statusTokens = map[string]models.StudentStatus{
	"activo":    models.StudentStatusActive,
	"graduado":  models.StudentStatusGraduated,
	"active":    models.StudentStatusActive,
	"graduated": models.StudentStatusGraduated,
}

const (
	minStartYear         = 1900
	minGraduationAverage = 0
	maxGraduationAverage = 10
	notFutureYearTag     = "notfutureyear"
)

// CreateStudentRequest holds the payload for creating one student. Import rows
// are mapped onto the same shape so both paths share one rule set.
type CreateStudentRequest struct {
	Name              string               `json:"name" validate:"required"`
	StartYear         *int                 `json:"startYear" validate:"required,min=1900,notfutureyear"`
	NUE               string               `json:"nue" validate:"required"`
	Status            models.StudentStatus `json:"status" validate:"required,oneof=active graduated"`
	GraduationAverage *float64             `json:"graduationAverage" validate:"required_if=Status graduated,omitempty,min=0,max=10"`
}

// studentFieldOrder fixes the order messages are reported in.
var studentFieldOrder = []string{"Name", "StartYear", "NUE", "Status", "GraduationAverage"}

// studentRules validates student payloads and renders readable messages.
type studentRules struct {
	validate *validator.Validate
	now      func() time.Time
}

func newStudentRules(validate *validator.Validate, now func() time.Time) *studentRules {
	if validate == nil {
		validate = validator.New()
	}
	if now == nil {
		now = time.Now
	}
	rules := &studentRules{validate: validate, now: now}
	if err := rules.registerYearRule(notFutureYearTag); err != nil {
		panic(fmt.Sprintf("student rules: %v", err))
	}
	return rules
}

// registerYearRule binds tag to the "not after the current year" check.
func (r *studentRules) registerYearRule(tag string) error {
	err := r.validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return fl.Field().Int() <= int64(r.now().Year())
	})
	if err != nil {
		return fmt.Errorf("register %q validation: %w", tag, err)
	}
	return nil
}

// normalize trims text fields, maps status tokens and drops a graduation average
// that does not apply.
func (r *studentRules) normalize(req CreateStudentRequest) CreateStudentRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.NUE = strings.TrimSpace(req.NUE)
	req.Status = resolveStatus(string(req.Status))
	if req.Status != models.StudentStatusGraduated {
		req.GraduationAverage = nil
	}
	return req
}

// check returns every rule violation in field order. parseErrs carries messages for
// fields whose raw text could not be converted; those fields skip struct validation.
func (r *studentRules) check(req CreateStudentRequest, parseErrs map[string]string) []string {
	byField := make(map[string][]string, len(studentFieldOrder))
	for field, msg := range parseErrs {
		byField[field] = []string{msg}
	}

	if err := r.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return []string{err.Error()}
		}
		for _, fe := range fieldErrs {
			field := fe.StructField()
			if _, failedParse := parseErrs[field]; failedParse {
				continue
			}
			byField[field] = append(byField[field], r.message(fe))
		}
	}

	var messages []string
	for _, field := range studentFieldOrder {
		messages = append(messages, byField[field]...)
	}
	return messages
}

func (r *studentRules) message(fe validator.FieldError) string {
	switch fe.StructField() + "." + fe.Tag() {
	case "Name.required":
		return "name must not be empty"
	case "StartYear.required":
		return "startYear is required"
	case "StartYear.min":
		return fmt.Sprintf("startYear must be greater than or equal to %d", minStartYear)
	case "StartYear." + notFutureYearTag:
		return fmt.Sprintf("startYear must not be greater than %d", r.now().Year())
	case "NUE.required":
		return "nue must not be empty"
	case "Status.required":
		return "status is required"
	case "Status.oneof":
		return `status must be "activo" or "graduado"`
	case "GraduationAverage.required_if":
		return "graduationAverage is required when status is graduated"
	case "GraduationAverage.min":
		return fmt.Sprintf("graduationAverage must be greater than or equal to %d", minGraduationAverage)
	case "GraduationAverage.max":
		return fmt.Sprintf("graduationAverage must not be greater than %d", maxGraduationAverage)
	}
	return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}

// toStudent builds the record to persist from a validated request.
func (req CreateStudentRequest) toStudent() *models.Student {
	student := &models.Student{
		Name:   req.Name,
		NUE:    req.NUE,
		Status: req.Status,
	}
	if req.StartYear != nil {
		student.StartYear = *req.StartYear
	}
	if req.Status == models.StudentStatusGraduated && req.GraduationAverage != nil {
		avg := *req.GraduationAverage
		student.GraduationAverage = &avg
	}
	return student
}

// resolveStatus maps a spreadsheet status token. Unknown text is passed through
// unchanged so validation can report it.
func resolveStatus(raw string) models.StudentStatus {
	trimmed := strings.TrimSpace(raw)
	if status, ok := statusTokens[strings.ToLower(trimmed)]; ok {
		return status
	}
	return models.StudentStatus(trimmed)
}

// mapImportRow converts raw spreadsheet cells into a request plus per-field parse failures.
func mapImportRow(row spreadsheet.Row) (CreateStudentRequest, map[string]string) {
	parseErrs := make(map[string]string)
	req := CreateStudentRequest{
		Name:   row[ColumnStudentName],
		NUE:    row[ColumnNUE],
		Status: resolveStatus(row[ColumnStatus]),
	}

	if raw := strings.TrimSpace(row[ColumnStartYear]); raw != "" {
		if year, ok := parseInteger(raw); ok {
			req.StartYear = &year
		} else {
			parseErrs["StartYear"] = "startYear must be an integer"
		}
	}

	if req.Status == models.StudentStatusGraduated {
		if raw := strings.TrimSpace(row[ColumnGraduationAverage]); raw != "" {
			if avg, ok := parseDecimal(raw); ok {
				req.GraduationAverage = &avg
			} else {
				parseErrs["GraduationAverage"] = "graduationAverage must be a valid number"
			}
		}
	}
	return req, parseErrs
}

// parseInteger accepts plain integers and integral decimals such as "2020.0",
// which spreadsheet tools emit for numeric cells.
func parseInteger(raw string) (int, bool) {
	if n, err := strconv.Atoi(raw); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// parseDecimal accepts both "." and "," as the decimal separator.
func parseDecimal(raw string) (float64, bool) {
	if strings.Count(raw, ",") == 1 && !strings.Contains(raw, ".") {
		raw = strings.Replace(raw, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
