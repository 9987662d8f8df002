package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/student-records-api/internal/models"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
	"github.com/noah-isme/student-records-api/pkg/export"
)

// ExportFormat selects the roster download encoding.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatXLSX ExportFormat = "xlsx"
	ExportFormatPDF  ExportFormat = "pdf"
)

// ExportFile is a rendered roster ready to be sent to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

var exportStatusTokens = map[models.StudentStatus]string{
	models.StudentStatusActive:    "activo",
	models.StudentStatusGraduated: "graduado",
}

// Export renders the roster using the import template columns, so CSV and XLSX
// downloads can be uploaded again unchanged.
func (s *StudentService) Export(ctx context.Context, format ExportFormat) (*ExportFile, error) {
	format = ExportFormat(strings.ToLower(string(format)))
	if format == "" {
		format = ExportFormatCSV
	}

	students, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	dataset := studentDataset(students)
	stamp := time.Now().UTC().Format("20060102-150405")

	var (
		data        []byte
		contentType string
	)
	switch format {
	case ExportFormatCSV:
		data, err = export.NewCSVExporter().Render(dataset)
		contentType = "text/csv; charset=utf-8"
	case ExportFormatXLSX:
		data, err = export.NewXLSXExporter("Estudiantes").Render(dataset)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ExportFormatPDF:
		data, err = export.NewPDFExporter().Render(dataset, "Estudiantes")
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q, use csv, xlsx or pdf", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	return &ExportFile{
		Filename:    fmt.Sprintf("students-%s.%s", stamp, format),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func studentDataset(students []models.Student) export.Dataset {
	rows := make([]map[string]string, 0, len(students))
	for _, st := range students {
		row := map[string]string{
			ColumnStudentName: st.Name,
			ColumnStartYear:   strconv.Itoa(st.StartYear),
			ColumnNUE:         st.NUE,
			ColumnStatus:      exportStatusTokens[st.Status],
		}
		if st.GraduationAverage != nil {
			row[ColumnGraduationAverage] = strconv.FormatFloat(*st.GraduationAverage, 'f', -1, 64)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: RequiredImportColumns, Rows: rows}
}
