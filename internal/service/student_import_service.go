package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/internal/repository"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
	"github.com/noah-isme/student-records-api/pkg/spreadsheet"
)

// rowOutcome is the result of processing one import row: either a created
// student or the messages explaining why the row was rejected.
type rowOutcome struct {
	student *models.Student
	errors  []string
}

func rowCreated(student *models.Student) rowOutcome {
	return rowOutcome{student: student}
}

func rowRejected(messages ...string) rowOutcome {
	return rowOutcome{errors: messages}
}

// importRun holds the state of one import call. claimed tracks every nue inserted
// during the run so repeats inside the same file are rejected.
type importRun struct {
	result  models.ImportResult
	claimed map[string]struct{}
}

func newImportRun() *importRun {
	return &importRun{
		result:  models.ImportResult{Errors: []models.ImportRowError{}},
		claimed: make(map[string]struct{}),
	}
}

func (r *importRun) record(rowNumber int, outcome rowOutcome) {
	if len(outcome.errors) > 0 {
		r.result.Failed++
		r.result.Errors = append(r.result.Errors, models.ImportRowError{Row: rowNumber, Errors: outcome.errors})
		return
	}
	r.result.Success++
	r.claimed[outcome.student.NUE] = struct{}{}
}

// Import decodes a spreadsheet upload and inserts every valid row, in file order.
// Unsupported types, empty files and missing columns fail the whole call before
// anything is written; once rows are being processed, problems are reported per
// row in the result and the call succeeds.
func (s *StudentService) Import(ctx context.Context, data []byte, mimeType string) (*models.ImportResult, error) {
	start := time.Now()

	sheet, err := spreadsheet.Decode(data, mimeType)
	if err != nil {
		return nil, decodeError(err)
	}

	if missing := missingColumns(sheet.Rows[0]); len(missing) > 0 {
		msg := fmt.Sprintf("the file does not have the expected columns, missing: %s. Required columns: %s",
			strings.Join(missing, ", "), strings.Join(RequiredImportColumns, ", "))
		return nil, appErrors.WithDetails(appErrors.ErrMissingColumns, msg, map[string][]string{
			"missing":  missing,
			"required": RequiredImportColumns,
		})
	}

	run := newImportRun()
	for i, row := range sheet.Rows {
		run.record(i+2, s.importRow(ctx, row, run.claimed))
	}

	result := run.result
	if result.Success > 0 {
		s.invalidateStats(ctx)
	}
	s.metrics.ObserveImport(result.Success, result.Failed, time.Since(start))
	s.logger.Info("student import completed",
		zap.Int("rows", len(sheet.Rows)),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(start)),
	)
	return &result, nil
}

func (s *StudentService) importRow(ctx context.Context, row spreadsheet.Row, claimed map[string]struct{}) rowOutcome {
	req, parseErrs := mapImportRow(row)
	req = s.rules.normalize(req)
	if messages := s.rules.check(req, parseErrs); len(messages) > 0 {
		return rowRejected(messages...)
	}

	if _, taken := claimed[req.NUE]; taken {
		return rowRejected(duplicateNUEMessage(req.NUE))
	}
	if _, err := s.repo.FindByNUE(ctx, req.NUE); err == nil {
		return rowRejected(duplicateNUEMessage(req.NUE))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return rowRejected(err.Error())
	}

	student := req.toStudent()
	if err := s.repo.Create(ctx, student); err != nil {
		if errors.Is(err, repository.ErrDuplicateNUE) {
			return rowRejected(duplicateNUEMessage(req.NUE))
		}
		return rowRejected(err.Error())
	}
	return rowCreated(student)
}

func missingColumns(first spreadsheet.Row) []string {
	var missing []string
	for _, column := range RequiredImportColumns {
		if _, ok := first[column]; !ok {
			missing = append(missing, column)
		}
	}
	return missing
}

func decodeError(err error) error {
	switch {
	case errors.Is(err, spreadsheet.ErrInvalidFileType):
		return appErrors.ErrInvalidFileType
	case errors.Is(err, spreadsheet.ErrEmptyFile):
		return appErrors.ErrEmptyFile
	case errors.Is(err, spreadsheet.ErrUnreadable):
		return appErrors.Wrap(err, appErrors.ErrUnreadableFile.Code, appErrors.ErrUnreadableFile.Status, appErrors.ErrUnreadableFile.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read file")
}
