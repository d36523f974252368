// Package report renders onboarding instances as an Excel workbook for HR.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// SheetName is the worksheet holding one row per onboarding
const SheetName = "Onboardings"

const pageSize = 200

// Lister pages through persisted onboardings, newest first
type Lister interface {
	List(ctx context.Context, limit, offset int) ([]*entity.OnboardingInstance, error)
}

var columns = []string{
	"Instance ID",
	"Employee ID",
	"Employee",
	"Email",
	"Status",
	"Phase",
	"Form Filled",
	"Welcome Sent",
	"Thank-you Sent",
	"Reminders Sent",
	"Reminder Limit",
	"Task ID",
	"Task Priority",
	"Task Status",
	"Started At",
	"Completed At",
	"Error",
}

// Exporter writes the onboarding status workbook
type Exporter struct {
	source Lister
	logger *zap.Logger
}

// NewExporter creates a new Exporter reading from source
func NewExporter(source Lister, logger *zap.Logger) *Exporter {
	return &Exporter{source: source, logger: logger}
}

// Write renders the workbook to w
func (e *Exporter) Write(ctx context.Context, w io.Writer) error {
	f, err := e.build(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// SaveAs renders the workbook to a file
func (e *Exporter) SaveAs(ctx context.Context, path string) error {
	f, err := e.build(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	e.logger.Info("Onboarding report saved", zap.String("path", path))
	return nil
}

func (e *Exporter) build(ctx context.Context) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := e.writeHeader(f); err != nil {
		f.Close()
		return nil, err
	}

	row := 2
	for offset := 0; ; offset += pageSize {
		instances, err := e.source.List(ctx, pageSize, offset)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to list onboardings: %w", err)
		}
		for _, inst := range instances {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			values := rowValues(inst)
			if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to write row %d: %w", row, err)
			}
			row++
		}
		if len(instances) < pageSize {
			break
		}
	}

	e.logger.Info("Onboarding report built", zap.Int("rows", row-2))
	return f, nil
}

func (e *Exporter) writeHeader(f *excelize.File) error {
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, style); err != nil {
		e.logger.Warn("Failed to style header", zap.Error(err))
	}

	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	if err := f.SetColWidth(SheetName, "A", lastCol, 18); err != nil {
		e.logger.Warn("Failed to set column width", zap.Error(err))
	}
	return nil
}

func rowValues(inst *entity.OnboardingInstance) []interface{} {
	state := inst.State
	if state == nil {
		state = inst.Input
	}
	if state == nil {
		state = &entity.OnboardingState{}
	}

	var taskID, taskPriority, taskStatus string
	if t := state.FollowUpTask; t != nil {
		taskID, taskPriority, taskStatus = t.ID, string(t.Priority), string(t.Status)
	}

	completed := ""
	if inst.CompletedAt != nil {
		completed = inst.CompletedAt.UTC().Format(time.RFC3339)
	}

	return []interface{}{
		inst.ID,
		inst.EmployeeID,
		state.Employee.FullName(),
		inst.EmployeeEmail,
		string(inst.Status),
		inst.Phase,
		yesNo(state.FormFilled),
		yesNo(state.WelcomeEmailSent),
		yesNo(state.ThankyouEmailSent),
		state.RemindersSent,
		state.ReminderLimit,
		taskID,
		taskPriority,
		taskStatus,
		inst.StartedAt.UTC().Format(time.RFC3339),
		completed,
		inst.Error,
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
