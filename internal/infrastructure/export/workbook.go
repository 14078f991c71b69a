// Package export renders approval history as spreadsheets.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approvals/internal/application/port"
)

const (
	SheetSummary   = "Summary"
	SheetWorkflows = "Workflows"
	SheetLedger    = "Ledger"
	SheetVersions  = "Versions"

	timeLayout = "2006-01-02 15:04:05"
)

// AuditWorkbook writes an audit report as an xlsx workbook with one sheet
// per record kind.
type AuditWorkbook struct {
	logger *zap.Logger
}

func NewAuditWorkbook(logger *zap.Logger) *AuditWorkbook {
	return &AuditWorkbook{logger: logger}
}

func (a *AuditWorkbook) WriteAuditReport(w io.Writer, report *port.AuditReport) error {
	if report == nil || report.Project == nil {
		return fmt.Errorf("audit report has no project")
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetWorkflows, SheetLedger, SheetVersions} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	p := report.Project
	summary := [][]interface{}{
		{"Field", "Value"},
		{"Project ID", p.ID},
		{"Name", p.Name},
		{"Owner", p.OwnerID},
		{"Status", string(p.Status)},
		{"Phase", string(p.Phase)},
		{"Scenario", string(p.Scenario)},
		{"Budget Amount", p.BudgetAmount()},
		{"Conservative", p.Totals.Conservative},
		{"Expected", p.Totals.Expected},
		{"Stretch", p.Totals.Stretch},
		{"Version", p.Version},
		{"Submitted At", formatTime(p.SubmittedAt)},
		{"Approved At", formatTime(p.ApprovedAt)},
	}
	if err := a.writeRows(f, SheetSummary, header, summary); err != nil {
		return err
	}

	workflows := [][]interface{}{{
		"Workflow ID", "Tier", "Sequential", "Status", "Step", "Total Steps",
		"Required Roles", "Completed Roles", "Pending Roles",
		"Submitted By", "Submitted At", "SLA Deadline", "Completed At",
	}}
	for _, wf := range report.Workflows {
		workflows = append(workflows, []interface{}{
			wf.ID, wf.TierName, wf.Sequential, string(wf.Status), wf.CurrentStep, wf.TotalSteps,
			strings.Join(wf.RequiredRoles, ", "),
			strings.Join(wf.CompletedRoles, ", "),
			strings.Join(wf.PendingRoles, ", "),
			wf.SubmittedBy, wf.SubmittedAt.UTC().Format(timeLayout),
			wf.SLADeadline.UTC().Format(timeLayout), formatTime(wf.CompletedAt),
		})
	}
	if err := a.writeRows(f, SheetWorkflows, header, workflows); err != nil {
		return err
	}

	ledger := [][]interface{}{{"Entry ID", "Workflow ID", "Time", "Actor", "Role", "Action", "Notes"}}
	for _, e := range report.Ledger {
		ledger = append(ledger, []interface{}{
			e.ID, e.WorkflowID, e.CreatedAt.UTC().Format(timeLayout),
			e.ActorID, e.ActorRole, string(e.Action), e.Notes,
		})
	}
	if err := a.writeRows(f, SheetLedger, header, ledger); err != nil {
		return err
	}

	versions := [][]interface{}{{"Version", "Author", "Time", "Snapshot"}}
	for _, v := range report.Versions {
		versions = append(versions, []interface{}{
			v.VersionNumber, v.AuthorID, v.CreatedAt.UTC().Format(timeLayout), v.Snapshot,
		})
	}
	if err := a.writeRows(f, SheetVersions, header, versions); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	a.logger.Info("Audit workbook written",
		zap.Int64("project_id", p.ID),
		zap.Int("workflows", len(report.Workflows)),
		zap.Int("ledger_entries", len(report.Ledger)),
		zap.Int("versions", len(report.Versions)))
	return nil
}

// writeRows fills sheet from A1 down and bolds the first row.
func (a *AuditWorkbook) writeRows(f *excelize.File, sheet string, headerStyle int, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}

	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		a.logger.Warn("Failed to style header row", zap.String("sheet", sheet), zap.Error(err))
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
