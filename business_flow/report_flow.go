package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/wedding-automations/repository"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/xuri/excelize/v2"
)

// ReportFlow exports automation results
type ReportFlow interface {
	// FailureReport returns an xlsx workbook with a summary sheet and one row per failed recipient
	FailureReport(ctx context.Context, automationID uint) (string, []byte, error)
}

// ReportFlowImpl implements ReportFlow
type ReportFlowImpl struct {
	automationRepo repository.AutomationRepository
}

func NewReportFlow(automationRepo repository.AutomationRepository) ReportFlow {
	return &ReportFlowImpl{automationRepo: automationRepo}
}

func (f *ReportFlowImpl) FailureReport(ctx context.Context, automationID uint) (string, []byte, error) {
	automation, err := f.automationRepo.ByID(ctx, automationID)
	if err != nil {
		return "", nil, NewBusinessError("AUTOMATION_LOOKUP_FAILED", "Failed to lookup automation", err)
	}
	if automation == nil {
		return "", nil, NewBusinessError("AUTOMATION_NOT_FOUND", "Automation not found", ErrAutomationNotFound)
	}

	failures, err := f.automationRepo.ListFailureDetails(ctx, automationID)
	if err != nil {
		return "", nil, NewBusinessError("FAILURE_DETAILS_LOOKUP_FAILED", "Failed to load failure details", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	summary := "Summary"
	xl.SetSheetName(xl.GetSheetName(0), summary)

	completedAt := ""
	if automation.Stats.CompletedAt != nil {
		completedAt = automation.Stats.CompletedAt.UTC().Format(time.RFC3339)
	}
	audience := ""
	if automation.AudienceSize != nil {
		audience = strconv.Itoa(*automation.AudienceSize)
	}
	summaryRows := [][]string{
		{"automation_id", strconv.FormatUint(uint64(automation.ID), 10)},
		{"name", automation.Name},
		{"type", string(automation.Type)},
		{"status", automation.Status.String()},
		{"scheduled_at", automation.ScheduledAt.UTC().Format(time.RFC3339)},
		{"time_zone", automation.TimeZone},
		{"audience_size", audience},
		{"send_records", strconv.Itoa(len(automation.SendRecordIDs))},
		{"successful_messages", strconv.Itoa(automation.Stats.SuccessfulMessages)},
		{"failed_messages", strconv.Itoa(automation.Stats.FailedMessages)},
		{"completed_at", completedAt},
	}
	for i, row := range summaryRows {
		cellRef, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = xl.SetSheetRow(summary, cellRef, &row)
	}

	sheet := "Failures"
	if _, err := xl.NewSheet(sheet); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to create failures sheet", err)
	}
	header := []string{"recipient_id", "send_record_id", "address", "provider_message_id", "reason", "error_code", "error_message", "recorded_at"}
	_ = xl.SetSheetRow(sheet, "A1", &header)

	for i, d := range failures {
		sendRecordID := ""
		if d.SendRecordID != nil {
			sendRecordID = strconv.FormatUint(uint64(*d.SendRecordID), 10)
		}
		record := []string{
			strconv.FormatUint(uint64(d.RecipientID), 10),
			sendRecordID,
			d.Address,
			utils.Deref(d.ProviderMessageID),
			string(d.Reason),
			utils.Deref(d.ErrorCode),
			utils.Deref(d.ErrorMessage),
			d.CreatedAt.UTC().Format(time.RFC3339),
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = xl.SetSheetRow(sheet, cellRef, &record)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	filename := fmt.Sprintf("automation_%d_failures.xlsx", automation.ID)
	return filename, buf.Bytes(), nil
}
