package report

import (
	"bytes"
	"fmt"

	"loan-engine/internal/domain/loan"

	"github.com/xuri/excelize/v2"
)

const scheduleSheet = "Schedule"

type scheduleColumn struct {
	Header string
	Money  bool
	Value  func(r loan.ScheduleRow) any
}

var scheduleColumns = []scheduleColumn{
	{Header: "No.", Value: func(r loan.ScheduleRow) any { return r.PaymentNumber }},
	{Header: "Due date", Value: func(r loan.ScheduleRow) any { return r.DueDate.Format("2006-01-02") }},
	{Header: "Principal", Money: true, Value: func(r loan.ScheduleRow) any { return r.PrincipalAmount.InexactFloat64() }},
	{Header: "Interest", Money: true, Value: func(r loan.ScheduleRow) any { return r.InterestAmount.InexactFloat64() }},
	{Header: "Total", Money: true, Value: func(r loan.ScheduleRow) any { return r.TotalAmount.InexactFloat64() }},
	{Header: "Paid", Money: true, Value: func(r loan.ScheduleRow) any { return r.PaidAmount.InexactFloat64() }},
	{Header: "Remaining", Money: true, Value: func(r loan.ScheduleRow) any { return r.RemainingAmount.InexactFloat64() }},
	{Header: "Status", Value: func(r loan.ScheduleRow) any { return string(r.Status) }},
	{Header: "Overdue", Value: func(r loan.ScheduleRow) any { return r.IsOverdue }},
	{Header: "Paid date", Value: func(r loan.ScheduleRow) any {
		if r.PaidDate == nil {
			return ""
		}
		return r.PaidDate.Format("2006-01-02")
	}},
	{Header: "Method", Value: func(r loan.ScheduleRow) any { return r.PaymentMethod }},
	{Header: "Reference", Value: func(r loan.ScheduleRow) any { return r.PaymentReference }},
}

// ScheduleWorkbook renders the schedule projection of one loan as an XLSX file.
func ScheduleWorkbook(l *loan.Loan, rows []loan.ScheduleRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), scheduleSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	_ = f.SetDocProps(&excelize.DocProperties{
		Title:   l.LoanNumber,
		Subject: "Installment schedule",
		Creator: "loan-engine",
	})

	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, fmt.Errorf("create money style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	summary := [][2]any{
		{"Loan number", l.LoanNumber},
		{"Customer", l.Customer.Name},
		{"Status", string(l.Status)},
		{"Loan amount", l.LoanAmount.InexactFloat64()},
		{"Total amount", l.TotalAmount.InexactFloat64()},
		{"Late fees", l.TotalLateFees.InexactFloat64()},
	}
	for i, kv := range summary {
		_ = f.SetCellValue(scheduleSheet, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(scheduleSheet, fmt.Sprintf("B%d", i+1), kv[1])
	}

	headerRow := len(summary) + 2
	for i, col := range scheduleColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		_ = f.SetCellValue(scheduleSheet, cell, col.Header)
		_ = f.SetCellStyle(scheduleSheet, cell, cell, headerStyle)
	}

	for i, r := range rows {
		rowIdx := headerRow + 1 + i
		for colIdx, col := range scheduleColumns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx)
			if err := f.SetCellValue(scheduleSheet, cell, col.Value(r)); err != nil {
				return nil, fmt.Errorf("write cell %s: %w", cell, err)
			}
			if col.Money {
				_ = f.SetCellStyle(scheduleSheet, cell, cell, moneyStyle)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
