package workflow

import (
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const reportSheet = "Sheet1"

var reportHeadings = []string{
	"Order", "Delivery", "Installment", "Supplier", "Supplier Email", "Scheduled", "Rescheduled To",
}

func buildReconciliationReport(result *ReconciliationResult) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	if sheet == "" {
		sheet = reportSheet
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}

	for i, h := range reportHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		f.SetCellValue(sheet, cell, h)
	}

	for r, item := range result.RescheduledItems {
		installment := ""
		if item.Kind == ItemKindInstallment {
			installment = "#" + itoa(item.InstallmentNumber)
		}
		values := []interface{}{
			item.OrderFolio, item.Kind, installment, item.SupplierName, item.SupplierEmail, item.OldDate, item.NewDate,
		}
		for c, v := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			f.SetCellValue(sheet, cell, v)
		}
	}

	// summary block to the right of the table
	summary := [][2]interface{}{
		{"Run Date", result.RunDate},
		{"Next Business Day", result.NextBusinessDay},
		{"Processed", result.ProcessedCount},
		{"Rescheduled", len(result.RescheduledItems)},
		{"Failed", result.FailedCount},
		{"Skipped", result.SkippedCount},
	}
	for i, row := range summary {
		f.SetCellValue(sheet, "J"+itoa(i+1), row[0])
		f.SetCellValue(sheet, "K"+itoa(i+1), row[1])
	}
	return f, nil
}

// WriteReconciliationReport writes the run result as an xlsx workbook to w.
func WriteReconciliationReport(result *ReconciliationResult, w io.Writer) error {
	f, err := buildReconciliationReport(result)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// SaveReconciliationReport writes the run result as an xlsx workbook at path.
func SaveReconciliationReport(result *ReconciliationResult, path string) error {
	f, err := buildReconciliationReport(result)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
