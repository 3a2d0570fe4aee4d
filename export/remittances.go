// Package export renders remittance listings as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/warp/fleet-engine/remittance"
	"github.com/xuri/excelize/v2"
)

const SheetRemittances = "Remittances"

var remittanceHeaders = []string{
	"ID", "Driver", "Vehicle", "Amount", "Paid at", "Status",
	"Reference", "Notes", "Reviewed by", "Reviewed at", "Revision",
}

// Remittances writes one row per remittance to w as an XLSX workbook.
// Times are rendered in loc; nil loc keeps each time's own location.
func Remittances(w io.Writer, rows []remittance.Remittance, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetRemittances)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	for i, header := range remittanceHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetRemittances, cell, header); err != nil {
			return err
		}
	}

	for i, r := range rows {
		reviewedAt := ""
		if r.ReviewedAt != nil {
			reviewedAt = formatTime(*r.ReviewedAt, loc)
		}
		amount, _ := r.Amount.Float64()

		values := []any{
			r.ID,
			r.DriverID,
			r.VehicleID,
			amount,
			formatTime(r.PaidAt, loc),
			string(r.Status),
			r.Reference,
			r.Notes,
			r.ReviewedBy,
			reviewedAt,
			r.Revision,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetRemittances, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetRemittances, "A", "A", 38); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetRemittances, "E", "E", 20); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func formatTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01-02 15:04")
}
