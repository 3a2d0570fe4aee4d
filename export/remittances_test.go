package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fleet-engine/remittance"
	"github.com/xuri/excelize/v2"
)

func TestRemittances_WritesHeaderAndRows(t *testing.T) {
	// GIVEN: one approved and one pending remittance
	paid := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	reviewed := paid.Add(2 * time.Hour)
	rows := []remittance.Remittance{
		{ID: "r1", DriverID: "d1", VehicleID: "v1", Amount: decimal.RequireFromString("500.50"),
			PaidAt: paid, Status: remittance.StatusApproved, ReviewedBy: "ops", ReviewedAt: &reviewed, Revision: 1},
		{ID: "r2", DriverID: "d2", VehicleID: "v2", Amount: decimal.NewFromInt(200),
			PaidAt: paid, Status: remittance.StatusPending},
	}

	// WHEN: exporting
	var buf bytes.Buffer
	require.NoError(t, Remittances(&buf, rows, time.UTC))

	// THEN: the workbook has one sheet with a header and two rows
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetRemittances}, f.GetSheetList())

	got, err := f.GetRows(SheetRemittances)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "ID", got[0][0])
	assert.Equal(t, "Revision", got[0][10])

	assert.Equal(t, "r1", got[1][0])
	assert.Equal(t, "500.5", got[1][3])
	assert.Equal(t, "2025-01-15 09:30", got[1][4])
	assert.Equal(t, "APPROVED", got[1][5])
	assert.Equal(t, "2025-01-15 11:30", got[1][9])

	assert.Equal(t, "PENDING", got[2][5])
}

func TestRemittances_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Remittances(&buf, nil, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(SheetRemittances)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
