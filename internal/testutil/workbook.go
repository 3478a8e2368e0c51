// Package testutil builds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet of a fixture workbook. Rows are written from A1
// down; a time.Time cell is stored as a native Excel date.
type Sheet struct {
	Name string
	Rows [][]interface{}
}

// Workbook writes the sheets, in order, into an in-memory xlsx file.
func Workbook(t testing.TB, sheets ...Sheet) *bytes.Reader {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", sheet.Name))
		} else {
			_, err := f.NewSheet(sheet.Name)
			require.NoError(t, err)
		}
		for r, values := range sheet.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			row := values
			require.NoError(t, f.SetSheetRow(sheet.Name, cell, &row))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}
