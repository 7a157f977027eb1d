package sensor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeSensorSheet(t *testing.T, sheetName string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "sensors.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestXLSXSource_Sensors(t *testing.T) {
	path := writeSensorSheet(t, "Sensors", [][]string{
		{"Name", "Status", "Operational Status", "Latitude", "Longitude", "Affected Radius", "Risk Level"},
		{"ridge-7", "Alert", "Active", "10.01", "76.01", "5000", "high"},
		{"valley-2", "Normal", "Active", "10.2", "76.2", "0", "low"},
	})

	records, err := NewXLSX(path, "").Sensors(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "ridge-7", records[0].Name)
	assert.Equal(t, StatusAlert, records[0].Status)
	assert.Equal(t, OperationalActive, records[0].OperationalStatus)
	assert.Equal(t, 10.01, records[0].Latitude)
	assert.Equal(t, 5000.0, records[0].AffectedRadiusMeters)
	assert.Equal(t, "high", records[0].RiskLevel)
	assert.True(t, records[0].Active())
}

func TestXLSXSource_IgnoresUnknownColumnsAndBlankRows(t *testing.T) {
	path := writeSensorSheet(t, "Sensors", [][]string{
		{"Name", "Status", "District", "Latitude"},
		{"ridge-7", "Warning", "Wayanad", "10.01"},
		{"", "", "", ""},
	})

	records, err := NewXLSX(path, "").Sensors(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ridge-7", records[0].Name)
}

func TestXLSXSource_BadNumberFailsClosed(t *testing.T) {
	path := writeSensorSheet(t, "Sensors", [][]string{
		{"Name", "Latitude"},
		{"ridge-7", "ten point oh one"},
	})

	_, err := NewXLSX(path, "").Sensors(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestXLSXSource_SheetSelection(t *testing.T) {
	path := writeSensorSheet(t, "Telemetry", [][]string{
		{"Name"},
		{"ridge-7"},
	})

	_, err := NewXLSX(path, "Missing").Sensors(context.Background())
	require.Error(t, err)

	records, err := NewXLSX(path, "Telemetry").Sensors(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestXLSXSource_MissingFile(t *testing.T) {
	_, err := NewXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), "").Sensors(context.Background())
	require.Error(t, err)
}
