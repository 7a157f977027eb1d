package sensor

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXSource reads sensor records from a spreadsheet shared by the district
// disaster management authority. Field teams carry these exports when the
// backend API is unreachable.
type XLSXSource struct {
	path      string
	sheetName string
}

// NewXLSX creates a source reading from the given spreadsheet. An empty
// sheetName selects the first sheet.
func NewXLSX(path, sheetName string) *XLSXSource {
	return &XLSXSource{path: path, sheetName: sheetName}
}

// Column headers the parser recognizes, lowercased. Agencies are not
// consistent about casing or underscores, so matching is normalized.
var xlsxColumns = map[string]func(*Record, string) error{
	"name":                     func(r *Record, v string) error { r.Name = v; return nil },
	"status":                   func(r *Record, v string) error { r.Status = v; return nil },
	"operational_status":       func(r *Record, v string) error { r.OperationalStatus = v; return nil },
	"latitude":                 floatField(func(r *Record, f float64) { r.Latitude = f }),
	"longitude":                floatField(func(r *Record, f float64) { r.Longitude = f }),
	"affected_radius":          floatField(func(r *Record, f float64) { r.AffectedRadiusMeters = f }),
	"rainfall":                 floatField(func(r *Record, f float64) { r.RainfallMM = f }),
	"forecasted_rainfall":      floatField(func(r *Record, f float64) { r.ForecastedRainfallMM = f }),
	"soil_saturation":          floatField(func(r *Record, f float64) { r.SoilSaturationPercent = f }),
	"slope":                    floatField(func(r *Record, f float64) { r.SlopeDegrees = f }),
	"seismic_activity":         floatField(func(r *Record, f float64) { r.SeismicActivity = f }),
	"soil_type":                func(r *Record, v string) error { r.SoilType = v; return nil },
	"risk_level":               func(r *Record, v string) error { r.RiskLevel = v; return nil },
	"predicted_landslide_time": func(r *Record, v string) error { r.PredictedLandslideTime = v; return nil },
}

func floatField(set func(*Record, float64)) func(*Record, string) error {
	return func(r *Record, v string) error {
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		set(r, f)
		return nil
	}
}

// Sensors implements Source. The first row must be a header naming the
// columns; unrecognized columns are ignored.
func (s *XLSXSource) Sensors(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := xlsx.OpenFile(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "sensor: open spreadsheet %s", s.path)
	}

	sheet, err := s.sheet(f)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("sensor: spreadsheet %s has no header row", s.path)
	}

	header := normalizeHeader(sheet.Rows[0])
	var records []Record
	for i, row := range sheet.Rows[1:] {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "sensor: read spreadsheet")
		}
		rec, empty, err := parseRow(header, row)
		if err != nil {
			return nil, eris.Wrapf(err, "sensor: row %d", i+2)
		}
		if empty {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *XLSXSource) sheet(f *xlsx.File) (*xlsx.Sheet, error) {
	if s.sheetName != "" {
		sheet, ok := f.Sheet[s.sheetName]
		if !ok {
			return nil, eris.Errorf("sensor: sheet %q not found", s.sheetName)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("sensor: spreadsheet %s has no sheets", s.path)
	}
	return f.Sheets[0], nil
}

func normalizeHeader(row *xlsx.Row) []string {
	cols := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		name := strings.ToLower(strings.TrimSpace(cell.String()))
		cols[i] = strings.ReplaceAll(name, " ", "_")
	}
	return cols
}

func parseRow(header []string, row *xlsx.Row) (Record, bool, error) {
	var rec Record
	empty := true
	for i, cell := range row.Cells {
		if i >= len(header) {
			break
		}
		v := strings.TrimSpace(cell.String())
		if v != "" {
			empty = false
		}
		set, ok := xlsxColumns[header[i]]
		if !ok {
			continue
		}
		if err := set(&rec, v); err != nil {
			return Record{}, false, eris.Wrapf(err, "column %s", header[i])
		}
	}
	return rec, empty, nil
}
