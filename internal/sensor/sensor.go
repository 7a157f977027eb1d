// Package sensor defines the raw landslide-sensor record and the sources
// that supply it: the relief backend API, a colocated Postgres database, or
// an agency-shared spreadsheet for offline field use.
package sensor

import "context"

// Status values reported by a sensor.
const (
	StatusNormal  = "Normal"
	StatusWarning = "Warning"
	StatusAlert   = "Alert"
)

// OperationalActive marks a sensor that is powered and reporting. Records
// with any other operational status are ignored by the hazard model.
const OperationalActive = "Active"

// Record is one raw sensor row as supplied by a Source. Coordinates and the
// affected radius feed the hazard model; the remaining fields are risk
// telemetry surfaced for inspection only.
type Record struct {
	Name                   string  `json:"name"`
	Status                 string  `json:"status"`
	OperationalStatus      string  `json:"operational_status"`
	Latitude               float64 `json:"latitude"`
	Longitude              float64 `json:"longitude"`
	AffectedRadiusMeters   float64 `json:"affected_radius"`
	RainfallMM             float64 `json:"rainfall"`
	ForecastedRainfallMM   float64 `json:"forecasted_rainfall"`
	SoilSaturationPercent  float64 `json:"soil_saturation"`
	SlopeDegrees           float64 `json:"slope"`
	SeismicActivity        float64 `json:"seismic_activity"`
	SoilType               string  `json:"soil_type"`
	RiskLevel              string  `json:"risk_level"`
	PredictedLandslideTime string  `json:"predicted_landslide_time"`
}

// Active reports whether the sensor is operational.
func (r Record) Active() bool {
	return r.OperationalStatus == OperationalActive
}

// Source supplies the current sensor records. Sensor data is load-bearing
// for the evacuation decision, so sources fail closed: an error means the
// evaluation cannot proceed, unlike the fail-open feature providers.
type Source interface {
	Sensors(ctx context.Context) ([]Record, error)
}
