package sensor

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the Postgres source needs. pgxmock
// satisfies it for tests.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

const sensorQuery = `SELECT name, status, operational_status, latitude, longitude,
	affected_radius, rainfall, forecasted_rainfall, soil_saturation, slope,
	seismic_activity, soil_type, risk_level, predicted_landslide_time
	FROM sensors`

// PostgresSource reads sensor telemetry straight from the monitoring
// database, for deployments co-located with the backend.
type PostgresSource struct {
	pool    Pool
	closeFn func()
}

// NewPostgres connects to the sensor database and verifies the connection.
func NewPostgres(ctx context.Context, connString string) (*PostgresSource, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "sensor: parse postgres config")
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "sensor: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "sensor: ping")
	}
	return &PostgresSource{pool: pool, closeFn: pool.Close}, nil
}

// Sensors implements Source.
func (s *PostgresSource) Sensors(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, sensorQuery)
	if err != nil {
		return nil, eris.Wrap(err, "sensor: query sensors")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var predicted *time.Time
		if err := rows.Scan(
			&r.Name, &r.Status, &r.OperationalStatus,
			&r.Latitude, &r.Longitude, &r.AffectedRadiusMeters,
			&r.RainfallMM, &r.ForecastedRainfallMM, &r.SoilSaturationPercent,
			&r.SlopeDegrees, &r.SeismicActivity, &r.SoilType, &r.RiskLevel,
			&predicted,
		); err != nil {
			return nil, eris.Wrap(err, "sensor: scan row")
		}
		if predicted != nil {
			r.PredictedLandslideTime = predicted.UTC().Format(time.RFC3339)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sensor: iterate rows")
	}
	return records, nil
}

// Close releases the connection pool.
func (s *PostgresSource) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}
