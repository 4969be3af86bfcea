package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/aquamon/internal/apperr"
)

// Directory reads farms, modules, sensors and users. It is the pipeline's view
// of the CRUD-owned tables and only writes thresholds and measurements.
type Directory struct {
	db     *DB
	logger *zap.Logger
}

// NewDirectory creates a directory backed by the given pool
func NewDirectory(db *DB, logger *zap.Logger) *Directory {
	return &Directory{
		db:     db,
		logger: logger,
	}
}

// GetModuleWithFarmAndOwner loads a module, its farm and the module creator
func (d *Directory) GetModuleWithFarmAndOwner(ctx context.Context, moduleID int64) (*ModuleDetails, error) {
	query := `
		SELECT
			m.id, m.name, m.farm_id, m.created_by,
			f.id, f.name, f.created_by,
			u.id, u.name, u.email, u.role, u.active, u.device_token
		FROM modules m
		JOIN farms f ON f.id = m.farm_id
		LEFT JOIN users u ON u.id = m.created_by
		WHERE m.id = $1
	`

	var (
		details     ModuleDetails
		ownerID     *int64
		ownerName   *string
		ownerEmail  *string
		ownerRole   *string
		ownerActive *bool
		ownerToken  *string
	)

	err := d.db.Pool().QueryRow(ctx, query, moduleID).Scan(
		&details.Module.ID,
		&details.Module.Name,
		&details.Module.FarmID,
		&details.Module.CreatedBy,
		&details.Farm.ID,
		&details.Farm.Name,
		&details.Farm.CreatedBy,
		&ownerID,
		&ownerName,
		&ownerEmail,
		&ownerRole,
		&ownerActive,
		&ownerToken,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", apperr.ErrModuleNotFound, moduleID)
	}
	if err != nil {
		return nil, fmt.Errorf("query module: %w", err)
	}

	if ownerID != nil {
		details.Owner = &User{
			ID:          *ownerID,
			Name:        deref(ownerName),
			Email:       deref(ownerEmail),
			Role:        deref(ownerRole),
			Active:      ownerActive != nil && *ownerActive,
			DeviceToken: ownerToken,
		}
	}

	return &details, nil
}

// GetActiveModuleUserLinks returns active assignments for a module whose users
// are themselves active. excludeUserID (usually the owner) is left out; pass 0
// to exclude nobody.
func (d *Directory) GetActiveModuleUserLinks(ctx context.Context, moduleID, excludeUserID int64) ([]ModuleUserLink, error) {
	query := `
		SELECT
			mu.module_id, mu.user_id, mu.active,
			u.id, u.name, u.email, u.role, u.active, u.device_token
		FROM module_users mu
		JOIN users u ON u.id = mu.user_id
		WHERE mu.module_id = $1
		  AND mu.active = TRUE
		  AND u.active = TRUE
		  AND ($2::bigint = 0 OR mu.user_id <> $2::bigint)
		ORDER BY mu.user_id
	`

	rows, err := d.db.Pool().Query(ctx, query, moduleID, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("query module users: %w", err)
	}
	defer rows.Close()

	var links []ModuleUserLink
	for rows.Next() {
		var link ModuleUserLink
		if err := rows.Scan(
			&link.ModuleID,
			&link.UserID,
			&link.Active,
			&link.User.ID,
			&link.User.Name,
			&link.User.Email,
			&link.User.Role,
			&link.User.Active,
			&link.User.DeviceToken,
		); err != nil {
			return nil, fmt.Errorf("scan module user: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate module users: %w", err)
	}

	return links, nil
}

// GetActiveThresholds returns the active min/max rows configured for a sensor
func (d *Directory) GetActiveThresholds(ctx context.Context, sensorID int64) ([]Threshold, error) {
	query := `
		SELECT id, sensor_id, kind, value, active
		FROM thresholds
		WHERE sensor_id = $1 AND active = TRUE
		ORDER BY id
	`

	rows, err := d.db.Pool().Query(ctx, query, sensorID)
	if err != nil {
		return nil, fmt.Errorf("query thresholds: %w", err)
	}
	defer rows.Close()

	var thresholds []Threshold
	for rows.Next() {
		var t Threshold
		if err := rows.Scan(&t.ID, &t.SensorID, &t.Kind, &t.Value, &t.Active); err != nil {
			return nil, fmt.Errorf("scan threshold: %w", err)
		}
		thresholds = append(thresholds, t)
	}

	return thresholds, rows.Err()
}

// ReplaceThresholds deactivates the sensor's current thresholds and inserts a
// new active min/max pair in one transaction.
func (d *Directory) ReplaceThresholds(ctx context.Context, sensorID int64, min, max float64) ([]Threshold, error) {
	tx, err := d.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE thresholds SET active = FALSE WHERE sensor_id = $1 AND active = TRUE`, sensorID); err != nil {
		return nil, fmt.Errorf("deactivate thresholds: %w", err)
	}

	insert := `
		INSERT INTO thresholds (sensor_id, kind, value, active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id
	`

	out := []Threshold{
		{SensorID: sensorID, Kind: ThresholdMin, Value: min, Active: true},
		{SensorID: sensorID, Kind: ThresholdMax, Value: max, Active: true},
	}
	for i := range out {
		if err := tx.QueryRow(ctx, insert, sensorID, out[i].Kind, out[i].Value).Scan(&out[i].ID); err != nil {
			return nil, fmt.Errorf("insert %s threshold: %w", out[i].Kind, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	d.logger.Info("thresholds replaced",
		zap.Int64("sensor_id", sensorID),
		zap.Float64("min", min),
		zap.Float64("max", max),
	)

	return out, nil
}

// GetSensor loads a sensor by ID
func (d *Directory) GetSensor(ctx context.Context, sensorID int64) (*Sensor, error) {
	var s Sensor
	err := d.db.Pool().QueryRow(ctx,
		`SELECT id, module_id, type, name FROM sensors WHERE id = $1`, sensorID,
	).Scan(&s.ID, &s.ModuleID, &s.Type, &s.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", apperr.ErrSensorNotFound, sensorID)
	}
	if err != nil {
		return nil, fmt.Errorf("query sensor: %w", err)
	}
	return &s, nil
}

// GetUser loads a user by ID
func (d *Directory) GetUser(ctx context.Context, userID int64) (*User, error) {
	var u User
	err := d.db.Pool().QueryRow(ctx,
		`SELECT id, name, email, role, active, device_token FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Active, &u.DeviceToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", apperr.ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// GetActiveModuleIDsForUser lists modules a monitor is actively assigned to
func (d *Directory) GetActiveModuleIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := d.db.Pool().Query(ctx,
		`SELECT module_id FROM module_users WHERE user_id = $1 AND active = TRUE ORDER BY module_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query module assignments: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan module assignment: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// CreateMeasurement stores an ingested reading
func (d *Directory) CreateMeasurement(ctx context.Context, m *Measurement) error {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now().UTC()
	}

	err := d.db.Pool().QueryRow(ctx,
		`INSERT INTO measurements (sensor_id, value, recorded_at) VALUES ($1, $2, $3) RETURNING id`,
		m.SensorID, m.Value, m.RecordedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
