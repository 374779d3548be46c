package entity

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore persists entity records in the entity_records table.
//
// Every write is a single INSERT ... ON CONFLICT(key) DO UPDATE statement,
// so concurrent writers touching different keys never need coordination.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a store over an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// UpsertReading records a sensor value and marks the sensor live.
func (s *SQLiteStore) UpsertReading(ctx context.Context, key Key, value float64) error {
	sensor, ok := SensorByKey(key)
	if !ok {
		return fmt.Errorf("%w: %q is not a sensor", ErrUnknownKey, key)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_records (key, kind, value, unit, liveness, origin, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			unit = excluded.unit,
			liveness = excluded.liveness,
			origin = excluded.origin,
			updated_at = excluded.updated_at`,
		string(key), string(KindSensor), value, sensor.Unit,
		string(LivenessOK), string(OriginMQTT), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("%w: upserting reading for %s: %w", ErrStoreWrite, key, err)
	}
	return nil
}

// UpsertLiveness records a sensor's presence marker. The stored value is
// left untouched; a new record is created with no value.
func (s *SQLiteStore) UpsertLiveness(ctx context.Context, key Key, liveness Liveness) error {
	sensor, ok := SensorByKey(key)
	if !ok {
		return fmt.Errorf("%w: %q is not a sensor", ErrUnknownKey, key)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_records (key, kind, value, unit, liveness, origin, updated_at)
		VALUES (?, ?, NULL, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			liveness = excluded.liveness,
			origin = excluded.origin,
			updated_at = excluded.updated_at`,
		string(key), string(KindSensor), sensor.Unit,
		string(liveness), string(OriginMQTT), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("%w: upserting liveness for %s: %w", ErrStoreWrite, key, err)
	}
	return nil
}

// UpsertActuator records an actuator's engaged flag as written by the
// control engine.
func (s *SQLiteStore) UpsertActuator(ctx context.Context, key Key, engaged bool) error {
	if !IsActuator(key) {
		return fmt.Errorf("%w: %q is not an actuator", ErrUnknownKey, key)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_records (key, kind, engaged, origin, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			engaged = excluded.engaged,
			origin = excluded.origin,
			updated_at = excluded.updated_at`,
		string(key), string(KindActuator), engaged,
		string(OriginController), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("%w: upserting actuator %s: %w", ErrStoreWrite, key, err)
	}
	return nil
}

// Latest returns every stored record, ordered by key.
func (s *SQLiteStore) Latest(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, kind, value, unit, liveness, engaged, origin, updated_at
		FROM entity_records
		ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying records: %w", ErrStoreRead, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStoreRead, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating records: %w", ErrStoreRead, err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		r                   Record
		key, kind, liveness string
		origin, updatedAt   string
		value               sql.NullFloat64
	)
	if err := rows.Scan(&key, &kind, &value, &r.Unit, &liveness, &r.Engaged, &origin, &updatedAt); err != nil {
		return Record{}, fmt.Errorf("scanning record: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("parsing updated_at for %s: %w", key, err)
	}

	r.Key = Key(key)
	r.Kind = Kind(kind)
	r.Liveness = Liveness(liveness)
	r.Origin = Origin(origin)
	r.UpdatedAt = ts
	if value.Valid {
		v := value.Float64
		r.Value = &v
	}
	return r, nil
}

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}
