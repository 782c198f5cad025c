package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fprint-service/pkg/driver"
)

// PostgresStore keeps prints in the prints table created by the database
// migrations. Every save and delete is recorded in print_audit.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store over an open pool
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger.With(zap.String("store", "postgres")),
	}
}

// Save inserts or replaces the print under key
func (s *PostgresStore) Save(ctx context.Context, key PrintKey, data []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO prints (driver_id, devtype, finger, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (driver_id, devtype, finger)
		DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`

	err := s.withAudit(ctx, "save", key, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, int(key.DriverID), int(key.DevType), int(key.Finger), data)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to save print", zap.Stringer("key", key), zap.Error(err))
		return fmt.Errorf("failed to save print: %w", err)
	}

	s.logger.Debug("Print saved", zap.Stringer("key", key), zap.Int("size", len(data)))
	return nil
}

// Load reads the print stored under key
func (s *PostgresStore) Load(ctx context.Context, key PrintKey) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT data FROM prints WHERE driver_id = $1 AND devtype = $2 AND finger = $3`

	var data []byte
	err := s.db.QueryRowContext(ctx, query, int(key.DriverID), int(key.DevType), int(key.Finger)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", driver.ErrPrintNotFound, key)
	}
	if err != nil {
		s.logger.Error("Failed to load print", zap.Stringer("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to load print: %w", err)
	}
	return data, nil
}

// Delete removes the print stored under key
func (s *PostgresStore) Delete(ctx context.Context, key PrintKey) error {
	if err := key.Validate(); err != nil {
		return err
	}

	query := `DELETE FROM prints WHERE driver_id = $1 AND devtype = $2 AND finger = $3`

	err := s.withAudit(ctx, "delete", key, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, query, int(key.DriverID), int(key.DevType), int(key.Finger))
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: %s", driver.ErrPrintNotFound, key)
		}
		return nil
	})
	if errors.Is(err, driver.ErrPrintNotFound) {
		return err
	}
	if err != nil {
		s.logger.Error("Failed to delete print", zap.Stringer("key", key), zap.Error(err))
		return fmt.Errorf("failed to delete print: %w", err)
	}

	s.logger.Debug("Print deleted", zap.Stringer("key", key))
	return nil
}

// List returns all stored keys
func (s *PostgresStore) List(ctx context.Context) ([]PrintKey, error) {
	query := `SELECT driver_id, devtype, finger FROM prints ORDER BY driver_id, devtype, finger`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list prints: %w", err)
	}
	defer rows.Close()

	keys := make([]PrintKey, 0)
	for rows.Next() {
		var key PrintKey
		if err := rows.Scan(&key.DriverID, &key.DevType, &key.Finger); err != nil {
			return nil, fmt.Errorf("failed to scan print key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list prints: %w", err)
	}
	return keys, nil
}

// withAudit runs fn and the audit insert in one transaction
func (s *PostgresStore) withAudit(ctx context.Context, action string, key PrintKey, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO print_audit (action, driver_id, devtype, finger) VALUES ($1, $2, $3, $4)`,
		action, int(key.DriverID), int(key.DevType), int(key.Finger),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}
