package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"helpr/internal/models"
)

const serviceColumns = `id, name, description, category, icon, is_active, created_by, created_at, updated_at`

func scanService(row rowScanner) (*models.Service, error) {
	var (
		s         models.Service
		category  string
		createdBy sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &category, &s.Icon, &s.IsActive, &createdBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Category = models.ServiceCategory(category)
	s.CreatedBy = int64Ptr(createdBy)
	return &s, nil
}

// CreateService inserts a catalog entry. A non-nil action is inserted in the
// same transaction with its target set to the new service.
func (db *DB) CreateService(ctx context.Context, svc *models.Service, action *models.AdminAction) error {
	if svc.Icon == "" {
		svc.Icon = "help-circle"
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO services (name, description, category, icon, is_active, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		svc.Name, svc.Description, string(svc.Category), svc.Icon, svc.IsActive, nullInt64(svc.CreatedBy), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create service: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	if action != nil {
		action.TargetID = id
		if err := insertAdminAction(ctx, tx, action); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit service: %w", err)
	}
	svc.ID = id
	svc.CreatedAt = now
	svc.UpdatedAt = now
	return nil
}

func (db *DB) GetService(ctx context.Context, id int64) (*models.Service, error) {
	svc, err := scanService(db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return svc, nil
}

func (db *DB) ListServices(ctx context.Context, category models.ServiceCategory, activeOnly bool) ([]*models.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE 1 = 1`
	var args []any
	if category != "" {
		query += ` AND category = ?`
		args = append(args, string(category))
	}
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY category ASC, name ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// UpdateService rewrites a catalog entry. A non-nil action is inserted in the
// same transaction.
func (db *DB) UpdateService(ctx context.Context, svc *models.Service, action *models.AdminAction) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE services SET name = ?, description = ?, category = ?, icon = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		svc.Name, svc.Description, string(svc.Category), svc.Icon, svc.IsActive, now, svc.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update service: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}

	if action != nil {
		if err := insertAdminAction(ctx, tx, action); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit service: %w", err)
	}
	svc.UpdatedAt = now
	return nil
}

// SeedServices inserts catalog entries whose names are not yet present.
func (db *DB) SeedServices(ctx context.Context, services []models.Service) (int, error) {
	inserted := 0
	for i := range services {
		svc := services[i]
		svc.IsActive = true
		err := db.CreateService(ctx, &svc, nil)
		if errors.Is(err, ErrDuplicate) {
			continue
		}
		if err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}
