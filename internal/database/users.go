package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"helpr/internal/models"
)

const userColumns = `id, phone, name, role, is_active, deactivated_at, deactivated_by, last_login,
	is_verified, verified_at, verified_by, helper_services, bio, rating, total_bookings, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u             models.User
		role          string
		deactivatedAt sql.NullTime
		deactivatedBy sql.NullInt64
		lastLogin     sql.NullTime
		isVerified    bool
		verifiedAt    sql.NullTime
		verifiedBy    sql.NullInt64
		services      string
		bio           string
		rating        float64
		total         int
	)
	err := row.Scan(
		&u.ID, &u.Phone, &u.Name, &role, &u.IsActive, &deactivatedAt, &deactivatedBy, &lastLogin,
		&isVerified, &verifiedAt, &verifiedBy, &services, &bio, &rating, &total, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.DeactivatedAt = timePtr(deactivatedAt)
	u.DeactivatedBy = int64Ptr(deactivatedBy)
	u.LastLogin = timePtr(lastLogin)
	if u.Role == models.RoleHelper {
		u.HelperProfile = &models.HelperProfile{
			IsVerified:    isVerified,
			VerifiedAt:    timePtr(verifiedAt),
			VerifiedBy:    int64Ptr(verifiedBy),
			Services:      splitCategories(services),
			Bio:           bio,
			Rating:        rating,
			TotalBookings: total,
		}
	}
	return &u, nil
}

func splitCategories(raw string) []models.ServiceCategory {
	out := []models.ServiceCategory{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, models.ServiceCategory(p))
		}
	}
	return out
}

func joinCategories(cats []models.ServiceCategory) string {
	parts := make([]string, 0, len(cats))
	for _, c := range cats {
		parts = append(parts, string(c))
	}
	return strings.Join(parts, ",")
}

// helperColumns flattens the optional helper profile into column values.
func helperColumns(u *models.User) (bool, sql.NullTime, sql.NullInt64, string, string, float64, int) {
	p := u.HelperProfile
	if p == nil {
		return false, sql.NullTime{}, sql.NullInt64{}, "", "", 0, 0
	}
	return p.IsVerified, nullTime(p.VerifiedAt), nullInt64(p.VerifiedBy), joinCategories(p.Services), p.Bio, p.Rating, p.TotalBookings
}

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	verified, verifiedAt, verifiedBy, services, bio, rating, total := helperColumns(user)
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (
			phone, name, role, is_active, last_login, is_verified, verified_at, verified_by,
			helper_services, bio, rating, total_bookings, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Phone, user.Name, string(user.Role), user.IsActive, nullTime(user.LastLogin),
		verified, verifiedAt, verifiedBy, services, bio, rating, total, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (db *DB) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return db.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE phone = ?`, phone)
}

func (db *DB) queryUser(ctx context.Context, query string, args ...any) (*models.User, error) {
	user, err := scanUser(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateProfile writes only the self-service fields: name, bio and helper
// categories. Moderation columns are never touched here.
func (db *DB) UpdateProfile(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	_, _, _, services, bio, _, _ := helperColumns(user)
	result, err := db.ExecContext(ctx,
		`UPDATE users SET name = ?, helper_services = ?, bio = ?, updated_at = ? WHERE id = ?`,
		user.Name, services, bio, now, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	user.UpdatedAt = now
	return nil
}

// ModerateUser writes the activation and verification columns, conditional on
// the row still holding the moderation state the caller loaded. A non-nil
// action is inserted in the same transaction.
func (db *DB) ModerateUser(ctx context.Context, user *models.User, from models.Moderation, action *models.AdminAction) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	verified, verifiedAt, verifiedBy, _, _, _, _ := helperColumns(user)
	result, err := tx.ExecContext(ctx,
		`UPDATE users SET is_active = ?, deactivated_at = ?, deactivated_by = ?,
			is_verified = ?, verified_at = ?, verified_by = ?, updated_at = ?
		 WHERE id = ? AND is_active = ? AND is_verified = ?`,
		user.IsActive, nullTime(user.DeactivatedAt), nullInt64(user.DeactivatedBy),
		verified, verifiedAt, verifiedBy, now,
		user.ID, from.IsActive, from.IsVerified,
	)
	if err != nil {
		return fmt.Errorf("failed to moderate user: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, user.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrConcurrentModification
	}

	if action != nil {
		if err := insertAdminAction(ctx, tx, action); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit moderation: %w", err)
	}
	user.UpdatedAt = now
	return nil
}

func (db *DB) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (db *DB) ListUsers(ctx context.Context, filter models.UserFilter, page models.Page) ([]*models.User, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Role != "" {
		conds = append(conds, "role = ?")
		args = append(args, string(filter.Role))
	}
	if filter.IsActive != nil {
		conds = append(conds, "is_active = ?")
		args = append(args, *filter.IsActive)
	}
	if filter.Verified != nil {
		conds = append(conds, "is_verified = ?")
		args = append(args, *filter.Verified)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	return db.listUsers(ctx, where, " ORDER BY created_at DESC, id DESC", args, page)
}

// ListVerifiedHelpers returns active verified helpers ordered by rating, optionally
// restricted to those offering category.
func (db *DB) ListVerifiedHelpers(ctx context.Context, category models.ServiceCategory, page models.Page) ([]*models.User, int, error) {
	where := ` WHERE role = ? AND is_active = 1 AND is_verified = 1`
	args := []any{string(models.RoleHelper)}
	if category != "" {
		where += ` AND (',' || helper_services || ',') LIKE ?`
		args = append(args, "%,"+string(category)+",%")
	}
	return db.listUsers(ctx, where, " ORDER BY rating DESC, total_bookings DESC, id ASC", args, page)
}

func (db *DB) listUsers(ctx context.Context, where, order string, args []any, page models.Page) ([]*models.User, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users`+where+order+` LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}
