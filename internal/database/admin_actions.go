package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"helpr/internal/models"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertAdminAction appends an audit record, normally inside the transaction
// of the change it describes. The table rejects updates and deletes.
func insertAdminAction(ctx context.Context, ex execer, action *models.AdminAction) error {
	prev, err := marshalState(action.PreviousState)
	if err != nil {
		return fmt.Errorf("failed to encode previous state: %w", err)
	}
	next, err := marshalState(action.NewState)
	if err != nil {
		return fmt.Errorf("failed to encode new state: %w", err)
	}

	now := action.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	result, err := ex.ExecContext(ctx,
		`INSERT INTO admin_actions (
			admin_id, action_type, target_type, target_id, previous_state, new_state,
			reason, ip_address, user_agent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.AdminID, string(action.ActionType), string(action.TargetType), action.TargetID,
		prev, next, action.Reason, action.Provenance.IPAddress, action.Provenance.UserAgent, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert admin action: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	action.ID = id
	action.CreatedAt = now
	return nil
}

func marshalState(state map[string]any) (sql.NullString, error) {
	if state == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalState(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(raw.String), &state); err != nil {
		return nil, err
	}
	return state, nil
}

func (db *DB) ListAdminActions(ctx context.Context, filter models.AuditFilter, page models.Page) ([]*models.AdminAction, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.AdminID != nil {
		conds = append(conds, "admin_id = ?")
		args = append(args, *filter.AdminID)
	}
	if filter.ActionType != "" {
		conds = append(conds, "action_type = ?")
		args = append(args, string(filter.ActionType))
	}
	if filter.TargetType != "" {
		conds = append(conds, "target_type = ?")
		args = append(args, string(filter.TargetType))
	}
	if filter.TargetID != nil {
		conds = append(conds, "target_id = ?")
		args = append(args, *filter.TargetID)
	}
	if filter.From != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, filter.To.UTC())
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_actions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count admin actions: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, admin_id, action_type, target_type, target_id, previous_state, new_state,
		        reason, ip_address, user_agent, created_at
		 FROM admin_actions`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list admin actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.AdminAction
	for rows.Next() {
		var (
			a                  models.AdminAction
			actionType, target string
			prevRaw, nextRaw   sql.NullString
		)
		if err := rows.Scan(
			&a.ID, &a.AdminID, &actionType, &target, &a.TargetID, &prevRaw, &nextRaw,
			&a.Reason, &a.Provenance.IPAddress, &a.Provenance.UserAgent, &a.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan admin action: %w", err)
		}
		a.ActionType = models.ActionType(actionType)
		a.TargetType = models.TargetType(target)
		if a.PreviousState, err = unmarshalState(prevRaw); err != nil {
			return nil, 0, fmt.Errorf("failed to decode previous state: %w", err)
		}
		if a.NewState, err = unmarshalState(nextRaw); err != nil {
			return nil, 0, fmt.Errorf("failed to decode new state: %w", err)
		}
		actions = append(actions, &a)
	}
	return actions, total, rows.Err()
}
