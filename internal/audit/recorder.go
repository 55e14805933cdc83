package audit

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"helpr/internal/domain"
	"helpr/internal/events"
	"helpr/internal/models"

	"github.com/rs/zerolog"
)

// Entry is one admin-initiated change to record.
type Entry struct {
	AdminID    int64
	ActionType models.ActionType
	TargetType models.TargetType
	TargetID   int64
	Previous   map[string]any
	New        map[string]any
	Reason     string
	Provenance models.Provenance
}

// Recorder prepares audit records for the store that commits the audited
// change, and announces them once that commit succeeded. Records are never
// updated or deleted.
type Recorder struct {
	store  domain.AuditStore
	events domain.EventPublisher
	logger *zerolog.Logger
	now    func() time.Time
}

func NewRecorder(store domain.AuditStore, publisher domain.EventPublisher, logger *zerolog.Logger) *Recorder {
	return &Recorder{store: store, events: publisher, logger: logger, now: time.Now}
}

// Prepare validates an entry and builds the record to insert alongside the
// change. Nothing is written.
func (r *Recorder) Prepare(e Entry) (*models.AdminAction, error) {
	if e.AdminID <= 0 {
		return nil, domain.Invalid("admin_id", "admin is required")
	}
	if e.ActionType == "" {
		return nil, domain.Invalid("action_type", "action type is required")
	}
	switch e.TargetType {
	case models.TargetUser, models.TargetBooking, models.TargetService:
	default:
		return nil, domain.Invalid("target_type", fmt.Sprintf("unknown target type %q", e.TargetType))
	}
	if utf8.RuneCountInString(e.Reason) > models.MaxReasonLength {
		return nil, domain.Invalid("reason", fmt.Sprintf("reason must be at most %d characters", models.MaxReasonLength))
	}

	return &models.AdminAction{
		AdminID:       e.AdminID,
		ActionType:    e.ActionType,
		TargetType:    e.TargetType,
		TargetID:      e.TargetID,
		PreviousState: e.Previous,
		NewState:      e.New,
		Reason:        e.Reason,
		Provenance:    e.Provenance,
		CreatedAt:     r.now().UTC(),
	}, nil
}

// Committed logs and publishes a record whose transaction has committed.
func (r *Recorder) Committed(action *models.AdminAction) {
	r.logger.Info().
		Int64("audit_id", action.ID).
		Int64("admin_id", action.AdminID).
		Str("action", string(action.ActionType)).
		Str("target_type", string(action.TargetType)).
		Int64("target_id", action.TargetID).
		Msg("admin action recorded")

	if r.events != nil {
		_ = r.events.PublishJSON(events.EventAdminActionRecorded, events.AdminActionEventPayload{
			ActionID:   action.ID,
			AdminID:    action.AdminID,
			ActionType: string(action.ActionType),
			TargetType: string(action.TargetType),
			TargetID:   action.TargetID,
		})
	}
}

// List returns audit records newest first.
func (r *Recorder) List(ctx context.Context, filter models.AuditFilter, page models.Page) ([]*models.AdminAction, int, error) {
	items, total, err := r.store.ListAdminActions(ctx, filter, page)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list admin actions: %w", err)
	}
	return items, total, nil
}
