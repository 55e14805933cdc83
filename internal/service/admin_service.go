package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"helpr/internal/audit"
	"helpr/internal/database"
	"helpr/internal/domain"
	"helpr/internal/models"

	"github.com/rs/zerolog"
)

// AdminService covers user moderation and helper verification. Every
// mutation commits together with its audit record.
type AdminService struct {
	users   domain.UserRepository
	auditor Auditor
	conns   domain.ConnectionCloser
	logger  *zerolog.Logger
	now     func() time.Time
}

// NewAdminService builds the service. conns may be nil; when set, a
// deactivated user's live connections are closed.
func NewAdminService(users domain.UserRepository, auditor Auditor, conns domain.ConnectionCloser, logger *zerolog.Logger) *AdminService {
	return &AdminService{users: users, auditor: auditor, conns: conns, logger: logger, now: time.Now}
}

func (s *AdminService) requireAdmin(actor domain.Actor, action string) error {
	if actor.IsAdmin() {
		return nil
	}
	s.logger.Warn().Int64("actor_id", actor.ID).Str("role", string(actor.Role)).Str("action", action).Msg("forbidden admin action")
	return domain.Forbidden("admin access required")
}

func (s *AdminService) ListUsers(ctx context.Context, actor domain.Actor, filter models.UserFilter, page models.Page) ([]*models.User, int, error) {
	if err := s.requireAdmin(actor, "list users"); err != nil {
		return nil, 0, err
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, 0, domain.Invalid("role", "unknown role")
	}
	items, total, err := s.users.ListUsers(ctx, filter, page)
	return items, total, wrap(err, "list users")
}

func (s *AdminService) GetUser(ctx context.Context, actor domain.Actor, id int64) (*models.User, error) {
	if err := s.requireAdmin(actor, "get user"); err != nil {
		return nil, err
	}
	u, err := loadUser(ctx, s.users, id)
	return u, wrap(err, "load user")
}

// PendingHelpers lists active helpers awaiting verification.
func (s *AdminService) PendingHelpers(ctx context.Context, actor domain.Actor, page models.Page) ([]*models.User, int, error) {
	if err := s.requireAdmin(actor, "list pending helpers"); err != nil {
		return nil, 0, err
	}
	active, verified := true, false
	items, total, err := s.users.ListUsers(ctx, models.UserFilter{Role: models.RoleHelper, IsActive: &active, Verified: &verified}, page)
	return items, total, wrap(err, "list pending helpers")
}

func (s *AdminService) Deactivate(ctx context.Context, actor domain.Actor, id int64, reason string, prov models.Provenance) (*models.User, error) {
	u, err := s.moderate(ctx, actor, id, models.ActionUserDeactivate, reason, prov, func(u *models.User) error {
		if u.Role == models.RoleAdmin {
			return domain.Forbidden("cannot deactivate admin users")
		}
		if !u.IsActive {
			return domain.Conflict("user is already deactivated")
		}
		now := s.now().UTC()
		by := actor.ID
		u.IsActive = false
		u.DeactivatedAt = &now
		u.DeactivatedBy = &by
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.conns != nil {
		s.conns.DisconnectUser(u.ID)
	}
	return u, nil
}

func (s *AdminService) Activate(ctx context.Context, actor domain.Actor, id int64, reason string, prov models.Provenance) (*models.User, error) {
	return s.moderate(ctx, actor, id, models.ActionUserActivate, reason, prov, func(u *models.User) error {
		if u.IsActive {
			return domain.Conflict("user is already active")
		}
		u.IsActive = true
		u.DeactivatedAt = nil
		u.DeactivatedBy = nil
		return nil
	})
}

func (s *AdminService) VerifyHelper(ctx context.Context, actor domain.Actor, id int64, reason string, prov models.Provenance) (*models.User, error) {
	return s.moderate(ctx, actor, id, models.ActionHelperVerify, reason, prov, func(u *models.User) error {
		if u.Role != models.RoleHelper {
			return domain.Invalid("id", "user is not a helper")
		}
		if u.HelperProfile == nil {
			u.HelperProfile = &models.HelperProfile{}
		}
		if u.HelperProfile.IsVerified {
			return domain.Conflict("helper is already verified")
		}
		now := s.now().UTC()
		by := actor.ID
		u.HelperProfile.IsVerified = true
		u.HelperProfile.VerifiedAt = &now
		u.HelperProfile.VerifiedBy = &by
		return nil
	})
}

func (s *AdminService) UnverifyHelper(ctx context.Context, actor domain.Actor, id int64, reason string, prov models.Provenance) (*models.User, error) {
	return s.moderate(ctx, actor, id, models.ActionHelperUnverify, reason, prov, func(u *models.User) error {
		if u.Role != models.RoleHelper {
			return domain.Invalid("id", "user is not a helper")
		}
		if u.HelperProfile == nil || !u.HelperProfile.IsVerified {
			return domain.Conflict("helper is not verified")
		}
		u.HelperProfile.IsVerified = false
		u.HelperProfile.VerifiedAt = nil
		u.HelperProfile.VerifiedBy = nil
		return nil
	})
}

func (s *AdminService) moderate(
	ctx context.Context,
	actor domain.Actor,
	id int64,
	action models.ActionType,
	reason string,
	prov models.Provenance,
	mutate func(u *models.User) error,
) (*models.User, error) {
	if err := s.requireAdmin(actor, string(action)); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > models.MaxReasonLength {
		return nil, domain.Invalid("reason", fmt.Sprintf("reason must be at most %d characters", models.MaxReasonLength))
	}

	u, err := loadUser(ctx, s.users, id)
	if err != nil {
		return nil, wrap(err, "load user")
	}
	previous := u.Snapshot()
	from := u.Moderation()
	if err := mutate(u); err != nil {
		return nil, err
	}

	record, err := s.auditor.Prepare(audit.Entry{
		AdminID:    actor.ID,
		ActionType: action,
		TargetType: models.TargetUser,
		TargetID:   u.ID,
		Previous:   previous,
		New:        u.Snapshot(),
		Reason:     reason,
		Provenance: prov,
	})
	if err != nil {
		return nil, err
	}
	if err := s.users.ModerateUser(ctx, u, from, record); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, domain.Conflict("user was modified concurrently")
		}
		return nil, wrap(storeErr(err, "User"), "update user")
	}

	s.auditor.Committed(record)
	return u, nil
}
