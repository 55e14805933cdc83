package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"helpr/internal/domain"
	"helpr/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	users  domain.UserRepository
	logger *zerolog.Logger
}

func NewUserService(users domain.UserRepository, logger *zerolog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

func (s *UserService) Me(ctx context.Context, actor domain.Actor) (*models.User, error) {
	u, err := loadUser(ctx, s.users, actor.ID)
	return u, wrap(err, "load user")
}

// ProfileUpdate holds optional profile edits; nil leaves a field unchanged.
type ProfileUpdate struct {
	Name     *string
	Bio      *string
	Services []models.ServiceCategory
}

// UpdateMe edits the caller's name, and bio and service categories for helpers.
// Moderation fields are never written from here, so a concurrent admin action
// is not reverted.
func (s *UserService) UpdateMe(ctx context.Context, actor domain.Actor, upd ProfileUpdate) (*models.User, error) {
	u, err := loadUser(ctx, s.users, actor.ID)
	if err != nil {
		return nil, wrap(err, "load user")
	}

	var fields []domain.FieldError
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" || utf8.RuneCountInString(name) > models.MaxNameLength {
			fields = append(fields, domain.FieldError{Field: "name", Message: fmt.Sprintf("name must be 1-%d characters", models.MaxNameLength)})
		} else {
			u.Name = name
		}
	}
	if u.Role == models.RoleHelper {
		if u.HelperProfile == nil {
			u.HelperProfile = &models.HelperProfile{}
		}
		if upd.Bio != nil {
			bio := strings.TrimSpace(*upd.Bio)
			if utf8.RuneCountInString(bio) > models.MaxBioLength {
				fields = append(fields, domain.FieldError{Field: "bio", Message: fmt.Sprintf("bio must be at most %d characters", models.MaxBioLength)})
			} else {
				u.HelperProfile.Bio = bio
			}
		}
		if upd.Services != nil {
			if err := validCategories(upd.Services); err != nil {
				fields = append(fields, *err)
			} else {
				u.HelperProfile.Services = upd.Services
			}
		}
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}

	if err := s.users.UpdateProfile(ctx, u); err != nil {
		return nil, wrap(storeErr(err, "User"), "update user")
	}
	return u, nil
}

// ListHelpers lists active verified helpers, best rated first.
func (s *UserService) ListHelpers(ctx context.Context, category models.ServiceCategory, page models.Page) ([]*models.User, int, error) {
	if category != "" {
		if err := validCategories([]models.ServiceCategory{category}); err != nil {
			return nil, 0, &domain.ValidationError{Fields: []domain.FieldError{*err}}
		}
	}
	items, total, err := s.users.ListVerifiedHelpers(ctx, category, page)
	return items, total, wrap(err, "list helpers")
}

// GetHelper returns a public helper profile; unverified or inactive helpers
// are reported as not found.
func (s *UserService) GetHelper(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, wrap(storeErr(err, "Helper"), "load helper")
	}
	if !u.IsVerifiedHelper() || !u.IsActive {
		return nil, domain.NotFound("Helper")
	}
	return u, nil
}

func validCategories(cats []models.ServiceCategory) *domain.FieldError {
	for _, c := range cats {
		ok := false
		for _, known := range models.ServiceCategories {
			if c == known {
				ok = true
				break
			}
		}
		if !ok {
			return &domain.FieldError{Field: "services", Message: fmt.Sprintf("unknown category %q", c)}
		}
	}
	return nil
}
