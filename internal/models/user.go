package models

import "time"

type HelperProfile struct {
	IsVerified    bool              `json:"is_verified"`
	VerifiedAt    *time.Time        `json:"verified_at,omitempty"`
	VerifiedBy    *int64            `json:"verified_by,omitempty"`
	Services      []ServiceCategory `json:"services"`
	Bio           string            `json:"bio,omitempty"`
	Rating        float64           `json:"rating"`
	TotalBookings int               `json:"total_bookings"`
}

type User struct {
	ID            int64          `json:"id"`
	Phone         string         `json:"phone"`
	Name          string         `json:"name"`
	Role          Role           `json:"role"`
	IsActive      bool           `json:"is_active"`
	DeactivatedAt *time.Time     `json:"deactivated_at,omitempty"`
	DeactivatedBy *int64         `json:"deactivated_by,omitempty"`
	LastLogin     *time.Time     `json:"last_login,omitempty"`
	HelperProfile *HelperProfile `json:"helper_profile,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IsVerifiedHelper reports whether the user may accept bookings.
func (u *User) IsVerifiedHelper() bool {
	return u.Role == RoleHelper && u.HelperProfile != nil && u.HelperProfile.IsVerified
}

// Offers reports whether a helper lists the category among their services.
func (u *User) Offers(category ServiceCategory) bool {
	if u.HelperProfile == nil {
		return false
	}
	for _, c := range u.HelperProfile.Services {
		if c == category {
			return true
		}
	}
	return false
}

func (u *User) Snapshot() map[string]any {
	snap := map[string]any{"is_active": u.IsActive, "role": u.Role}
	if u.HelperProfile != nil {
		snap["is_verified"] = u.HelperProfile.IsVerified
	}
	return snap
}

// Moderation is the admin-controlled part of a user's state.
type Moderation struct {
	IsActive   bool
	IsVerified bool
}

func (u *User) Moderation() Moderation {
	return Moderation{IsActive: u.IsActive, IsVerified: u.HelperProfile != nil && u.HelperProfile.IsVerified}
}

type UserFilter struct {
	Role     Role
	IsActive *bool
	Verified *bool
}

// Session is the server-side record of an issued refresh token.
type Session struct {
	UserID    int64     `json:"user_id"`
	TokenID   string    `json:"token_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
