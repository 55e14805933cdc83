package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"helpr/internal/auth"
	"helpr/internal/config"
	"helpr/internal/database"
	"helpr/internal/domain"
	"helpr/internal/models"

	"github.com/rs/zerolog"
)

var phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{7,14}$`)

const otpRequestsPerWindow = 5

// AuthService implements the mocked phone OTP login and token rotation.
type AuthService struct {
	users       domain.UserRepository
	sessions    domain.SessionStore
	tokens      *auth.TokenManager
	cfg         config.APIAuthConfig
	exposeOTP   bool
	adminPhones map[string]bool
	logger      *zerolog.Logger
	now         func() time.Time
}

func NewAuthService(
	users domain.UserRepository,
	sessions domain.SessionStore,
	tokens *auth.TokenManager,
	cfg config.APIAuthConfig,
	exposeOTP bool,
	logger *zerolog.Logger,
) *AuthService {
	adminPhones := make(map[string]bool, len(cfg.AdminPhones))
	for _, p := range cfg.AdminPhones {
		adminPhones[normalizePhone(p)] = true
	}
	return &AuthService{
		users:       users,
		sessions:    sessions,
		tokens:      tokens,
		cfg:         cfg,
		exposeOTP:   exposeOTP,
		adminPhones: adminPhones,
		logger:      logger,
		now:         time.Now,
	}
}

func normalizePhone(p string) string {
	return strings.ReplaceAll(strings.TrimSpace(p), " ", "")
}

func validatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return domain.Invalid("phone", "phone must be in international format")
	}
	return nil
}

type OTPChallenge struct {
	ExpiresIn int    `json:"expires_in"`
	MockOTP   string `json:"mock_otp,omitempty"`
}

// RequestOTP pretends to send a code. The code is fixed by configuration.
func (s *AuthService) RequestOTP(ctx context.Context, phone string) (*OTPChallenge, error) {
	phone = normalizePhone(phone)
	if err := validatePhone(phone); err != nil {
		return nil, err
	}
	if s.sessions != nil {
		allowed, err := s.sessions.CheckRateLimit(ctx, "otp:"+phone, otpRequestsPerWindow, s.cfg.OTPTTL)
		if err != nil {
			s.logger.Warn().Err(err).Msg("otp rate limit check failed")
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	s.logger.Info().Str("phone", phone).Msg("mocked OTP issued")
	challenge := &OTPChallenge{ExpiresIn: int(s.cfg.OTPTTL / time.Second)}
	if s.exposeOTP {
		challenge.MockOTP = s.cfg.OTPCode
	}
	return challenge, nil
}

type VerifyOTPInput struct {
	Phone string
	Code  string
	Name  string
	Role  models.Role
}

type LoginResult struct {
	IsNewUser bool            `json:"is_new_user"`
	NeedsName bool            `json:"needs_name,omitempty"`
	Tokens    *auth.TokenPair `json:"tokens,omitempty"`
	User      *models.User    `json:"user,omitempty"`
}

// VerifyOTP signs a user in, creating the account on first login. A new phone
// without a name yields NeedsName and no tokens.
func (s *AuthService) VerifyOTP(ctx context.Context, in VerifyOTPInput) (*LoginResult, error) {
	phone := normalizePhone(in.Phone)
	if err := validatePhone(phone); err != nil {
		return nil, err
	}
	if in.Code != s.cfg.OTPCode {
		return nil, auth.ErrInvalidCredentials
	}

	isNew := false
	user, err := s.users.GetUserByPhone(ctx, phone)
	switch {
	case errors.Is(err, database.ErrNotFound):
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return &LoginResult{IsNewUser: true, NeedsName: true}, nil
		}
		user, err = s.register(ctx, phone, name, in.Role)
		if err != nil {
			return nil, err
		}
		isNew = true
	case err != nil:
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !user.IsActive {
		return nil, domain.Forbidden("account has been deactivated")
	}

	pair, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("failed to record last login")
	} else {
		user.LastLogin = &now
	}
	return &LoginResult{IsNewUser: isNew, Tokens: pair, User: user}, nil
}

func (s *AuthService) register(ctx context.Context, phone, name string, role models.Role) (*models.User, error) {
	if utf8.RuneCountInString(name) > models.MaxNameLength {
		return nil, domain.Invalid("name", fmt.Sprintf("name must be at most %d characters", models.MaxNameLength))
	}
	switch role {
	case "":
		role = models.RoleCustomer
	case models.RoleCustomer, models.RoleHelper:
	default:
		return nil, domain.Invalid("role", "role must be customer or helper")
	}
	if s.adminPhones[phone] {
		role = models.RoleAdmin
	}

	user := &models.User{Phone: phone, Name: name, Role: role, IsActive: true}
	if role == models.RoleHelper {
		user.HelperProfile = &models.HelperProfile{}
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, wrap(storeErr(err, "User"), "create user")
	}
	s.logger.Info().Int64("user_id", user.ID).Str("role", string(role)).Msg("user registered")
	return user, nil
}

func (s *AuthService) startSession(ctx context.Context, user *models.User) (*auth.TokenPair, error) {
	pair, err := s.tokens.IssuePair(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	session := &models.Session{
		UserID:    user.ID,
		TokenID:   pair.RefreshID,
		IssuedAt:  s.now().UTC(),
		ExpiresAt: pair.RefreshExpiresAt,
	}
	if err := s.sessions.SaveSession(ctx, session, s.tokens.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return pair, nil
}

// Refresh rotates the refresh token. Only the most recently issued refresh
// token of a user is accepted.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, auth.ErrInvalidCredentials
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, auth.ErrInvalidCredentials
	}

	session, err := s.sessions.GetSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil || session.TokenID != claims.ID {
		return nil, auth.ErrInvalidCredentials
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, domain.Forbidden("account has been deactivated")
	}
	return s.startSession(ctx, user)
}

func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	if err := s.sessions.DeleteSession(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Authenticate resolves a bearer access token to the current actor. Role and
// verification come from the user record, not the token.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (domain.Actor, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return domain.Actor{}, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return domain.Actor{}, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return domain.Actor{}, auth.ErrInvalidToken
		}
		return domain.Actor{}, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return domain.Actor{}, domain.Forbidden("account has been deactivated")
	}
	return domain.ActorFromUser(user), nil
}
