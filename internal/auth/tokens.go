package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"helpr/internal/models"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrWrongType    = errors.New("wrong token type")

	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Claims carries the identity and role the core trusts at its boundary.
type Claims struct {
	Role models.Role `json:"role"`
	Type string      `json:"typ"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	RefreshID        string    `json:"-"`
}

// TokenManager issues and verifies HS256 bearer tokens.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration, issuer string) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     issuer,
		now:        time.Now,
	}
}

func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

func (m *TokenManager) sign(userID int64, role models.Role, typ string, ttl time.Duration) (string, string, time.Time, error) {
	now := m.now()
	exp := now.Add(ttl)
	jti := uuid.NewString()
	claims := Claims{
		Role: role,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    m.issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, jti, exp, nil
}

// IssuePair creates an access and a refresh token for the user.
func (m *TokenManager) IssuePair(userID int64, role models.Role) (*TokenPair, error) {
	access, _, accessExp, err := m.sign(userID, role, TokenAccess, m.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshID, refreshExp, err := m.sign(userID, role, TokenRefresh, m.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		RefreshID:        refreshID,
	}, nil
}

func (m *TokenManager) parse(tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithIssuer(m.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := c.UserID(); err != nil {
		return nil, err
	}
	return c, nil
}

// VerifyAccess rejects refresh tokens presented as bearer credentials.
func (m *TokenManager) VerifyAccess(tokenStr string) (*Claims, error) {
	c, err := m.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if c.Type != TokenAccess {
		return nil, ErrWrongType
	}
	return c, nil
}

func (m *TokenManager) VerifyRefresh(tokenStr string) (*Claims, error) {
	c, err := m.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if c.Type != TokenRefresh {
		return nil, ErrWrongType
	}
	return c, nil
}
