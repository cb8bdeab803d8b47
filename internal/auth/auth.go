// Package auth issues and verifies bearer tokens for staff users. Passwords
// are bcrypt hashes; tokens are HS256 JWTs whose subject is the user's email.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/pkg/logger"
)

var (
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrInvalidToken       = errors.New("could not validate credentials")
	ErrInactiveUser       = errors.New("inactive user")
	ErrForbidden          = errors.New("insufficient role")
	ErrEmailTaken         = errors.New("email already registered")
	ErrValidation         = errors.New("invalid user")
	ErrNoSecret           = errors.New("auth secret key is not configured")
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims are the JWT claims we issue.
type Claims struct {
	Type TokenType `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair is returned on login. RefreshToken is empty on refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// UserStore persists users.
type UserStore interface {
	// ByEmail returns nil, nil when no user has the email.
	ByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create inserts a user. Returns ErrEmailTaken on a duplicate email.
	Create(ctx context.Context, u *domain.User) error
}

// RegisterInput holds the fields accepted when creating a user.
type RegisterInput struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
	IsActive *bool       `json:"is_active"`
}

// Manager handles password checks and token issuance.
type Manager struct {
	users      UserStore
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewManager creates a token manager. A secret key is required.
func NewManager(cfg config.AuthConfig, users UserStore) (*Manager, error) {
	if cfg.SecretKey == "" {
		return nil, ErrNoSecret
	}
	m := &Manager{
		users:      users,
		secret:     []byte(cfg.SecretKey),
		accessTTL:  cfg.AccessTTL(),
		refreshTTL: cfg.RefreshTTL(),
		now:        time.Now,
	}
	if m.accessTTL <= 0 {
		m.accessTTL = 30 * time.Minute
	}
	if m.refreshTTL <= 0 {
		m.refreshTTL = 7 * 24 * time.Hour
	}
	return m, nil
}

// HashPassword returns the bcrypt hash of pw.
func HashPassword(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Register creates a user on behalf of actor, who must be a super admin.
func (m *Manager) Register(ctx context.Context, actor *domain.User, in RegisterInput) (*domain.User, error) {
	if err := RequireRole(actor, domain.RoleSuperAdmin); err != nil {
		return nil, err
	}
	return m.CreateUser(ctx, in)
}

// CreateUser creates a user without a role check. Used for bootstrapping
// the first administrator from the command line.
func (m *Manager) CreateUser(ctx context.Context, in RegisterInput) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email %q", ErrValidation, in.Email)
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	if in.Role == "" {
		in.Role = domain.RoleSecretary
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, in.Role)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         in.Role,
		IsActive:     in.IsActive == nil || *in.IsActive,
		CreatedAt:    m.now().UTC(),
	}
	if err := m.users.Create(ctx, u); err != nil {
		return nil, err
	}
	logger.Info("user registered", "email", email, "role", string(u.Role))
	return u, nil
}

// Login checks the password and issues an access and refresh token.
func (m *Manager) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	u, err := m.users.ByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		logger.Warn("login failed", "email", email)
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}
	return m.Issue(u)
}

// Issue mints a token pair for u.
func (m *Manager) Issue(u *domain.User) (*TokenPair, error) {
	access, err := m.sign(u.Email, TokenAccess, m.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(u.Email, TokenRefresh, m.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	u, err := m.userFor(ctx, refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}
	access, err := m.sign(u.Email, TokenAccess, m.accessTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, TokenType: "bearer"}, nil
}

// Authenticate resolves an access token to an active user.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	return m.userFor(ctx, accessToken, TokenAccess)
}

func (m *Manager) userFor(ctx context.Context, token string, want TokenType) (*domain.User, error) {
	claims, err := m.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, ErrInvalidToken
	}
	u, err := m.users.ByEmail(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidToken
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}
	return u, nil
}

func (m *Manager) sign(subject string, typ TokenType, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RequireRole returns ErrForbidden unless u holds one of roles.
func RequireRole(u *domain.User, roles ...domain.Role) error {
	if u == nil {
		return ErrForbidden
	}
	for _, r := range roles {
		if u.Role == r {
			return nil
		}
	}
	return ErrForbidden
}
