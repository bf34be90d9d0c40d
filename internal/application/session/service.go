package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/C13M3n7/my-event-app/internal/application/otp"
	"github.com/C13M3n7/my-event-app/internal/domain"
	"github.com/C13M3n7/my-event-app/internal/infrastructure/google"
	jwtinfra "github.com/C13M3n7/my-event-app/internal/infrastructure/jwt"
	"github.com/C13M3n7/my-event-app/internal/pkg/id"
	pkgtoken "github.com/C13M3n7/my-event-app/internal/pkg/token"
)

type RedeemRequest struct {
	Assertion string `json:"assertion" validate:"required"`
}

type GoogleSignInRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

type Result struct {
	Bearer       string
	RefreshToken string
	Session      *domain.Session
}

// SessionStore is the session table.
type SessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	GetByRefreshToken(ctx context.Context, token string) (*domain.Session, error)
	RotateRefreshToken(ctx context.Context, sessionID, newToken string, newExpiry int64) error
	Update(ctx context.Context, sessionID string, updates map[string]interface{}) error
}

// UserStore is the identity-record store.
type UserStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
}

// RedeemedTokenStore tracks consumed assertion IDs; MarkRedeemed must fail
// for an ID that was already claimed.
type RedeemedTokenStore interface {
	MarkRedeemed(ctx context.Context, tokenID string, expiresAt int64) error
}

// TokenProvider parses assertions and signs session bearers.
type TokenProvider interface {
	ParseAssertion(tokenStr string) (*jwtinfra.AssertionClaims, error)
	SignSession(userID string, role domain.Role, sessionID string) (string, error)
}

// GoogleVerifier validates Google ID tokens.
type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (*google.Payload, error)
}

type Service interface {
	// Redeem exchanges a signed assertion for a live session. An assertion
	// is single-use; expired, malformed, or replayed assertions fail with
	// ErrUnauthenticated.
	Redeem(ctx context.Context, req RedeemRequest) (*Result, error)
	GoogleSignIn(ctx context.Context, req GoogleSignInRequest) (*Result, error)
	Refresh(ctx context.Context, refreshToken string) (bearer, newRefreshToken string, err error)
	GetCurrent(ctx context.Context, sessionID string) (*domain.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

type ServiceDeps struct {
	SessionRepo     SessionStore
	UserRepo        UserStore
	RedeemedRepo    RedeemedTokenStore
	TokenProvider   TokenProvider
	GoogleVerifier  GoogleVerifier
	RefreshTokenDur time.Duration
}

type service struct {
	sessionRepo     SessionStore
	userRepo        UserStore
	redeemedRepo    RedeemedTokenStore
	tokenProvider   TokenProvider
	googleVerifier  GoogleVerifier
	refreshTokenDur time.Duration
}

func NewService(deps ServiceDeps) Service {
	return &service{
		sessionRepo:     deps.SessionRepo,
		userRepo:        deps.UserRepo,
		redeemedRepo:    deps.RedeemedRepo,
		tokenProvider:   deps.TokenProvider,
		googleVerifier:  deps.GoogleVerifier,
		refreshTokenDur: deps.RefreshTokenDur,
	}
}

func (s *service) Redeem(ctx context.Context, req RedeemRequest) (*Result, error) {
	claims, err := s.tokenProvider.ParseAssertion(req.Assertion)
	if err != nil {
		return nil, fmt.Errorf("invalid or expired assertion: %w", domain.ErrUnauthenticated)
	}
	// Claim the jti before doing anything else: a replayed assertion must
	// not mint a second session.
	if err := s.redeemedRepo.MarkRedeemed(ctx, claims.ID, claims.ExpiresAt.Unix()); err != nil {
		if errors.Is(err, domain.ErrAlreadyUsed) {
			return nil, fmt.Errorf("assertion already redeemed: %w", domain.ErrUnauthenticated)
		}
		return nil, err
	}

	u, err := s.userRepo.Get(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrUnauthenticated)
	}
	return s.establish(ctx, u)
}

func (s *service) GoogleSignIn(ctx context.Context, req GoogleSignInRequest) (*Result, error) {
	payload, err := s.googleVerifier.Verify(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}
	email := otp.Normalize(payload.Email)

	u, err := s.userRepo.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		now := time.Now().UTC()
		u = &domain.User{
			UserID:         id.New(),
			Email:          email,
			Role:           domain.RoleNone,
			Verified:       payload.EmailVerified,
			EmailConfirmed: payload.EmailVerified,
			AuthProvider:   domain.ProviderGoogle,
			GoogleSub:      payload.Sub,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.userRepo.Put(ctx, u); err != nil {
			return nil, err
		}
		slog.Info("provisioned google account", "email", otp.Redact(email))
	} else if err != nil {
		return nil, err
	}
	return s.establish(ctx, u)
}

// establish creates a session for the user and signs a bearer for it.
func (s *service) establish(ctx context.Context, u *domain.User) (*Result, error) {
	refreshToken, err := pkgtoken.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &domain.Session{
		SessionID:        id.New(),
		UserID:           u.UserID,
		Enable:           true,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: now.Add(s.refreshTokenDur).Unix(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.sessionRepo.Put(ctx, sess); err != nil {
		return nil, err
	}
	bearer, err := s.tokenProvider.SignSession(u.UserID, u.Role, sess.SessionID)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", domain.ErrInternal)
	}
	sess.User = u
	return &Result{Bearer: bearer, RefreshToken: refreshToken, Session: sess}, nil
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	sess, err := s.sessionRepo.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", domain.ErrUnauthenticated)
	}
	if sess.RefreshExpiresAt < time.Now().Unix() {
		return "", "", fmt.Errorf("refresh token expired: %w", domain.ErrUnauthenticated)
	}
	u, err := s.userRepo.Get(ctx, sess.UserID)
	if err != nil {
		return "", "", fmt.Errorf("account not found: %w", domain.ErrUnauthenticated)
	}

	newToken, err := pkgtoken.NewRefreshToken()
	if err != nil {
		return "", "", err
	}
	newExpiry := time.Now().UTC().Add(s.refreshTokenDur).Unix()
	if err := s.sessionRepo.RotateRefreshToken(ctx, sess.SessionID, newToken, newExpiry); err != nil {
		return "", "", err
	}
	bearer, err := s.tokenProvider.SignSession(u.UserID, u.Role, sess.SessionID)
	if err != nil {
		return "", "", fmt.Errorf("sign session: %w", domain.ErrInternal)
	}
	return bearer, newToken, nil
}

func (s *service) GetCurrent(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	u, err := s.userRepo.Get(ctx, sess.UserID)
	if err == nil {
		sess.User = u
	}
	return sess, nil
}

func (s *service) Logout(ctx context.Context, sessionID string) error {
	return s.sessionRepo.Update(ctx, sessionID, map[string]interface{}{"enable": false})
}
