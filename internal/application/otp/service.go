package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/C13M3n7/my-event-app/internal/domain"
	"github.com/C13M3n7/my-event-app/internal/pkg/id"
	"github.com/C13M3n7/my-event-app/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

type IssueRequest struct {
	Email   string            `json:"email" validate:"required,email"`
	Purpose domain.OtpPurpose `json:"purpose" validate:"required"`
	Channel string            `json:"channel" validate:"omitempty,oneof=email sms"`
}

type VerifyRequest struct {
	Email   string            `json:"email" validate:"required,email"`
	Code    string            `json:"otp" validate:"required,len=6,numeric"`
	Purpose domain.OtpPurpose `json:"purpose" validate:"required"`
}

// Outcome distinguishes plain authentication from first-time provisioning,
// so callers don't have to infer it from a flag.
type Outcome string

const (
	OutcomeVerified           Outcome = "verified"
	OutcomeVerifiedAndCreated Outcome = "verified_and_created"
)

// VerifyResult is returned on successful verification. Assertion is the
// short-lived custom token the client redeems for a session.
type VerifyResult struct {
	Outcome   Outcome
	UserID    string
	Email     string
	IsAdmin   bool
	Assertion string
}

// IsNewUser reports whether this verification provisioned the account.
func (r *VerifyResult) IsNewUser() bool { return r.Outcome == OutcomeVerifiedAndCreated }

// OtpStore is the pending-code store. MarkVerified and RecordFailedAttempt
// must be conditional on the record still being unverified (and, for
// MarkVerified, on the observed attempts count) so concurrent verifies
// cannot both succeed.
type OtpStore interface {
	Put(ctx context.Context, rec *domain.OtpRecord) error
	Get(ctx context.Context, email string) (*domain.OtpRecord, error)
	Delete(ctx context.Context, email string) error
	MarkVerified(ctx context.Context, email string, observedAttempts int, at time.Time) error
	RecordFailedAttempt(ctx context.Context, email string, at time.Time) (int, error)
}

// UserStore is the identity-record store.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

// Mailer delivers the code over email.
type Mailer interface {
	SendEmail(to, subject, html string) error
}

// SMSSender delivers the code over SMS.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// AssertionMinter mints the signed assertion returned on success.
type AssertionMinter interface {
	MintAssertion(userID string, isAdmin, emailVerified bool) (string, error)
}

type Service interface {
	Issue(ctx context.Context, req IssueRequest) error
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
}

// ServiceDeps bundles the collaborators for NewService. Everything is an
// interface so tests can swap in doubles.
type ServiceDeps struct {
	OtpRepo     OtpStore
	UserRepo    UserStore
	Mailer      Mailer
	SMSSender   SMSSender
	Minter      AssertionMinter
	TTL         time.Duration
	MaxAttempts int // 0 disables the ceiling
}

type service struct {
	otpRepo     OtpStore
	userRepo    UserStore
	mailer      Mailer
	smsSender   SMSSender
	minter      AssertionMinter
	ttl         time.Duration
	maxAttempts int
}

func NewService(deps ServiceDeps) Service {
	return &service{
		otpRepo:     deps.OtpRepo,
		userRepo:    deps.UserRepo,
		mailer:      deps.Mailer,
		smsSender:   deps.SMSSender,
		minter:      deps.Minter,
		ttl:         deps.TTL,
		maxAttempts: deps.MaxAttempts,
	}
}

// Issue generates a fresh 6-digit code for the email and delivers it.
// Any previous pending code for the same email is superseded: the new
// record fully replaces it, attempts reset to zero. A delivery failure is
// returned to the caller; the record stays live, and a retry simply
// replaces it again.
func (s *service) Issue(ctx context.Context, req IssueRequest) error {
	// Normalize before validating so a legal identifier with stray
	// whitespace or casing is canonicalized, not rejected.
	req.Email = Normalize(req.Email)
	if err := validate.Struct(&req); err != nil {
		return fmt.Errorf("%s: %w", err, domain.ErrInvalidArgument)
	}
	if !req.Purpose.Valid() {
		return fmt.Errorf("unknown purpose %q: %w", req.Purpose, domain.ErrInvalidArgument)
	}
	email := req.Email

	// LOGIN and ADMIN_LOGIN are for existing accounts only.
	var u *domain.User
	if req.Purpose.RequiresAccount() || req.Channel == ChannelSMS {
		var err error
		u, err = s.userRepo.GetByEmail(ctx, email)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if req.Channel == ChannelSMS && !req.Purpose.RequiresAccount() {
				return fmt.Errorf("sms channel requires an existing account: %w", domain.ErrInvalidArgument)
			}
			return fmt.Errorf("no account found for this email: %w", domain.ErrNotFound)
		}
	}
	if req.Purpose == domain.PurposeAdminLogin && !u.Role.IsAdmin() {
		return fmt.Errorf("admin access denied: %w", domain.ErrPermissionDenied)
	}
	if req.Channel == ChannelSMS {
		if s.smsSender == nil {
			return fmt.Errorf("sms delivery is not configured: %w", domain.ErrInternal)
		}
		if u.Phone == nil || !u.PhoneConfirmed {
			return fmt.Errorf("no confirmed phone number on account: %w", domain.ErrInvalidArgument)
		}
	}

	code, err := generateCode()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rec := &domain.OtpRecord{
		Email:     email,
		CodeHash:  string(hash),
		Purpose:   req.Purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl).Unix(),
		Verified:  false,
		Attempts:  0,
	}
	if err := s.otpRepo.Put(ctx, rec); err != nil {
		return err
	}
	slog.Info("otp issued", "email", Redact(email), "purpose", req.Purpose)

	if req.Channel == ChannelSMS {
		return s.smsSender.SendSMS(ctx, *u.Phone, fmt.Sprintf("Your my-event-app verification code is %s. It expires in %d minutes.", code, int(s.ttl.Minutes())))
	}
	return s.mailer.SendEmail(email, subjectFor(req.Purpose), otpEmailBody(code, s.ttl))
}

// Verify checks the submitted code against the pending record and, on
// success, resolves (creating for REGISTRATION) the identity and mints a
// signed assertion.
func (s *service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	req.Email = Normalize(req.Email)
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%s: %w", err, domain.ErrInvalidArgument)
	}
	if !req.Purpose.Valid() {
		return nil, fmt.Errorf("unknown purpose %q: %w", req.Purpose, domain.ErrInvalidArgument)
	}
	email := req.Email
	now := time.Now().UTC()

	rec, err := s.otpRepo.Get(ctx, email)
	if err != nil {
		return nil, err
	}

	// A verified record is a replay: remove it so the code cannot be probed.
	if rec.Verified {
		s.deleteQuietly(ctx, email)
		return nil, fmt.Errorf("otp already used, request a new one: %w", domain.ErrAlreadyUsed)
	}
	// Expiry wins over code correctness. The stale record is removed so the
	// next attempt reports not-found.
	if rec.Expired(now) {
		s.deleteQuietly(ctx, email)
		return nil, fmt.Errorf("otp has expired: %w", domain.ErrExpired)
	}
	if rec.Purpose != req.Purpose {
		return nil, fmt.Errorf("otp was issued for a different purpose: %w", domain.ErrFailedPrecondition)
	}
	if s.maxAttempts > 0 && rec.Attempts >= s.maxAttempts {
		return nil, fmt.Errorf("too many failed attempts, request a new otp: %w", domain.ErrFailedPrecondition)
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(req.Code)) != nil {
		attempts, raErr := s.otpRepo.RecordFailedAttempt(ctx, email, now)
		if raErr != nil {
			if errors.Is(raErr, domain.ErrAlreadyUsed) {
				return nil, raErr
			}
			slog.Warn("failed to record otp attempt", "email", Redact(email), "err", raErr)
		}
		slog.Info("otp mismatch", "email", Redact(email), "attempts", attempts)
		return nil, fmt.Errorf("incorrect otp code: %w", domain.ErrPermissionDenied)
	}

	// Conditional flip to verified. Losing the race to a concurrent verify
	// (or a racing failed attempt) means this code cannot be consumed here.
	if err := s.otpRepo.MarkVerified(ctx, email, rec.Attempts, now); err != nil {
		return nil, err
	}

	u, created, err := s.resolveIdentity(ctx, email, req.Purpose)
	if err != nil {
		return nil, err
	}

	isAdmin := u.Role.IsAdmin()
	assertion, err := s.minter.MintAssertion(u.UserID, isAdmin, true)
	if err != nil {
		slog.Error("assertion mint failed", "user_id", u.UserID, "err", err)
		return nil, fmt.Errorf("failed to generate authentication token: %w", domain.ErrInternal)
	}

	outcome := OutcomeVerified
	if created {
		outcome = OutcomeVerifiedAndCreated
	}
	slog.Info("otp verified", "email", Redact(email), "purpose", req.Purpose, "new_user", created)
	return &VerifyResult{
		Outcome:   outcome,
		UserID:    u.UserID,
		Email:     email,
		IsAdmin:   isAdmin,
		Assertion: assertion,
	}, nil
}

// resolveIdentity finds the identity for the email, creating it when the
// flow is a registration. Existing identities get their email marked
// confirmed as a side effect of proving ownership.
func (s *service) resolveIdentity(ctx context.Context, email string, purpose domain.OtpPurpose) (*domain.User, bool, error) {
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		if !u.EmailConfirmed || !u.Verified {
			updates := map[string]interface{}{"email_confirmed": true, "verified": true}
			if uErr := s.userRepo.Update(ctx, u.UserID, updates); uErr != nil {
				slog.Warn("failed to mark email confirmed", "user_id", u.UserID, "err", uErr)
			}
			u.EmailConfirmed = true
			u.Verified = true
		}
		return u, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	if purpose != domain.PurposeRegistration {
		return nil, false, fmt.Errorf("no account found for this email: %w", domain.ErrNotFound)
	}

	now := time.Now().UTC()
	u = &domain.User{
		UserID:         id.New(),
		Email:          email,
		Role:           domain.RoleNone,
		Verified:       true,
		EmailConfirmed: true,
		AuthProvider:   domain.ProviderEmail,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.userRepo.Put(ctx, u); err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func (s *service) deleteQuietly(ctx context.Context, email string) {
	if err := s.otpRepo.Delete(ctx, email); err != nil {
		slog.Warn("failed to delete otp record", "email", Redact(email), "err", err)
	}
}

// Normalize canonicalizes an email identifier. It is idempotent.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Redact shortens an identifier for logs.
func Redact(email string) string {
	if len(email) <= 3 {
		return "..."
	}
	return email[:3] + "..."
}

// generateCode draws a uniform 6-digit code in [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func subjectFor(p domain.OtpPurpose) string {
	switch p {
	case domain.PurposeRegistration:
		return "Confirm your registration"
	case domain.PurposeAdminLogin:
		return "Your admin login code"
	case domain.PurposeEventRegistration:
		return "Confirm your event registration"
	default:
		return "Your login code"
	}
}

func otpEmailBody(code string, ttl time.Duration) string {
	return fmt.Sprintf(
		`<p>Your verification code is:</p><h2 style="letter-spacing:4px">%s</h2><p>This code expires in %d minutes. If you didn't request it, you can ignore this email.</p>`,
		code, int(ttl.Minutes()))
}
