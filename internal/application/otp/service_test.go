package otp

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/C13M3n7/my-event-app/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockOtpStore struct{ mock.Mock }

func (m *mockOtpStore) Put(ctx context.Context, rec *domain.OtpRecord) error {
	return m.Called(ctx, rec).Error(0)
}
func (m *mockOtpStore) Get(ctx context.Context, email string) (*domain.OtpRecord, error) {
	args := m.Called(ctx, email)
	if rec, _ := args.Get(0).(*domain.OtpRecord); rec != nil {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockOtpStore) Delete(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}
func (m *mockOtpStore) MarkVerified(ctx context.Context, email string, observedAttempts int, at time.Time) error {
	return m.Called(ctx, email, observedAttempts, at).Error(0)
}
func (m *mockOtpStore) RecordFailedAttempt(ctx context.Context, email string, at time.Time) (int, error) {
	args := m.Called(ctx, email, at)
	return args.Int(0), args.Error(1)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, html string) error {
	return m.Called(to, subject, html).Error(0)
}

type mockSMSSender struct{ mock.Mock }

func (m *mockSMSSender) SendSMS(ctx context.Context, to, msg string) error {
	return m.Called(ctx, to, msg).Error(0)
}

type mockMinter struct{ mock.Mock }

func (m *mockMinter) MintAssertion(userID string, isAdmin, emailVerified bool) (string, error) {
	args := m.Called(userID, isAdmin, emailVerified)
	return args.String(0), args.Error(1)
}

// --- builder ---

func newService(os *mockOtpStore, us *mockUserStore, ml *mockMailer, sms *mockSMSSender, mt *mockMinter) Service {
	return NewService(ServiceDeps{
		OtpRepo:     os,
		UserRepo:    us,
		Mailer:      ml,
		SMSSender:   sms,
		Minter:      mt,
		TTL:         10 * time.Minute,
		MaxAttempts: 5,
	})
}

func mustHash(t *testing.T, code string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func pendingRecord(t *testing.T, code string, purpose domain.OtpPurpose) *domain.OtpRecord {
	t.Helper()
	now := time.Now().UTC()
	return &domain.OtpRecord{
		Email:     "a@x.com",
		CodeHash:  mustHash(t, code),
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute).Unix(),
	}
}

// --- Issue ---

func TestIssue_InvalidEmail(t *testing.T) {
	svc := newService(nil, nil, nil, nil, nil)
	err := svc.Issue(context.Background(), IssueRequest{Email: "not-an-email", Purpose: domain.PurposeLogin})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestIssue_UnknownPurpose(t *testing.T) {
	svc := newService(nil, nil, nil, nil, nil)
	err := svc.Issue(context.Background(), IssueRequest{Email: "a@x.com", Purpose: "SOMETHING_ELSE"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestIssue_LoginWithoutAccount(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)

	svc := newService(nil, us, nil, nil, nil)
	err := svc.Issue(context.Background(), IssueRequest{Email: "a@x.com", Purpose: domain.PurposeLogin})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestIssue_AdminLoginWithoutAdminRole(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.User{UserID: "u1", Role: domain.RoleNone}, nil)

	svc := newService(nil, us, nil, nil, nil)
	err := svc.Issue(context.Background(), IssueRequest{Email: "a@x.com", Purpose: domain.PurposeAdminLogin})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPermissionDenied))
}

func TestIssue_Registration_HappyPath(t *testing.T) {
	os := &mockOtpStore{}
	ml := &mockMailer{}

	var stored *domain.OtpRecord
	os.On("Put", mock.Anything, mock.AnythingOfType("*domain.OtpRecord")).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*domain.OtpRecord)
	}).Return(nil)
	var sentBody string
	ml.On("SendEmail", "a@x.com", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sentBody = args.String(2)
	}).Return(nil)

	svc := newService(os, nil, ml, nil, nil)
	err := svc.Issue(context.Background(), IssueRequest{Email: "a@x.com", Purpose: domain.PurposeRegistration})

	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "a@x.com", stored.Email)
	assert.Equal(t, domain.PurposeRegistration, stored.Purpose)
	assert.Equal(t, 0, stored.Attempts)
	assert.False(t, stored.Verified)
	assert.InDelta(t, time.Now().Add(10*time.Minute).Unix(), stored.ExpiresAt, 5)

	code := regexp.MustCompile(`\d{6}`).FindString(sentBody)
	require.Len(t, code, 6, "email body must contain a 6-digit code")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.CodeHash), []byte(code)),
		"stored hash must match the mailed code")
}

func TestIssue_NormalizesEmail(t *testing.T) {
	os := &mockOtpStore{}
	ml := &mockMailer{}
	os.On("Put", mock.Anything, mock.MatchedBy(func(rec *domain.OtpRecord) bool {
		return rec.Email == "a@x.com"
	})).Return(nil)
	ml.On("SendEmail", "a@x.com", mock.Anything, mock.Anything).Return(nil)

	svc := newService(os, nil, ml, nil, nil)
	err := svc.Issue(context.Background(), IssueRequest{Email: "  A@X.Com ", Purpose: domain.PurposeRegistration})
	require.NoError(t, err)
	os.AssertExpectations(t)
	ml.AssertExpectations(t)
}

func TestIssue_StoreFailureIsNotNotFound(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, errors.New("dynamo throttled"))

	svc := newService(nil, us, nil, nil, nil)
	err := svc.Issue(context.Background(), IssueRequest{Email: "a@x.com", Purpose: domain.PurposeLogin})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotFound),
		"an infrastructure failure must not read as a missing account")
}

func TestIssue_MailerFailurePropagates(t *testing.T) {
	os := &mockOtpStore{}
	ml := &mockMailer{}
	os.On("Put", mock.Anything, mock.Anything).Return(nil)
	ml.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	svc := newService(os, nil, ml, nil, nil)
	err := svc.Issue(context.Background(), IssueRequest{Email: "a@x.com", Purpose: domain.PurposeRegistration})
	require.Error(t, err)
	// The record was written before the send: a retry overwrites it.
	os.AssertCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestIssue_SMSChannel(t *testing.T) {
	os := &mockOtpStore{}
	us := &mockUserStore{}
	sms := &mockSMSSender{}
	phone := "+60123456789"
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.User{
		UserID: "u1", Phone: &phone, PhoneConfirmed: true,
	}, nil)
	os.On("Put", mock.Anything, mock.Anything).Return(nil)
	sms.On("SendSMS", mock.Anything, phone, mock.MatchedBy(func(msg string) bool {
		return regexp.MustCompile(`\d{6}`).MatchString(msg)
	})).Return(nil)

	svc := newService(os, us, nil, sms, nil)
	err := svc.Issue(context.Background(), IssueRequest{Email: "a@x.com", Purpose: domain.PurposeLogin, Channel: ChannelSMS})
	require.NoError(t, err)
	sms.AssertExpectations(t)
}

// --- Verify ---

func TestVerify_NoRecord(t *testing.T) {
	os := &mockOtpStore{}
	os.On("Get", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)

	svc := newService(os, nil, nil, nil, nil)
	_, err := svc.Verify(context.Background(), VerifyRequest{Email: "a@x.com", Code: "123456", Purpose: domain.PurposeLogin})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestVerify_Expired_DeletesRecord(t *testing.T) {
	os := &mockOtpStore{}
	rec := pendingRecord(t, "123456", domain.PurposeLogin)
	rec.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	os.On("Get", mock.Anything, "a@x.com").Return(rec, nil)
	os.On("Delete", mock.Anything, "a@x.com").Return(nil)

	svc := newService(os, nil, nil, nil, nil)
	// Correct code — expiry still wins.
	_, err := svc.Verify(context.Background(), VerifyRequest{Email: "a@x.com", Code: "123456", Purpose: domain.PurposeLogin})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExpired))
	os.AssertCalled(t, "Delete", mock.Anything, "a@x.com")
}

func TestVerify_Replay_DeletesRecord(t *testing.T) {
	os := &mockOtpStore{}
	rec := pendingRecord(t, "123456", domain.PurposeRegistration)
	rec.Verified = true
	os.On("Get", mock.Anything, "a@x.com").Return(rec, nil)
	os.On("Delete", mock.Anything, "a@x.com").Return(nil)

	svc := newService(os, nil, nil, nil, nil)
	_, err := svc.Verify(context.Background(), VerifyRequest{Email: "a@x.com", Code: "123456", Purpose: domain.PurposeRegistration})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAlreadyUsed))
	os.AssertCalled(t, "Delete", mock.Anything, "a@x.com")
}

func TestVerify_PurposeMismatch(t *testing.T) {
	os := &mockOtpStore{}
	os.On("Get", mock.Anything, "a@x.com").Return(pendingRecord(t, "123456", domain.PurposeRegistration), nil)

	svc := newService(os, nil, nil, nil, nil)
	_, err := svc.Verify(context.Background(), VerifyRequest{Email: "a@x.com", Code: "123456", Purpose: domain.PurposeLogin})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFailedPrecondition))
	// The record stays live: no delete, no attempt recorded.
	os.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	os.AssertNotCalled(t, "RecordFailedAttempt", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerify_WrongCode_RecordsAttempt(t *testing.T) {
	os := &mockOtpStore{}
	os.On("Get", mock.Anything, "a@x.com").Return(pendingRecord(t, "123456", domain.PurposeRegistration), nil)
	os.On("RecordFailedAttempt", mock.Anything, "a@x.com", mock.Anything).Return(1, nil)

	svc := newService(os, nil, nil, nil, nil)
	_, err := svc.Verify(context.Background(), VerifyRequest{Email: "a@x.com", Code: "654321", Purpose: domain.PurposeRegistration})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPermissionDenied))
	os.AssertCalled(t, "RecordFailedAttempt", mock.Anything, "a@x.com", mock.Anything)
	os.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestVerify_AttemptCeiling(t *testing.T) {
	os := &mockOtpStore{}
	rec := pendingRecord(t, "123456", domain.PurposeLogin)
	rec.Attempts = 5
	os.On("Get", mock.Anything, "a@x.com").Return(rec, nil)

	svc := newService(os, nil, nil, nil, nil)
	// Even the correct code is rejected once the record is locked.
	_, err := svc.Verify(context.Background(), VerifyRequest{Email: "a@x.com", Code: "123456", Purpose: domain.PurposeLogin})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFailedPrecondition))
	os.AssertNotCalled(t, "MarkVerified", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerify_Registration_CreatesIdentity(t *testing.T) {
	os := &mockOtpStore{}
	us := &mockUserStore{}
	mt := &mockMinter{}

	os.On("Get", mock.Anything, "a@x.com").Return(pendingRecord(t, "123456", domain.PurposeRegistration), nil)
	os.On("MarkVerified", mock.Anything, "a@x.com", 0, mock.Anything).Return(nil)
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)
	var created *domain.User
	us.On("Put", mock.Anything, mock.AnythingOfType("*domain.User")).Run(func(args mock.Arguments) {
		created = args.Get(1).(*domain.User)
	}).Return(nil)
	mt.On("MintAssertion", mock.Anything, false, true).Return("signed-assertion", nil)

	svc := newService(os, us, nil, nil, mt)
	result, err := svc.Verify(context.Background(), VerifyRequest{Email: "a@x.com", Code: "123456", Purpose: domain.PurposeRegistration})

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "a@x.com", created.Email)
	assert.Equal(t, domain.RoleNone, created.Role)
	assert.True(t, created.EmailConfirmed)
	assert.Equal(t, OutcomeVerifiedAndCreated, result.Outcome)
	assert.True(t, result.IsNewUser())
	assert.False(t, result.IsAdmin)
	assert.Equal(t, created.UserID, result.UserID)
	assert.Equal(t, "signed-assertion", result.Assertion)
}

func TestVerify_Login_ExistingAdmin(t *testing.T) {
	os := &mockOtpStore{}
	us := &mockUserStore{}
	mt := &mockMinter{}

	rec := pendingRecord(t, "123456", domain.PurposeAdminLogin)
	rec.Attempts = 2
	os.On("Get", mock.Anything, "a@x.com").Return(rec, nil)
	os.On("MarkVerified", mock.Anything, "a@x.com", 2, mock.Anything).Return(nil)
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.User{
		UserID: "u1", Email: "a@x.com", Role: domain.RoleSuperAdmin, Verified: true, EmailConfirmed: true,
	}, nil)
	mt.On("MintAssertion", "u1", true, true).Return("admin-assertion", nil)

	svc := newService(os, us, nil, nil, mt)
	result, err := svc.Verify(context.Background(), VerifyRequest{Email: "a@x.com", Code: "123456", Purpose: domain.PurposeAdminLogin})

	require.NoError(t, err)
	assert.Equal(t, OutcomeVerified, result.Outcome)
	assert.False(t, result.IsNewUser())
	assert.True(t, result.IsAdmin)
	us.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerify_Login_MissingIdentity(t *testing.T) {
	os := &mockOtpStore{}
	us := &mockUserStore{}

	os.On("Get", mock.Anything, "a@x.com").Return(pendingRecord(t, "123456", domain.PurposeLogin), nil)
	os.On("MarkVerified", mock.Anything, "a@x.com", 0, mock.Anything).Return(nil)
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)

	svc := newService(os, us, nil, nil, nil)
	_, err := svc.Verify(context.Background(), VerifyRequest{Email: "a@x.com", Code: "123456", Purpose: domain.PurposeLogin})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	us.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestVerify_ConcurrentConsume_LosesRace(t *testing.T) {
	os := &mockOtpStore{}
	os.On("Get", mock.Anything, "a@x.com").Return(pendingRecord(t, "123456", domain.PurposeLogin), nil)
	os.On("MarkVerified", mock.Anything, "a@x.com", 0, mock.Anything).Return(domain.ErrAlreadyUsed)

	svc := newService(os, nil, nil, nil, nil)
	_, err := svc.Verify(context.Background(), VerifyRequest{Email: "a@x.com", Code: "123456", Purpose: domain.PurposeLogin})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAlreadyUsed))
}

func TestVerify_NormalizesEmail(t *testing.T) {
	os := &mockOtpStore{}
	us := &mockUserStore{}
	mt := &mockMinter{}

	os.On("Get", mock.Anything, "a@x.com").Return(pendingRecord(t, "123456", domain.PurposeLogin), nil)
	os.On("MarkVerified", mock.Anything, "a@x.com", 0, mock.Anything).Return(nil)
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.User{
		UserID: "u1", Verified: true, EmailConfirmed: true,
	}, nil)
	mt.On("MintAssertion", "u1", false, true).Return("signed-assertion", nil)

	svc := newService(os, us, nil, nil, mt)
	result, err := svc.Verify(context.Background(), VerifyRequest{Email: "  A@X.Com ", Code: "123456", Purpose: domain.PurposeLogin})

	require.NoError(t, err)
	assert.Equal(t, "a@x.com", result.Email)
	os.AssertExpectations(t)
}

func TestVerify_RacedAttemptIsRetryable(t *testing.T) {
	os := &mockOtpStore{}
	os.On("Get", mock.Anything, "a@x.com").Return(pendingRecord(t, "123456", domain.PurposeLogin), nil)
	os.On("MarkVerified", mock.Anything, "a@x.com", 0, mock.Anything).Return(
		fmt.Errorf("otp state changed during verification, retry: %w", domain.ErrFailedPrecondition))

	svc := newService(os, nil, nil, nil, nil)
	_, err := svc.Verify(context.Background(), VerifyRequest{Email: "a@x.com", Code: "123456", Purpose: domain.PurposeLogin})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFailedPrecondition))
	assert.False(t, errors.Is(err, domain.ErrAlreadyUsed))
}

func TestVerify_MintFailureIsInternal(t *testing.T) {
	os := &mockOtpStore{}
	us := &mockUserStore{}
	mt := &mockMinter{}

	os.On("Get", mock.Anything, "a@x.com").Return(pendingRecord(t, "123456", domain.PurposeLogin), nil)
	os.On("MarkVerified", mock.Anything, "a@x.com", 0, mock.Anything).Return(nil)
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.User{
		UserID: "u1", Verified: true, EmailConfirmed: true,
	}, nil)
	mt.On("MintAssertion", "u1", false, true).Return("", errors.New("provider unreachable"))

	svc := newService(os, us, nil, nil, mt)
	_, err := svc.Verify(context.Background(), VerifyRequest{Email: "a@x.com", Code: "123456", Purpose: domain.PurposeLogin})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInternal))
}

// --- helpers ---

func TestNormalize_Idempotent(t *testing.T) {
	for _, in := range []string{"  A@X.Com ", "a@x.com", "MiXeD@CaSe.COM  "} {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "abc...", Redact("abc@example.com"))
	assert.Equal(t, "...", Redact("ab"))
}
