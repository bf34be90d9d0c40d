package domain

import "time"

// OtpPurpose scopes a code to the flow that requested it. Verification must
// present the same purpose the code was issued for.
type OtpPurpose string

const (
	PurposeRegistration      OtpPurpose = "REGISTRATION"
	PurposeLogin             OtpPurpose = "LOGIN"
	PurposeAdminLogin        OtpPurpose = "ADMIN_LOGIN"
	PurposeEventRegistration OtpPurpose = "EVENT_REGISTRATION"
	PurposeGeneral           OtpPurpose = "GENERAL"
)

// Valid reports whether p is one of the known purposes.
func (p OtpPurpose) Valid() bool {
	switch p {
	case PurposeRegistration, PurposeLogin, PurposeAdminLogin, PurposeEventRegistration, PurposeGeneral:
		return true
	}
	return false
}

// RequiresAccount reports whether issuing a code for p requires an
// existing identity (self-registration purposes do not).
func (p OtpPurpose) RequiresAccount() bool {
	return p == PurposeLogin || p == PurposeAdminLogin
}

// OtpRecord is the single pending code for an email address.
// PK: email (normalized). At most one live record exists per email —
// issuing a new code fully replaces the previous item.
// ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type OtpRecord struct {
	Email       string     `json:"email" dynamodbav:"email"`
	CodeHash    string     `json:"-" dynamodbav:"code_hash"`
	Purpose     OtpPurpose `json:"purpose" dynamodbav:"purpose"`
	CreatedAt   time.Time  `json:"created" dynamodbav:"created_at"`
	ExpiresAt   int64      `json:"expires_at" dynamodbav:"expires_at"`
	Verified    bool       `json:"verified" dynamodbav:"verified"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty" dynamodbav:"verified_at"`
	Attempts    int        `json:"attempts" dynamodbav:"attempts"`
	LastAttempt *time.Time `json:"last_attempt,omitempty" dynamodbav:"last_attempt"`
}

// Expired reports whether the record is past its deadline at the given time.
func (r *OtpRecord) Expired(now time.Time) bool {
	return now.Unix() > r.ExpiresAt
}
