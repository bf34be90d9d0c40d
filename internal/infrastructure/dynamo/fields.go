package dynamo

// DynamoDB attribute names used in update and condition expressions across
// all repos. Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldEnable           = "enable"
	fieldRefreshToken     = "refresh_token"
	fieldRefreshExpiresAt = "refresh_expires_at"
	fieldVerified         = "verified"
	fieldVerifiedAt       = "verified_at"
	fieldAttempts         = "attempts"
	fieldLastAttempt      = "last_attempt"
	fieldEmailConfirmed   = "email_confirmed"
	fieldPhoneConfirmed   = "phone_confirmed"
	fieldRole             = "role"
	fieldUpdatedAt        = "updated_at"
)
