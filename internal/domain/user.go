package domain

import "time"

// Role is a tagged variant for the admin claim set. A user is either a
// regular user, an admin, or a super-admin — never a bag of loose optional
// flags.
type Role string

const (
	RoleNone       Role = "none"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

// IsAdmin reports whether the role grants admin access.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// AuthProvider identifies how an account was established.
const (
	ProviderEmail  = "email"
	ProviderPhone  = "phone"
	ProviderGoogle = "google"
)

// User is the identity record. PK: user_id (ULID), email GSI for lookup by
// identifier. Created lazily on first successful registration verification
// or by admin provisioning; never deleted.
type User struct {
	UserID         string    `json:"id" dynamodbav:"user_id"`
	Email          string    `json:"email" dynamodbav:"email"`
	Phone          *string   `json:"phone,omitempty" dynamodbav:"phone"`
	Role           Role      `json:"role" dynamodbav:"role"`
	Verified       bool      `json:"verified" dynamodbav:"verified"`
	EmailConfirmed bool      `json:"email_confirmed" dynamodbav:"email_confirmed"`
	PhoneConfirmed bool      `json:"phone_confirmed" dynamodbav:"phone_confirmed"`
	AuthProvider   string    `json:"auth_provider" dynamodbav:"auth_provider"` // "email" | "phone" | "google"
	GoogleSub      string    `json:"-" dynamodbav:"google_sub"`
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}
