package http

import (
	"github.com/C13M3n7/my-event-app/internal/infrastructure/dynamo"
	"github.com/C13M3n7/my-event-app/internal/infrastructure/google"
	jwtinfra "github.com/C13M3n7/my-event-app/internal/infrastructure/jwt"
	"github.com/C13M3n7/my-event-app/internal/infrastructure/smtp"
	"github.com/C13M3n7/my-event-app/internal/infrastructure/sns"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo     *dynamo.UserRepo
	SessionRepo  *dynamo.SessionRepo
	OtpRepo      *dynamo.OtpRepo
	RedeemedRepo *dynamo.RedeemedTokenRepo

	Mailer         smtp.Mailer
	SMSSender      sns.SMSSender
	JWTProvider    *jwtinfra.Provider
	GoogleVerifier *google.Verifier
}
