package console

import (
	"errors"

	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/syncengine"
)

const (
	MessageRateLimited = "Too many attempts. Please try again in a few minutes."
	MessageCodeExpired = "Code expired. Ask the valet for a new code."
	MessageInvalidCode = "Invalid code. Please check the digits and try again."
	MessageRetry       = "Something went wrong. Please try again."
	MessageSignIn      = "Session expired. Please sign in again."
)

// Notice is how a failed call is shown to the person at the console.
type Notice struct {
	SignIn  bool
	Message string
}

// Surface decides what a role sees for err. Staff get the server's message
// as is; guests get a fixed set of messages. A rejected session always sends
// the console back to sign-in.
func Surface(role string, err error) Notice {
	if err == nil {
		return Notice{}
	}
	if errors.Is(err, syncengine.ErrUnauthorized) {
		return Notice{SignIn: true, Message: MessageSignIn}
	}
	if role != models.RoleGuest {
		return Notice{Message: err.Error()}
	}
	switch {
	case errors.Is(err, syncengine.ErrRateLimited):
		return Notice{Message: MessageRateLimited}
	case errors.Is(err, syncengine.ErrCodeExpired):
		return Notice{Message: MessageCodeExpired}
	case errors.Is(err, syncengine.ErrInvalidCode):
		return Notice{Message: MessageInvalidCode}
	default:
		return Notice{Message: MessageRetry}
	}
}
