package google

import (
	"context"
	"errors"

	"google.golang.org/api/idtoken"

	"github.com/vncsmyrnk/ballot/internal/core/ports"
)

type Verifier struct{}

func NewVerifier() ports.TokenVerifier {
	return &Verifier{}
}

// Verify validates a Google ID token for audience and extracts the profile.
// The name claim is optional; accounts without one fall back to their email.
func (v *Verifier) Verify(ctx context.Context, token string, audience string) (*ports.TokenPayload, error) {
	payload, err := idtoken.Validate(ctx, token, audience)
	if err != nil {
		return nil, err
	}
	email, ok := payload.Claims["email"].(string)
	if !ok || email == "" {
		return nil, errors.New("email not found in claims")
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return nil, errors.New("email not verified")
	}
	name, _ := payload.Claims["name"].(string)
	return &ports.TokenPayload{Email: email, Name: name}, nil
}
