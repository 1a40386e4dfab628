package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/ballot/internal/core/domain"
)

type AuthRepository interface {
	StoreRefreshToken(ctx context.Context, token *domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id uuid.UUID) error
}

type TokenPayload struct {
	Email string
	Name  string
}

// TokenVerifier checks a third-party identity token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string, audience string) (*TokenPayload, error)
}

// TokenIssuer mints access tokens for an authenticated user.
type TokenIssuer interface {
	Issue(user *domain.User, ttl time.Duration) (string, error)
}

// Authenticator resolves an access token to the caller's user id.
// Every failure is reported as domain.ErrUnauthenticated.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (uuid.UUID, error)
}

type AuthService interface {
	LoginWithGoogle(ctx context.Context, googleToken string) (string, string, error) // access_token, refresh_token
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, string, error)
	Logout(ctx context.Context, refreshToken string) error
}
