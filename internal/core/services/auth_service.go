package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/vncsmyrnk/ballot/internal/core/domain"
	"github.com/vncsmyrnk/ballot/internal/core/ports"
)

const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

type AuthService struct {
	userRepo       ports.UserRepository
	authRepo       ports.AuthRepository
	verifier       ports.TokenVerifier
	issuer         ports.TokenIssuer
	googleClientID string
	now            func() time.Time
}

func NewAuthService(userRepo ports.UserRepository, authRepo ports.AuthRepository, verifier ports.TokenVerifier, issuer ports.TokenIssuer, googleClientID string, opts ...Option) *AuthService {
	o := newOptions(opts)
	return &AuthService{
		userRepo:       userRepo,
		authRepo:       authRepo,
		verifier:       verifier,
		issuer:         issuer,
		googleClientID: googleClientID,
		now:            o.now,
	}
}

func (s *AuthService) LoginWithGoogle(ctx context.Context, googleToken string) (string, string, error) {
	payload, err := s.verifier.Verify(ctx, googleToken, s.googleClientID)
	if err != nil {
		return "", "", fmt.Errorf("%w: invalid google token: %v", domain.ErrUnauthenticated, err)
	}

	user, err := s.userRepo.GetByEmail(ctx, payload.Email)
	if err != nil {
		return "", "", fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		user = &domain.User{Email: payload.Email, Name: payload.Name}
		if err := s.userRepo.UpsertByEmail(ctx, user); err != nil {
			return "", "", fmt.Errorf("failed to create user: %w", err)
		}
	}

	accessToken, err := s.issuer.Issue(user, AccessTokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := generateRefreshToken()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	rt := &domain.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		ExpiresAt: s.now().Add(RefreshTokenTTL),
	}
	if err := s.authRepo.StoreRefreshToken(ctx, rt); err != nil {
		return "", "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return accessToken, refreshToken, nil
}

// RefreshAccessToken issues a new access token; the refresh token is kept until it expires.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (string, string, error) {
	rt, err := s.authRepo.GetRefreshTokenByHash(ctx, hashToken(refreshToken))
	if err != nil {
		return "", "", fmt.Errorf("failed to get refresh token: %w", err)
	}
	switch {
	case rt == nil:
		return "", "", fmt.Errorf("%w: refresh token not found", domain.ErrUnauthenticated)
	case rt.Revoked:
		return "", "", fmt.Errorf("%w: refresh token revoked", domain.ErrUnauthenticated)
	case rt.ExpiresAt.Before(s.now()):
		return "", "", fmt.Errorf("%w: refresh token expired", domain.ErrUnauthenticated)
	}

	user, err := s.userRepo.GetByID(ctx, rt.UserID)
	if err != nil {
		return "", "", fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return "", "", fmt.Errorf("%w: user not found", domain.ErrUnauthenticated)
	}

	accessToken, err := s.issuer.Issue(user, AccessTokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return accessToken, refreshToken, nil
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	rt, err := s.authRepo.GetRefreshTokenByHash(ctx, hashToken(refreshToken))
	if err != nil {
		return fmt.Errorf("failed to get refresh token: %w", err)
	}
	if rt == nil {
		return nil
	}
	return s.authRepo.RevokeRefreshToken(ctx, rt.ID)
}

func generateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
