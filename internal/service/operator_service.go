package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cvbuilder/api/internal/config"
	"cvbuilder/api/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrOperatorDisabled   = errors.New("operator login is not configured")
)

// OperatorService signs the single dashboard operator in.
type OperatorService struct {
	cfg config.OperatorConfig
	log zerolog.Logger
	now func() time.Time
}

func NewOperatorService(cfg config.OperatorConfig, log zerolog.Logger) *OperatorService {
	return &OperatorService{cfg: cfg, log: log, now: time.Now}
}

type LoginResult struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

func (s *OperatorService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if s.cfg.PasswordHash == "" || s.cfg.JWTSecret == "" {
		return LoginResult{}, ErrOperatorDisabled
	}

	username = strings.TrimSpace(username)
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Username)) != 1 {
		return LoginResult{}, ErrInvalidCredentials
	}

	ok, err := security.VerifyPassword(password, s.cfg.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Msg("operator password hash unreadable")
		return LoginResult{}, ErrInvalidCredentials
	}
	if !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, claims, err := security.GenerateOperatorToken(s.cfg.JWTSecret, s.cfg.Username, s.cfg.TokenTTL, s.now())
	if err != nil {
		return LoginResult{}, err
	}

	s.log.Info().Str("operator", s.cfg.Username).Msg("operator signed in")
	return LoginResult{
		Token:     token,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *OperatorService) Verify(token string) (*security.OperatorClaims, error) {
	return security.ParseOperatorToken(token, s.cfg.JWTSecret)
}
