package auth

import (
	"context"
	"strings"

	"fx-backoffice/internal/audit"

	"github.com/rs/zerolog"
)

// OperatorRepository is the audit repository slice the service uses
type OperatorRepository interface {
	GetOperatorByEmail(ctx context.Context, email string) (*audit.Operator, error)
	CreateOperator(ctx context.Context, op *audit.Operator) error
	TouchOperatorLogin(ctx context.Context, id string) error
}

// Service authenticates back-office operators
type Service struct {
	repo      OperatorRepository
	jwt       *JWTManager
	passwords *PasswordManager
	logger    zerolog.Logger
}

// NewService creates an auth service
func NewService(repo OperatorRepository, jwt *JWTManager, passwords *PasswordManager, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		jwt:       jwt,
		passwords: passwords,
		logger:    logger.With().Str("component", "auth").Logger(),
	}
}

// JWT exposes the token manager for middleware wiring
func (s *Service) JWT() *JWTManager {
	return s.jwt
}

// Login verifies credentials and issues an access token
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	op, err := s.repo.GetOperatorByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if op == nil || !s.passwords.VerifyPassword(req.Password, op.PasswordHash) {
		// Same error for unknown email and bad password
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateAccessToken(OperatorClaims{
		OperatorID: op.ID,
		Email:      op.Email,
		Name:       op.Name,
		IsAdmin:    op.IsAdmin,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.TouchOperatorLogin(ctx, op.ID); err != nil {
		s.logger.Warn().Err(err).Str("operator_id", op.ID).Msg("failed to record login time")
	}

	s.logger.Info().Str("operator_id", op.ID).Str("email", op.Email).Msg("operator logged in")

	return &LoginResponse{
		Operator: OperatorResponse{
			ID:          op.ID,
			Email:       op.Email,
			Name:        op.Name,
			IsAdmin:     op.IsAdmin,
			LastLoginAt: op.LastLoginAt,
		},
		AccessToken: token,
		ExpiresIn:   int64(s.jwt.AccessTokenDuration().Seconds()),
		TokenType:   "Bearer",
	}, nil
}

// CreateOperator provisions a new operator account
func (s *Service) CreateOperator(ctx context.Context, email, password, name string, isAdmin bool) (*audit.Operator, error) {
	if err := s.passwords.ValidatePasswordStrength(password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.HashPassword(password)
	if err != nil {
		return nil, err
	}

	op := &audit.Operator{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Name:         name,
		IsAdmin:      isAdmin,
	}
	if err := s.repo.CreateOperator(ctx, op); err != nil {
		return nil, err
	}

	s.logger.Info().Str("operator_id", op.ID).Str("email", op.Email).Bool("is_admin", isAdmin).
		Msg("operator created")

	return op, nil
}
