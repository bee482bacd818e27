package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/tzavrishon/mivhan/internal/model"
	"github.com/tzavrishon/mivhan/internal/repository"
)

// LearnerService handles learner accounts and login.
type LearnerService struct {
	learnerRepo *repository.LearnerRepository
	authService *AuthService
}

// NewLearnerService creates a new LearnerService.
func NewLearnerService(learnerRepo *repository.LearnerRepository, authService *AuthService) *LearnerService {
	return &LearnerService{learnerRepo: learnerRepo, authService: authService}
}

// Login checks the credentials and issues a token. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (s *LearnerService) Login(ctx context.Context, req model.LearnerLoginRequest) (string, *model.Learner, error) {
	learner, err := s.learnerRepo.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("get learner: %w", err)
	}

	if err := s.authService.CheckPassword(learner.PasswordHash, req.Password); err != nil {
		return "", nil, err
	}

	token, err := s.authService.GenerateLearnerToken(ctx, learner.ID)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, learner, nil
}

// GetByID retrieves a learner by ID.
func (s *LearnerService) GetByID(ctx context.Context, id int) (*model.Learner, error) {
	return s.learnerRepo.GetByID(ctx, id)
}

// Create registers a learner with a hashed password.
func (s *LearnerService) Create(ctx context.Context, email, name, password string) (*model.Learner, error) {
	hash, err := s.authService.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	learner := &model.Learner{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
	}
	if err := s.learnerRepo.Create(ctx, learner); err != nil {
		return nil, err
	}
	return learner, nil
}
