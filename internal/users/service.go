package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/security"
)

// Service exposes the account details operations.
type Service interface {
	Details(ctx context.Context, userID int64) (*UserDTO, error)
	UpdateDetails(ctx context.Context, userID int64, req UpdateDetailsRequest) (*UserDTO, error)
}

type userStore interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateFields(ctx context.Context, id int64, fields map[string]any) error
}

type passwordHasher interface {
	Hash(password string) (string, error)
}

type service struct {
	repo   userStore
	hasher passwordHasher
}

// NewService builds the account details service.
func NewService(repo userStore, hasher passwordHasher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("password hasher required")
	}
	return &service{repo: repo, hasher: hasher}, nil
}

func (s *service) Details(ctx context.Context, userID int64) (*UserDTO, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return FromModel(user), nil
}

func (s *service) UpdateDetails(ctx context.Context, userID int64, req UpdateDetailsRequest) (*UserDTO, error) {
	fields := map[string]any{}

	if req.Password != nil {
		if err := security.ValidatePassword(*req.Password); err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid password").
				WithDetails(map[string]string{"password": err.Error()})
		}
		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
		}
		fields["password_hash"] = hash
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "email cannot be empty")
		}
		existing, err := s.repo.FindByEmail(ctx, email)
		switch {
		case err == nil && existing.ID != userID:
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}
		fields["email"] = email
	}
	setTrimmed(fields, "first_name", req.FirstName)
	setTrimmed(fields, "last_name", req.LastName)
	setTrimmed(fields, "company", req.Company)
	setTrimmed(fields, "position", req.Position)

	if err := s.repo.UpdateFields(ctx, userID, fields); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update user")
	}
	return s.Details(ctx, userID)
}

func setTrimmed(fields map[string]any, column string, value *string) {
	if value == nil {
		return
	}
	fields[column] = strings.TrimSpace(*value)
}
