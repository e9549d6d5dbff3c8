package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/users"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/procurement-backend/pkg/security"
)

// RegisterService handles sign-up and email confirmation.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error)
	Confirm(ctx context.Context, req ConfirmRequest) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type hasher interface {
	Hash(password string) (string, error)
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	DB     txRunner
	Hasher hasher
	Outbox outbox.Emitter
	// TokenGenerator defaults to security.GenerateConfirmToken.
	TokenGenerator func() (string, error)
}

type registerService struct {
	db       txRunner
	hasher   hasher
	outbox   outbox.Emitter
	newToken func() (string, error)
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	if params.Hasher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "password hasher required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	gen := params.TokenGenerator
	if gen == nil {
		gen = security.GenerateConfirmToken
	}
	return &registerService{
		db:       params.DB,
		hasher:   params.Hasher,
		outbox:   params.Outbox,
		newToken: gen,
	}, nil
}

func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	userType := req.Type
	if userType == "" {
		userType = enums.UserTypeBuyer
	}
	if !userType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid user type").
			WithDetails(map[string]string{"type": "must be buyer or shop"})
	}
	if err := security.ValidatePassword(req.Password); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid password").
			WithDetails(map[string]string{"password": err.Error()})
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	key, err := s.newToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate confirm token")
	}

	var created *users.UserDTO
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := users.NewRepository(tx)

		if _, err := userRepo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}

		user, err := userRepo.Create(ctx, users.CreateUserDTO{
			Email:        email,
			PasswordHash: passwordHash,
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
			Company:      strings.TrimSpace(req.Company),
			Position:     strings.TrimSpace(req.Position),
			Type:         userType,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}

		if _, err := userRepo.CreateConfirmToken(ctx, user.ID, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create confirm token")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserRegistered,
			AggregateType: enums.AggregateUser,
			AggregateID:   strconv.FormatInt(user.ID, 10),
			Actor:         &outbox.ActorRef{UserID: user.ID, Role: string(user.Type)},
			Data: payloads.UserRegisteredEvent{
				UserID:       user.ID,
				Email:        user.Email,
				FirstName:    user.FirstName,
				ConfirmToken: key,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit user registered")
		}

		created = users.FromModel(user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *registerService) Confirm(ctx context.Context, req ConfirmRequest) error {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	key := strings.TrimSpace(req.Token)
	if email == "" || key == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email and token are required")
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := users.NewRepository(tx)
		token, err := userRepo.FindConfirmToken(ctx, email, key)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeValidation, "invalid token or email")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup confirm token")
		}
		if err := userRepo.Activate(ctx, token.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "activate user")
		}
		if err := userRepo.DeleteConfirmTokens(ctx, token.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete confirm tokens")
		}
		return nil
	})
}
