package auth

import (
	"context"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/users"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/procurement-backend/pkg/security"
)

const defaultResetTokenTTL = 24 * time.Hour

// PasswordResetService issues and redeems password reset keys.
type PasswordResetService interface {
	RequestReset(ctx context.Context, req PasswordResetRequest) error
	ConfirmReset(ctx context.Context, req PasswordResetConfirmRequest) error
}

type PasswordResetServiceParams struct {
	DB       txRunner
	Hasher   hasher
	Outbox   outbox.Emitter
	TokenTTL time.Duration
	Logger   *logger.Logger
	// TokenGenerator defaults to security.GenerateConfirmToken.
	TokenGenerator func() (string, error)
}

type passwordResetService struct {
	db       txRunner
	hasher   hasher
	outbox   outbox.Emitter
	ttl      time.Duration
	logg     *logger.Logger
	newToken func() (string, error)
	now      func() time.Time
}

func NewPasswordResetService(params PasswordResetServiceParams) (PasswordResetService, error) {
	switch {
	case params.DB == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	case params.Hasher == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "password hasher required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	svc := &passwordResetService{
		db:       params.DB,
		hasher:   params.Hasher,
		outbox:   params.Outbox,
		ttl:      params.TokenTTL,
		logg:     params.Logger,
		newToken: params.TokenGenerator,
		now:      time.Now,
	}
	if svc.ttl <= 0 {
		svc.ttl = defaultResetTokenTTL
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.newToken == nil {
		svc.newToken = security.GenerateConfirmToken
	}
	return svc, nil
}

// RequestReset mails a fresh key to an active account. Unknown and inactive
// addresses get the same success as a real one.
func (s *passwordResetService) RequestReset(ctx context.Context, req PasswordResetRequest) error {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email is required").
			WithDetails(map[string]string{"email": "is required"})
	}
	key, err := s.newToken()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate reset token")
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := users.NewRepository(tx)
		user, err := repo.FindByEmail(ctx, email)
		switch {
		case db.IsNotFound(err):
			s.logg.Info(ctx, "auth.password_reset.unknown_email")
			return nil
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
		case !user.IsActive:
			s.logg.Info(s.logg.WithUserID(ctx, user.ID), "auth.password_reset.inactive_user")
			return nil
		}

		// one outstanding key per user
		if err := repo.DeleteResetTokens(ctx, user.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "drop previous reset tokens")
		}
		if _, err := repo.CreateResetToken(ctx, user.ID, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create reset token")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPasswordReset,
			AggregateType: enums.AggregateUser,
			AggregateID:   strconv.FormatInt(user.ID, 10),
			Actor:         &outbox.ActorRef{UserID: user.ID, Role: string(user.Type)},
			Data: payloads.PasswordResetEvent{
				UserID:     user.ID,
				Email:      user.Email,
				ResetToken: key,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit password reset")
		}
		return nil
	})
}

// ConfirmReset sets a new password for the key's owner and burns every key
// the owner holds.
func (s *passwordResetService) ConfirmReset(ctx context.Context, req PasswordResetConfirmRequest) error {
	key := strings.TrimSpace(req.Token)
	if key == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "token is required").
			WithDetails(map[string]string{"token": "is required"})
	}
	if err := security.ValidatePassword(req.Password); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid password").
			WithDetails(map[string]string{"password": err.Error()})
	}
	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	invalid := pkgerrors.New(pkgerrors.CodeValidation, "invalid or expired token")
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := users.NewRepository(tx)
		token, err := repo.FindResetToken(ctx, key)
		if err != nil {
			if db.IsNotFound(err) {
				return invalid
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup reset token")
		}
		if s.now().After(token.CreatedAt.Add(s.ttl)) {
			return invalid
		}
		if err := repo.UpdateFields(ctx, token.UserID, map[string]any{"password_hash": passwordHash}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update password")
		}
		if err := repo.DeleteResetTokens(ctx, token.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete reset tokens")
		}
		s.logg.Info(s.logg.WithUserID(ctx, token.UserID), "auth.password_reset.completed")
		return nil
	})
}
