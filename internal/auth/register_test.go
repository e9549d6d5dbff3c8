package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/users"
	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db/dbtest"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/security"
)

func testHasher() *security.Hasher {
	return security.NewHasher(config.PasswordConfig{
		ArgonMemoryKB:    8192,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	})
}

func newRegisterService(t *testing.T) (RegisterService, *gorm.DB) {
	t.Helper()
	client, conn := dbtest.Client(t)
	svc, err := NewRegisterService(RegisterServiceParams{
		DB:             client,
		Hasher:         testHasher(),
		Outbox:         outbox.NewService(outbox.NewRepository(conn), nil),
		TokenGenerator: func() (string, error) { return "fixed-key", nil },
	})
	require.NoError(t, err)
	return svc, conn
}

func validRegisterRequest() RegisterRequest {
	return RegisterRequest{
		FirstName: "Ivan",
		LastName:  "Petrov",
		Email:     "Ivan@Example.com",
		Password:  "strong-pass-1",
		Company:   "Acme",
		Position:  "buyer",
	}
}

func TestRegisterCreatesInactiveUserTokenAndEvent(t *testing.T) {
	svc, conn := newRegisterService(t)

	dto, err := svc.Register(context.Background(), validRegisterRequest())
	require.NoError(t, err)
	require.Equal(t, "ivan@example.com", dto.Email)
	require.False(t, dto.IsActive)
	require.Equal(t, enums.UserTypeBuyer, dto.Type)

	var tokens []models.ConfirmEmailToken
	require.NoError(t, conn.Find(&tokens).Error)
	require.Len(t, tokens, 1)
	require.Equal(t, "fixed-key", tokens[0].Key)

	var events []models.OutboxEvent
	require.NoError(t, conn.Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventUserRegistered, events[0].EventType)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newRegisterService(t)
	_, err := svc.Register(context.Background(), validRegisterRequest())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), validRegisterRequest())
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestRegisterRejectsWeakPasswordAndType(t *testing.T) {
	svc, _ := newRegisterService(t)

	req := validRegisterRequest()
	req.Password = "12345678"
	_, err := svc.Register(context.Background(), req)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	req = validRegisterRequest()
	req.Type = enums.UserType("admin")
	_, err = svc.Register(context.Background(), req)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestConfirmActivatesAndConsumesToken(t *testing.T) {
	svc, conn := newRegisterService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, validRegisterRequest())
	require.NoError(t, err)

	err = svc.Confirm(ctx, ConfirmRequest{Email: "ivan@example.com", Token: "wrong"})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	require.NoError(t, svc.Confirm(ctx, ConfirmRequest{Email: "IVAN@example.com", Token: "fixed-key"}))

	user, err := users.NewRepository(conn).FindByEmail(ctx, "ivan@example.com")
	require.NoError(t, err)
	require.True(t, user.IsActive)

	err = svc.Confirm(ctx, ConfirmRequest{Email: "ivan@example.com", Token: "fixed-key"})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
