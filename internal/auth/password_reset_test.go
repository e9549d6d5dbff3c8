package auth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/users"
	"github.com/angelmondragon/procurement-backend/pkg/db/dbtest"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/payloads"
)

func newPasswordResetService(t *testing.T) (*passwordResetService, *gorm.DB) {
	t.Helper()
	client, conn := dbtest.Client(t)
	svc, err := NewPasswordResetService(PasswordResetServiceParams{
		DB:             client,
		Hasher:         testHasher(),
		Outbox:         outbox.NewService(outbox.NewRepository(conn), nil),
		TokenTTL:       time.Hour,
		TokenGenerator: func() (string, error) { return "reset-key", nil },
	})
	require.NoError(t, err)
	return svc.(*passwordResetService), conn
}

func seedAccount(t *testing.T, conn *gorm.DB, email string, active bool) *models.User {
	t.Helper()
	hash, err := testHasher().Hash("old-pass-123")
	require.NoError(t, err)
	user, err := users.NewRepository(conn).Create(context.Background(), users.CreateUserDTO{
		Email:        email,
		PasswordHash: hash,
		Type:         enums.UserTypeBuyer,
		IsActive:     active,
	})
	require.NoError(t, err)
	return user
}

func TestRequestResetIssuesKeyAndEvent(t *testing.T) {
	svc, conn := newPasswordResetService(t)
	user := seedAccount(t, conn, "ivan@example.com", true)

	require.NoError(t, svc.RequestReset(context.Background(), PasswordResetRequest{Email: " IVAN@example.com "}))

	var tokens []models.PasswordResetToken
	require.NoError(t, conn.Find(&tokens).Error)
	require.Len(t, tokens, 1)
	require.Equal(t, user.ID, tokens[0].UserID)
	require.Equal(t, "reset-key", tokens[0].Key)

	var events []models.OutboxEvent
	require.NoError(t, conn.Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventPasswordReset, events[0].EventType)

	env, err := outbox.OpenEnvelope(events[0].Payload)
	require.NoError(t, err)
	var payload payloads.PasswordResetEvent
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	require.Equal(t, payloads.PasswordResetEvent{UserID: user.ID, Email: "ivan@example.com", ResetToken: "reset-key"}, payload)
}

func TestRequestResetReplacesOutstandingKey(t *testing.T) {
	svc, conn := newPasswordResetService(t)
	seedAccount(t, conn, "ivan@example.com", true)
	ctx := context.Background()

	require.NoError(t, svc.RequestReset(ctx, PasswordResetRequest{Email: "ivan@example.com"}))
	svc.newToken = func() (string, error) { return "second-key", nil }
	require.NoError(t, svc.RequestReset(ctx, PasswordResetRequest{Email: "ivan@example.com"}))

	var keys []string
	require.NoError(t, conn.Model(&models.PasswordResetToken{}).Pluck("key", &keys).Error)
	require.Equal(t, []string{"second-key"}, keys)
}

func TestRequestResetIsSilentForUnknownAndInactive(t *testing.T) {
	svc, conn := newPasswordResetService(t)
	seedAccount(t, conn, "pending@example.com", false)
	ctx := context.Background()

	require.NoError(t, svc.RequestReset(ctx, PasswordResetRequest{Email: "nobody@example.com"}))
	require.NoError(t, svc.RequestReset(ctx, PasswordResetRequest{Email: "pending@example.com"}))

	var tokens, events int64
	require.NoError(t, conn.Model(&models.PasswordResetToken{}).Count(&tokens).Error)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&events).Error)
	require.Zero(t, tokens)
	require.Zero(t, events)
}

func TestConfirmResetSetsPasswordAndBurnsKey(t *testing.T) {
	svc, conn := newPasswordResetService(t)
	user := seedAccount(t, conn, "ivan@example.com", true)
	ctx := context.Background()
	require.NoError(t, svc.RequestReset(ctx, PasswordResetRequest{Email: "ivan@example.com"}))

	require.NoError(t, svc.ConfirmReset(ctx, PasswordResetConfirmRequest{Token: "reset-key", Password: "new-pass-456"}))

	stored, err := users.NewRepository(conn).FindByID(ctx, user.ID)
	require.NoError(t, err)
	ok, err := testHasher().Verify("new-pass-456", stored.PasswordHash)
	require.NoError(t, err)
	require.True(t, ok)

	err = svc.ConfirmReset(ctx, PasswordResetConfirmRequest{Token: "reset-key", Password: "other-pass-789"})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestConfirmResetRejects(t *testing.T) {
	svc, conn := newPasswordResetService(t)
	user := seedAccount(t, conn, "ivan@example.com", true)
	ctx := context.Background()
	require.NoError(t, svc.RequestReset(ctx, PasswordResetRequest{Email: "ivan@example.com"}))

	cases := map[string]PasswordResetConfirmRequest{
		"unknown key":   {Token: "nope", Password: "new-pass-456"},
		"missing key":   {Token: " ", Password: "new-pass-456"},
		"weak password": {Token: "reset-key", Password: "12345678"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			require.True(t, pkgerrors.HasCode(svc.ConfirmReset(ctx, req), pkgerrors.CodeValidation))
		})
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	err := svc.ConfirmReset(ctx, PasswordResetConfirmRequest{Token: "reset-key", Password: "new-pass-456"})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "expired key")

	stored, err := users.NewRepository(conn).FindByID(ctx, user.ID)
	require.NoError(t, err)
	ok, err := testHasher().Verify("old-pass-123", stored.PasswordHash)
	require.NoError(t, err)
	require.True(t, ok, "password unchanged")
}
