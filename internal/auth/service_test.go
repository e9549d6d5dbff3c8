package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/procurement-backend/internal/users"
	pkgAuth "github.com/angelmondragon/procurement-backend/pkg/auth"
	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db/dbtest"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "procurement",
		ExpirationMinutes: 30,
	}
}

func seedUser(t *testing.T, repo *users.Repository, email, password string, active bool, userType enums.UserType) {
	t.Helper()
	hash, err := testHasher().Hash(password)
	require.NoError(t, err)
	_, err = repo.Create(context.Background(), users.CreateUserDTO{
		Email:        email,
		PasswordHash: hash,
		Type:         userType,
		IsActive:     active,
	})
	require.NoError(t, err)
}

func TestLoginMintsTokenWithUserType(t *testing.T) {
	repo := users.NewRepository(dbtest.Open(t))
	seedUser(t, repo, "shop@example.com", "partner-pass", true, enums.UserTypeShop)

	svc, err := NewService(ServiceParams{UserRepo: repo, Hasher: testHasher(), JWTConfig: testJWTConfig()})
	require.NoError(t, err)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: " SHOP@example.com ", Password: "partner-pass"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig(), resp.Token)
	require.NoError(t, err)
	require.Equal(t, enums.UserTypeShop, claims.UserType)
	require.Equal(t, resp.User.ID, claims.UserID)

	stored, err := repo.FindByEmail(context.Background(), "shop@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	require.WithinDuration(t, time.Now(), *stored.LastLoginAt, time.Minute)
}

func TestLoginRejectsInactiveAndWrongPassword(t *testing.T) {
	repo := users.NewRepository(dbtest.Open(t))
	seedUser(t, repo, "pending@example.com", "pending-pass", false, enums.UserTypeBuyer)
	seedUser(t, repo, "active@example.com", "active-pass", true, enums.UserTypeBuyer)

	svc, err := NewService(ServiceParams{UserRepo: repo, Hasher: testHasher(), JWTConfig: testJWTConfig()})
	require.NoError(t, err)

	cases := []LoginRequest{
		{Email: "pending@example.com", Password: "pending-pass"},
		{Email: "active@example.com", Password: "nope"},
		{Email: "missing@example.com", Password: "whatever"},
	}
	for _, req := range cases {
		_, err := svc.Login(context.Background(), req)
		require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized), req.Email)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
