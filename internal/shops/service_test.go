package shops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/procurement-backend/internal/catalog"
	"github.com/angelmondragon/procurement-backend/pkg/db/dbtest"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

type recordingInvalidator struct {
	models []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, models ...string) (int, error) {
	r.models = append(r.models, models...)
	return len(models), nil
}

func TestSetStateTogglesAndInvalidates(t *testing.T) {
	conn := dbtest.Open(t)
	user := models.User{Email: "p@example.com", PasswordHash: "x", Type: "shop"}
	require.NoError(t, conn.Create(&user).Error)
	require.NoError(t, conn.Create(&models.Shop{Name: "Acme", UserID: &user.ID, State: true}).Error)

	inv := &recordingInvalidator{}
	svc, err := NewService(catalog.NewRepository(conn), inv, nil)
	require.NoError(t, err)
	ctx := context.Background()

	dto, err := svc.SetState(ctx, user.ID, false)
	require.NoError(t, err)
	require.False(t, dto.State)
	require.ElementsMatch(t, []string{catalog.ModelShops, catalog.ModelListings}, inv.models)

	dto, err = svc.State(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, dto.State)
	require.Equal(t, "Acme", dto.Name)
}

func TestStateWithoutShop(t *testing.T) {
	svc, err := NewService(catalog.NewRepository(dbtest.Open(t)), nil, nil)
	require.NoError(t, err)

	_, err = svc.State(context.Background(), 42)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
