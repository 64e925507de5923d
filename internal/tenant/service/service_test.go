package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dormhub/internal/clock"
	"github.com/smallbiznis/dormhub/internal/tenant/domain"
	"github.com/smallbiznis/dormhub/internal/tenant/repository"
	"github.com/smallbiznis/dormhub/internal/tenant/service"
	"github.com/smallbiznis/dormhub/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTenantLifecycle(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := service.New(service.Params{
		DB:    dbtest.Open(t),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, time.October, 15, 10, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	ctx := context.Background()

	_, err = svc.Create(ctx, domain.CreateTenantRequest{FirstName: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, domain.CreateTenantRequest{FirstName: "Ana", Email: "ana.example.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	ana, err := svc.Create(ctx, domain.CreateTenantRequest{FirstName: " Ana ", LastName: "Lee", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Lee", ana.FullName())

	_, err = svc.Create(ctx, domain.CreateTenantRequest{FirstName: "Bo", Email: "bo@example.com"})
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, ana.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", got.Email)

	filtered, err := svc.List(ctx, domain.ListTenantRequest{Email: "ana@example.com"})
	require.NoError(t, err)
	require.Len(t, filtered.Tenants, 1)
	assert.Equal(t, ana.ID, filtered.Tenants[0].ID)

	all, err := svc.List(ctx, domain.ListTenantRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Tenants, 2)
	assert.False(t, all.HasMore)

	_, err = svc.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
	_, err = svc.GetByID(ctx, node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
