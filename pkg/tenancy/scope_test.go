package tenancy

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestEnsureSameTenant(t *testing.T) {
	workspaceID := uuid.New()
	scope := Scope{UserID: uuid.New(), WorkspaceID: workspaceID}

	t.Run("matching workspace", func(t *testing.T) {
		ctx := contextkeys.WithTenantScope(context.Background(), scope)
		assert.NoError(t, EnsureSameTenant(ctx, workspaceID))
	})

	t.Run("foreign workspace", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := contextkeys.WithTenantScope(context.Background(), scope)
		ctx = observability.WithLogger(ctx, observability.NewLogger(observability.InfoLevel, &buf))
		before := testutil.ToFloat64(observability.SecurityEventsTotal.WithLabelValues("tenant_mismatch"))

		err := EnsureSameTenant(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrTenantMismatch)
		assert.Equal(t, before+1, testutil.ToFloat64(observability.SecurityEventsTotal.WithLabelValues("tenant_mismatch")))
		assert.Contains(t, buf.String(), "tenant_mismatch")
		assert.Contains(t, buf.String(), workspaceID.String())
	})

	t.Run("no scope bound", func(t *testing.T) {
		assert.ErrorIs(t, EnsureSameTenant(context.Background(), workspaceID), ErrNoTenantScope)
	})

	t.Run("user-only scope", func(t *testing.T) {
		ctx := contextkeys.WithTenantScope(context.Background(), Scope{UserID: scope.UserID})
		assert.ErrorIs(t, EnsureSameTenant(ctx, workspaceID), ErrNoTenantScope)
	})
}
