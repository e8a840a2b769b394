package service

import (
	"context"
	"testing"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) seedAuditEntry(t *testing.T, action string, age time.Duration) {
	t.Helper()
	entry := model.AuditLog{Action: action, EntityType: "test", EntityID: "x"}
	require.NoError(t, e.auditRepo.Log(context.Background(), &entry))
	if age > 0 {
		require.NoError(t, e.db.Model(&model.AuditLog{}).
			Where("id = ?", entry.ID).
			Update("created_at", time.Now().Add(-age)).Error)
	}
}

func TestMaintainArchivesThenPurges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedAuditEntry(t, "OLD_ACTION", 400*24*time.Hour)
	env.seedAuditEntry(t, "MIDDLE_ACTION", 100*24*time.Hour)
	env.seedAuditEntry(t, "FRESH_ACTION", 0)

	// First pass: both old entries cross the archive cutoff, nothing is
	// purged yet because nothing was archived before.
	require.NoError(t, env.audit.Maintain(ctx, 90*24*time.Hour, 365*24*time.Hour))

	stats, err := env.audit.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Archived)

	// Second pass: the 400-day entry is archived and beyond the purge
	// cutoff, so it is deleted for good.
	require.NoError(t, env.audit.Maintain(ctx, 90*24*time.Hour, 365*24*time.Hour))

	stats, err = env.audit.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Archived)
}

func TestAuditListFiltersByAction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedAuditEntry(t, model.ActionCreateOrder, 0)
	env.seedAuditEntry(t, model.ActionCreateOrder, 0)
	env.seedAuditEntry(t, model.ActionDeleteOrder, 0)

	entries, total, err := env.audit.List(ctx, repository.AuditFilter{
		Action: model.ActionCreateOrder, Page: 1, Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, entries, 2)
}
