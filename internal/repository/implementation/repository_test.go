package implementation

import (
	"context"
	"testing"
	"time"

	"memberpass-be/internal/entity"
	"memberpass-be/internal/model"
	"memberpass-be/internal/repository/specification"
	"memberpass-be/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewInMemorySqlite()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

func TestWebhookEventDedup(t *testing.T) {
	db := newTestDB(t)
	repo := NewWebhookEventRepository(db)
	ctx := context.Background()

	first := &entity.WebhookEvent{IdempotencyKey: "SUB-1:settlement", GatewayOrderId: "SUB-1", RawPayload: []byte(`{}`), Verified: true, ReceivedAt: time.Now().UTC()}
	created, err := repo.CreateIfNotExists(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	again := &entity.WebhookEvent{IdempotencyKey: "SUB-1:settlement", GatewayOrderId: "SUB-1", RawPayload: []byte(`{"x":1}`), Verified: true, ReceivedAt: time.Now().UTC()}
	created, err = repo.CreateIfNotExists(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	// the stored row is loaded back
	assert.Equal(t, first.Id, again.Id)
	assert.Equal(t, `{}`, string(again.RawPayload))

	msg := "unknown order"
	done, err := repo.MarkProcessed(ctx, first.Id, &msg)
	require.NoError(t, err)
	assert.True(t, done)
	done, err = repo.MarkProcessed(ctx, first.Id, nil)
	require.NoError(t, err)
	assert.False(t, done)

	stored, err := repo.FindOne(ctx, specification.ByID{ID: first.Id})
	require.NoError(t, err)
	require.NotNil(t, stored.ProcessingError)
	assert.Equal(t, msg, *stored.ProcessingError)
}

func TestSubscriptionCompareAndSwap(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	sub := &entity.Subscription{MemberId: uuid.New(), ServerId: "guild-1", TierId: uuid.New(), Status: entity.SubscriptionStatusPending}
	require.NoError(t, repo.Create(ctx, sub))
	require.NotEqual(t, uuid.Nil, sub.Id)

	expiry := time.Now().UTC().Add(30 * 24 * time.Hour)
	ok, err := repo.CompareAndSwapStatus(ctx, sub.Id, entity.SubscriptionStatusPending, entity.SubscriptionStatusActive, entity.SubscriptionPatch{ExpiryDate: &expiry})
	require.NoError(t, err)
	assert.True(t, ok)

	// a second writer still expecting Pending loses
	ok, err = repo.CompareAndSwapStatus(ctx, sub.Id, entity.SubscriptionStatusPending, entity.SubscriptionStatusFailed, entity.SubscriptionPatch{})
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.FindOne(ctx, specification.ByID{ID: sub.Id})
	require.NoError(t, err)
	assert.Equal(t, entity.SubscriptionStatusActive, stored.Status)
	require.NotNil(t, stored.ExpiryDate)
	assert.WithinDuration(t, expiry, *stored.ExpiryDate, time.Second)
}

func TestAccessLapsedBefore(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Hour)
	future := now.Add(48 * time.Hour)

	rows := map[string]*entity.Subscription{
		"lapsed":   {ExpiryDate: &past, GracePeriodUntil: &recent},
		"in grace": {ExpiryDate: &past, GracePeriodUntil: &future},
		"no grace": {ExpiryDate: &past},
		"not due":  {ExpiryDate: &future, GracePeriodUntil: &future},
	}
	for _, s := range rows {
		s.MemberId = uuid.New()
		s.ServerId = "guild-1"
		s.TierId = uuid.New()
		s.Status = entity.SubscriptionStatusActive
		require.NoError(t, repo.Create(ctx, s))
	}

	found, err := repo.FindAll(ctx, specification.AccessLapsedBefore{At: now})
	require.NoError(t, err)
	ids := map[uuid.UUID]bool{}
	for _, s := range found {
		ids[s.Id] = true
	}
	assert.Len(t, found, 2)
	assert.True(t, ids[rows["lapsed"].Id])
	assert.True(t, ids[rows["no grace"].Id])
}

func TestRoleCommandSettlesOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewRoleCommandRepository(db)
	ctx := context.Background()

	cmd := &entity.RoleCommand{
		SubscriptionId: uuid.New(),
		MemberId:       uuid.New(),
		ServerId:       "guild-1",
		RoleId:         "role-gold",
		Action:         entity.RoleActionGrant,
		Status:         entity.RoleCommandStatusPending,
	}
	require.NoError(t, repo.Create(ctx, cmd))
	require.NoError(t, repo.MarkDispatched(ctx, cmd.Id))

	ok, err := repo.Settle(ctx, cmd.Id, entity.RoleCommandStatusApplied, 2, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	reason := "late"
	ok, err = repo.Settle(ctx, cmd.Id, entity.RoleCommandStatusFailed, 1, &reason)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.FindOne(ctx, specification.ByID{ID: cmd.Id})
	require.NoError(t, err)
	assert.Equal(t, entity.RoleCommandStatusApplied, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
	assert.Nil(t, stored.LastError)
}

func TestActivityLogDetailsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()
	sub := uuid.New()

	require.NoError(t, repo.Append(ctx, &entity.ActivityLog{
		SubscriptionId: &sub,
		ActorType:      entity.ActorTypeSystem,
		Action:         entity.ActionRoleGranted,
		Details:        map[string]interface{}{"roleId": "role-gold", "attempts": 2},
	}))

	rows, err := repo.FindAll(ctx, specification.BySubscription{ID: sub})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "role-gold", rows[0].Details["roleId"])
	// JSON numbers decode as float64
	assert.Equal(t, float64(2), rows[0].Details["attempts"])
}

func TestMemberLockForUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	linked := "discord-7"
	id := uuid.New()
	require.NoError(t, db.Create(&model.Member{Id: id, ExternalUserId: &linked, DisplayName: "Sari"}).Error)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		member, err := NewMemberRepository(tx).LockForUpdate(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, member)
		assert.Equal(t, id, member.Id)

		missing, err := NewMemberRepository(tx).LockForUpdate(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	}))
}
