package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/willwe-dev/activity"
)

func ptr(s string) *string { return &s }

func TestStoreActivityLog_GeneratesIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.StoreActivityLog(ctx, ptr("N1"), ptr("0xABC"), "TestEvent", map[string]any{"ok": true})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	a, err := s.Activity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "N1", *a.NodeID)
	assert.Equal(t, "0xabc", *a.UserAddress)
	assert.Equal(t, "2024-05-01T12:00:00.000Z", a.Timestamp)
	assert.JSONEq(t, `{"ok":true}`, string(a.Data))
}

func TestStoreActivityLog_ExplicitIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	block := time.Unix(1700000000, 0)
	id, err := s.StoreActivityLog(ctx, ptr("N1"), nil, "Mint", `{"amount":"5"}`,
		WithID("0xabc-1"), WithTimestamp(block))
	require.NoError(t, err)
	assert.Equal(t, "0xabc-1", id)

	a, err := s.Activity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2023-11-14T22:13:20.000Z", a.Timestamp)
	assert.Nil(t, a.UserAddress)
	assert.JSONEq(t, `{"amount":"5"}`, string(a.Data))
}

func TestStoreActivityLog_RequiresEventType(t *testing.T) {
	s := newTestStore(t)
	_, err := s.StoreActivityLog(context.Background(), nil, nil, "  ", nil)
	assert.ErrorIs(t, err, activity.ErrMissingEventType)
}

func TestWriteActivity_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &activity.Activity{ID: "0xtx-0", EventType: "Mint", NodeID: ptr("N1"), Timestamp: "2024-01-01T00:00:00.000Z"}
	inserted, err := s.WriteActivity(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := &activity.Activity{ID: "0xtx-0", EventType: "Burn", NodeID: ptr("N1"), Timestamp: "2024-02-01T00:00:00.000Z"}
	inserted, err = s.WriteActivity(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)

	acts, err := s.ListActivities(ctx, activity.NodeSubject("N1"), 10)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "Mint", acts[0].EventType)
}

func TestListActivities_NewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, ts := range []string{"2024-01-01T00:00:01.000Z", "2024-01-01T00:00:03.000Z", "2024-01-01T00:00:02.000Z"} {
		_, err := s.WriteActivity(ctx, &activity.Activity{
			ID:        []string{"t1", "t3", "t2"}[i],
			NodeID:    ptr("N1"),
			EventType: "Signaled",
			Timestamp: ts,
		})
		require.NoError(t, err)
	}
	_, err := s.WriteActivity(ctx, &activity.Activity{ID: "other", NodeID: ptr("N9"), EventType: "Signaled"})
	require.NoError(t, err)

	acts, err := s.ListActivities(ctx, activity.NodeSubject("N1"), 2)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "t3", acts[0].ID)
	assert.Equal(t, "t2", acts[1].ID)
}

func TestListActivities_ByUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.StoreActivityLog(ctx, nil, ptr("0xAbC"), "Transfer", nil)
	require.NoError(t, err)

	acts, err := s.ListActivities(ctx, activity.Subject{UserAddress: "0xABC"}, 0)
	require.NoError(t, err)
	assert.Len(t, acts, 1)
}

func TestListActivities_LimitCeiling(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < activity.MaxLimit+5; i++ {
		_, err := s.StoreActivityLog(ctx, ptr("N1"), nil, "Signaled", i)
		require.NoError(t, err)
	}

	acts, err := s.ListActivities(ctx, activity.NodeSubject("N1"), 9999)
	require.NoError(t, err)
	assert.Len(t, acts, activity.MaxLimit)
}

func TestListActivities_RequiresSubject(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ListActivities(context.Background(), activity.Subject{}, 10)
	assert.ErrorIs(t, err, activity.ErrNoSubject)
}

func TestDailyCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	day := func(d, h int) time.Time { return time.Date(2024, 4, d, h, 0, 0, 0, time.UTC) }
	for i, ts := range []time.Time{day(1, 9), day(1, 23), day(3, 0), day(30, 12)} {
		_, err := s.StoreActivityLog(ctx, ptr("N1"), nil, "Transfer", nil,
			WithID(fmt.Sprintf("a%d", i)), WithTimestamp(ts))
		require.NoError(t, err)
	}
	_, err := s.StoreActivityLog(ctx, ptr("N2"), nil, "Transfer", nil, WithTimestamp(day(1, 10)))
	require.NoError(t, err)

	counts, err := s.DailyCounts(ctx, activity.NodeSubject("N1"),
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"2024-04-01": 2, "2024-04-03": 1}, counts)

	total, err := s.CountActivities(ctx, activity.NodeSubject("N1"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
}

func TestWriteActivity_StorageErrorPropagates(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Discard,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "activity_logs"`)).
		WillReturnError(errors.New("disk full"))

	s := New(db)
	_, err = s.StoreActivityLog(context.Background(), ptr("N1"), nil, "Mint", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}
