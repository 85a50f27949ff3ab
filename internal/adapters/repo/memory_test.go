package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aryainguz/tldev-backend/internal/domain"
)

func fixedClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func seedPublished(t *testing.T, m *Memory, n int) []domain.Tip {
	t.Helper()
	ctx := context.Background()
	drafts := make([]domain.Tip, 0, n)
	for i := 0; i < n; i++ {
		drafts = append(drafts, domain.Tip{Headline: "tip", Category: "go", TopicSlug: "slug"})
	}
	saved, err := m.CreateDraftTips(ctx, drafts)
	require.NoError(t, err)
	for i := range saved {
		saved[i], err = m.PublishEnriched(ctx, saved[i].ID, nil, nil)
		require.NoError(t, err)
	}
	return saved
}

func TestMemoryActionsKeepCountersInSync(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	tip := seedPublished(t, m, 1)[0]

	var users []string
	for _, email := range []string{"a@x", "b@x", "c@x"} {
		u, created, err := m.EnsureUser(ctx, domain.UserProfile{Email: email})
		require.NoError(t, err)
		require.True(t, created)
		users = append(users, u.ID)
	}

	sequence := []int{0, 1, 0, 2, 2, 1, 0, 2, 1, 1}
	for _, idx := range sequence {
		_, err := m.ApplyAction(ctx, users[idx], tip.ID, domain.ActionLike)
		require.NoError(t, err)
		got, err := m.GetTip(ctx, tip.ID)
		require.NoError(t, err)
		require.Equal(t, m.CountActions(tip.ID, domain.ActionLike), got.Counters.Likes)
	}
}

func TestMemoryShareIsAddOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	tip := seedPublished(t, m, 1)[0]
	u, _, err := m.EnsureUser(ctx, domain.UserProfile{Email: "a@x"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := m.ApplyAction(ctx, u.ID, tip.ID, domain.ActionShare)
		require.NoError(t, err)
		require.Equal(t, domain.ActionAdded, res.Outcome)
		require.EqualValues(t, 1, res.Counters.Shares)
	}
}

func TestMemoryFeedPagination(t *testing.T) {
	ctx := context.Background()
	m := NewMemory().WithClock(fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	tips := seedPublished(t, m, 5)

	page, err := m.ListFeed(ctx, domain.FeedQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, tips[4].ID, page[0].ID)
	require.Equal(t, tips[3].ID, page[1].ID)

	page, err = m.ListFeed(ctx, domain.FeedQuery{Limit: 10, Cursor: page[1].ID})
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.Equal(t, tips[2].ID, page[0].ID)
	require.Equal(t, tips[0].ID, page[2].ID)
}

func TestMemoryEnsureUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	first, created, err := m.EnsureUser(ctx, domain.UserProfile{Email: "device-1@device.tldev"})
	require.NoError(t, err)
	require.True(t, created)
	second, created, err := m.EnsureUser(ctx, domain.UserProfile{Email: "device-1@device.tldev"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
}
