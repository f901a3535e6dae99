package tray

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/earnzy/earnzy-push/internal/imagefetch"
	"github.com/earnzy/earnzy-push/internal/push"
	"github.com/earnzy/earnzy-push/internal/storage"
)

type mockChannelStore struct {
	mock.Mock
}

func (m *mockChannelStore) CreateChannel(ctx context.Context, ch *storage.Channel) (bool, error) {
	args := m.Called(ctx, ch)
	return args.Bool(0), args.Error(1)
}

type failingSurface struct{}

func (failingSurface) PostNotification(context.Context, *storage.Notification) error {
	return errors.New("notification service unavailable")
}

var testChannel = storage.Channel{
	ID:          "earnzy_notifications_channel",
	Name:        "General Notifications",
	Description: "Notifications from Earnzy",
	Importance:  ImportanceHigh,
}

func newStore(t *testing.T) *storage.SQLStore {
	t.Helper()
	store, err := storage.NewSQLStore(filepath.Join(t.TempDir(), "tray.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestChannelRegistry_EnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	reg := NewChannelRegistry(store, zap.NewNop())

	require.NoError(t, reg.Ensure(ctx, testChannel))
	require.NoError(t, reg.Ensure(ctx, testChannel))

	channels, err := store.ListChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, channels, 1)

	// A fresh registry over the same store still ends with one channel.
	require.NoError(t, NewChannelRegistry(store, zap.NewNop()).Ensure(ctx, testChannel))
	channels, err = store.ListChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, channels, 1)
}

func TestChannelRegistry_CachesAfterFirstCreate(t *testing.T) {
	ctx := context.Background()
	store := new(mockChannelStore)
	store.On("CreateChannel", mock.Anything, mock.Anything).Return(true, nil).Once()

	reg := NewChannelRegistry(store, zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, reg.Ensure(ctx, testChannel))
		}()
	}
	wg.Wait()

	store.AssertNumberOfCalls(t, "CreateChannel", 1)
}

func TestChannelRegistry_RetriesAfterError(t *testing.T) {
	ctx := context.Background()
	store := new(mockChannelStore)
	store.On("CreateChannel", mock.Anything, mock.Anything).Return(false, errors.New("db down")).Once()
	store.On("CreateChannel", mock.Anything, mock.Anything).Return(true, nil).Once()

	reg := NewChannelRegistry(store, zap.NewNop())
	assert.Error(t, reg.Ensure(ctx, testChannel))
	assert.NoError(t, reg.Ensure(ctx, testChannel))
	store.AssertNumberOfCalls(t, "CreateChannel", 2)
}

func TestIDSource_DistinctUnderConcurrency(t *testing.T) {
	ids := NewIDSource(0)
	const n = 1000

	var mu sync.Mutex
	seen := make(map[int32]struct{}, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := ids.Next()
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestIDSource_WrapsToPositive(t *testing.T) {
	ids := NewIDSource(0x7ffffffe)
	assert.Equal(t, int32(0x7fffffff), ids.Next())
	assert.Greater(t, ids.Next(), int32(0))
}

func TestCollapseID(t *testing.T) {
	assert.Equal(t, CollapseID("daily-bonus"), CollapseID("daily-bonus"))
	assert.NotEqual(t, CollapseID("daily-bonus"), CollapseID("referral"))
	assert.Less(t, CollapseID("daily-bonus"), int32(0))
}

func TestPresenter_TwoMessagesStayVisible(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	p := NewPresenter(NewChannelRegistry(store, zap.NewNop()), store, NewIDSource(100), testChannel, "home", zap.NewNop())

	a, err := p.Present(ctx, push.Intent{Title: "A", Body: "1"}, nil)
	require.NoError(t, err)
	b, err := p.Present(ctx, push.Intent{Title: "B", Body: "2"}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	list, err := store.ListNotifications(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestPresenter_CollapseIDReplaces(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	p := NewPresenter(NewChannelRegistry(store, zap.NewNop()), store, NewIDSource(0), testChannel, "home", zap.NewNop())

	_, err := p.Present(ctx, push.Intent{Title: "Streak", Body: "day 1", CollapseID: "streak"}, nil)
	require.NoError(t, err)
	_, err = p.Present(ctx, push.Intent{Title: "Streak", Body: "day 2", CollapseID: "streak"}, nil)
	require.NoError(t, err)

	list, err := store.ListNotifications(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "day 2", list[0].Body)
}

func TestPresenter_BuildStyles(t *testing.T) {
	p := NewPresenter(nil, nil, NewIDSource(0), testChannel, "home", zap.NewNop())
	intent := push.Intent{MessageID: "m1", Title: "Payout", Body: "Your cash is on the way", ImageURL: "https://example.com/ok.png"}

	plain := p.Build(intent, nil)
	assert.Equal(t, StyleDefault, plain.Style)
	assert.Empty(t, plain.Summary)
	assert.Equal(t, SoundDefault, plain.Sound)
	assert.Equal(t, PriorityHigh, plain.Priority)
	assert.True(t, plain.AutoCancel)
	assert.Equal(t, "home", plain.TapScreen)
	assert.True(t, plain.TapClearTop)
	assert.Equal(t, testChannel.ID, plain.ChannelID)

	rich := p.Build(intent, &imagefetch.Bitmap{Format: "png", Width: 2, Height: 1})
	assert.Equal(t, StyleBigPicture, rich.Style)
	assert.Equal(t, intent.Body, rich.Summary)
	assert.Equal(t, "png", rich.ImageFormat)
	assert.Equal(t, intent.ImageURL, rich.ImageURL)
}

func TestPresenter_Errors(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	p := NewPresenter(NewChannelRegistry(store, zap.NewNop()), store, NewIDSource(0), testChannel, "home", zap.NewNop())
	_, err := p.Present(ctx, push.Intent{Title: "only title"}, nil)
	assert.Error(t, err)

	p = NewPresenter(NewChannelRegistry(store, zap.NewNop()), failingSurface{}, NewIDSource(0), testChannel, "home", zap.NewNop())
	_, err = p.Present(ctx, push.Intent{Title: "t", Body: "b"}, nil)
	assert.Error(t, err)
}

func TestPresenter_RestartDoesNotReuseVisibleIDs(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "restart.db")

	first, err := storage.NewSQLStore(path, zap.NewNop())
	require.NoError(t, err)
	p := NewPresenter(NewChannelRegistry(first, zap.NewNop()), first, NewIDSource(1000), testChannel, "home", zap.NewNop())
	for i := 0; i < 5; i++ {
		_, err := p.Present(ctx, push.Intent{Title: "old", Body: "before restart"}, nil)
		require.NoError(t, err)
	}
	_, err = p.Present(ctx, push.Intent{Title: "Streak", Body: "kept", CollapseID: "streak"}, nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := storage.NewSQLStore(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	ids, err := NewIDSourceFromStore(ctx, second)
	require.NoError(t, err)
	p = NewPresenter(NewChannelRegistry(second, zap.NewNop()), second, ids, testChannel, "home", zap.NewNop())
	n, err := p.Present(ctx, push.Intent{Title: "new", Body: "after restart"}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1006, n.ID)

	list, err := second.ListNotifications(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 7)
}

func TestPresenter_CollapseIDDoesNotConsumeCounter(t *testing.T) {
	ids := NewIDSource(10)
	p := NewPresenter(nil, nil, ids, testChannel, "home", zap.NewNop())

	p.Build(push.Intent{Title: "Streak", Body: "day 1", CollapseID: "streak"}, nil)
	n := p.Build(push.Intent{Title: "A", Body: "1"}, nil)
	assert.EqualValues(t, 11, n.ID)
}
