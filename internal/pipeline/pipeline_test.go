package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/earnzy/earnzy-push/internal/imagefetch"
	"github.com/earnzy/earnzy-push/internal/push"
	"github.com/earnzy/earnzy-push/internal/sideeffect"
	"github.com/earnzy/earnzy-push/internal/storage"
	"github.com/earnzy/earnzy-push/internal/tray"
)

type memoryTray struct {
	mu            sync.Mutex
	channels      map[string]storage.Channel
	notifications map[int32]storage.Notification
	posts         int
	fail          bool
}

func newMemoryTray() *memoryTray {
	return &memoryTray{
		channels:      make(map[string]storage.Channel),
		notifications: make(map[int32]storage.Notification),
	}
}

func (m *memoryTray) CreateChannel(_ context.Context, ch *storage.Channel) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[ch.ID]; ok {
		return false, nil
	}
	m.channels[ch.ID] = *ch
	return true, nil
}

func (m *memoryTray) PostNotification(_ context.Context, n *storage.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("notification service unavailable")
	}
	if _, ok := m.channels[n.ChannelID]; !ok {
		return errors.New("channel not registered")
	}
	m.posts++
	m.notifications[n.ID] = *n
	return nil
}

func (m *memoryTray) visible() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifications)
}

type fakeFetcher struct {
	calls atomic.Int32
	bmp   *imagefetch.Bitmap
	err   error
	delay time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*imagefetch.Bitmap, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.bmp, f.err
}

type countingSideEffects struct {
	mu    sync.Mutex
	calls map[string]int
	inner *sideeffect.Registry
}

func newCountingSideEffects() *countingSideEffects {
	c := &countingSideEffects{calls: make(map[string]int), inner: sideeffect.NewRegistry(zap.NewNop())}
	for _, tag := range []string{sideeffect.TypeSignupBonus, sideeffect.TypeReferralSuccess} {
		tag := tag
		c.inner.Register(tag, sideeffect.HandlerFunc(func(context.Context, push.Intent) error {
			c.mu.Lock()
			c.calls[tag]++
			c.mu.Unlock()
			return nil
		}))
	}
	return c
}

func (c *countingSideEffects) Dispatch(ctx context.Context, intent push.Intent) bool {
	return c.inner.Dispatch(ctx, intent)
}

func (c *countingSideEffects) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

type fixture struct {
	pipeline *NotificationPipeline
	tray     *memoryTray
	fetcher  *fakeFetcher
	effects  *countingSideEffects
}

func newFixture(policy push.Policy, fetcher *fakeFetcher, timeout time.Duration) *fixture {
	mem := newMemoryTray()
	channel := storage.Channel{ID: "earnzy_notifications_channel", Name: "General Notifications", Importance: tray.ImportanceHigh}
	presenter := tray.NewPresenter(tray.NewChannelRegistry(mem, zap.NewNop()), mem, tray.NewIDSource(0), channel, "home", zap.NewNop())
	effects := newCountingSideEffects()
	return &fixture{
		pipeline: NewNotificationPipeline(push.NewNormalizer(policy), effects, fetcher, presenter, timeout, zap.NewNop()),
		tray:     mem,
		fetcher:  fetcher,
		effects:  effects,
	}
}

func TestHandle_StructuredPayload(t *testing.T) {
	for _, policy := range []push.Policy{push.PolicyDataFirst, push.PolicyNotificationFirst} {
		f := newFixture(policy, &fakeFetcher{}, time.Second)
		res := f.pipeline.Handle(context.Background(), &push.Message{
			ID:           "m1",
			Notification: &push.Notification{Title: "Daily bonus", Body: "Claim 10 coins"},
		})
		require.Equal(t, OutcomePosted, res.Outcome, string(policy))
		assert.Equal(t, "Daily bonus", res.Notification.Title)
		assert.Equal(t, "Claim 10 coins", res.Notification.Body)
		assert.Equal(t, tray.StyleDefault, res.Notification.Style)
	}
}

func TestHandle_DropsWithoutTitleOrBody(t *testing.T) {
	f := newFixture(push.PolicyDataFirst, &fakeFetcher{}, time.Second)
	ctx := context.Background()

	for _, msg := range []*push.Message{
		{},
		{Data: map[string]string{"title": "only title"}},
		{Notification: &push.Notification{Body: "only body"}},
	} {
		res := f.pipeline.Handle(ctx, msg)
		assert.Equal(t, OutcomeDropped, res.Outcome)
	}
	assert.Equal(t, 0, f.tray.posts)
}

func TestHandle_SideEffectsExactlyOnce(t *testing.T) {
	f := newFixture(push.PolicyDataFirst, &fakeFetcher{}, time.Second)
	ctx := context.Background()

	res := f.pipeline.Handle(ctx, &push.Message{Data: map[string]string{
		"title": "Welcome", "body": "Bonus credited", "type": "SIGNUP_BONUS", "bonusAmount": "100",
	}})
	assert.True(t, res.SideEffect)
	assert.Equal(t, 1, f.effects.calls[sideeffect.TypeSignupBonus])

	f.pipeline.Handle(ctx, &push.Message{Data: map[string]string{
		"title": "Referral", "body": "Friend joined", "type": "REFERRAL_SUCCESS",
	}})
	assert.Equal(t, 1, f.effects.calls[sideeffect.TypeReferralSuccess])
	assert.Equal(t, 1, f.effects.calls[sideeffect.TypeSignupBonus])

	res = f.pipeline.Handle(ctx, &push.Message{Data: map[string]string{"title": "x", "body": "y", "type": "COIN_REWARD"}})
	assert.False(t, res.SideEffect)
	f.pipeline.Handle(ctx, &push.Message{Data: map[string]string{"title": "x", "body": "y"}})
	assert.Equal(t, 2, f.effects.total())
}

func TestHandle_NonHTTPImageIsNeverFetched(t *testing.T) {
	fetcher := &fakeFetcher{bmp: &imagefetch.Bitmap{Format: "png"}}
	f := newFixture(push.PolicyDataFirst, fetcher, time.Second)

	res := f.pipeline.Handle(context.Background(), &push.Message{Data: map[string]string{
		"title": "t", "body": "b", "image": "ftp://example.com/x.png",
	}})
	require.Equal(t, OutcomePosted, res.Outcome)
	assert.EqualValues(t, 0, fetcher.calls.Load())
	assert.Equal(t, tray.StyleDefault, res.Notification.Style)
}

func TestHandle_ImageUpgradesToBigPicture(t *testing.T) {
	fetcher := &fakeFetcher{bmp: &imagefetch.Bitmap{Format: "png", Width: 10, Height: 5}}
	f := newFixture(push.PolicyDataFirst, fetcher, time.Second)

	res := f.pipeline.Handle(context.Background(), &push.Message{Data: map[string]string{
		"title": "Cashout", "body": "Paid!", "image": "https://example.com/ok.png",
	}})
	require.Equal(t, OutcomePosted, res.Outcome)
	assert.EqualValues(t, 1, fetcher.calls.Load())
	assert.Equal(t, tray.StyleBigPicture, res.Notification.Style)
	assert.Equal(t, "Paid!", res.Notification.Summary)
}

func TestHandle_ImageFailureFallsBackToText(t *testing.T) {
	ctx := context.Background()

	f := newFixture(push.PolicyDataFirst, &fakeFetcher{err: errors.New("404")}, time.Second)
	res := f.pipeline.Handle(ctx, &push.Message{Data: map[string]string{"title": "t", "body": "b", "image": "https://example.com/gone.png"}})
	require.Equal(t, OutcomePosted, res.Outcome)
	assert.Equal(t, tray.StyleDefault, res.Notification.Style)

	slow := &fakeFetcher{bmp: &imagefetch.Bitmap{Format: "png"}, delay: 2 * time.Second}
	f = newFixture(push.PolicyDataFirst, slow, 50*time.Millisecond)
	start := time.Now()
	res = f.pipeline.Handle(ctx, &push.Message{Data: map[string]string{"title": "t", "body": "b", "image": "https://example.com/slow.png"}})
	assert.Less(t, time.Since(start), time.Second)
	require.Equal(t, OutcomePosted, res.Outcome)
	assert.Equal(t, tray.StyleDefault, res.Notification.Style)
}

func TestHandle_SequentialMessagesGetDistinctIDs(t *testing.T) {
	f := newFixture(push.PolicyNotificationFirst, &fakeFetcher{}, time.Second)
	ctx := context.Background()

	a := f.pipeline.Handle(ctx, &push.Message{Notification: &push.Notification{Title: "A", Body: "1"}})
	b := f.pipeline.Handle(ctx, &push.Message{Notification: &push.Notification{Title: "B", Body: "2"}})

	require.Equal(t, OutcomePosted, a.Outcome)
	require.Equal(t, OutcomePosted, b.Outcome)
	assert.NotEqual(t, a.Notification.ID, b.Notification.ID)
	assert.Equal(t, 2, f.tray.visible())
}

func TestHandle_SurfaceFailureIsContained(t *testing.T) {
	f := newFixture(push.PolicyDataFirst, &fakeFetcher{}, time.Second)
	f.tray.fail = true

	res := f.pipeline.Handle(context.Background(), &push.Message{Notification: &push.Notification{Title: "t", Body: "b"}})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Nil(t, res.Notification)
}

func TestHandle_ConcurrentDelivery(t *testing.T) {
	f := newFixture(push.PolicyDataFirst, &fakeFetcher{}, time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.pipeline.Handle(ctx, &push.Message{Notification: &push.Notification{Title: "t", Body: "b"}})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, f.tray.visible())
	assert.Len(t, f.tray.channels, 1)
}
