package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/l1jgo/worldstore/internal/core/event"
	"github.com/l1jgo/worldstore/internal/world"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeStore struct {
	mu   sync.Mutex
	vals map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{vals: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *fakeStore) Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return goredis.NewStatusResult("", s.err)
	}
	s.vals[key] = value.(string)
	s.ttls[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func (s *fakeStore) Get(ctx context.Context, key string) *goredis.StringCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vals[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func TestPublisherFollowsHooks(t *testing.T) {
	store := newFakeStore()
	pub := NewPublisher(store, time.Minute, zap.NewNop())
	bus := event.NewBus()
	pub.Subscribe(bus)
	alice := &world.Player{Name: "alice"}
	ctx := context.Background()

	status, err := pub.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, status)

	event.Publish(bus, event.CharacterLoaded{Player: alice})
	status, _ = pub.Status(ctx, "alice")
	assert.Equal(t, StatusOnline, status)
	assert.Equal(t, time.Minute, store.ttls["presence:alice"])

	event.Publish(bus, event.CharacterSaved{Player: alice, Online: false})
	status, _ = pub.Status(ctx, "alice")
	assert.Equal(t, StatusOffline, status)
}

func TestPreviewDoesNotPublish(t *testing.T) {
	store := newFakeStore()
	pub := NewPublisher(store, time.Minute, zap.NewNop())
	bus := event.NewBus()
	pub.Subscribe(bus)

	event.Publish(bus, event.CharacterLoaded{Player: &world.Player{Name: "alice"}, Preview: true})
	assert.Empty(t, store.vals)
}

func TestPublishFailureIsLogged(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	core, logs := observer.New(zapcore.WarnLevel)
	pub := NewPublisher(store, time.Minute, zap.New(core))
	bus := event.NewBus()
	pub.Subscribe(bus)

	assert.NotPanics(t, func() {
		event.Publish(bus, event.CharacterSaved{Player: &world.Player{Name: "alice"}, Online: true})
	})
	assert.Equal(t, 1, logs.Len())
}
