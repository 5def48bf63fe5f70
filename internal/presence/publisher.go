package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/l1jgo/worldstore/internal/config"
	"github.com/l1jgo/worldstore/internal/core/event"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	keyPrefix    = "presence:"
	writeTimeout = 2 * time.Second
)

// Store is the subset of the redis client the publisher writes through.
type Store interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Get(ctx context.Context, key string) *goredis.StringCmd
}

// NewClient connects to redis and verifies the connection.
func NewClient(cfg config.PresenceConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Publisher mirrors character online status into redis so tools outside
// the server can read it. Keys expire after ttl, so a crashed server does
// not leave characters online forever.
type Publisher struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger
}

func NewPublisher(store Store, ttl time.Duration, log *zap.Logger) *Publisher {
	return &Publisher{store: store, ttl: ttl, log: log}
}

func key(name string) string {
	return keyPrefix + name
}

// Subscribe hooks the publisher to character load and save events.
func (p *Publisher) Subscribe(bus *event.Bus) {
	event.Subscribe(bus, func(ev event.CharacterLoaded) {
		if ev.Preview {
			return
		}
		p.publish(ev.Player.Name, true)
	})
	event.Subscribe(bus, func(ev event.CharacterSaved) {
		p.publish(ev.Player.Name, ev.Online)
	})
}

func (p *Publisher) publish(name string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.Set(ctx, name, online); err != nil {
		p.log.Warn("presence update failed", zap.String("character", name), zap.Error(err))
	}
}

func (p *Publisher) Set(ctx context.Context, name string, online bool) error {
	status := StatusOffline
	if online {
		status = StatusOnline
	}
	return p.store.Set(ctx, key(name), status, p.ttl).Err()
}

// Status returns the published status, offline when none is stored.
func (p *Publisher) Status(ctx context.Context, name string) (string, error) {
	v, err := p.store.Get(ctx, key(name)).Result()
	if errors.Is(err, goredis.Nil) {
		return StatusOffline, nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}
