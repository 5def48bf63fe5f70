package persist

import (
	"context"
	"sync"
	"time"

	"github.com/l1jgo/worldstore/internal/world"
	"golang.org/x/sync/singleflight"
)

// guildLoadTimeout bounds a shared load once it no longer follows the
// first caller's context.
const guildLoadTimeout = 30 * time.Second

// GuildCache holds every guild materialized since boot. Entries live for the
// process lifetime.
type GuildCache struct {
	mu     sync.RWMutex
	guilds map[string]*world.Guild
	group  singleflight.Group
}

func NewGuildCache() *GuildCache {
	return &GuildCache{guilds: make(map[string]*world.Guild)}
}

func (c *GuildCache) Get(name string) (*world.Guild, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.guilds[name]
	return g, ok
}

// Put stores g under its name, replacing any previous entry.
func (c *GuildCache) Put(g *world.Guild) {
	c.mu.Lock()
	c.guilds[g.Name] = g
	c.mu.Unlock()
}

func (c *GuildCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.guilds)
}

func (c *GuildCache) putIfAbsent(name string, g *world.Guild) *world.Guild {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.guilds[name]; ok {
		return existing
	}
	c.guilds[name] = g
	return g
}

// GetOrLoad returns the cached guild or runs load once for all concurrent
// callers asking for the same name. Every caller gets the same pointer.
// The shared load is detached from the first caller's cancellation; each
// caller still stops waiting when its own ctx is done.
func (c *GuildCache) GetOrLoad(ctx context.Context, name string, load func(ctx context.Context) (*world.Guild, error)) (*world.Guild, error) {
	if g, ok := c.Get(name); ok {
		return g, nil
	}
	ch := c.group.DoChan(name, func() (any, error) {
		if g, ok := c.Get(name); ok {
			return g, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), guildLoadTimeout)
		defer cancel()
		g, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		return c.putIfAbsent(name, g), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*world.Guild), nil
	}
}
