package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/Yates-Labs/storyimager/internal/imaging"
	"github.com/Yates-Labs/storyimager/internal/story"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a generated story is reused for identical input.
const DefaultCacheTTL = 30 * time.Minute

// Generator produces a story for a request. *Service and *Cache implement it.
type Generator interface {
	Generate(ctx context.Context, req Request) (*story.Story, error)
}

// Cache reuses stories for identical images and preferences. Concurrent
// identical requests share a single call to the wrapped Generator. The shared
// call ignores cancellation of the request that started it and is bounded by
// the model client's own timeouts; each caller stops waiting when its own
// context ends. Failures are not cached.
type Cache struct {
	next   Generator
	store  *gocache.Cache
	group  singleflight.Group
	logger zerolog.Logger
}

// NewCache wraps next. A non-positive ttl selects DefaultCacheTTL.
func NewCache(next Generator, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		next:   next,
		store:  gocache.New(ttl, 2*ttl),
		logger: log.Logger,
	}
}

// Generate returns a cached story or delegates to the wrapped Generator.
func (c *Cache) Generate(ctx context.Context, req Request) (*story.Story, error) {
	key, ok := requestKey(req)
	if !ok {
		// Invalid input; let the pipeline report it.
		return c.next.Generate(ctx, req)
	}

	if cached, found := c.store.Get(key); found {
		c.logger.Debug().Str("cache_key", key[:12]).Msg("Story served from cache")
		return cached.(*story.Story), nil
	}

	shared := context.WithoutCancel(ctx)
	results := c.group.DoChan(key, func() (any, error) {
		if cached, found := c.store.Get(key); found {
			return cached, nil
		}
		s, err := c.next.Generate(shared, req)
		if err != nil {
			return nil, err
		}
		c.store.Set(key, s, gocache.DefaultExpiration)
		return s, nil
	})

	select {
	case <-ctx.Done():
		return nil, aborted(ctx.Err(), "request aborted while waiting for story")
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug().Str("cache_key", key[:12]).Msg("Story shared with concurrent request")
		}
		return res.Val.(*story.Story), nil
	}
}

// Len returns the number of cached stories, including expired ones not yet evicted.
func (c *Cache) Len() int { return c.store.ItemCount() }

// Flush drops every cached story.
func (c *Cache) Flush() { c.store.Flush() }

// requestKey hashes the images in order with the resolved preferences.
// The API key is not part of the key.
func requestKey(req Request) (string, bool) {
	if len(req.Images) == 0 {
		return "", false
	}
	prefs, err := req.Preferences.Resolve()
	if err != nil {
		return "", false
	}

	h := sha256.New()
	var length [8]byte
	for _, asset := range req.Images {
		format, ok := imaging.ParseFormat(asset.MIMEType)
		if !ok {
			return "", false
		}
		h.Write([]byte(format))
		binary.BigEndian.PutUint64(length[:], uint64(len(asset.Data)))
		h.Write(length[:])
		h.Write(asset.Data)
	}
	h.Write([]byte(prefs.Canonical()))
	return hex.EncodeToString(h.Sum(nil)), true
}
