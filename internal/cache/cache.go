// Package cache keeps recently decoded frame payloads in memory. A miss
// decodes through the supplied loader under a per-decode timeout, and a
// hit or fill schedules background prefetch of the frames that follow,
// on the expectation that sequential reads dominate retrieval.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/memvault/internal/core/domain"
	"github.com/custodia-labs/memvault/internal/logger"
)

// Loader decodes one frame payload by sequence index.
type Loader func(ctx context.Context, seq uint64) ([]byte, error)

// Options configures a frame cache.
type Options struct {
	// Capacity is the maximum number of decoded frames held. Must be
	// positive.
	Capacity int

	// PrefetchDepth is how many frames past an accessed frame are
	// prefetched. Zero disables prefetching.
	PrefetchDepth int

	// DecodeTimeout bounds each decode, foreground and background.
	// Zero means no bound.
	DecodeTimeout time.Duration
}

// Cache is the decoded-frame LRU with background prefetch.
type Cache struct {
	frames *lru.Cache[uint64, []byte]
	loader Loader
	opts   Options
	jobs   chan uint64
	cancel context.CancelFunc
	group  *errgroup.Group
	mu     sync.Mutex
	closed bool
}

// prefetchQueueSize bounds the job channel; when full, new prefetch
// hints are dropped rather than blocking the reader.
const prefetchQueueSize = 64

// New builds a cache around the given loader.
func New(opts Options, loader Loader) (*Cache, error) {
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("%w: cache capacity must be positive", domain.ErrInvalidConfiguration)
	}
	if opts.PrefetchDepth < 0 {
		return nil, fmt.Errorf("%w: prefetch depth must not be negative", domain.ErrInvalidConfiguration)
	}
	if loader == nil {
		return nil, fmt.Errorf("%w: cache loader is required", domain.ErrInvalidConfiguration)
	}

	frames, err := lru.New[uint64, []byte](opts.Capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	c := &Cache{
		frames: frames,
		loader: loader,
		opts:   opts,
		jobs:   make(chan uint64, prefetchQueueSize),
		cancel: cancel,
		group:  group,
	}
	if opts.PrefetchDepth > 0 {
		group.Go(func() error {
			c.prefetchLoop(ctx)
			return nil
		})
	}
	return c, nil
}

// Get returns the decoded payload for seq, decoding on miss. Successful
// access schedules prefetch of the following PrefetchDepth frames.
func (c *Cache) Get(ctx context.Context, seq uint64) ([]byte, error) {
	if data, ok := c.frames.Get(seq); ok {
		c.schedulePrefetch(seq)
		return data, nil
	}

	data, err := c.load(ctx, seq)
	if err != nil {
		return nil, err
	}
	c.frames.Add(seq, data)
	c.schedulePrefetch(seq)
	return data, nil
}

// Contains reports whether seq is cached, without affecting recency.
func (c *Cache) Contains(seq uint64) bool {
	return c.frames.Contains(seq)
}

// Len reports the number of cached frames.
func (c *Cache) Len() int {
	return c.frames.Len()
}

// Clear drops all cached frames.
func (c *Cache) Clear() {
	c.frames.Purge()
}

// Close stops the prefetcher. In-flight background decodes are
// cancelled and their results discarded.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	return c.group.Wait()
}

func (c *Cache) load(ctx context.Context, seq uint64) ([]byte, error) {
	if c.opts.DecodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.DecodeTimeout)
		defer cancel()
	}
	data, err := c.loader(ctx, seq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: frame %d", domain.ErrDecodeTimeout, seq)
		}
		return nil, err
	}
	return data, nil
}

func (c *Cache) schedulePrefetch(seq uint64) {
	if c.opts.PrefetchDepth == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for i := 1; i <= c.opts.PrefetchDepth; i++ {
		next := seq + uint64(i)
		if c.frames.Contains(next) {
			continue
		}
		select {
		case c.jobs <- next:
		default:
			return // queue full, reader never blocks
		}
	}
}

func (c *Cache) prefetchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case seq := <-c.jobs:
			if c.frames.Contains(seq) {
				continue
			}
			data, err := c.load(ctx, seq)
			if err != nil {
				// Prefetch is advisory: missing frames and slow decodes
				// are left for a foreground Get to surface.
				if !errors.Is(err, domain.ErrNotFound) {
					logger.Debug("prefetch frame %d: %v", seq, err)
				}
				continue
			}
			if ctx.Err() != nil {
				return
			}
			c.frames.Add(seq, data)
		}
	}
}
