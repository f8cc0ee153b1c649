package liveview

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

type FetchSortOrderFunc func(ctx context.Context) (SortOrder, error)

type FallbackSortOrderFunc func() SortOrder

func EmptySortOrder() SortOrder {
	return SortOrder{}
}

// SortOrderCache resolves the remote sort order exactly once per process.
//
// The first `Resolve` starts one fetch. Callers that arrive while the fetch
// is outstanding wait on the same resolution and are all released together.
// On success the fetched order is memoized permanently. On failure the
// fallback is computed once and memoized instead; failure is a completed
// resolution and is never retried or surfaced. There is no invalidation.
type SortOrderCache struct {
	ctx context.Context

	fetch    FetchSortOrderFunc
	fallback FallbackSortOrderFunc

	stateLock sync.Mutex
	resolved  bool
	order     SortOrder
	// nil when no fetch has started. Closed when the resolution completes.
	inFlight chan struct{}
}

func NewSortOrderCacheWithDefaults(ctx context.Context, source RemoteSource) *SortOrderCache {
	return NewSortOrderCache(ctx, source.FetchSortOrder, EmptySortOrder)
}

func NewSortOrderCache(ctx context.Context, fetch FetchSortOrderFunc, fallback FallbackSortOrderFunc) *SortOrderCache {
	return &SortOrderCache{
		ctx:      ctx,
		fetch:    fetch,
		fallback: fallback,
	}
}

// Resolve returns the memoized sort order, starting the fetch if none has
// started yet. The error is non-nil only when the caller's context ends
// while waiting. The shared fetch is not cancelled by an abandoned wait;
// it runs on the cache's own context.
func (self *SortOrderCache) Resolve(ctx context.Context) (SortOrder, error) {
	self.stateLock.Lock()
	if self.resolved {
		order := self.order
		self.stateLock.Unlock()
		return order, nil
	}
	if self.inFlight == nil {
		self.inFlight = make(chan struct{})
		go self.run(self.inFlight)
	}
	inFlight := self.inFlight
	self.stateLock.Unlock()

	select {
	case <-inFlight:
		self.stateLock.Lock()
		order := self.order
		self.stateLock.Unlock()
		return order, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peek returns the resolved order without waiting.
func (self *SortOrderCache) Peek() (SortOrder, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.order, self.resolved
}

func (self *SortOrderCache) run(inFlight chan struct{}) {
	order, err := self.fetch(self.ctx)

	self.stateLock.Lock()
	if err == nil {
		self.order = order
		glog.V(1).Infof("[soc]resolved count=%d\n", len(order))
	} else {
		self.order = self.fallback()
		glog.Infof("[soc]fetch error, memoizing fallback = %s\n", err)
	}
	self.resolved = true
	self.stateLock.Unlock()

	close(inFlight)
}
