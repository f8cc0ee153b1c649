package liveview

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

// SortedViewPipeline combines the store's live query for one filter with the
// resolved sort order into a continuously updating sorted view.
//
// The first view waits for the sort order to resolve; store snapshots that
// arrive meanwhile are conflated, never delivered unsorted. After that, every
// store emission recomputes the view with the memoized order. Recomputation
// runs on the pipeline goroutine, never on the caller, and is idempotent for
// fixed inputs.
//
// A pipeline belongs to exactly one filter. Switching filters means closing
// this pipeline and creating a new one; a closed pipeline never publishes,
// including any recomputation in flight at close.
type SortedViewPipeline struct {
	ctx    context.Context
	cancel context.CancelFunc

	filter ZoneFilter

	stateLock sync.Mutex
	view      []Item
	hasView   bool

	views chan []Item
}

func NewSortedViewPipeline(
	ctx context.Context,
	store CollectionStore,
	cache *SortOrderCache,
	filter ZoneFilter,
) *SortedViewPipeline {
	cancelCtx, cancel := context.WithCancel(ctx)

	pipeline := &SortedViewPipeline{
		ctx:    cancelCtx,
		cancel: cancel,
		filter: filter,
		views:  make(chan []Item, 1),
	}
	go pipeline.run(store, cache)
	return pipeline
}

func (self *SortedViewPipeline) run(store CollectionStore, cache *SortOrderCache) {
	sub := store.LiveQuery(self.ctx, self.filter)
	defer sub.Close()

	orders := make(chan SortOrder, 1)
	go func() {
		order, err := cache.Resolve(self.ctx)
		if err != nil {
			// closed while waiting
			return
		}
		orders <- order
	}()

	sorted := combineLatest(self.ctx, sub.Updates(), orders, func(items []Item, order SortOrder) []Item {
		return SortItems(items, order)
	})

	for {
		select {
		case <-self.ctx.Done():
			return
		case view := <-sorted:
			select {
			case <-self.ctx.Done():
				// discard, never publish after close
				return
			default:
			}
			self.stateLock.Lock()
			self.view = view
			self.hasView = true
			self.stateLock.Unlock()
			sendLatest(self.views, view)
			glog.V(2).Infof("[svp]%s view count=%d\n", self.filter, len(view))
		}
	}
}

// Views is the conflated view channel: a slow consumer observes the most
// recent view, never every intermediate one. Left open on close.
func (self *SortedViewPipeline) Views() <-chan []Item {
	return self.views
}

// Current returns the most recently computed view.
func (self *SortedViewPipeline) Current() ([]Item, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.view, self.hasView
}

func (self *SortedViewPipeline) Filter() ZoneFilter {
	return self.filter
}

func (self *SortedViewPipeline) Close() {
	self.cancel()
}
